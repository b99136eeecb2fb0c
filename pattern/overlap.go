package pattern

import "bytes"

// Set is a read-only snapshot of an active pattern set, used by Overlaps
// and by the HTTP layer's intersect-with-active-set queries.
type Set []Pattern

// Overlaps reports whether some pattern in s matches a strict superset
// of what p matches. Any is a strict superset of every other pattern;
// a longer address prefix is a subset of a shorter one that contains it;
// identical patterns never overlap each other (a pattern is never a
// strict superset of itself).
func (p Pattern) Overlaps(s Set) bool {
	for _, other := range s {
		if supersetOf(other, p) {
			return true
		}
	}

	return false
}

// supersetOf reports whether a matches a strict superset of what b
// matches.
func supersetOf(a, b Pattern) bool {
	if a.Kind == KindAny {
		return b.Kind != KindAny
	}

	switch a.Kind {
	case KindAddressPrefix:
		switch b.Kind {
		case KindAddressPrefix:
			return b.Address != a.Address && hasAddressPrefix(b.Address, a.Address)
		case KindExactAddress:
			return hasAddressPrefix(b.Address, a.Address)
		default:
			return false
		}
	case KindMatchPolicyID:
		if b.Kind == KindMatchAssetID {
			return bytes.Equal(a.Bytes, b.Bytes)
		}

		return false
	default:
		return false
	}
}

func hasAddressPrefix(addr, prefix string) bool {
	return len(addr) >= len(prefix) && addr[:len(prefix)] == prefix
}
