// Package registry holds the live set of patterns the Consumer matches
// every output against (spec.md §4.2). Reads never block: the Consumer
// takes one atomic snapshot per roll-forward batch, so a pattern added
// while a batch is being matched only takes effect from the next batch
// onward — the same kind of lag the
// teacher's BlockIndexer accepts for its static addressesOfInterest map
// (indexer/block_indexer.go), generalized here to a registry that can
// also grow and shrink at runtime.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/store"
)

// Registry is an atomically-swapped, copy-on-write set of patterns,
// paired with the store so every mutation is durable before it is
// visible to readers.
type Registry struct {
	db       store.Store
	writeMu  sync.Mutex
	snapshot atomic.Pointer[pattern.Set]
}

// Load opens the registry against db and primes its snapshot from
// whatever patterns were already persisted.
func Load(db store.Store) (*Registry, error) {
	persisted, err := db.ListPatterns()
	if err != nil {
		return nil, fmt.Errorf("could not load patterns: %w", err)
	}

	r := &Registry{db: db}

	set := pattern.Set(persisted)
	r.snapshot.Store(&set)

	return r, nil
}

// Snapshot returns the current pattern set. Callers must not mutate it.
func (r *Registry) Snapshot() pattern.Set {
	return *r.snapshot.Load()
}

// Add persists and activates every pattern in patterns not already
// present (by exact canonical text). A pattern that is redundant with
// an existing broader one (the overlap invariant, spec.md §4.2) is
// still added — overlap only gates deletion, never addition — so that
// removing the broader pattern later still leaves the narrower one
// active. It returns the patterns that were actually added.
func (r *Registry) Add(patterns []pattern.Pattern) ([]pattern.Pattern, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.Snapshot()

	var added []pattern.Pattern

	for _, p := range patterns {
		if containsPattern(current, p) {
			continue
		}

		added = append(added, p)
		current = append(current, p)
	}

	if len(added) == 0 {
		return nil, nil
	}

	tx, err := r.db.BeginTx(store.ReadWrite)
	if err != nil {
		return nil, fmt.Errorf("could not begin pattern registry transaction: %w", err)
	}

	tx.InsertPatterns(added)

	if err := tx.Execute(); err != nil {
		return nil, fmt.Errorf("could not persist patterns: %w", err)
	}

	set := pattern.Set(current)
	r.snapshot.Store(&set)

	return added, nil
}

// Remove deactivates and deletes a single pattern, reporting how many
// were actually removed (0 or 1) so DELETE /patterns can answer
// {"deleted": n}.
func (r *Registry) Remove(p pattern.Pattern) (int, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	current := r.Snapshot()

	idx := -1

	for i, existing := range current {
		if existing.String() == p.String() {
			idx = i

			break
		}
	}

	if idx == -1 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(store.ReadWrite)
	if err != nil {
		return 0, fmt.Errorf("could not begin pattern registry transaction: %w", err)
	}

	tx.DeletePattern(p)

	if err := tx.Execute(); err != nil {
		return 0, fmt.Errorf("could not delete pattern: %w", err)
	}

	next := make(pattern.Set, 0, len(current)-1)
	next = append(next, current[:idx]...)
	next = append(next, current[idx+1:]...)

	r.snapshot.Store(&next)

	return 1, nil
}

// Overlaps reports whether p.overlaps(activeSet) (spec.md §4.2), the
// guard DELETE /matches uses to refuse deleting results that would
// immediately be re-indexed by a broader active pattern.
func (r *Registry) Overlaps(p pattern.Pattern) bool {
	return p.Overlaps(r.Snapshot())
}

func containsPattern(set pattern.Set, p pattern.Pattern) bool {
	for _, existing := range set {
		if existing.String() == p.String() {
			return true
		}
	}

	return false
}

// Matches reports every pattern in set that the described output
// satisfies, used by the Consumer's per-output matching pass.
func Matches(set pattern.Set, address string, policyID, assetName []byte, paymentCred, delegCred, txID []byte, outputIndex uint32) []pattern.Pattern {
	var matched []pattern.Pattern

	for _, p := range set {
		if patternMatches(p, address, policyID, assetName, paymentCred, delegCred, txID, outputIndex) {
			matched = append(matched, p)
		}
	}

	return matched
}

func patternMatches(p pattern.Pattern, address string, policyID, assetName, paymentCred, delegCred, txID []byte, outputIndex uint32) bool {
	switch p.Kind {
	case pattern.KindAny:
		return true
	case pattern.KindExactAddress:
		return p.Address == address
	case pattern.KindAddressPrefix:
		return len(address) >= len(p.Address) && address[:len(p.Address)] == p.Address
	case pattern.KindPaymentCredential:
		return bytesEqual(p.Bytes, paymentCred)
	case pattern.KindDelegationCredential:
		return bytesEqual(p.Bytes, delegCred)
	case pattern.KindMatchPolicyID:
		return bytesEqual(p.Bytes, policyID)
	case pattern.KindMatchAssetID:
		return bytesEqual(p.Bytes, policyID) && bytesEqual(p.Name, assetName)
	case pattern.KindOutputReference:
		return bytesEqual(p.Bytes, txID) && p.TxIndex == outputIndex
	case pattern.KindTransactionID:
		return bytesEqual(p.Bytes, txID)
	default:
		return false
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
