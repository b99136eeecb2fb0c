// Package pattern implements the address/asset pattern language used to
// select which on-chain outputs the indexer keeps. A pattern's canonical
// text form is a stable identifier: it is what gets persisted to the
// store and what callers use as an HTTP path parameter.
package pattern

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates the pattern variants named in the specification.
type Kind byte

const (
	KindAny Kind = iota
	KindExactAddress
	KindAddressPrefix
	KindPaymentCredential
	KindDelegationCredential
	KindMatchPolicyID
	KindMatchAssetID
	KindOutputReference
	KindTransactionID
)

func (k Kind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindExactAddress:
		return "exact_address"
	case KindAddressPrefix:
		return "address_prefix"
	case KindPaymentCredential:
		return "payment_credential"
	case KindDelegationCredential:
		return "delegation_credential"
	case KindMatchPolicyID:
		return "policy_id"
	case KindMatchAssetID:
		return "asset_id"
	case KindOutputReference:
		return "output_reference"
	case KindTransactionID:
		return "transaction_id"
	default:
		return "unknown"
	}
}

var ErrInvalidPattern = errors.New("invalid_pattern")

// Pattern is a filter over outputs. The zero value is not valid; build
// patterns through the constructors or Parse.
type Pattern struct {
	Kind     Kind
	Address  string // ExactAddress, AddressPrefix
	Bytes    []byte // PaymentCredential, DelegationCredential, MatchPolicyID, TransactionID, OutputReference.TxID
	Name     []byte // MatchAssetID asset name
	TxIndex  uint32 // OutputReference
}

func Any() Pattern { return Pattern{Kind: KindAny} }

func ExactAddress(addr string) Pattern { return Pattern{Kind: KindExactAddress, Address: addr} }

func AddressPrefix(prefix string) Pattern { return Pattern{Kind: KindAddressPrefix, Address: prefix} }

func PaymentCredential(cred []byte) Pattern { return Pattern{Kind: KindPaymentCredential, Bytes: cred} }

func DelegationCredential(cred []byte) Pattern {
	return Pattern{Kind: KindDelegationCredential, Bytes: cred}
}

func MatchPolicyID(policyID []byte) Pattern { return Pattern{Kind: KindMatchPolicyID, Bytes: policyID} }

func MatchAssetID(policyID, name []byte) Pattern {
	return Pattern{Kind: KindMatchAssetID, Bytes: policyID, Name: name}
}

func OutputReference(txID []byte, index uint32) Pattern {
	return Pattern{Kind: KindOutputReference, Bytes: txID, TxIndex: index}
}

func TransactionID(txID []byte) Pattern { return Pattern{Kind: KindTransactionID, Bytes: txID} }

// String renders the canonical text form, the stable identifier used as
// an HTTP path parameter and as the persisted key in the patterns table.
func (p Pattern) String() string {
	switch p.Kind {
	case KindAny:
		return "*"
	case KindExactAddress:
		return p.Address
	case KindAddressPrefix:
		return p.Address + "/*"
	case KindPaymentCredential:
		return "payment_cred/" + hex.EncodeToString(p.Bytes)
	case KindDelegationCredential:
		return "deleg_cred/" + hex.EncodeToString(p.Bytes)
	case KindMatchPolicyID:
		return "policy/" + hex.EncodeToString(p.Bytes)
	case KindMatchAssetID:
		return "asset/" + hex.EncodeToString(p.Bytes) + "." + hex.EncodeToString(p.Name)
	case KindOutputReference:
		return "output_ref/" + hex.EncodeToString(p.Bytes) + "#" + strconv.FormatUint(uint64(p.TxIndex), 10)
	case KindTransactionID:
		return "tx/" + hex.EncodeToString(p.Bytes)
	default:
		return ""
	}
}

// Parse reconstructs a Pattern from its canonical text form, returning
// ErrInvalidPattern when the text does not match any known shape.
func Parse(text string) (Pattern, error) {
	switch {
	case text == "*":
		return Any(), nil
	case strings.HasSuffix(text, "/*") && !strings.Contains(strings.TrimSuffix(text, "/*"), "/"):
		return AddressPrefix(strings.TrimSuffix(text, "/*")), nil
	case strings.HasPrefix(text, "payment_cred/"):
		b, err := decodeHexField(text, "payment_cred/")
		if err != nil {
			return Pattern{}, err
		}

		return PaymentCredential(b), nil
	case strings.HasPrefix(text, "deleg_cred/"):
		b, err := decodeHexField(text, "deleg_cred/")
		if err != nil {
			return Pattern{}, err
		}

		return DelegationCredential(b), nil
	case strings.HasPrefix(text, "policy/"):
		b, err := decodeHexField(text, "policy/")
		if err != nil {
			return Pattern{}, err
		}

		return MatchPolicyID(b), nil
	case strings.HasPrefix(text, "asset/"):
		rest := strings.TrimPrefix(text, "asset/")

		parts := strings.SplitN(rest, ".", 2)
		if len(parts) != 2 {
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
		}

		policyID, err := hex.DecodeString(parts[0])
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
		}

		name, err := hex.DecodeString(parts[1])
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
		}

		return MatchAssetID(policyID, name), nil
	case strings.HasPrefix(text, "output_ref/"):
		rest := strings.TrimPrefix(text, "output_ref/")

		parts := strings.SplitN(rest, "#", 2)
		if len(parts) != 2 {
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
		}

		txID, err := hex.DecodeString(parts[0])
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
		}

		idx, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
		}

		return OutputReference(txID, uint32(idx)), nil
	case strings.HasPrefix(text, "tx/"):
		b, err := decodeHexField(text, "tx/")
		if err != nil {
			return Pattern{}, err
		}

		return TransactionID(b), nil
	case text != "" && !strings.Contains(text, "/"):
		// bare address: "addr1...", "stake1...", or an as-yet-unrecognized address form
		return ExactAddress(text), nil
	default:
		return Pattern{}, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
	}
}

// ParseAll parses every text in texts, collecting the invalid ones into
// a single joined error so PUT /patterns can report invalid_patterns.
func ParseAll(texts []string) ([]Pattern, error) {
	result := make([]Pattern, 0, len(texts))

	var errs []error

	for _, t := range texts {
		p, err := Parse(t)
		if err != nil {
			errs = append(errs, err)

			continue
		}

		result = append(result, p)
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return result, nil
}

func decodeHexField(text, prefix string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(text, prefix))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPattern, text)
	}

	return b, nil
}
