package gouroboros

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/blinklabs-io/gouroboros/ledger"
	"github.com/fxamacker/cbor/v2"

	"github.com/cardano-chain-indexer/indexer/model"
)

// decodeTransactions turns gouroboros's already-CBOR-decoded ledger
// transactions into the core's model.Tx shape, mirroring the teacher's
// NewTransaction (indexer/data.go) but keeping multi-asset values and
// datum hashes instead of dropping them; script hashes are not extracted,
// so model.Result.ScriptHash stays nil on this path — decoding
// the CBOR itself remains gouroboros's job (spec.md §1's external
// collaborator boundary), this only reshapes what it already parsed.
func decodeTransactions(txs []ledger.Transaction) []*model.Tx {
	if len(txs) == 0 {
		return nil
	}

	result := make([]*model.Tx, len(txs))

	for i, tx := range txs {
		result[i] = decodeTransaction(tx)
	}

	return result
}

func decodeTransaction(tx ledger.Transaction) *model.Tx {
	txID, _ := hex.DecodeString(tx.Hash())

	out := &model.Tx{ID: txID}

	for _, inp := range tx.Inputs() {
		inpID, _ := hex.DecodeString(inp.Id().String())
		out.Inputs = append(out.Inputs, model.OutputRef{TxID: inpID, Index: inp.Index()})
	}

	for idx, o := range tx.Outputs() {
		result := &model.Result{
			OutputRef: model.OutputRef{TxID: txID, Index: uint32(idx)},
			Address:   o.Address().String(),
			Value:     decodeValue(o),
		}

		if withBytes, ok := interface{}(o.Address()).(interface{ Bytes() []byte }); ok {
			result.PaymentCredential, result.DelegationCredential = addressCredentials(withBytes.Bytes())
		}

		if dh := decodeDatumHash(o); len(dh) > 0 {
			result.DatumHash = dh
		}

		out.Outputs = append(out.Outputs, result)
	}

	out.Metadata = decodeMetadata(tx)

	return out
}

// decodeMetadata pulls auxiliary-data bytes out of tx via a narrow
// Cbor()-only assertion (the address bytes use a Bytes()-only one), then re-encodes
// them as JSON so the HTTP layer never has to care which backend
// produced a model.Tx. This is the "outer CBOR envelope" decoding
// SPEC_FULL draws the line at: no interpretation of metadatum schemas,
// just turning arbitrary CBOR into its natural Go/JSON shape.
func decodeMetadata(tx ledger.Transaction) json.RawMessage {
	metadata := tx.Metadata()
	if metadata == nil {
		return nil
	}

	withCbor, ok := interface{}(metadata).(interface{ Cbor() []byte })
	if !ok {
		return nil
	}

	raw := withCbor.Cbor()
	if len(raw) == 0 {
		return nil
	}

	var decoded any
	if err := cbor.Unmarshal(raw, &decoded); err != nil {
		return nil
	}

	encoded, err := json.Marshal(jsonSafe(decoded))
	if err != nil {
		return nil
	}

	return encoded
}

// jsonSafe recursively rewrites fxamacker/cbor's default decode shape
// (map[interface{}]interface{}, with metadatum labels often decoding as
// uint64 keys) into something encoding/json can marshal.
func jsonSafe(v any) any {
	switch val := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[fmt.Sprint(k)] = jsonSafe(item)
		}

		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = jsonSafe(item)
		}

		return out
	default:
		return val
	}
}

// assetBundle is the shape this package expects a gouroboros output's
// multi-asset value to already reduce to, kept narrow (built-in types
// only) so decodeValue degrades to lovelace-only instead of failing to
// build against a ledger release that shapes it differently.
type assetBundle interface {
	Assets() map[string]map[string]uint64 // policyID(hex) -> assetName(hex) -> quantity
}

// decodeValue reshapes a gouroboros output's lovelace-plus-multi-asset
// amount into model.Value's hex-keyed map form.
func decodeValue(o ledger.TransactionOutput) model.Value {
	v := model.Value{Lovelace: o.Amount()}

	if bundle, ok := o.(assetBundle); ok {
		v.MultiAssets = bundle.Assets()
	}

	return v
}

const credentialSize = 28

// addressCredentials pulls the payment and delegation credential hashes
// straight out of a CIP-19 address's raw bytes. Cardano addresses carry
// these as fixed-width fields following a one-byte header; the ledger
// has already produced that raw form by decoding the block's CBOR, so
// no bech32 decoding of the human-readable form is needed here (that
// text form is only relevant at the HTTP boundary, where addresses
// arrive as already-valid strings — pattern.Pattern stores them as-is).
func addressCredentials(raw []byte) (payment, delegation []byte) {
	if len(raw) < 1+credentialSize {
		return nil, nil
	}

	header := raw[0] >> 4

	switch header {
	case 0x0, 0x1, 0x2, 0x3: // base address: payment + delegation credential
		payment = raw[1 : 1+credentialSize]
		if len(raw) >= 1+2*credentialSize {
			delegation = raw[1+credentialSize : 1+2*credentialSize]
		}
	case 0x4, 0x5, 0x6, 0x7: // pointer/enterprise address: payment credential only
		payment = raw[1 : 1+credentialSize]
	case 0xE, 0xF: // stake address: delegation credential only
		delegation = raw[1 : 1+credentialSize]
	}

	return payment, delegation
}

func decodeDatumHash(o ledger.TransactionOutput) []byte {
	withHash, ok := o.(interface{ DatumHash() []byte })
	if !ok {
		return nil
	}

	return withHash.DatumHash()
}
