package ogmios

import (
	"encoding/hex"

	"github.com/Ethernal-Tech/cardano-infrastructure/wallet"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
)

// adaPolicyID/adaAssetName are the keys Ogmios uses inside a value map
// for the lovelace amount, set apart from every other policy/asset pair
// the same way the teacher's txs_retriever.go special-cases them.
const (
	adaPolicyID  = "ada"
	adaAssetName = "lovelace"
)

func decodeBlock(b *block) *model.Block {
	hash, _ := chainpoint.HashFromHex(b.ID)

	decoded := &model.Block{
		Point: chainpoint.NewPoint(b.Slot, hash),
	}

	for _, tx := range b.Transactions {
		decoded.Txs = append(decoded.Txs, decodeTransaction(tx))
	}

	return decoded
}

func decodeTransaction(tx *transaction) *model.Tx {
	txID, _ := hex.DecodeString(tx.ID)

	out := &model.Tx{ID: txID}

	for _, inp := range tx.Inputs {
		inpID, _ := hex.DecodeString(inp.Transaction.ID)
		out.Inputs = append(out.Inputs, model.OutputRef{TxID: inpID, Index: inp.Index})
	}

	for idx, o := range tx.Outputs {
		result := &model.Result{
			OutputRef: model.OutputRef{TxID: txID, Index: uint32(idx)}, //nolint:gosec
			Address:   o.Address,
			Value:     decodeValue(o.Value),
		}

		if payment, delegation, err := addressCredentials(o.Address); err == nil {
			result.PaymentCredential = payment
			result.DelegationCredential = delegation
		}

		if o.DatumHash != "" {
			if dh, err := hex.DecodeString(o.DatumHash); err == nil {
				result.DatumHash = dh
			}
		}

		if o.Script != nil {
			if sh, err := hex.DecodeString(o.Script.CBOR); err == nil {
				result.ScriptHash = sh
			}
		}

		out.Outputs = append(out.Outputs, result)
	}

	if tx.Metadata != nil && len(tx.Metadata.Labels) > 0 {
		out.Metadata = tx.Metadata.Labels
	}

	return out
}

// decodeValue reshapes Ogmios's per-policy value map into model.Value,
// pulling the lovelace amount out of the ada/lovelace slot the same way
// the teacher's GetBlockTransactions does.
func decodeValue(raw map[string]map[string]uint64) model.Value {
	v := model.Value{Lovelace: raw[adaPolicyID][adaAssetName]}

	for policyID, assets := range raw {
		if policyID == adaPolicyID {
			continue
		}

		if v.MultiAssets == nil {
			v.MultiAssets = make(map[string]map[string]uint64, len(raw)-1)
		}

		v.MultiAssets[policyID] = assets
	}

	return v
}

// addressCredentials decodes an Ogmios address string (bech32, since
// Ogmios hands back text rather than the raw bytes the gouroboros
// ledger types already carry) into its payment/delegation credential
// hashes, using the teacher's own address package rather than
// reimplementing bech32.
func addressCredentials(addr string) (payment, delegation []byte, err error) {
	parsed, err := wallet.NewAddress(addr)
	if err != nil {
		return nil, nil, err
	}

	if p := parsed.GetPayment(); p.Kind != wallet.EmptyStakeCredentialType {
		payment = append([]byte(nil), p.Payload[:]...)
	}

	if s := parsed.GetStake(); s.Kind != wallet.EmptyStakeCredentialType {
		delegation = append([]byte(nil), s.Payload[:]...)
	}

	return payment, delegation, nil
}
