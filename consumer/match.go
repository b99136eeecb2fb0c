package consumer

import (
	"encoding/hex"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/registry"
)

// matchedBlock is the result of running a block's transactions against a
// pattern snapshot: spent references, newly-matched outputs, and the
// binary data/scripts carried by transactions that had at least one
// matched output, grounded on BlockIndexer.processConfirmedBlock's
// three-way split (confirmed block / relevant txs / latest point) but
// reshaped into data the Consumer applies directly instead of handing to
// a callback.
type matchedBlock struct {
	point      chainpoint.Point
	spentRefs  []model.OutputRef
	newInputs  []*model.Result
	binaryData []*model.BinaryData
	scripts    []*model.Script
}

// matchBlock runs every transaction in block against set, the way the
// teacher's filterTxsOfInterest/isTxOutputOfInterest walk does, but over
// the richer pattern language instead of a flat address set.
func matchBlock(set pattern.Set, block *model.Block) *matchedBlock {
	out := &matchedBlock{point: block.Point}

	for _, tx := range block.Txs {
		out.spentRefs = append(out.spentRefs, tx.Inputs...)

		matchedAny := false

		for _, result := range tx.Outputs {
			if !outputMatches(set, result) {
				continue
			}

			matchedAny = true

			indexed := *result
			indexed.CreatedAt = block.Point
			out.newInputs = append(out.newInputs, &indexed)
		}

		if matchedAny {
			out.binaryData = append(out.binaryData, tx.Datums...)
			out.scripts = append(out.scripts, tx.Scripts...)
		}
	}

	return out
}

// outputMatches reports whether result satisfies some pattern in set,
// checking the address/credential/reference patterns once and, for
// outputs carrying multi-asset value, every policy/asset pair too (a
// MatchPolicyId/MatchAssetId pattern only ever matches through one of
// those pairs, never the bare output).
func outputMatches(set pattern.Set, result *model.Result) bool {
	txID, index := result.OutputRef.TxID, result.OutputRef.Index

	if len(registry.Matches(set, result.Address, nil, nil,
		result.PaymentCredential, result.DelegationCredential, txID, index)) > 0 {
		return true
	}

	for policyHex, assets := range result.Value.MultiAssets {
		policyID := mustHexDecode(policyHex)

		for nameHex := range assets {
			assetName := mustHexDecode(nameHex)

			if len(registry.Matches(set, result.Address, policyID, assetName,
				result.PaymentCredential, result.DelegationCredential, txID, index)) > 0 {
				return true
			}
		}
	}

	return false
}

func mustHexDecode(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}

	return b
}
