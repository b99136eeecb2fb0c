package sqlite

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/store"
)

// predicate renders a pattern as a WHERE fragment against the inputs
// table alone, using an EXISTS subquery for policy/asset kinds so the
// same fragment works for both SELECT and DELETE statements.
func predicate(p pattern.Pattern) (string, []any, error) {
	switch p.Kind {
	case pattern.KindAny:
		return "1 = 1", nil, nil
	case pattern.KindExactAddress:
		return "address = ?", []any{p.Address}, nil
	case pattern.KindAddressPrefix:
		return "address LIKE ? ESCAPE '\\'", []any{escapeLikePrefix(p.Address) + "%"}, nil
	case pattern.KindPaymentCredential:
		return "payment_cred = ?", []any{hex.EncodeToString(p.Bytes)}, nil
	case pattern.KindDelegationCredential:
		return "deleg_cred = ?", []any{hex.EncodeToString(p.Bytes)}, nil
	case pattern.KindMatchPolicyID:
		return "EXISTS (SELECT 1 FROM inputs_assets ia WHERE ia.tx_id = inputs.tx_id " +
				"AND ia.output_index = inputs.output_index AND ia.policy_id = ?)",
			[]any{hex.EncodeToString(p.Bytes)}, nil
	case pattern.KindMatchAssetID:
		return "EXISTS (SELECT 1 FROM inputs_assets ia WHERE ia.tx_id = inputs.tx_id " +
				"AND ia.output_index = inputs.output_index AND ia.policy_id = ? AND ia.asset_name = ?)",
			[]any{hex.EncodeToString(p.Bytes), hex.EncodeToString(p.Name)}, nil
	case pattern.KindOutputReference:
		return "tx_id = ? AND output_index = ?", []any{hex.EncodeToString(p.Bytes), p.TxIndex}, nil
	case pattern.KindTransactionID:
		return "tx_id = ?", []any{hex.EncodeToString(p.Bytes)}, nil
	default:
		return "", nil, fmt.Errorf("sqlite store: unhandled pattern kind %v", p.Kind)
	}
}

func selectClause(p pattern.Pattern, status store.StatusFlag, sort store.SortDirection) (string, []any, error) {
	where, args, err := predicate(p)
	if err != nil {
		return "", nil, err
	}

	conds := []string{where}

	switch status {
	case store.StatusUnspent:
		conds = append(conds, "spent_slot IS NULL")
	case store.StatusSpent:
		conds = append(conds, "spent_slot IS NOT NULL")
	}

	order := "ASC"
	if sort == store.SortDesc {
		order = "DESC"
	}

	query := "SELECT tx_id, output_index, address, payment_cred, deleg_cred, " +
		"lovelace, multi_assets_json, datum_hash, script_hash, " +
		"created_slot, created_hash, spent_slot, spent_hash FROM inputs WHERE " +
		strings.Join(conds, " AND ")

	query += fmt.Sprintf(" ORDER BY created_slot %s, output_index %s", order, order)

	return query, args, nil
}

func deleteClause(p pattern.Pattern) (string, []any, error) {
	where, args, err := predicate(p)
	if err != nil {
		return "", nil, err
	}

	return "DELETE FROM inputs WHERE " + where, args, nil
}

// deleteAssetsClause must run before deleteClause: it keys off rows in
// inputs that deleteClause is about to remove.
func deleteAssetsClause(p pattern.Pattern) (string, []any, error) {
	where, args, err := predicate(p)
	if err != nil {
		return "", nil, err
	}

	query := "DELETE FROM inputs_assets WHERE (tx_id, output_index) IN (" +
		"SELECT tx_id, output_index FROM inputs WHERE " + where + ")"

	return query, args, nil
}

func escapeLikePrefix(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")

	return s
}
