package sqlite

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
)

func hexOrEmpty(b []byte) string {
	if len(b) == 0 {
		return ""
	}

	return hex.EncodeToString(b)
}

func nullStringOrEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}

	return sql.NullString{String: s, Valid: true}
}

func nullableHex(b []byte) sql.NullString {
	if len(b) == 0 {
		return sql.NullString{}
	}

	return sql.NullString{String: hex.EncodeToString(b), Valid: true}
}

func decodeHexColumn(s sql.NullString) ([]byte, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	return hex.DecodeString(s.String)
}

func encodeMultiAssets(v model.Value) (string, error) {
	if len(v.MultiAssets) == 0 {
		return "", nil
	}

	b, err := json.Marshal(v.MultiAssets)
	if err != nil {
		return "", fmt.Errorf("could not marshal multi-asset value: %w", err)
	}

	return string(b), nil
}

func decodeMultiAssets(s sql.NullString) (map[string]map[string]uint64, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}

	var out map[string]map[string]uint64
	if err := json.Unmarshal([]byte(s.String), &out); err != nil {
		return nil, fmt.Errorf("could not unmarshal multi-asset value: %w", err)
	}

	return out, nil
}

// inputRow is the flat shape of one row of the inputs table, scanned
// directly so FoldInputs never builds an intermediate struct slice for
// rows the visitor rejects.
type inputRow struct {
	txID          string
	outputIndex   uint32
	address       string
	paymentCred   sql.NullString
	delegCred     sql.NullString
	lovelace      uint64
	multiAssets   sql.NullString
	datumHash     sql.NullString
	scriptHash    sql.NullString
	createdSlot   uint64
	createdHash   string
	spentSlot     sql.NullInt64
	spentHash     sql.NullString
}

func (r inputRow) toResult() (*model.Result, error) {
	txID, err := hex.DecodeString(r.txID)
	if err != nil {
		return nil, fmt.Errorf("corrupt tx id %q: %w", r.txID, err)
	}

	createdHash, err := chainpoint.HashFromHex(r.createdHash)
	if err != nil {
		return nil, fmt.Errorf("corrupt created-at hash: %w", err)
	}

	paymentCred, err := decodeHexColumn(r.paymentCred)
	if err != nil {
		return nil, err
	}

	delegCred, err := decodeHexColumn(r.delegCred)
	if err != nil {
		return nil, err
	}

	datumHash, err := decodeHexColumn(r.datumHash)
	if err != nil {
		return nil, err
	}

	scriptHash, err := decodeHexColumn(r.scriptHash)
	if err != nil {
		return nil, err
	}

	multiAssets, err := decodeMultiAssets(r.multiAssets)
	if err != nil {
		return nil, err
	}

	result := &model.Result{
		OutputRef:            model.OutputRef{TxID: txID, Index: r.outputIndex},
		Address:              r.address,
		PaymentCredential:    paymentCred,
		DelegationCredential: delegCred,
		Value:                model.Value{Lovelace: r.lovelace, MultiAssets: multiAssets},
		DatumHash:            datumHash,
		ScriptHash:           scriptHash,
		CreatedAt:            chainpoint.NewPoint(r.createdSlot, createdHash),
	}

	if r.spentSlot.Valid {
		spentHash, err := chainpoint.HashFromHex(r.spentHash.String)
		if err != nil {
			return nil, fmt.Errorf("corrupt spent-at hash: %w", err)
		}

		spentAt := chainpoint.NewPoint(uint64(r.spentSlot.Int64), spentHash)
		result.SpentAt = &spentAt
	}

	return result, nil
}
