package sqlite

import (
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/store"
)

type txOperation func(tx *sql.Tx) error

// transactionWriter accumulates write operations as closures and applies
// them inside a single *sql.Tx on Execute, mirroring the teacher's
// BBoltTransactionWriter builder (indexer/db/bbolt/bbolt_txwriter.go)
// over database/sql instead of bbolt buckets.
type transactionWriter struct {
	tx         *sql.Tx
	readOnly   bool
	unlock     func()
	operations []txOperation

	lastKnownSlot         *uint64
	deletedCount          int
	prunedInputCount      int
	prunedBinaryDataCount int
}

var _ store.TransactionWriter = (*transactionWriter)(nil)

func (tw *transactionWriter) InsertCheckpoints(points []chainpoint.Point) store.TransactionWriter {
	if len(points) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR REPLACE INTO checkpoints(slot, header_hash) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.Exec(p.Slot, p.Hash.String()); err != nil {
				return fmt.Errorf("insert checkpoint: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) InsertInputs(results []*model.Result) store.TransactionWriter {
	if len(results) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare(`INSERT OR REPLACE INTO inputs
			(tx_id, output_index, address, payment_cred, deleg_cred, lovelace, multi_assets_json,
			 datum_hash, script_hash, created_slot, created_hash, spent_slot, spent_hash)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		assetStmt, err := tx.Prepare(
			"INSERT INTO inputs_assets(tx_id, output_index, policy_id, asset_name, quantity) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer assetStmt.Close()

		for _, r := range results {
			multiAssets, err := encodeMultiAssets(r.Value)
			if err != nil {
				return err
			}

			txID := hex.EncodeToString(r.OutputRef.TxID)

			var (
				spentSlot sql.NullInt64
				spentHash sql.NullString
			)

			if r.SpentAt != nil {
				spentSlot = sql.NullInt64{Int64: int64(r.SpentAt.Slot), Valid: true}
				spentHash = sql.NullString{String: r.SpentAt.Hash.String(), Valid: true}
			}

			if _, err := stmt.Exec(
				txID, r.OutputRef.Index, r.Address, nullableHex(r.PaymentCredential), nullableHex(r.DelegationCredential),
				r.Value.Lovelace, nullStringOrEmpty(multiAssets), nullableHex(r.DatumHash), nullableHex(r.ScriptHash),
				r.CreatedAt.Slot, r.CreatedAt.Hash.String(), spentSlot, spentHash,
			); err != nil {
				return fmt.Errorf("insert input: %w", err)
			}

			for policyHex, assets := range r.Value.MultiAssets {
				for nameHex, qty := range assets {
					if _, err := assetStmt.Exec(txID, r.OutputRef.Index, policyHex, nameHex, qty); err != nil {
						return fmt.Errorf("insert input asset: %w", err)
					}
				}
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) MarkInputsByReference(point chainpoint.Point, refs []model.OutputRef) store.TransactionWriter {
	if len(refs) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("UPDATE inputs SET spent_slot = ?, spent_hash = ? WHERE tx_id = ? AND output_index = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ref := range refs {
			if _, err := stmt.Exec(point.Slot, point.Hash.String(), hex.EncodeToString(ref.TxID), ref.Index); err != nil {
				return fmt.Errorf("mark spent input: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) DeleteInputsByReference(refs []model.OutputRef) store.TransactionWriter {
	if len(refs) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		assetStmt, err := tx.Prepare("DELETE FROM inputs_assets WHERE tx_id = ? AND output_index = ?")
		if err != nil {
			return err
		}
		defer assetStmt.Close()

		stmt, err := tx.Prepare("DELETE FROM inputs WHERE tx_id = ? AND output_index = ?")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, ref := range refs {
			txID := hex.EncodeToString(ref.TxID)

			if _, err := assetStmt.Exec(txID, ref.Index); err != nil {
				return fmt.Errorf("delete input asset: %w", err)
			}

			if _, err := stmt.Exec(txID, ref.Index); err != nil {
				return fmt.Errorf("delete input: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) InsertBinaryData(items []*model.BinaryData) store.TransactionWriter {
	if len(items) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR IGNORE INTO binary_data(hash, bytes) VALUES (?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			if _, err := stmt.Exec(hexOrEmpty(item.Hash), item.Bytes); err != nil {
				return fmt.Errorf("insert binary data: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) InsertScripts(items []*model.Script) store.TransactionWriter {
	if len(items) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR IGNORE INTO scripts(hash, bytes, tag) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, item := range items {
			if _, err := stmt.Exec(hexOrEmpty(item.Hash), item.Bytes, item.Tag); err != nil {
				return fmt.Errorf("insert script: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) InsertPatterns(patterns []pattern.Pattern) store.TransactionWriter {
	if len(patterns) == 0 {
		return tw
	}

	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		stmt, err := tx.Prepare("INSERT OR IGNORE INTO patterns(text) VALUES (?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range patterns {
			if _, err := stmt.Exec(p.String()); err != nil {
				return fmt.Errorf("insert pattern: %w", err)
			}
		}

		return nil
	})

	return tw
}

func (tw *transactionWriter) DeletePattern(p pattern.Pattern) store.TransactionWriter {
	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM patterns WHERE text = ?", p.String()); err != nil {
			return fmt.Errorf("delete pattern: %w", err)
		}

		return nil
	})

	return tw
}

// RollbackTo undoes every checkpoint, creation and spend recorded after
// slot: deletes checkpoints and inputs created past it, and un-spends
// inputs spent past it. Execute fills LastKnownSlot from the surviving
// checkpoint once this runs.
func (tw *transactionWriter) RollbackTo(slot uint64) store.TransactionWriter {
	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM checkpoints WHERE slot > ?", slot); err != nil {
			return fmt.Errorf("rollback checkpoints: %w", err)
		}

		if _, err := tx.Exec(
			"DELETE FROM inputs_assets WHERE (tx_id, output_index) IN "+
				"(SELECT tx_id, output_index FROM inputs WHERE created_slot > ?)", slot,
		); err != nil {
			return fmt.Errorf("rollback input assets: %w", err)
		}

		if _, err := tx.Exec("DELETE FROM inputs WHERE created_slot > ?", slot); err != nil {
			return fmt.Errorf("rollback inputs: %w", err)
		}

		if _, err := tx.Exec(
			"UPDATE inputs SET spent_slot = NULL, spent_hash = NULL WHERE spent_slot > ?", slot,
		); err != nil {
			return fmt.Errorf("rollback spends: %w", err)
		}

		var lastSlot sql.NullInt64
		if err := tx.QueryRow("SELECT MAX(slot) FROM checkpoints").Scan(&lastSlot); err != nil {
			return fmt.Errorf("rollback read last checkpoint: %w", err)
		}

		if lastSlot.Valid {
			v := uint64(lastSlot.Int64)
			tw.lastKnownSlot = &v
		}

		return nil
	})

	return tw
}

// DeleteInputs removes every indexed output matching p (DELETE /matches,
// spec.md §6.3). DeletedCount is only meaningful after Execute returns nil.
func (tw *transactionWriter) DeleteInputs(p pattern.Pattern) store.TransactionWriter {
	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		assetsQuery, assetsArgs, err := deleteAssetsClause(p)
		if err != nil {
			return err
		}

		if _, err := tx.Exec(assetsQuery, assetsArgs...); err != nil {
			return fmt.Errorf("delete input assets: %w", err)
		}

		query, args, err := deleteClause(p)
		if err != nil {
			return err
		}

		result, err := tx.Exec(query, args...)
		if err != nil {
			return fmt.Errorf("delete inputs: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("delete inputs rows affected: %w", err)
		}

		tw.deletedCount += int(affected)

		return nil
	})

	return tw
}

// PruneInputs removes spent inputs whose spend is older than
// olderThanSlot, the Gardener's eventual-deletion sweep (spec.md §4.6).
func (tw *transactionWriter) PruneInputs(olderThanSlot uint64) store.TransactionWriter {
	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"DELETE FROM inputs_assets WHERE (tx_id, output_index) IN "+
				"(SELECT tx_id, output_index FROM inputs WHERE spent_slot IS NOT NULL AND spent_slot < ?)",
			olderThanSlot,
		); err != nil {
			return fmt.Errorf("prune input assets: %w", err)
		}

		result, err := tx.Exec("DELETE FROM inputs WHERE spent_slot IS NOT NULL AND spent_slot < ?", olderThanSlot)
		if err != nil {
			return fmt.Errorf("prune inputs: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("prune inputs rows affected: %w", err)
		}

		tw.prunedInputCount += int(affected)

		return nil
	})

	return tw
}

// PruneBinaryData removes datums and scripts no surviving input
// references, the other half of the Gardener's sweep.
func (tw *transactionWriter) PruneBinaryData() store.TransactionWriter {
	tw.operations = append(tw.operations, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"DELETE FROM binary_data WHERE hash NOT IN (SELECT datum_hash FROM inputs WHERE datum_hash IS NOT NULL)")
		if err != nil {
			return fmt.Errorf("prune binary data: %w", err)
		}

		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("prune binary data rows affected: %w", err)
		}

		if _, err := tx.Exec(
			"DELETE FROM scripts WHERE hash NOT IN (SELECT script_hash FROM inputs WHERE script_hash IS NOT NULL)"); err != nil {
			return fmt.Errorf("prune scripts: %w", err)
		}

		tw.prunedBinaryDataCount += int(affected)

		return nil
	})

	return tw
}

func (tw *transactionWriter) Execute() error {
	defer tw.unlock()

	if tw.readOnly && len(tw.operations) > 0 {
		tw.tx.Rollback()

		return fmt.Errorf("%w: write attempted on a read-only transaction", store.ErrStore)
	}

	for _, op := range tw.operations {
		if err := op(tw.tx); err != nil {
			tw.tx.Rollback()

			return fmt.Errorf("%w: %v", store.ErrStore, err)
		}
	}

	if err := tw.tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", store.ErrStore, err)
	}

	return nil
}

func (tw *transactionWriter) LastKnownSlot() *uint64 { return tw.lastKnownSlot }

func (tw *transactionWriter) DeletedCount() int { return tw.deletedCount }

func (tw *transactionWriter) PrunedInputCount() int { return tw.prunedInputCount }

func (tw *transactionWriter) PrunedBinaryDataCount() int { return tw.prunedBinaryDataCount }
