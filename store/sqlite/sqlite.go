// Package sqlite is the concrete store.Store engine (spec.md §4.1),
// grounded on the teacher's bbolt engine (indexer/db/bbolt) but backed
// by database/sql and mattn/go-sqlite3 so FoldInputs can use indexed
// WHERE clauses instead of a full bucket scan.
package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/store"
)

// Store is a database/sql-backed store.Store. Non-goal §"multi-writer
// store access" means exactly one process ever opens a given file for
// writing, but that process may still run many concurrent readers
// against the same *sql.DB; writeMu serializes writers against each
// other the way a single bbolt.Update already did for the teacher.
type Store struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// Open opens (creating if needed) a SQLite database at path, enables
// WAL so readers never block behind a writer, and applies schema.
func Open(path string, maxOpenConns int) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000"

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite db: %w", err)
	}

	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()

		return nil, fmt.Errorf("could not apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

var _ store.Store = (*Store)(nil)

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) BeginTx(conn store.ConnectionType) (store.TransactionWriter, error) {
	if conn == store.ReadWrite {
		s.writeMu.Lock()
	}

	tx, err := s.db.Begin()
	if err != nil {
		if conn == store.ReadWrite {
			s.writeMu.Unlock()
		}

		return nil, fmt.Errorf("could not begin transaction: %w", err)
	}

	return &transactionWriter{
		tx:       tx,
		readOnly: conn == store.ReadOnly,
		unlock: func() {
			if conn == store.ReadWrite {
				s.writeMu.Unlock()
			}
		},
	}, nil
}

func (s *Store) ListCheckpointsDesc() ([]chainpoint.Point, error) {
	rows, err := s.db.Query("SELECT slot, header_hash FROM checkpoints ORDER BY slot DESC")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// ListAncestorsDesc returns up to n checkpoints strictly before slot,
// most recent first. Callers wanting the checkpoint at-or-before slot
// pass slot+1.
func (s *Store) ListAncestorsDesc(slot uint64, n int) ([]chainpoint.Point, error) {
	rows, err := s.db.Query(
		"SELECT slot, header_hash FROM checkpoints WHERE slot < ? ORDER BY slot DESC LIMIT ?",
		slot, n,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

func scanCheckpoints(rows *sql.Rows) ([]chainpoint.Point, error) {
	var result []chainpoint.Point

	for rows.Next() {
		var (
			slot uint64
			hh   string
		)

		if err := rows.Scan(&slot, &hh); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
		}

		hash, err := chainpoint.HashFromHex(hh)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt checkpoint hash: %v", store.ErrStore, err)
		}

		result = append(result, chainpoint.NewPoint(slot, hash))
	}

	return result, rows.Err()
}

func (s *Store) FoldInputs(p pattern.Pattern, status store.StatusFlag, sort store.SortDirection, visit store.ResultVisitor) error {
	query, args, err := selectClause(p, status, sort)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStore, err)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return fmt.Errorf("%w: %v", store.ErrStore, err)
	}
	defer rows.Close()

	for rows.Next() {
		var r inputRow

		if err := rows.Scan(
			&r.txID, &r.outputIndex, &r.address, &r.paymentCred, &r.delegCred,
			&r.lovelace, &r.multiAssets, &r.datumHash, &r.scriptHash,
			&r.createdSlot, &r.createdHash, &r.spentSlot, &r.spentHash,
		); err != nil {
			return fmt.Errorf("%w: %v", store.ErrStore, err)
		}

		result, err := r.toResult()
		if err != nil {
			return fmt.Errorf("%w: %v", store.ErrStore, err)
		}

		keepGoing, err := visit(result)
		if err != nil {
			return err
		}

		if !keepGoing {
			break
		}
	}

	return rows.Err()
}

func (s *Store) GetBinaryData(hash []byte) (*model.BinaryData, error) {
	var bytes []byte

	err := s.db.QueryRow("SELECT bytes FROM binary_data WHERE hash = ?", hexOrEmpty(hash)).Scan(&bytes)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
	}

	return &model.BinaryData{Hash: hash, Bytes: bytes}, nil
}

func (s *Store) GetScript(hash []byte) (*model.Script, error) {
	var (
		bytes []byte
		tag   model.ScriptTag
	)

	err := s.db.QueryRow("SELECT bytes, tag FROM scripts WHERE hash = ?", hexOrEmpty(hash)).Scan(&bytes, &tag)
	if err == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
	}

	return &model.Script{Hash: hash, Bytes: bytes, Tag: tag}, nil
}

func (s *Store) ListPatterns() ([]pattern.Pattern, error) {
	rows, err := s.db.Query("SELECT text FROM patterns")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
	}
	defer rows.Close()

	var result []pattern.Pattern

	for rows.Next() {
		var text string

		if err := rows.Scan(&text); err != nil {
			return nil, fmt.Errorf("%w: %v", store.ErrStore, err)
		}

		p, err := pattern.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("%w: corrupt persisted pattern %q: %v", store.ErrStore, text, err)
		}

		result = append(result, p)
	}

	return result, rows.Err()
}
