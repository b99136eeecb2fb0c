// Package rollbackcell durably records "a forced rollback to point X is
// in flight" so a crash mid-rollback is detectable on restart. It is the
// bbolt half of the rollback rendezvous described in SPEC_FULL.md,
// grounded on the teacher's bucket-per-concern engine
// (indexer/db/bbolt/bbolt.go) but reduced to a single bucket and a
// single key since it tracks at most one in-flight rollback at a time.
package rollbackcell

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
)

var (
	inFlightBucket = []byte("RollbackInFlight")
	defaultKey     = []byte("default")
)

// Cell is the durable marker. It has no in-memory cache: every call
// round-trips to disk, since it exists precisely to survive a crash
// between writes.
type Cell struct {
	db *bbolt.DB
}

// Open opens (creating if needed) the bbolt file backing the cell.
func Open(filePath string) (*Cell, error) {
	db, err := bbolt.Open(filePath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("could not open rollback cell db: %w", err)
	}

	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(inFlightBucket)

		return err
	}); err != nil {
		db.Close()

		return nil, fmt.Errorf("could not create rollback cell bucket: %w", err)
	}

	return &Cell{db: db}, nil
}

func (c *Cell) Close() error {
	return c.db.Close()
}

// MarkInFlight records that a forced rollback to target has begun.
func (c *Cell) MarkInFlight(target chainpoint.Point) error {
	data, err := json.Marshal(target)
	if err != nil {
		return fmt.Errorf("could not marshal rollback target: %w", err)
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(inFlightBucket).Put(defaultKey, data)
	})
}

// Clear removes the in-flight marker once the rollback has completed
// (successfully or not — the caller is responsible either way).
func (c *Cell) Clear() error {
	return c.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(inFlightBucket).Delete(defaultKey)
	})
}

// InFlight reports the target of an unfinished rollback left behind by a
// crash, or ok=false if none is recorded.
func (c *Cell) InFlight() (target chainpoint.Point, ok bool, err error) {
	err = c.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(inFlightBucket).Get(defaultKey)
		if len(data) == 0 {
			return nil
		}

		if unmarshalErr := json.Unmarshal(data, &target); unmarshalErr != nil {
			return fmt.Errorf("could not unmarshal rollback target: %w", unmarshalErr)
		}

		ok = true

		return nil
	})

	return target, ok, err
}
