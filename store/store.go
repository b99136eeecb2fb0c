// Package store defines the transactional persistence interface
// (spec.md §4.1). The concrete engine lives in store/sqlite; nothing
// outside that subpackage should know it is SQL.
package store

import (
	"errors"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
)

// ErrStore wraps every error a Store operation can return: connection
// loss, constraint violation, I/O failure. Pipeline tasks never recover
// from it (spec.md §7); only HTTP handlers catch it, answering 503
// service_unavailable.
var ErrStore = errors.New("store error")

// ConnectionType selects whether a handle may write.
type ConnectionType int

const (
	ReadOnly ConnectionType = iota
	ReadWrite
)

// StatusFlag filters FoldInputs by spent/unspent state.
type StatusFlag int

const (
	StatusAll StatusFlag = iota
	StatusUnspent
	StatusSpent
)

// SortDirection orders FoldInputs results by (created_at.slot, output_index).
type SortDirection int

const (
	SortAsc SortDirection = iota
	SortDesc
)

// ResultVisitor is invoked once per row streamed by FoldInputs. Returning
// false stops the stream early.
type ResultVisitor func(*model.Result) (keepGoing bool, err error)

// TransactionWriter accumulates write operations and applies them
// atomically on Execute, mirroring the teacher's chained
// DbTransactionWriter builder.
type TransactionWriter interface {
	InsertCheckpoints(points []chainpoint.Point) TransactionWriter
	InsertInputs(results []*model.Result) TransactionWriter
	MarkInputsByReference(point chainpoint.Point, refs []model.OutputRef) TransactionWriter
	DeleteInputsByReference(refs []model.OutputRef) TransactionWriter
	InsertBinaryData(items []*model.BinaryData) TransactionWriter
	InsertScripts(items []*model.Script) TransactionWriter
	InsertPatterns(patterns []pattern.Pattern) TransactionWriter
	DeletePattern(p pattern.Pattern) TransactionWriter
	RollbackTo(slot uint64) TransactionWriter
	Execute() error

	// LastKnownSlot is only meaningful after Execute returns nil and
	// RollbackTo was part of the transaction; it reports the slot of
	// the now-latest checkpoint, or nil if none remain.
	LastKnownSlot() *uint64

	// DeletedCount reports how many rows the transaction's DeleteInputs
	// calls removed in total, once Execute has returned nil.
	DeletedCount() int

	// PrunedInputCount/PrunedBinaryDataCount report Gardener results,
	// once Execute has returned nil.
	PrunedInputCount() int
	PrunedBinaryDataCount() int

	DeleteInputs(p pattern.Pattern) TransactionWriter
	PruneInputs(olderThanSlot uint64) TransactionWriter
	PruneBinaryData() TransactionWriter
}

// Store is the full transactional persistence surface (spec.md §4.1).
type Store interface {
	Close() error

	BeginTx(conn ConnectionType) (TransactionWriter, error)

	ListCheckpointsDesc() ([]chainpoint.Point, error)

	// ListAncestorsDesc returns up to n checkpoints strictly before slot,
	// most recent first.
	ListAncestorsDesc(slot uint64, n int) ([]chainpoint.Point, error)

	FoldInputs(p pattern.Pattern, status StatusFlag, sort SortDirection, visit ResultVisitor) error

	GetBinaryData(hash []byte) (*model.BinaryData, error)
	GetScript(hash []byte) (*model.Script, error)

	ListPatterns() ([]pattern.Pattern, error)
}
