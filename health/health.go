// Package health holds the single most-recently-published Health value
// (spec.md §4.7/§6), written by the consumer and read by the HTTP
// control plane. Neither the chain-sync client nor its backends call
// SetConnectionStatus, so in a running indexer ConnectionStatus keeps
// its initial StatusDisconnected value. It mirrors the teacher's
// single-writer-many-reader discipline used for BlockIndexer's
// latestBlockPoint, but via atomic.Pointer since Health is swapped
// wholesale rather than mutated field-by-field under a mutex.
package health

import (
	"sync/atomic"

	"github.com/cardano-chain-indexer/indexer/model"
)

type Cell struct {
	value atomic.Pointer[model.Health]
}

func New(configSummary string) *Cell {
	c := &Cell{}

	c.value.Store(&model.Health{
		ConnectionStatus:     model.StatusDisconnected,
		ConfigurationSummary: configSummary,
	})

	return c
}

// Get returns the most recently published value. Never nil.
func (c *Cell) Get() model.Health {
	return *c.value.Load()
}

// SetConnectionStatus updates link state, leaving checkpoint/tip fields
// as they were (a disconnect does not erase how far the indexer got).
func (c *Cell) SetConnectionStatus(status model.ConnectionStatus) {
	current := c.Get()
	current.ConnectionStatus = status
	c.value.Store(&current)
}

// SetCheckpoint records the slot most recently applied to the store.
func (c *Cell) SetCheckpoint(slot uint64) {
	current := c.Get()
	current.MostRecentCheckpoint = &slot
	c.value.Store(&current)
}

// SetNodeTip records the chain-sync client's most recently observed tip.
func (c *Cell) SetNodeTip(slot uint64) {
	current := c.Get()
	current.MostRecentNodeTip = &slot
	c.value.Store(&current)
}

// ClearCheckpoint records that no checkpoint remains, the state after a
// RollBackward to Genesis leaves the store with no checkpoints at all.
func (c *Cell) ClearCheckpoint() {
	current := c.Get()
	current.MostRecentCheckpoint = nil
	c.value.Store(&current)
}
