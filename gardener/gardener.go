// Package gardener implements the eventual-deletion background task
// (spec.md §4.6): it sleeps, prunes, and logs counts, forever, until
// closed. There is no direct teacher analog — BlockSyncerImpl never
// prunes anything — so this is built in the same sleep/retry/log idiom
// as the chain-sync client's backoff loop (chainsync/client.go), which
// is itself grounded on the teacher's block_syncer.go.
package gardener

import (
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/store"
)

// DefaultThrottleDelay is the fallback sleep between prune ticks.
const DefaultThrottleDelay = 5 * time.Minute

// Config mirrors the Consumer's spend policy so the Gardener only prunes
// inputs the Consumer itself would otherwise have deleted outright.
type Config struct {
	InputManagement model.InputManagement
	StabilityWindow uint64
	ThrottleDelay   time.Duration
}

// Gardener periodically deletes definitely-spent inputs and orphaned
// binary data/scripts (spec.md §4.6). Gardener and Consumer both take
// read-write transactions against the same Store; the store's own
// single-writer serialization (store/sqlite's write mutex) is the only
// coordination between them — there is no separate lock here, per the
// Open Question decision in DESIGN.md.
type Gardener struct {
	db     store.Store
	config Config
	logger hclog.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

func New(db store.Store, config Config, logger hclog.Logger) *Gardener {
	if config.ThrottleDelay <= 0 {
		config.ThrottleDelay = DefaultThrottleDelay
	}

	return &Gardener{db: db, config: config, logger: logger, closed: make(chan struct{})}
}

// Close stops Run at its next sleep boundary. Idempotent.
func (g *Gardener) Close() {
	g.closeOnce.Do(func() { close(g.closed) })
}

// Run sleeps ThrottleDelay, prunes, and repeats until Close is called.
// A store error is returned unrecovered, the same "pipeline tasks do
// not recover store errors" rule the Consumer follows (spec.md §7).
func (g *Gardener) Run() error {
	for {
		select {
		case <-g.closed:
			return nil
		case <-time.After(g.config.ThrottleDelay):
		}

		if err := g.tick(); err != nil {
			return fmt.Errorf("gardener tick failed: %w", err)
		}
	}
}

// tick runs one prune pass in a single read-write transaction, per
// spec.md §4.6: pruneInputs only under RemoveSpentInputs (MarkSpentInputs
// relies on the Consumer never deleting, so there is nothing for the
// Gardener to do there but prune orphaned binary data), pruneBinaryData
// always.
func (g *Gardener) tick() error {
	tx, err := g.db.BeginTx(store.ReadWrite)
	if err != nil {
		return err
	}

	if g.config.InputManagement == model.RemoveSpentInputs {
		if threshold, ok := g.pruneThreshold(); ok {
			tx.PruneInputs(threshold)
		}
	}

	tx.PruneBinaryData()

	if err := tx.Execute(); err != nil {
		return err
	}

	g.logger.Debug("gardener tick complete",
		"pruned_inputs", tx.PrunedInputCount(),
		"pruned_binary_data", tx.PrunedBinaryDataCount())

	return nil
}

// pruneThreshold reports the slot below which a spend is old enough to
// delete outright: StabilityWindow slots behind the most recent
// checkpoint. ok is false if there is no checkpoint yet, or the chain
// hasn't advanced past the window yet.
func (g *Gardener) pruneThreshold() (slot uint64, ok bool) {
	checkpoints, err := g.db.ListCheckpointsDesc()
	if err != nil || len(checkpoints) == 0 {
		return 0, false
	}

	tip := checkpoints[0].Slot
	if tip <= g.config.StabilityWindow {
		return 0, false
	}

	return tip - g.config.StabilityWindow, true
}
