// Package consumer drains the mailbox, matches blocks against the
// pattern registry, and applies the result transactionally to the
// store, grounded on the teacher's BlockIndexer.RollForward/RollBackward
// (indexer/block_indexer.go) and the queue-drain-and-retry shape of
// BlockIndexerRunner.execute (indexer/block_indexer_runner.go).
package consumer

import (
	"fmt"

	"github.com/hashicorp/go-hclog"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/health"
	"github.com/cardano-chain-indexer/indexer/mailbox"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/registry"
	"github.com/cardano-chain-indexer/indexer/store"
)

// CheckpointObserver is notified whenever the consumer durably applies a
// roll-backward, letting chainsync.Client resolve a pending
// ForceRollback as soon as its target is actually reached instead of
// waiting for the reconnected session to end.
type CheckpointObserver interface {
	ObserveCheckpoint(point chainpoint.Point)
}

// Config carries the spend policy spec.md §4.5 names.
type Config struct {
	InputManagement model.InputManagement
	StabilityWindow uint64

	// Observer is notified after every applied roll-backward. Nil is
	// safe; no notification is sent.
	Observer CheckpointObserver
}

// Consumer is the sole writer to Store during normal operation
// (spec.md §3's ownership note).
type Consumer struct {
	db       store.Store
	registry *registry.Registry
	mb       *mailbox.Mailbox
	health   *health.Cell
	config   Config
	logger   hclog.Logger
}

func New(db store.Store, reg *registry.Registry, mb *mailbox.Mailbox, h *health.Cell, config Config, logger hclog.Logger) *Consumer {
	return &Consumer{db: db, registry: reg, mb: mb, health: h, config: config, logger: logger}
}

// Run drains the mailbox forever, applying each batch transactionally,
// until the mailbox is closed. Any store error is returned unrecovered
// (spec.md §4.5/§7's "pipeline tasks do not recover store errors" rule);
// the caller (cmd/indexer) is the supervisor that restarts the pipeline.
func (c *Consumer) Run() error {
	for {
		batch, ok := c.mb.Drain()
		if !ok {
			return nil
		}

		if batch[0].Kind == mailbox.KindRollBackward {
			if err := c.applyRollBackward(batch[0]); err != nil {
				return fmt.Errorf("could not apply rollback: %w", err)
			}

			continue
		}

		if err := c.applyRollForward(batch); err != nil {
			return fmt.Errorf("could not apply roll-forward batch: %w", err)
		}
	}
}

func (c *Consumer) applyRollForward(batch []mailbox.Item) error {
	set := c.registry.Snapshot()

	tx, err := c.db.BeginTx(store.ReadWrite)
	if err != nil {
		return err
	}

	var (
		lastTip  chainpoint.Tip
		lastSlot uint64
	)

	for _, item := range batch {
		matched := matchBlock(set, item.Block)

		tx.InsertCheckpoints([]chainpoint.Point{matched.point})
		tx.InsertInputs(matched.newInputs)
		tx.InsertBinaryData(matched.binaryData)
		tx.InsertScripts(matched.scripts)

		c.applySpends(tx, matched, item.Tip)

		lastTip, lastSlot = item.Tip, matched.point.Slot
	}

	if err := tx.Execute(); err != nil {
		return err
	}

	c.logger.Debug("applied roll-forward batch", "blocks", len(batch), "last_slot", lastSlot, "tip", lastTip.Point.Slot)

	c.health.SetCheckpoint(lastSlot)
	c.health.SetNodeTip(lastTip.Point.Slot)

	return nil
}

// applySpends queues the spend-recording operations for one block's
// worth of consumed references, applying the InputManagement policy
// (spec.md §4.5): RemoveSpentInputs only deletes once the spending block
// is more than StabilityWindow slots behind the tip observed alongside
// it, otherwise both policies behave the same (mark).
func (c *Consumer) applySpends(tx store.TransactionWriter, matched *matchedBlock, tip chainpoint.Tip) {
	if len(matched.spentRefs) == 0 {
		return
	}

	if c.config.InputManagement == model.RemoveSpentInputs &&
		chainpoint.Distance(tip.Point, matched.point) > int64(c.config.StabilityWindow) {
		tx.DeleteInputsByReference(matched.spentRefs)

		return
	}

	tx.MarkInputsByReference(matched.point, matched.spentRefs)
}

func (c *Consumer) applyRollBackward(item mailbox.Item) error {
	tx, err := c.db.BeginTx(store.ReadWrite)
	if err != nil {
		return err
	}

	tx.RollbackTo(item.BackwardPoint.Slot)

	if err := tx.Execute(); err != nil {
		return err
	}

	c.logger.Debug("applied roll-backward", "point", item.BackwardPoint, "tip", item.Tip.Point.Slot)

	if lastKnownSlot := tx.LastKnownSlot(); lastKnownSlot != nil {
		c.health.SetCheckpoint(*lastKnownSlot)
	} else {
		c.health.ClearCheckpoint()
	}

	c.health.SetNodeTip(item.Tip.Point.Slot)

	if c.config.Observer != nil {
		c.config.Observer.ObserveCheckpoint(item.BackwardPoint)
	}

	return nil
}
