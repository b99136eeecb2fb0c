// Package mailbox implements the bounded single-producer/single-consumer
// queue between the chain-sync client and the consumer (spec.md §4.3).
package mailbox

import (
	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/common"
	"github.com/cardano-chain-indexer/indexer/model"
)

// DefaultCapacity is the tuning knob named in spec.md §4.3: larger means
// more memory but faster catch-up after a disconnect.
const DefaultCapacity = 100

// ItemKind discriminates the two message shapes the mailbox carries.
type ItemKind byte

const (
	KindRollForward ItemKind = iota
	KindRollBackward
)

// Item is one mailbox entry: either a roll-forward of a single block, or
// a roll-backward to a point. Exactly one of Block/BackwardPoint is set,
// matching Kind.
type Item struct {
	Kind          ItemKind
	Tip           chainpoint.Tip
	Block         *model.Block
	BackwardPoint chainpoint.Point
}

func RollForward(tip chainpoint.Tip, block *model.Block) Item {
	return Item{Kind: KindRollForward, Tip: tip, Block: block}
}

func RollBackward(tip chainpoint.Tip, point chainpoint.Point) Item {
	return Item{Kind: KindRollBackward, Tip: tip, BackwardPoint: point}
}

// Mailbox is the bounded FIFO queue described in spec.md §4.3, built
// directly on the teacher's SafeCircularQueue.
type Mailbox struct {
	queue *common.SafeCircularQueue[Item]

	// pending holds a RollBackward item popped ahead of time while
	// coalescing a RollForward batch, so the next Drain returns it
	// first without having re-ordered the underlying queue.
	pending   Item
	hasPending bool
}

func New(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	return &Mailbox{queue: common.NewSafeCircularQueue[Item](capacity)}
}

// Push enqueues an item, blocking while the mailbox is full. It returns
// false if the mailbox has been closed.
func (m *Mailbox) Push(item Item) bool {
	return m.queue.Push(item)
}

// Close unblocks any blocked Push/Drain and makes further pushes no-ops.
func (m *Mailbox) Close() {
	m.queue.Close()
}

// Drain blocks until at least one item is available, then returns either
// a non-empty run of coalesced RollForward items, or a single
// RollBackward item (never coalesced with forwards), per spec.md §4.3.
// It returns ok=false once the mailbox is closed and drained empty.
func (m *Mailbox) Drain() (batch []Item, ok bool) {
	first, active := m.next()
	if !active {
		return nil, false
	}

	if first.Kind == KindRollBackward {
		return []Item{first}, true
	}

	batch = []Item{first}

	for {
		next, peeked := m.queue.TryPop()
		if !peeked {
			return batch, true
		}

		if next.Kind == KindRollBackward {
			m.pending, m.hasPending = next, true

			return batch, true
		}

		batch = append(batch, next)
	}
}

// next returns the pending item stashed by a previous Drain call, or
// blocks on the queue otherwise.
func (m *Mailbox) next() (Item, bool) {
	if m.hasPending {
		m.hasPending = false

		return m.pending, true
	}

	item, active := m.queue.Pop()
	if !active {
		// Pop reports a closed queue even while items remain in it;
		// hand those out before reporting the mailbox drained.
		return m.queue.TryPop()
	}

	return item, true
}
