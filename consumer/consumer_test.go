package consumer

import (
	"path/filepath"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/require"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/health"
	"github.com/cardano-chain-indexer/indexer/mailbox"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/registry"
	"github.com/cardano-chain-indexer/indexer/store"
	"github.com/cardano-chain-indexer/indexer/store/sqlite"
)

func newTestConsumer(t *testing.T, config Config) (*Consumer, *sqlite.Store, *registry.Registry, *mailbox.Mailbox, *health.Cell) {
	t.Helper()

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "indexer.db"), 4)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	reg, err := registry.Load(db)
	require.NoError(t, err)

	mb := mailbox.New(10)
	h := health.New("test")

	return New(db, reg, mb, h, config, hclog.NewNullLogger()), db, reg, mb, h
}

func pointAt(slot uint64, b byte) chainpoint.Point {
	var hash chainpoint.Hash
	hash[0] = b

	return chainpoint.NewPoint(slot, hash)
}

func blockWithOutput(point chainpoint.Point, txID []byte, address string) *model.Block {
	return &model.Block{
		Point: point,
		Txs: []*model.Tx{
			{
				ID: txID,
				Outputs: []*model.Result{
					{
						OutputRef: model.OutputRef{TxID: txID, Index: 0},
						Address:   address,
						Value:     model.Value{Lovelace: 5_000_000},
					},
				},
			},
		},
	}
}

func spendingBlock(point chainpoint.Point, spentTxID []byte) *model.Block {
	return &model.Block{
		Point: point,
		Txs: []*model.Tx{
			{
				ID:     []byte("spender"),
				Inputs: []model.OutputRef{{TxID: spentTxID, Index: 0}},
			},
		},
	}
}

func countUnspent(t *testing.T, db *sqlite.Store, p pattern.Pattern) int {
	t.Helper()

	return foldCount(t, db, p, store.StatusUnspent)
}

func countAll(t *testing.T, db *sqlite.Store, p pattern.Pattern) int {
	t.Helper()

	return foldCount(t, db, p, store.StatusAll)
}

func foldCount(t *testing.T, db *sqlite.Store, p pattern.Pattern, status store.StatusFlag) int {
	t.Helper()

	n := 0
	err := db.FoldInputs(p, status, store.SortAsc, func(*model.Result) (bool, error) {
		n++
		return true, nil
	})
	require.NoError(t, err)

	return n
}

func TestRunAppliesRollForwardAndMatches(t *testing.T) {
	c, db, reg, mb, h := newTestConsumer(t, Config{InputManagement: model.MarkSpentInputs})

	addr := "addr_watched"
	p := pattern.ExactAddress(addr)
	_, err := reg.Add([]pattern.Pattern{p})
	require.NoError(t, err)

	blk := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	tip := chainpoint.Tip{Point: pointAt(10, 1)}

	require.True(t, mb.Push(mailbox.RollForward(tip, blk)))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, 1, countUnspent(t, db, p))

	got := h.Get()
	require.NotNil(t, got.MostRecentCheckpoint)
	require.Equal(t, uint64(10), *got.MostRecentCheckpoint)
}

func TestRunIgnoresUnmatchedOutput(t *testing.T) {
	c, db, reg, mb, _ := newTestConsumer(t, Config{InputManagement: model.MarkSpentInputs})

	watched := pattern.ExactAddress("addr_watched")
	_, err := reg.Add([]pattern.Pattern{watched})
	require.NoError(t, err)

	blk := blockWithOutput(pointAt(10, 1), []byte("tx1"), "addr_other")
	require.True(t, mb.Push(mailbox.RollForward(chainpoint.Tip{Point: pointAt(10, 1)}, blk)))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, 0, countUnspent(t, db, watched))
}

func TestRunMarkSpentInputsNeverDeletes(t *testing.T) {
	c, db, reg, mb, _ := newTestConsumer(t, Config{InputManagement: model.MarkSpentInputs})

	addr := "addr_watched"
	p := pattern.ExactAddress(addr)
	_, err := reg.Add([]pattern.Pattern{p})
	require.NoError(t, err)

	blk1 := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	blk2 := spendingBlock(pointAt(11, 2), []byte("tx1"))

	tip := chainpoint.Tip{Point: pointAt(11, 2)}
	require.True(t, mb.Push(mailbox.RollForward(tip, blk1)))
	require.True(t, mb.Push(mailbox.RollForward(tip, blk2)))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, 0, countUnspent(t, db, p))
	require.Equal(t, 1, countAll(t, db, p))
}

func TestRunRemoveSpentInputsDeletesBeyondStabilityWindow(t *testing.T) {
	c, db, reg, mb, _ := newTestConsumer(t, Config{InputManagement: model.RemoveSpentInputs, StabilityWindow: 5})

	addr := "addr_watched"
	p := pattern.ExactAddress(addr)
	_, err := reg.Add([]pattern.Pattern{p})
	require.NoError(t, err)

	blk1 := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	blk2 := spendingBlock(pointAt(11, 2), []byte("tx1"))

	tipAtSpend := chainpoint.Tip{Point: pointAt(20, 9)} // distance 9 > window 5

	require.True(t, mb.Push(mailbox.RollForward(chainpoint.Tip{Point: pointAt(10, 1)}, blk1)))
	require.True(t, mb.Push(mailbox.RollForward(tipAtSpend, blk2)))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, 0, countAll(t, db, p))
}

func TestRunRemoveSpentInputsMarksWithinStabilityWindow(t *testing.T) {
	c, db, reg, mb, _ := newTestConsumer(t, Config{InputManagement: model.RemoveSpentInputs, StabilityWindow: 50})

	addr := "addr_watched"
	p := pattern.ExactAddress(addr)
	_, err := reg.Add([]pattern.Pattern{p})
	require.NoError(t, err)

	blk1 := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	blk2 := spendingBlock(pointAt(11, 2), []byte("tx1"))

	tipAtSpend := chainpoint.Tip{Point: pointAt(12, 9)} // distance 1 <= window 50

	require.True(t, mb.Push(mailbox.RollForward(chainpoint.Tip{Point: pointAt(10, 1)}, blk1)))
	require.True(t, mb.Push(mailbox.RollForward(tipAtSpend, blk2)))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, 1, countAll(t, db, p))
	require.Equal(t, 0, countUnspent(t, db, p))
}

func TestRunRollBackwardDropsFutureAndUpdatesHealth(t *testing.T) {
	c, db, reg, mb, h := newTestConsumer(t, Config{InputManagement: model.MarkSpentInputs})

	addr := "addr_watched"
	p := pattern.ExactAddress(addr)
	_, err := reg.Add([]pattern.Pattern{p})
	require.NoError(t, err)

	blk1 := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	blk2 := blockWithOutput(pointAt(20, 2), []byte("tx2"), addr)

	tip := chainpoint.Tip{Point: pointAt(20, 2)}
	require.True(t, mb.Push(mailbox.RollForward(tip, blk1)))
	require.True(t, mb.Push(mailbox.RollForward(tip, blk2)))
	require.True(t, mb.Push(mailbox.RollBackward(tip, pointAt(10, 1))))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, 1, countAll(t, db, p))

	got := h.Get()
	require.NotNil(t, got.MostRecentCheckpoint)
	require.Equal(t, uint64(10), *got.MostRecentCheckpoint)
}

type fakeObserver struct {
	points []chainpoint.Point
}

func (f *fakeObserver) ObserveCheckpoint(point chainpoint.Point) {
	f.points = append(f.points, point)
}

func TestRunRollBackwardNotifiesObserver(t *testing.T) {
	obs := &fakeObserver{}
	c, _, reg, mb, _ := newTestConsumer(t, Config{InputManagement: model.MarkSpentInputs, Observer: obs})

	addr := "addr_watched"
	_, err := reg.Add([]pattern.Pattern{pattern.ExactAddress(addr)})
	require.NoError(t, err)

	blk1 := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	tip := chainpoint.Tip{Point: pointAt(10, 1)}
	require.True(t, mb.Push(mailbox.RollForward(tip, blk1)))
	require.True(t, mb.Push(mailbox.RollBackward(tip, pointAt(5, 9))))
	mb.Close()

	require.NoError(t, c.Run())

	require.Equal(t, []chainpoint.Point{pointAt(5, 9)}, obs.points)
}

func TestRunRollBackwardToGenesisClearsCheckpoint(t *testing.T) {
	c, _, reg, mb, h := newTestConsumer(t, Config{InputManagement: model.MarkSpentInputs})

	addr := "addr_watched"
	_, err := reg.Add([]pattern.Pattern{pattern.ExactAddress(addr)})
	require.NoError(t, err)

	blk1 := blockWithOutput(pointAt(10, 1), []byte("tx1"), addr)
	tip := chainpoint.Tip{Point: pointAt(10, 1)}
	require.True(t, mb.Push(mailbox.RollForward(tip, blk1)))
	require.True(t, mb.Push(mailbox.RollBackward(tip, chainpoint.Genesis)))
	mb.Close()

	require.NoError(t, c.Run())

	got := h.Get()
	require.Nil(t, got.MostRecentCheckpoint)
}
