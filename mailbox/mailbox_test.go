package mailbox

import (
	"testing"
	"time"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/stretchr/testify/require"
)

func TestDrainCoalescesForwards(t *testing.T) {
	mb := New(10)

	tip := chainpoint.Tip{Point: chainpoint.NewPoint(3, chainpoint.Hash{})}
	require.True(t, mb.Push(RollForward(tip, &model.Block{})))
	require.True(t, mb.Push(RollForward(tip, &model.Block{})))
	require.True(t, mb.Push(RollForward(tip, &model.Block{})))

	batch, ok := mb.Drain()
	require.True(t, ok)
	require.Len(t, batch, 3)

	for _, item := range batch {
		require.Equal(t, KindRollForward, item.Kind)
	}
}

func TestDrainNeverCoalescesBackward(t *testing.T) {
	mb := New(10)

	tip := chainpoint.Tip{}
	require.True(t, mb.Push(RollForward(tip, &model.Block{})))
	require.True(t, mb.Push(RollBackward(tip, chainpoint.Genesis)))
	require.True(t, mb.Push(RollForward(tip, &model.Block{})))

	batch, ok := mb.Drain()
	require.True(t, ok)
	require.Len(t, batch, 1)
	require.Equal(t, KindRollForward, batch[0].Kind)

	batch, ok = mb.Drain()
	require.True(t, ok)
	require.Len(t, batch, 1)
	require.Equal(t, KindRollBackward, batch[0].Kind)

	batch, ok = mb.Drain()
	require.True(t, ok)
	require.Len(t, batch, 1)
	require.Equal(t, KindRollForward, batch[0].Kind)
}

func TestPushBlocksWhenFull(t *testing.T) {
	mb := New(1)
	require.True(t, mb.Push(RollForward(chainpoint.Tip{}, &model.Block{})))

	done := make(chan struct{})

	go func() {
		mb.Push(RollForward(chainpoint.Tip{}, &model.Block{}))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("push should have blocked on a full mailbox")
	case <-time.After(20 * time.Millisecond):
	}

	_, _ = mb.Drain()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("push should have unblocked once space was freed")
	}
}

func TestCloseUnblocksDrain(t *testing.T) {
	mb := New(10)

	done := make(chan bool, 1)

	go func() {
		_, ok := mb.Drain()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	mb.Close()

	select {
	case ok := <-done:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("drain should have unblocked on close")
	}
}
