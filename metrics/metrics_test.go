package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestRefreshConnectionStatus(t *testing.T) {
	Refresh(true, nil, nil)
	require.Equal(t, float64(1), testutil.ToFloat64(ConnectionStatus))

	Refresh(false, nil, nil)
	require.Equal(t, float64(0), testutil.ToFloat64(ConnectionStatus))
}

func TestRefreshCheckpointAndTip(t *testing.T) {
	checkpoint := uint64(42)
	tip := uint64(99)

	Refresh(true, &checkpoint, &tip)
	require.Equal(t, float64(42), testutil.ToFloat64(MostRecentCheckpoint))
	require.Equal(t, float64(99), testutil.ToFloat64(MostRecentNodeTip))

	Refresh(true, nil, nil)
	require.Equal(t, float64(0), testutil.ToFloat64(MostRecentCheckpoint))
	require.Equal(t, float64(0), testutil.ToFloat64(MostRecentNodeTip))
}
