// Package metrics exposes the indexer's Prometheus collectors, grounded
// on the promauto gauge/counter idiom used throughout
// blockinsight7000-backend's internal/metrics package. Unlike that
// pack's push-style counters, health is inherently a "current value"
// concept, so these are gauges refreshed on each /health scrape rather
// than incremented from the pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardano_chain_indexer",
		Name:      "connection_status",
		Help:      "1 if the chain-sync client is connected to its producer, 0 otherwise.",
	})

	MostRecentCheckpoint = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardano_chain_indexer",
		Name:      "most_recent_checkpoint_slot",
		Help:      "Slot of the most recently persisted checkpoint, 0 if none.",
	})

	MostRecentNodeTip = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "cardano_chain_indexer",
		Name:      "most_recent_node_tip_slot",
		Help:      "Slot of the most recently observed chain-producer tip, 0 if none.",
	})
)

// Refresh pushes the given health snapshot's fields into the gauges
// above. Called from the /health handler on every scrape (pull model),
// rather than from the health.Cell writers themselves, so metrics has no
// dependency on the pipeline packages.
func Refresh(connected bool, checkpoint, nodeTip *uint64) {
	if connected {
		ConnectionStatus.Set(1)
	} else {
		ConnectionStatus.Set(0)
	}

	if checkpoint != nil {
		MostRecentCheckpoint.Set(float64(*checkpoint))
	} else {
		MostRecentCheckpoint.Set(0)
	}

	if nodeTip != nil {
		MostRecentNodeTip.Set(float64(*nodeTip))
	} else {
		MostRecentNodeTip.Set(0)
	}
}
