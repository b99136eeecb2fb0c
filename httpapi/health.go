package httpapi

import (
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cardano-chain-indexer/indexer/metrics"
	"github.com/cardano-chain-indexer/indexer/model"
)

// handleHealth answers GET /health, content-negotiated per spec.md
// §6.1: text/plain or */* gets Prometheus text, application/json or no
// Accept header at all gets the Health JSON shape, anything else is 406.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.health.Get()
	metrics.Refresh(h.ConnectionStatus == model.StatusConnected, h.MostRecentCheckpoint, h.MostRecentNodeTip)

	switch negotiateHealthFormat(r.Header.Get("Accept")) {
	case healthFormatPrometheus:
		s.setCheckpointHeader(w)
		promhttp.Handler().ServeHTTP(w, r)
	case healthFormatJSON:
		s.writeJSON(w, http.StatusOK, healthJSON{
			ConnectionStatus:     h.ConnectionStatus.String(),
			MostRecentCheckpoint: h.MostRecentCheckpoint,
			MostRecentNodeTip:    h.MostRecentNodeTip,
			ConfigurationSummary: h.ConfigurationSummary,
		})
	default:
		w.Header().Set("Accept", "application/json, text/plain")
		writeError(w, http.StatusNotAcceptable, hintUnsupportedContentType)
	}
}

type healthJSON struct {
	ConnectionStatus     string  `json:"connection_status"`
	MostRecentCheckpoint *uint64 `json:"most_recent_checkpoint"`
	MostRecentNodeTip    *uint64 `json:"most_recent_node_tip"`
	ConfigurationSummary string  `json:"configuration_summary"`
}

type healthFormat int

const (
	healthFormatUnsupported healthFormat = iota
	healthFormatJSON
	healthFormatPrometheus
)

// negotiateHealthFormat implements spec.md §6.1's Accept negotiation
// table for /health exactly: text/plain -> Prometheus; application/json
// -> JSON; */* -> Prometheus; absent -> JSON; anything else -> 406.
func negotiateHealthFormat(accept string) healthFormat {
	if accept == "" {
		return healthFormatJSON
	}

	for _, part := range strings.Split(accept, ",") {
		mediaType := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])

		switch mediaType {
		case "text/plain":
			return healthFormatPrometheus
		case "application/json":
			return healthFormatJSON
		case "*/*":
			return healthFormatPrometheus
		}
	}

	return healthFormatUnsupported
}
