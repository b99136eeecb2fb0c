package httpapi

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
)

// writeJSON emits data as the body of a non-error response, attaching
// X-Most-Recent-Checkpoint per spec.md §6.1 — every successful response
// carries the store's current checkpoint slot (0 if none), independent
// of what the response itself is about.
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	s.setCheckpointHeader(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck
}

func (s *Server) setCheckpointHeader(w http.ResponseWriter) {
	slot := uint64(0)

	if latest, err := s.db.ListAncestorsDesc(math.MaxInt64, 1); err == nil {
		if len(latest) > 0 {
			slot = latest[0].Slot
		}
	} else if h := s.health.Get(); h.MostRecentCheckpoint != nil {
		slot = *h.MostRecentCheckpoint
	}

	w.Header().Set("X-Most-Recent-Checkpoint", strconv.FormatUint(slot, 10))
}

// pointJSON is the wire shape for chainpoint.Point in every HTTP
// response that carries one.
type pointJSON struct {
	Slot       uint64 `json:"slot"`
	HeaderHash string `json:"header_hash"`
}

func pointToJSON(p chainpoint.Point) pointJSON {
	return pointJSON{Slot: p.Slot, HeaderHash: p.Hash.String()}
}
