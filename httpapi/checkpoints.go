package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// handleListCheckpoints answers GET /checkpoints: every persisted
// checkpoint, descending (spec.md §6.1). listCheckpointsDesc is
// documented as a stream, but the sqlite Store already materializes it
// as a slice — this just re-serializes that slice as a JSON array.
func (s *Server) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	points, err := s.db.ListCheckpointsDesc()
	if err != nil {
		s.logger.Error("list checkpoints failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	out := make([]pointJSON, len(points))
	for i, p := range points {
		out[i] = pointToJSON(p)
	}

	s.writeJSON(w, http.StatusOK, out)
}

// handleGetCheckpoint answers GET /checkpoints/<slot>?strict=true|false.
// strict=true requires a checkpoint at exactly slot; strict=false (the
// default) accepts the nearest ancestor at or before slot, the same
// nearest-ancestor lookup PUT /patterns' rollback_to resolution uses.
func (s *Server) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(mux.Vars(r)["slot"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, hintInvalidSlotNo)

		return
	}

	strict := false

	if raw := r.URL.Query().Get("strict"); raw != "" {
		switch raw {
		case "true":
			strict = true
		case "false":
			strict = false
		default:
			writeError(w, http.StatusBadRequest, hintInvalidStrictMode)

			return
		}
	}

	ancestors, err := s.db.ListAncestorsDesc(slot+1, 1)
	if err != nil {
		s.logger.Error("list ancestors failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	if len(ancestors) == 0 || (strict && ancestors[0].Slot != slot) {
		s.writeJSON(w, http.StatusOK, nil)

		return
	}

	s.writeJSON(w, http.StatusOK, pointToJSON(ancestors[0]))
}
