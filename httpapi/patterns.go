package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/cardano-chain-indexer/indexer/chainpoint"
	"github.com/cardano-chain-indexer/indexer/pattern"
)

// handleListPatterns answers GET /patterns[/<p>] (spec.md §6.1): the
// full active set, or — when a path pattern is given — that pattern
// alone if it is currently active, else an empty array ("intersected
// with active set").
func (s *Server) handleListPatterns(w http.ResponseWriter, r *http.Request) {
	pathText := mux.Vars(r)["pattern"]

	active := s.registry.Snapshot()

	if pathText == "" {
		out := make([]string, len(active))
		for i, p := range active {
			out[i] = p.String()
		}

		s.writeJSON(w, http.StatusOK, out)

		return
	}

	p, err := pattern.Parse(pathText)
	if err != nil {
		writeError(w, http.StatusBadRequest, hintInvalidPattern)

		return
	}

	out := make([]string, 0, 1)

	for _, existing := range active {
		if existing.String() == p.String() {
			out = append(out, existing.String())

			break
		}
	}

	s.writeJSON(w, http.StatusOK, out)
}

// handleDeletePattern answers DELETE /patterns/<p>.
func (s *Server) handleDeletePattern(w http.ResponseWriter, r *http.Request) {
	p, err := pattern.Parse(mux.Vars(r)["pattern"])
	if err != nil {
		writeError(w, http.StatusBadRequest, hintInvalidPattern)

		return
	}

	deleted, err := s.registry.Remove(p)
	if err != nil {
		s.logger.Error("delete pattern failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type putPatternsRequest struct {
	RollbackTo json.RawMessage `json:"rollback_to"`
	Limit      string          `json:"limit"`
	Patterns   []string        `json:"patterns"`
}

const limitWithinSafeZone = "within_safe_zone"

// handlePutPatterns answers PUT /patterns and PUT /patterns/<p> (spec.md
// §4.7): resolve the patterns to add and the rollback target, check the
// stability-window safety bound, invoke forceRollback, and on success
// persist the patterns and merge them into the registry.
func (s *Server) handlePutPatterns(w http.ResponseWriter, r *http.Request) {
	var body putPatternsRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		// malformed_point is the closest of spec.md §7's fixed hint
		// vocabulary; a body that fails to decode at all is, in
		// practice, almost always a malformed rollback_to.
		writeError(w, http.StatusBadRequest, hintMalformedPoint)

		return
	}

	texts := body.Patterns
	if pathText := mux.Vars(r)["pattern"]; pathText != "" {
		texts = []string{pathText}
	}

	patterns, err := pattern.ParseAll(texts)
	if err != nil {
		writeError(w, http.StatusBadRequest, hintInvalidPatterns)

		return
	}

	target, err := s.resolveRollbackTo(body.RollbackTo)
	if err != nil {
		if re, ok := err.(*rollbackResolveError); ok {
			writeError(w, http.StatusBadRequest, re.hint)
		} else {
			s.logger.Error("resolving rollback_to failed", "err", err)
			writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)
		}

		return
	}

	health := s.health.Get()

	tip := uint64(0)
	if health.MostRecentNodeTip != nil {
		tip = *health.MostRecentNodeTip
	} else if health.MostRecentCheckpoint != nil {
		tip = *health.MostRecentCheckpoint
	}

	distance := int64(tip) - int64(target.Slot)

	if body.Limit == limitWithinSafeZone && distance > int64(s.config.LongestRollback) {
		writeError(w, http.StatusBadRequest, hintUnsafeRollbackBeyondSafeZone)

		return
	}

	if err := s.rollback.ForceRollback(target); err != nil {
		s.logger.Warn("forced rollback failed", "err", err, "target", target)
		writeError(w, http.StatusServiceUnavailable, hintFailedToRollback)

		return
	}

	if _, err := s.registry.Add(patterns); err != nil {
		s.logger.Error("persisting patterns after rollback failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	active := s.registry.Snapshot()
	out := make([]string, len(active))

	for i, p := range active {
		out[i] = p.String()
	}

	s.writeJSON(w, http.StatusOK, out)
}

type rollbackResolveError struct {
	hint string
}

func (e *rollbackResolveError) Error() string { return e.hint }

// resolveRollbackTo implements spec.md §4.7's rollback_to resolution
// rules: given as a bare slot number ("Left(Slot)"), a checkpoint must
// exist at exactly that slot; given as a {slot, header_hash} object
// ("Right(Point)"), it is accepted if it matches a known checkpoint at
// that slot, or optimistically if no checkpoint exists at that slot at
// all — the forced-rollback machinery itself is what decides whether an
// optimistically-accepted point can actually be reached.
func (s *Server) resolveRollbackTo(raw json.RawMessage) (chainpoint.Point, error) {
	var slot uint64
	if err := json.Unmarshal(raw, &slot); err == nil {
		ancestors, err := s.db.ListAncestorsDesc(slot+1, 1)
		if err != nil {
			return chainpoint.Point{}, err
		}

		if len(ancestors) == 0 || ancestors[0].Slot != slot {
			return chainpoint.Point{}, &rollbackResolveError{hintNonExistingPoint}
		}

		return ancestors[0], nil
	}

	var asPoint pointJSON
	if err := json.Unmarshal(raw, &asPoint); err != nil {
		return chainpoint.Point{}, &rollbackResolveError{hintMalformedPoint}
	}

	hash, err := chainpoint.HashFromHex(asPoint.HeaderHash)
	if err != nil {
		return chainpoint.Point{}, &rollbackResolveError{hintMalformedPoint}
	}

	target := chainpoint.NewPoint(asPoint.Slot, hash)

	ancestors, err := s.db.ListAncestorsDesc(asPoint.Slot+1, 1)
	if err != nil {
		return chainpoint.Point{}, err
	}

	if len(ancestors) > 0 && ancestors[0].Slot == asPoint.Slot && ancestors[0].Hash != hash {
		return chainpoint.Point{}, &rollbackResolveError{hintNonExistingPoint}
	}

	return target, nil
}
