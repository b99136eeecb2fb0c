package httpapi

import (
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/cardano-chain-indexer/indexer/model"
	"github.com/cardano-chain-indexer/indexer/pattern"
	"github.com/cardano-chain-indexer/indexer/store"
)

type resultJSON struct {
	OutputReference string     `json:"output_reference"`
	Address         string     `json:"address"`
	Value           valueJSON  `json:"value"`
	DatumHash       string     `json:"datum_hash,omitempty"`
	ScriptHash      string     `json:"script_hash,omitempty"`
	CreatedAt       pointJSON  `json:"created_at"`
	SpentAt         *pointJSON `json:"spent_at,omitempty"`
}

type valueJSON struct {
	Lovelace    uint64                       `json:"lovelace"`
	MultiAssets map[string]map[string]uint64 `json:"multi_assets,omitempty"`
}

func resultToJSON(r *model.Result) resultJSON {
	out := resultJSON{
		Address: r.Address,
		OutputReference: hex.EncodeToString(r.OutputRef.TxID) + "#" +
			strconv.FormatUint(uint64(r.OutputRef.Index), 10),
		Value:     valueJSON{Lovelace: r.Value.Lovelace, MultiAssets: r.Value.MultiAssets},
		DatumHash: hex.EncodeToString(r.DatumHash),
		CreatedAt: pointToJSON(r.CreatedAt),
	}

	if len(r.ScriptHash) > 0 {
		out.ScriptHash = hex.EncodeToString(r.ScriptHash)
	}

	if r.SpentAt != nil {
		spent := pointToJSON(*r.SpentAt)
		out.SpentAt = &spent
	}

	return out
}

// resolveMatchPattern resolves the pattern GET/DELETE /matches[/<p>]
// operates over: the path segment(s) if present, else the query-param
// filter shorthand (policy_id/asset_id/transaction_id/output_reference),
// else pattern.Any(). Giving both a path pattern and a filter query
// param is rejected as ambiguous.
func resolveMatchPattern(r *http.Request) (pattern.Pattern, error) {
	pathText := mux.Vars(r)["pattern"]

	filterParams := 0
	for _, key := range []string{"policy_id", "asset_id", "transaction_id", "output_reference"} {
		if r.URL.Query().Has(key) {
			filterParams++
		}
	}

	if pathText != "" && filterParams > 0 {
		return pattern.Pattern{}, errInvalidMatchFilter
	}

	if pathText != "" {
		return pattern.Parse(pathText)
	}

	if filterParams > 1 {
		return pattern.Pattern{}, errInvalidMatchFilter
	}

	switch {
	case r.URL.Query().Has("policy_id"):
		b, err := hex.DecodeString(r.URL.Query().Get("policy_id"))
		if err != nil {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		return pattern.MatchPolicyID(b), nil
	case r.URL.Query().Has("asset_id"):
		parts := strings.SplitN(r.URL.Query().Get("asset_id"), ".", 2)
		if len(parts) != 2 {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		policyID, err1 := hex.DecodeString(parts[0])
		name, err2 := hex.DecodeString(parts[1])

		if err1 != nil || err2 != nil {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		return pattern.MatchAssetID(policyID, name), nil
	case r.URL.Query().Has("transaction_id"):
		b, err := hex.DecodeString(r.URL.Query().Get("transaction_id"))
		if err != nil {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		return pattern.TransactionID(b), nil
	case r.URL.Query().Has("output_reference"):
		parts := strings.SplitN(r.URL.Query().Get("output_reference"), "#", 2)
		if len(parts) != 2 {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		txID, err := hex.DecodeString(parts[0])
		if err != nil {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		idx, err := strconv.ParseUint(parts[1], 10, 32)
		if err != nil {
			return pattern.Pattern{}, errInvalidMatchFilter
		}

		return pattern.OutputReference(txID, uint32(idx)), nil
	default:
		return pattern.Any(), nil
	}
}

func resolveStatusFlag(r *http.Request) (store.StatusFlag, error) {
	spent, unspent := r.URL.Query().Has("spent"), r.URL.Query().Has("unspent")

	switch {
	case spent && unspent:
		return 0, errInvalidStatusFlag
	case spent:
		return store.StatusSpent, nil
	case unspent:
		return store.StatusUnspent, nil
	default:
		return store.StatusAll, nil
	}
}

func resolveSortDirection(r *http.Request) (store.SortDirection, error) {
	switch r.URL.Query().Get("order") {
	case "", "oldest_first":
		return store.SortAsc, nil
	case "most_recent_first":
		return store.SortDesc, nil
	default:
		return 0, errInvalidSortDirection
	}
}

// handleListMatches answers GET /matches[/<p>[/<p>]]?… (spec.md §6.1).
func (s *Server) handleListMatches(w http.ResponseWriter, r *http.Request) {
	p, err := resolveMatchPattern(r)
	if err != nil {
		writeMatchError(w, err)

		return
	}

	status, err := resolveStatusFlag(r)
	if err != nil {
		writeMatchError(w, err)

		return
	}

	sort, err := resolveSortDirection(r)
	if err != nil {
		writeMatchError(w, err)

		return
	}

	results := make([]resultJSON, 0)

	err = s.db.FoldInputs(p, status, sort, func(res *model.Result) (bool, error) {
		results = append(results, resultToJSON(res))

		return true, nil
	})
	if err != nil {
		s.logger.Error("fold inputs failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	s.writeJSON(w, http.StatusOK, results)
}

// handleDeleteMatches answers DELETE /matches/<p>: refused if p overlaps
// the active registry (it would be immediately re-indexed), else deletes
// every currently-matching row (spec.md §4.7, P6).
func (s *Server) handleDeleteMatches(w http.ResponseWriter, r *http.Request) {
	p, err := pattern.Parse(mux.Vars(r)["pattern"])
	if err != nil {
		writeError(w, http.StatusBadRequest, hintInvalidPattern)

		return
	}

	if s.registry.Overlaps(p) {
		writeError(w, http.StatusBadRequest, hintStillActivePattern)

		return
	}

	tx, err := s.db.BeginTx(store.ReadWrite)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	tx.DeleteInputs(p)

	if err := tx.Execute(); err != nil {
		s.logger.Error("delete matches failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"deleted": tx.DeletedCount()})
}

type matchError struct {
	hint string
}

func (e *matchError) Error() string { return e.hint }

var (
	errInvalidMatchFilter   = &matchError{hintInvalidMatchFilter}
	errInvalidStatusFlag    = &matchError{hintInvalidStatusFlag}
	errInvalidSortDirection = &matchError{hintInvalidSortDirection}
)

func writeMatchError(w http.ResponseWriter, err error) {
	if me, ok := err.(*matchError); ok {
		writeError(w, http.StatusBadRequest, me.hint)

		return
	}

	writeError(w, http.StatusBadRequest, hintInvalidPattern)
}
