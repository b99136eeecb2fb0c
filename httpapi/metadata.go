package httpapi

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

type txMetadataJSON struct {
	TransactionID string          `json:"transaction_id"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
}

// handleGetMetadata answers GET /metadata/<slot>?transaction_id=…
// (spec.md §4.7): resolve the nearest ancestor checkpoint of slot,
// fetch that block live from the chain producer (only the gouroboros
// backend supports this — Ogmios has no arbitrary-point fetch), and
// stream per-transaction metadata, optionally filtered to one
// transaction id.
func (s *Server) handleGetMetadata(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.ParseUint(mux.Vars(r)["slot"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, hintInvalidSlotNo)

		return
	}

	var wantTxID []byte

	if raw := r.URL.Query().Get("transaction_id"); raw != "" {
		wantTxID, err = hex.DecodeString(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, hintInvalidMetadataFilter)

			return
		}
	}

	if s.fetcher == nil {
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	ancestors, err := s.db.ListAncestorsDesc(slot+1, 1)
	if err != nil {
		s.logger.Error("list ancestors failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	if len(ancestors) == 0 {
		writeError(w, http.StatusNotFound, hintNoAncestor)

		return
	}

	point := ancestors[0]

	txs, err := s.fetcher.GetBlockTransactions(point)
	if err != nil {
		s.logger.Error("fetch block transactions failed", "err", err, "point", point)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	out := make([]txMetadataJSON, 0, len(txs))

	for _, tx := range txs {
		if wantTxID != nil && !bytes.Equal(tx.ID, wantTxID) {
			continue
		}

		out = append(out, txMetadataJSON{
			TransactionID: hex.EncodeToString(tx.ID),
			Metadata:      tx.Metadata,
		})
	}

	w.Header().Set("X-Block-Header-Hash", point.Hash.String())
	s.writeJSON(w, http.StatusOK, out)
}
