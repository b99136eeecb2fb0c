package httpapi

import (
	"encoding/hex"
	"net/http"

	"github.com/gorilla/mux"
)

// handleGetDatum answers GET /datums/<hash>.
func (s *Server) handleGetDatum(w http.ResponseWriter, r *http.Request) {
	hash, err := hex.DecodeString(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, hintMalformedDatumHash)

		return
	}

	data, err := s.db.GetBinaryData(hash)
	if err != nil {
		s.logger.Error("get binary data failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	if data == nil {
		s.writeJSON(w, http.StatusOK, nil)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"datum": hex.EncodeToString(data.Bytes)})
}

var scriptTagNames = map[byte]string{
	0: "native",
	1: "plutus_v1",
	2: "plutus_v2",
	3: "plutus_v3",
}

// handleGetScript answers GET /scripts/<hash>.
func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	hash, err := hex.DecodeString(mux.Vars(r)["hash"])
	if err != nil {
		writeError(w, http.StatusBadRequest, hintMalformedScriptHash)

		return
	}

	script, err := s.db.GetScript(hash)
	if err != nil {
		s.logger.Error("get script failed", "err", err)
		writeError(w, http.StatusServiceUnavailable, hintServiceUnavailable)

		return
	}

	if script == nil {
		s.writeJSON(w, http.StatusOK, nil)

		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"script": hex.EncodeToString(script.Bytes),
		"tag":    scriptTagNames[byte(script.Tag)],
	})
}
