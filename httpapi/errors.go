package httpapi

import (
	"encoding/json"
	"net/http"
)

// Hint codes named in spec.md §7, returned as {"hint": "..."} bodies.
const (
	hintInvalidPattern        = "invalid_pattern"
	hintInvalidPatterns       = "invalid_patterns"
	hintInvalidStatusFlag     = "invalid_status_flag"
	hintInvalidMatchFilter    = "invalid_match_filter"
	hintInvalidSortDirection  = "invalid_sort_direction"
	hintInvalidSlotNo         = "invalid_slot_no"
	hintInvalidStrictMode     = "invalid_strict_mode"
	hintInvalidMetadataFilter = "invalid_metadata_filter"
	hintMalformedPoint               = "malformed_point"
	hintMalformedDatumHash           = "malformed_datum_hash"
	hintMalformedScriptHash          = "malformed_script_hash"
	hintStillActivePattern           = "still_active_pattern"
	hintNonExistingPoint             = "non_existing_point"
	hintUnsafeRollbackBeyondSafeZone = "unsafe_rollback_beyond_safe_zone"
	hintNoAncestor                   = "no_ancestor"
	hintServiceUnavailable           = "service_unavailable"
	hintFailedToRollback             = "failed_to_rollback"
	hintUnsupportedContentType       = "unsupported_content_type"
	hintServerError                  = "server_error"
	hintNotFound                     = "not_found"
	hintMethodNotAllowed             = "method_not_allowed"
)

// writeError emits the JSON error body format request handlers recover
// per-request errors into (spec.md §7): {"hint": "..."}.
func writeError(w http.ResponseWriter, status int, hint string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"hint": hint}) //nolint:errcheck
}
