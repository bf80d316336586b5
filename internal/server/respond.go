package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/opscore/core/internal/apperrors"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		if err := json.NewEncoder(w).Encode(v); err != nil {
			log.Printf("[HTTP] encode response: %v", err)
		}
	}
}

// writeError is the centralized error mapper (spec.md §4.6 middleware
// layer 1 / §7): it maps a typed *apperrors.Error to its HTTP status and
// emits the safe {"detail": "..."} body; anything unrecognized becomes a
// 500 with the generic body, with the underlying error logged in full.
func writeError(w http.ResponseWriter, err error) {
	status := apperrors.StatusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("[HTTP] unhandled error: %v", err)
	}
	writeJSON(w, status, map[string]string{"detail": apperrors.Detail(err)})
}
