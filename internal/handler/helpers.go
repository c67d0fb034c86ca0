package handler

import (
	"encoding/json"
	"net/http"

	"github.com/kidvue/gatekeeper/internal/model"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}

func writeFieldError(w http.ResponseWriter, status int, message, field string) {
	writeJSON(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message, Field: field},
	})
}

// readJSON decodes the request body into dst. The body is capped to
// guard against oversized payloads.
func readJSON(r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<20)).Decode(dst)
}
