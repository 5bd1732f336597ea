package handler

// RESPONSE HELPERS:
// Every response leaves through writeJSON, and every failure through
// writeError, so the wire shapes live in one file.
//
// THE ENVELOPES:
//   success write  → {"message": "Message accepted"}
//   failure        → {"error": "Rate limit exceeded: ..."}
//   preflight      → {"ok": true}
//   list           → a bare JSON array of messages
//
// The envelopes are deliberately flat (one key, one string). Browser clients
// already in the wild read `error` and `message` directly, so don't nest them.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/sakif/microrager/internal/apperror"
)

// ErrorResponse is the envelope of every failed request: {"error": "..."}.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse acknowledges a successful write: {"message": "..."}.
type MessageResponse struct {
	Message string `json:"message"`
}

// OKResponse answers CORS preflight: {"ok": true}.
type OKResponse struct {
	OK bool `json:"ok"`
}

// writeJSON sends a JSON response with the given status code.
//
// HEADER ORDER MATTERS:
//  1. w.Header().Set(...)     ← set headers
//  2. w.WriteHeader(status)   ← send status + headers
//  3. json.Encode(data)       ← send body
//
// Headers changed after step 2 are silently dropped. The CORS headers are
// safe because the middleware sets them before the handler runs.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Status is already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeError maps the apperror taxonomy to a status code.
//
// ERROR MAPPING:
//   apperror.ErrValidation  → 400, the validation message as-is
//   apperror.ErrRateLimited → 429, the rate-limit message as-is
//   anything else           → 500, storeMessage
//
// WHY storeMessage?
// A store failure carries the backend's own text ("dial tcp ...",
// "NoSuchBucket ..."). That belongs in the logs, not in a browser. Each
// endpoint instead passes its own fixed text ("Error saving votes").
//
// Note there is no 404 here: apperror.ErrNotFound never reaches the handler,
// because the repository turns a missing document into an empty day.
func writeError(w http.ResponseWriter, err error, storeMessage string) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		switch {
		case errors.Is(err, apperror.ErrValidation):
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: appErr.Message}) // 400
			return
		case errors.Is(err, apperror.ErrRateLimited):
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: appErr.Message}) // 429
			return
		}
	}

	writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: storeMessage})
}
