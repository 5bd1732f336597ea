// Package handler is the HTTP boundary of the message board.
//
// WHAT A HANDLER DOES (AND DOESN'T):
// - decodes the request body, size-capped
// - works out who is calling (SourceIdentity)
// - calls exactly one service method
// - turns the outcome, failures included, into a JSON envelope
//
// It does NOT validate message text or count votes. Those rules live in
// internal/service so they hold for every caller, not just HTTP.
package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/model"
)

// Envelope texts. Clients match on some of them, keep them stable.
const (
	msgAccepted      = "Message accepted"
	msgVotesRecorded = "Batch votes recorded"

	errInvalidJSON      = "Invalid JSON in request body"
	errVotesRequired    = "Votes array is required"
	errReadingMessages  = "Error reading messages"
	errSavingMessage    = "Error saving message"
	errSavingVotes      = "Error saving votes"
	errMethodNotAllowed = "Method not allowed"
)

// unknownSource is the identity used when the request carries no usable
// client address (e.g. a local function emulator).
const unknownSource = "local"

// MessageStore is what the handler needs from service.MessageService.
//
// INTERFACES BELONG TO THE CONSUMER:
// The handler declares the two small interfaces it uses instead of importing
// the concrete services. Tests pass MockMessages / MockVotes; production
// passes *service.MessageService and *service.VoteService.
type MessageStore interface {
	Append(ctx context.Context, candidate *string, source string) (*model.Message, error)
	List(ctx context.Context) ([]model.Message, error)
}

// VoteAggregator is what the handler needs from service.VoteService.
type VoteAggregator interface {
	ApplyBatch(ctx context.Context, items []model.VoteItem) (int, error)
}

// MessagesHandler serves the /messages resource (and its /votes and / aliases).
type MessagesHandler struct {
	messages     MessageStore
	votes        VoteAggregator
	maxBodyBytes int64
	logger       *slog.Logger
}

// NewMessagesHandler creates a new MessagesHandler. maxBodyBytes <= 0 disables the cap.
func NewMessagesHandler(messages MessageStore, votes VoteAggregator, maxBodyBytes int64, logger *slog.Logger) *MessagesHandler {
	return &MessagesHandler{
		messages:     messages,
		votes:        votes,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

// ServeHTTP dispatches on method, for mounts that hand every method to one handler.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodOptions:
		h.HandleOptions(w, r)
	case http.MethodGet:
		h.HandleList(w, r)
	case http.MethodPost:
		h.HandleCreate(w, r)
	case http.MethodPatch:
		h.HandleVote(w, r)
	default:
		h.HandleMethodNotAllowed(w, r)
	}
}

// HandleOptions answers CORS preflight.
//
// HTTP: OPTIONS /messages → 200 {"ok":true}
func (h *MessagesHandler) HandleOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, OKResponse{OK: true})
}

// HandleList returns today's messages.
//
// HTTP: GET /messages → 200 [{"id":..., "ip":..., "date":..., "message":..., "timestamp":..., "votes":{...}}]
func (h *MessagesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messages.List(r.Context())
	if err != nil {
		writeError(w, err, errReadingMessages)
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

// HandleCreate posts the caller's message for today.
//
// HTTP: POST /messages
// REQUEST BODY: {"message": "feeling sunny"}
//
// RESPONSES:
//   200 {"message":"Message accepted"}
//   400 invalid JSON, or any validation failure from the service
//   429 this source already posted today
//   500 {"error":"Error saving message"}
//
// WHY json.RawMessage?
// Decoding "message" straight into a string would turn {"message": 5} into a
// generic decode error. Keeping it raw lets us say "Message must be a string",
// and tell an absent field (nil) from an empty one ("").
func (h *MessagesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message json.RawMessage `json:"message"`
	}
	if err := h.decode(w, r, &req); err != nil {
		h.logger.Warn("invalid message JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errInvalidJSON})
		return
	}

	candidate, err := textField(req.Message)
	if err != nil {
		writeError(w, err, errSavingMessage)
		return
	}

	if _, err := h.messages.Append(r.Context(), candidate, SourceIdentity(r)); err != nil {
		writeError(w, err, errSavingMessage)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgAccepted})
}

// HandleVote records a batch of votes on today's messages.
//
// HTTP: PATCH /messages
// REQUEST BODY: {"votes": [{"id": "msg-...", "color": "rgb(1,2,3)", "count": 1}]}
//
// RESPONSES:
//   200 {"message":"Batch votes recorded"}
//   400 invalid JSON, or "votes" missing / not an array
//   500 {"error":"Error saving votes"}
//
// Malformed entries inside the array are skipped by the aggregator; only a
// missing or non-array "votes" rejects the request. model.VoteItem never
// fails to decode, so "junk" inside the array still reaches the service.
func (h *MessagesHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Votes json.RawMessage `json:"votes"`
	}
	if err := h.decode(w, r, &req); err != nil {
		h.logger.Warn("invalid votes JSON", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errInvalidJSON})
		return
	}

	raw := bytes.TrimSpace(req.Votes)
	if len(raw) == 0 || raw[0] != '[' {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errVotesRequired})
		return
	}
	var items []model.VoteItem
	if err := json.Unmarshal(raw, &items); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: errVotesRequired})
		return
	}

	if _, err := h.votes.ApplyBatch(r.Context(), items); err != nil {
		writeError(w, err, errSavingVotes)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: msgVotesRecorded})
}

// HandleMethodNotAllowed is the fallback for every other method.
func (h *MessagesHandler) HandleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{Error: errMethodNotAllowed})
}

// decode reads one JSON value from a size-capped body.
//
// http.MaxBytesReader makes an oversized body fail mid-decode, which the
// caller reports as invalid JSON. Without it a client could stream an
// unbounded body into the decoder.
func (h *MessagesHandler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := r.Body
	if h.maxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}
	return json.NewDecoder(body).Decode(v)
}

// textField turns the raw "message" value into the service's candidate:
// nil when absent or null, a validation error when it is not a JSON string.
func textField(raw json.RawMessage) (*string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, apperror.ValidationFailed("message", "Message must be a string")
	}
	return &s, nil
}

// SourceIdentity is the caller's address without the port.
//
// It is the rate-limit key, so it reads r.RemoteAddr only. The server installs
// chi's RealIP middleware (which copies X-Forwarded-For / X-Real-IP into
// RemoteAddr) only when TrustProxyHeaders is set; otherwise a client could pick
// a fresh identity per request.
//
// EXAMPLES:
//   "1.2.3.4:5555"  → "1.2.3.4"
//   "[::1]:8080"    → "::1"
//   "1.2.3.4"       → "1.2.3.4" (RealIP already stripped the port)
//   ""              → "local"
func SourceIdentity(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return unknownSource
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return unknownSource
	}
	return addr
}
