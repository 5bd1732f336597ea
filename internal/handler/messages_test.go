package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/handler"
	"github.com/sakif/microrager/internal/model"
)

// MockMessages records what the handler passed in and returns canned results.
type MockMessages struct {
	Candidate  *string
	Source     string
	Called     bool
	ListResult []model.Message
	ReturnErr  error
	ListErr    error
}

func (m *MockMessages) Append(_ context.Context, candidate *string, source string) (*model.Message, error) {
	m.Called = true
	m.Candidate = candidate
	m.Source = source
	if m.ReturnErr != nil {
		return nil, m.ReturnErr
	}
	return &model.Message{ID: "msg-1", Text: *candidate}, nil
}

func (m *MockMessages) List(context.Context) ([]model.Message, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	return m.ListResult, nil
}

type MockVotes struct {
	Items     []model.VoteItem
	Called    bool
	ReturnErr error
}

func (m *MockVotes) ApplyBatch(_ context.Context, items []model.VoteItem) (int, error) {
	m.Called = true
	m.Items = items
	return len(items), m.ReturnErr
}

func newHandler(msgs *MockMessages, votes *MockVotes) *handler.MessagesHandler {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	return handler.NewMessagesHandler(msgs, votes, 1024, logger)
}

func do(h http.Handler, method, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, "/", r)
	req.RemoteAddr = "1.2.3.4:5555"
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorBody(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var res handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&res))
	return res.Error
}

func TestMessagesHandler_Options(t *testing.T) {
	rr := do(newHandler(&MockMessages{}, &MockVotes{}), http.MethodOptions, "")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"ok":true}`, rr.Body.String())
}

func TestMessagesHandler_List(t *testing.T) {
	t.Run("returns messages", func(t *testing.T) {
		msgs := &MockMessages{ListResult: []model.Message{{ID: "a", Text: "hi", Votes: map[string]float64{}}}}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodGet, "")

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
		var got []model.Message
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
		require.Len(t, got, 1)
		assert.Equal(t, "hi", got[0].Text)
	})

	t.Run("store failure", func(t *testing.T) {
		msgs := &MockMessages{ListErr: apperror.Store("s3: reading", io.ErrUnexpectedEOF)}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodGet, "")

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Error reading messages", errorBody(t, rr))
	})
}

func TestMessagesHandler_Create(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		msgs := &MockMessages{}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, `{"message":"hi"}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"message":"Message accepted"}`, rr.Body.String())
		require.NotNil(t, msgs.Candidate)
		assert.Equal(t, "hi", *msgs.Candidate)
		assert.Equal(t, "1.2.3.4", msgs.Source)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		msgs := &MockMessages{}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, `{"message":`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid JSON in request body", errorBody(t, rr))
		assert.False(t, msgs.Called)
	})

	t.Run("empty body", func(t *testing.T) {
		rr := do(newHandler(&MockMessages{}, &MockVotes{}), http.MethodPost, "")

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("non-string message", func(t *testing.T) {
		msgs := &MockMessages{}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, `{"message":42}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Message must be a string", errorBody(t, rr))
		assert.False(t, msgs.Called)
	})

	t.Run("missing message is passed as nil", func(t *testing.T) {
		msgs := &MockMessages{ReturnErr: apperror.ValidationFailed("message", "Message field is required")}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, `{"text":"hi"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.True(t, msgs.Called)
		assert.Nil(t, msgs.Candidate)
	})

	t.Run("rate limited", func(t *testing.T) {
		msgs := &MockMessages{ReturnErr: apperror.RateLimited("Rate limit exceeded: Only one message per day allowed")}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, `{"message":"again"}`)

		assert.Equal(t, http.StatusTooManyRequests, rr.Code)
		assert.Equal(t, "Rate limit exceeded: Only one message per day allowed", errorBody(t, rr))
	})

	t.Run("save failure", func(t *testing.T) {
		msgs := &MockMessages{ReturnErr: apperror.Store("s3: writing", io.ErrUnexpectedEOF)}

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, `{"message":"hi"}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Error saving message", errorBody(t, rr))
	})

	t.Run("body over the limit", func(t *testing.T) {
		msgs := &MockMessages{}
		body := `{"message":"` + strings.Repeat("a", 2048) + `"}`

		rr := do(newHandler(msgs, &MockVotes{}), http.MethodPost, body)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.False(t, msgs.Called)
	})
}

func TestMessagesHandler_Vote(t *testing.T) {
	t.Run("recorded", func(t *testing.T) {
		votes := &MockVotes{}

		rr := do(newHandler(&MockMessages{}, votes), http.MethodPatch,
			`{"votes":[{"id":"msg-1","color":"rgb(1,2,3)","count":1},{"id":"msg-2","emoji":"🔥","count":2}]}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"message":"Batch votes recorded"}`, rr.Body.String())
		require.Len(t, votes.Items, 2)
		assert.Equal(t, "rgb(1,2,3)", votes.Items[0].Label())
		assert.Equal(t, "🔥", votes.Items[1].Label())
	})

	t.Run("malformed items still reach the aggregator", func(t *testing.T) {
		votes := &MockVotes{}

		rr := do(newHandler(&MockMessages{}, votes), http.MethodPatch, `{"votes":[null,"x",{"id":1}]}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, votes.Items, 3)
	})

	t.Run("empty batch", func(t *testing.T) {
		votes := &MockVotes{}

		rr := do(newHandler(&MockMessages{}, votes), http.MethodPatch, `{"votes":[]}`)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.True(t, votes.Called)
	})

	for name, body := range map[string]string{
		"missing votes":   `{}`,
		"votes is object": `{"votes":{"id":"a"}}`,
		"votes is null":   `{"votes":null}`,
	} {
		t.Run(name, func(t *testing.T) {
			votes := &MockVotes{}

			rr := do(newHandler(&MockMessages{}, votes), http.MethodPatch, body)

			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "Votes array is required", errorBody(t, rr))
			assert.False(t, votes.Called)
		})
	}

	t.Run("invalid JSON", func(t *testing.T) {
		rr := do(newHandler(&MockMessages{}, &MockVotes{}), http.MethodPatch, `not json`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid JSON in request body", errorBody(t, rr))
	})

	t.Run("save failure", func(t *testing.T) {
		votes := &MockVotes{ReturnErr: apperror.Store("s3: writing", io.ErrUnexpectedEOF)}

		rr := do(newHandler(&MockMessages{}, votes), http.MethodPatch, `{"votes":[]}`)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, "Error saving votes", errorBody(t, rr))
	})
}

func TestMessagesHandler_MethodNotAllowed(t *testing.T) {
	rr := do(newHandler(&MockMessages{}, &MockVotes{}), http.MethodDelete, "")

	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
	assert.Equal(t, "Method not allowed", errorBody(t, rr))
}

func TestSourceIdentity(t *testing.T) {
	tests := []struct {
		remote string
		want   string
	}{
		{"1.2.3.4:5555", "1.2.3.4"},
		{"1.2.3.4", "1.2.3.4"},
		{"[2001:db8::1]:443", "2001:db8::1"},
		{"", "local"},
	}

	for _, tt := range tests {
		t.Run(tt.remote, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			req.RemoteAddr = tt.remote

			assert.Equal(t, tt.want, handler.SourceIdentity(req))
		})
	}
}

// Proxy headers are only honoured once RealIP has rewritten RemoteAddr;
// on their own they never change the identity.
func TestSourceIdentity_IgnoresForwardedHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "203.0.113.7:40000"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("X-Real-IP", "10.0.0.2")

	assert.Equal(t, "203.0.113.7", handler.SourceIdentity(req))
}
