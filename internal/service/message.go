// Package service contains the business rules of the message board.
//
// THE THREE LAYERS:
//
//	Handler (HTTP layer)      → decodes bodies, picks status codes
//	Service (business layer)  → validates, rate-limits, aggregates votes
//	Repository (data layer)   → merges the seed and the per-day document
//
// The service never sees an *http.Request and never sees a blob key. It is
// handed a repository.MessageRepository interface, so tests run against an
// in-memory fake (see message_test.go) and production can run against any of
// the four blob backends without this package changing.
//
// WHOLE-DAY READ-MODIFY-WRITE:
// Every operation works on a whole day at a time: load the collection,
// change it in memory, save it back. There is no lock or version check
// around that cycle, so two concurrent writers to the same day can lose one
// of the updates; the backing store's last Put wins. For a board that takes
// one message per visitor per day this is an accepted gap, not a bug to
// paper over here. Closing it would need a conditional Put in every backend.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/xid"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/model"
	"github.com/sakif/microrager/internal/repository"
)

// MaxMessageLength is counted in characters (runes), not bytes, so an
// emoji-heavy message is not cut short.
const MaxMessageLength = 200

// Clock returns the current time.
//
// WHY INJECT THE CLOCK?
// "Today" decides which document is read and whether the rate limit applies.
// Tests pin it to 2024-01-01 so they never flake around midnight UTC.
type Clock func() time.Time

// MessageService appends and lists the day's messages.
//
// STRUCT FIELDS:
// - repo: the merged seed + runtime view of a day (injected)
// - logger: business events (accepted, rate-limited, store failures)
// - now: the clock above
type MessageService struct {
	repo   repository.MessageRepository
	logger *slog.Logger
	now    Clock
}

// NewMessageService creates a new MessageService. A nil clock means time.Now.
func NewMessageService(repo repository.MessageRepository, logger *slog.Logger, now Clock) *MessageService {
	if now == nil {
		now = time.Now
	}
	return &MessageService{
		repo:   repo,
		logger: logger,
		now:    now,
	}
}

// Append validates candidate and adds it to today's collection on behalf of source.
//
// ORDER OF CHECKS:
// The first failure wins, and the cheap checks run before any I/O:
//  1. candidate must be present (nil means the field was absent or null)
//  2. the trimmed text must not be empty
//  3. the trimmed text must be at most MaxMessageLength characters
//  4. source must not already have a message dated today
//
// Only step 4 touches the store. A validation failure never costs a read.
//
// WHY *string?
// The handler needs to tell "no message field" apart from "message: \"\"".
// A pointer carries that difference without an extra bool.
//
// RETURNS DOMAIN ERRORS:
// apperror.ValidationFailed, apperror.RateLimited, or a wrapped store error.
// Mapping them to 400/429/500 is the handler's job, not ours.
func (s *MessageService) Append(ctx context.Context, candidate *string, source string) (*model.Message, error) {
	if candidate == nil {
		return nil, apperror.ValidationFailed("message", "Message field is required")
	}
	text := strings.TrimSpace(*candidate)
	if text == "" {
		return nil, apperror.ValidationFailed("message", "Message cannot be empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, apperror.ValidationFailed("message",
			fmt.Sprintf("Message must be %d characters or less", MaxMessageLength))
	}

	// === LOAD TODAY ===
	now := s.now().UTC()
	today := model.DateKey(now)

	messages, err := s.repo.Load(ctx, today)
	if err != nil {
		s.logger.Error("failed to load messages",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	// === RATE LIMIT ===
	// One message per source per day. The seed is part of the loaded
	// collection, so a seed record can rate-limit its own source too.
	for _, m := range messages {
		if m.SourceIdentity == source && m.Date == today {
			s.logger.Info("message rejected by daily limit",
				slog.String("date", today),
				slog.String("source", source),
			)
			return nil, apperror.RateLimited("Rate limit exceeded: Only one message per day allowed")
		}
	}

	// === BUILD AND APPEND ===
	// xid ids sort by creation time and need no coordination between
	// instances. The "msg-" prefix keeps them apart from hand-written seed ids.
	message := model.Message{
		ID:             "msg-" + xid.NewWithTime(now).String(),
		SourceIdentity: source,
		Date:           today,
		Text:           text,
		CreatedAt:      model.NewTimestamp(now),
		Votes:          map[string]float64{},
	}

	if err := s.repo.Save(ctx, today, append(messages, message)); err != nil {
		s.logger.Error("failed to save message",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("saving message: %w", err)
	}

	s.logger.Info("message accepted",
		slog.String("id", message.ID),
		slog.String("date", today),
	)

	return &message, nil
}

// List returns today's collection in stored order: seed first, then runtime
// messages in the order they were appended.
//
// It never returns nil on success, so the handler always writes [] and never
// null for an empty day.
func (s *MessageService) List(ctx context.Context) ([]model.Message, error) {
	today := model.DateKey(s.now())

	messages, err := s.repo.Load(ctx, today)
	if err != nil {
		s.logger.Error("failed to list messages",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	return messages, nil
}
