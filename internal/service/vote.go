package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/sakif/microrager/internal/model"
	"github.com/sakif/microrager/internal/repository"
)

// VoteService folds batches of votes into today's messages.
//
// Same shape as MessageService: a repository interface and a logger are
// injected, plus a clock so tests can pin "today".
type VoteService struct {
	repo   repository.MessageRepository
	logger *slog.Logger
	now    Clock
}

// NewVoteService creates a new VoteService. A nil clock means time.Now.
func NewVoteService(repo repository.MessageRepository, logger *slog.Logger, now Clock) *VoteService {
	if now == nil {
		now = time.Now
	}
	return &VoteService{
		repo:   repo,
		logger: logger,
		now:    now,
	}
}

// ApplyBatch adds each item's count to votes[label] on the message with the
// item's id and returns how many items were applied.
//
// SKIP, DON'T FAIL:
// A batch comes from a browser that may be several versions old. One bad
// entry must not cost the caller every good entry next to it, so an item is
// skipped (not rejected) when:
//   - it has no id, no label, or no numeric count
//   - its id is not in today's collection (yesterday's message, a typo)
//   - adding it would push the running total to ±Inf, which JSON cannot encode
//
// The skipped count is logged; the HTTP response stays a plain success.
//
// ONE LOAD, ONE SAVE:
// The whole batch is applied in memory and saved exactly once, even when every
// item was skipped. Either the whole batch lands or (on a store failure)
// nothing does. There is no partial write to clean up.
//
// Counts are otherwise not bounds-checked: negative values are accepted.
func (s *VoteService) ApplyBatch(ctx context.Context, items []model.VoteItem) (int, error) {
	today := model.DateKey(s.now())

	messages, err := s.repo.Load(ctx, today)
	if err != nil {
		s.logger.Error("failed to load messages for votes",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("loading messages: %w", err)
	}

	applied := 0
	for _, item := range items {
		label := item.Label()
		if item.ID == "" || label == "" || item.Count == nil {
			continue
		}
		// Linear scan: a day holds one message per visitor, so this stays small.
		_, idx, found := lo.FindIndexOf(messages, func(m model.Message) bool { return m.ID == item.ID })
		if !found {
			continue
		}

		target := &messages[idx]
		if target.Votes == nil {
			target.Votes = map[string]float64{}
		}
		total := target.Votes[label] + *item.Count
		if math.IsInf(total, 0) || math.IsNaN(total) {
			continue
		}
		target.Votes[label] = total
		applied++
	}

	if err := s.repo.Save(ctx, today, messages); err != nil {
		s.logger.Error("failed to save votes",
			slog.String("date", today),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("saving votes: %w", err)
	}

	s.logger.Info("vote batch recorded",
		slog.String("date", today),
		slog.Int("applied", applied),
		slog.Int("skipped", len(items)-applied),
	)

	return applied, nil
}
