// Package repository turns per-day blob documents into message collections.
//
// THE DATA LAYER:
// Below this package there are only bytes under a key (internal/blobstore).
// Above it there are only []model.Message for a date. The key scheme, the JSON
// encoding and the seed merge all live here.
//
// SEED + RUNTIME:
// A day's logical collection is the optional read-only seed followed by the
// runtime document:
//
//	Load(date) = seed messages ++ runtime messages
//	Save(date, msgs) → runtime = msgs minus any record carrying a seed id
//
// Writes only ever touch the runtime document. Because Load puts the seed in
// front, the services can vote on seed messages like any other; those votes
// just aren't persisted.
package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/samber/lo"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/blobstore"
	"github.com/sakif/microrager/internal/model"
)

type MessageRepository interface {
	Load(ctx context.Context, date string) ([]model.Message, error)
	Save(ctx context.Context, date string, messages []model.Message) error
}

var _ MessageRepository = (*Collections)(nil)

// Seed is a fixed document merged in front of every day's messages.
type Seed struct {
	store blobstore.Store
	key   string
}

// NewSeed reads the seed from key in store. A missing seed document means an empty seed.
func NewSeed(store blobstore.Store, key string) *Seed {
	return &Seed{store: store, key: key}
}

// Messages decodes the seed fresh on every call, so callers may mutate the result.
func (s *Seed) Messages(ctx context.Context) ([]model.Message, error) {
	return readDocument(ctx, s.store, s.key)
}

// Options configures Collections.
type Options struct {
	// Collection is the document name suffix: {date}-{Collection}.json.
	Collection string
	// Seed is nil when the backend has no seed (network object stores).
	Seed *Seed
	// Indent writes human-readable JSON, used for the local scratch files.
	Indent bool
}

// Collections implements MessageRepository over a blob store.
type Collections struct {
	store blobstore.Store
	opts  Options
}

func New(store blobstore.Store, opts Options) *Collections {
	if opts.Collection == "" {
		opts.Collection = "microrager"
	}
	return &Collections{store: store, opts: opts}
}

// Load returns seed-then-runtime messages for date, in stored order.
// A date with no document yet yields the seed alone (or an empty slice).
func (c *Collections) Load(ctx context.Context, date string) ([]model.Message, error) {
	runtime, err := readDocument(ctx, c.store, c.key(date))
	if err != nil {
		return nil, err
	}
	if c.opts.Seed == nil {
		return runtime, nil
	}

	seed, err := c.opts.Seed.Messages(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading seed: %w", err)
	}
	return append(seed, runtime...), nil
}

// Save persists the collection for date. With a seed configured, records
// carrying a seed id are dropped first so the seed is never duplicated into
// (or overwritten by) the runtime document.
func (c *Collections) Save(ctx context.Context, date string, messages []model.Message) error {
	toWrite := messages
	if c.opts.Seed != nil {
		seed, err := c.opts.Seed.Messages(ctx)
		if err != nil {
			return fmt.Errorf("loading seed: %w", err)
		}
		seedIDs := lo.SliceToMap(
			lo.Filter(seed, func(m model.Message, _ int) bool { return m.ID != "" }),
			func(m model.Message) (string, struct{}) { return m.ID, struct{}{} },
		)
		toWrite = lo.Filter(messages, func(m model.Message, _ int) bool {
			_, isSeed := seedIDs[m.ID]
			return m.ID == "" || !isSeed
		})
	}
	if toWrite == nil {
		toWrite = []model.Message{}
	}

	var (
		data []byte
		err  error
	)
	if c.opts.Indent {
		data, err = json.MarshalIndent(toWrite, "", "  ")
	} else {
		data, err = json.Marshal(toWrite)
	}
	if err != nil {
		return fmt.Errorf("encoding %s: %w", c.key(date), err)
	}

	return c.store.Put(ctx, c.key(date), data)
}

func (c *Collections) key(date string) string {
	return model.DocumentKey(date, c.opts.Collection)
}

// readDocument decodes a JSON array of messages.
//
// NOT FOUND IS A SIGNAL, NOT A FAILURE:
// Nobody creates a day's document ahead of time; the first message of the day
// does. So apperror.ErrNotFound from the store (and an empty body) means
// "no messages yet" and becomes an empty slice. Every other store error is
// passed up unchanged.
//
// Undecodable JSON is a store error rather than an empty day: silently
// treating it as empty would let the next Save overwrite whatever is there.
func readDocument(ctx context.Context, store blobstore.Store, key string) ([]model.Message, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return []model.Message{}, nil
		}
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []model.Message{}, nil
	}

	var messages []model.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, apperror.Store(fmt.Sprintf("decoding %s", key), err)
	}
	if messages == nil {
		messages = []model.Message{}
	}
	for i := range messages {
		if messages[i].Votes == nil {
			messages[i].Votes = map[string]float64{}
		}
	}
	return messages, nil
}
