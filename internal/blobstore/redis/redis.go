// Package redis stores each document as a single Redis string.
package redis

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/go-redis/redis/v8"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

// Store keeps documents under Prefix+key. Keys never expire.
type Store struct {
	client *goredis.Client
	prefix string
}

// New wraps an existing client.
func New(client *goredis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Dial connects to addr and pings it so a bad address fails at startup
// rather than on the first request.
func Dial(ctx context.Context, addr, prefix string) (*Store, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: connecting to %s: %w", addr, err)
	}
	return New(client, prefix), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperror.NotFound(key)
		}
		return nil, apperror.Store(fmt.Sprintf("redis: reading %s", key), err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.prefix+key, data, 0).Err(); err != nil {
		return apperror.Store(fmt.Sprintf("redis: writing %s", key), err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
