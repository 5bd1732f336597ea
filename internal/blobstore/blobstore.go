// Package blobstore is the get/put contract over the document backends.
//
// Every implementation returns an error wrapping apperror.ErrNotFound when a
// key does not exist and one wrapping apperror.ErrStore for anything else.
package blobstore

import (
	"context"
)

type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Closer is implemented by backends that hold a connection or pool.
type Closer interface {
	Close() error
}
