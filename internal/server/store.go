package server

import (
	"context"
	"fmt"

	"github.com/sakif/microrager/internal/blobstore"
	"github.com/sakif/microrager/internal/blobstore/local"
	redisstore "github.com/sakif/microrager/internal/blobstore/redis"
	s3store "github.com/sakif/microrager/internal/blobstore/s3"
	sqlitestore "github.com/sakif/microrager/internal/blobstore/sqlite"
	"github.com/sakif/microrager/internal/config"
)

// OpenStore builds the blob store backend selected by cfg.StorageMode.
// Backends holding connections implement blobstore.Closer.
func OpenStore(ctx context.Context, cfg config.Config) (blobstore.Store, error) {
	switch cfg.StorageMode {
	case config.ModeLocal:
		return local.New(cfg.LocalDataDir), nil

	case config.ModeS3:
		store, err := s3store.Connect(ctx, s3store.Options{
			Bucket:   cfg.BucketName,
			Region:   cfg.AWSRegion,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.ModeRedis:
		store, err := redisstore.Dial(ctx, cfg.RedisAddr, cfg.RedisKeyPrefix)
		if err != nil {
			return nil, err
		}
		return store, nil

	case config.ModeSQLite:
		db, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
}
