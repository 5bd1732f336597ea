// Package s3 stores documents as objects in an S3 (or S3-compatible) bucket.
// The document key is used directly as the object key.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/sakif/microrager/internal/apperror"
	"github.com/sakif/microrager/internal/blobstore"
)

var _ blobstore.Store = (*Store)(nil)

// API is the subset of *s3.Client the store needs.
type API interface {
	GetObject(ctx context.Context, in *awss3.GetObjectInput, optFns ...func(*awss3.Options)) (*awss3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error)
}

type Store struct {
	api    API
	bucket string
}

func New(api API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// Options configures Connect.
type Options struct {
	Bucket string
	Region string
	// Endpoint points the client at an S3-compatible server (MinIO,
	// LocalStack). Path-style addressing is used when it is set.
	Endpoint string
}

// Connect builds a client from the default AWS credential chain
// (env vars, shared config, instance role).
func Connect(ctx context.Context, opts Options) (*Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: loading aws config: %w", err)
	}

	client := awss3.NewFromConfig(cfg, func(o *awss3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, opts.Bucket), nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.api.GetObject(ctx, &awss3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.NotFound(key)
		}
		return nil, apperror.Store(fmt.Sprintf("s3: reading %s/%s", s.bucket, key), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, apperror.Store(fmt.Sprintf("s3: reading body of %s/%s", s.bucket, key), err)
	}
	return data, nil
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	_, err := s.api.PutObject(ctx, &awss3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return apperror.Store(fmt.Sprintf("s3: writing %s/%s", s.bucket, key), err)
	}
	return nil
}

// isNotFound recognises a missing object. GetObject reports NoSuchKey, but
// without s3:ListBucket permission (or behind some S3-compatible servers)
// the error comes back as a bare "NotFound" API code instead.
func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
