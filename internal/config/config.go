// Package config loads the service configuration from the environment.
//
// Every variable may also be given with a MICRORAGER_ prefix, which wins over
// the bare name (MICRORAGER_STORAGE_MODE beats STORAGE_MODE). A .env file in
// the working directory is read first when present; real environment
// variables always take precedence over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const envPrefix = "MICRORAGER"

// Storage modes.
const (
	ModeLocal  = "local"
	ModeS3     = "s3"
	ModeRedis  = "redis"
	ModeSQLite = "sqlite"
)

type Config struct {
	Port     int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// TrustProxyHeaders takes the client address from X-Forwarded-For /
	// X-Real-IP. Only enable it behind a proxy that overwrites those headers:
	// the address is the rate-limit identity, and clients can set them freely.
	TrustProxyHeaders bool `envconfig:"TRUST_PROXY_HEADERS" default:"false"`

	StorageMode string `envconfig:"STORAGE_MODE" default:"s3" validate:"oneof=local s3 redis sqlite"`
	Collection  string `envconfig:"COLLECTION_NAME" default:"microrager" validate:"required"`

	// s3
	BucketName string `envconfig:"BUCKET_NAME" validate:"required_if=StorageMode s3"`
	S3Endpoint string `envconfig:"S3_ENDPOINT" validate:"omitempty,url"`
	AWSRegion  string `envconfig:"AWS_REGION"`

	// local
	LocalDataDir      string `envconfig:"LOCAL_DATA_DIR" default:"/tmp" validate:"required_if=StorageMode local"`
	LocalSeedDir      string `envconfig:"LOCAL_SEED_DIR" default:"local-data"`
	LocalSeedFilename string `envconfig:"LOCAL_SEED_FILENAME" default:"microrager.local.seed.json"`

	// redis
	RedisAddr      string `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required_if=StorageMode redis"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX"`

	// sqlite
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/microrager.db" validate:"required_if=StorageMode sqlite"`

	MaxBodyBytes    int64         `envconfig:"MAX_BODY_BYTES" default:"16384" validate:"min=1"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// Load reads envFiles (default ".env"; missing files are skipped), then the
// process environment, applies defaults and validates the result.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("config: reading %s: %w", f, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.StorageMode = strings.ToLower(strings.TrimSpace(cfg.StorageMode))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field constraints and reports every violation at once.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("config: invalid configuration: %s", strings.Join(msgs, "; "))
}

// SeedPath is the read-only seed document merged into local-mode reads.
func (c Config) SeedPath() string {
	return filepath.Join(c.LocalSeedDir, c.LocalSeedFilename)
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SlogLevel maps LogLevel to a slog.Level.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
