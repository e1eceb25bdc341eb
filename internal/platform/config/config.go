// Package config loads process settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/janisto/profile-api/internal/platform/firebase"
	"github.com/janisto/profile-api/internal/platform/postgres"
	"github.com/janisto/profile-api/internal/platform/redis"
)

// Storage backends selectable with PROFILE_STORAGE.
const (
	StorageMemory    = "memory"
	StorageFile      = "file"
	StoragePostgres  = "postgres"
	StorageFirestore = "firestore"
	StorageRedis     = "redis"
)

var storageBackends = []string{StorageMemory, StorageFile, StoragePostgres, StorageFirestore, StorageRedis}

// Config is the complete process configuration.
type Config struct {
	Port            string        `env:"PORT"              envDefault:"8080"`
	LogLevel        string        `env:"LOG_LEVEL"         envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"  envDefault:"10s"`
	Storage         string        `env:"PROFILE_STORAGE"   envDefault:"file"`
	DataFile        string        `env:"PROFILE_DATA_FILE" envDefault:"perfiles.json"`

	// Empty keeps the built-in permissive policy.
	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	Postgres postgres.Config `envPrefix:"POSTGRES_"`
	Redis    redis.Config    `envPrefix:"REDIS_"`
	Firebase firebase.Config
}

// Load reads .env files (missing ones are ignored), then parses and
// validates the environment.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the settings each storage backend requires.
func (c *Config) Validate() error {
	if !slices.Contains(storageBackends, c.Storage) {
		return fmt.Errorf("PROFILE_STORAGE must be one of %v, got %q", storageBackends, c.Storage)
	}
	switch c.Storage {
	case StorageFile:
		if c.DataFile == "" {
			return errors.New("PROFILE_DATA_FILE is required for file storage")
		}
	case StorageFirestore:
		if c.Firebase.ProjectID == "" {
			return errors.New("FIREBASE_PROJECT_ID is required for firestore storage")
		}
	case StorageRedis:
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required for redis storage")
		}
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}
