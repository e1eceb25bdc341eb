// Package redis builds a rueidis client from environment configuration.
package redis

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/redis/rueidis"
	"go.uber.org/zap"

	applog "github.com/janisto/profile-api/internal/platform/logging"
)

// Config contains client settings. Fields are parsed with a REDIS_ prefix.
//
// URL is a standard Redis URI, for example:
//
//   - Single:  redis://:password@localhost:6379/0
//   - TLS:     rediss://:password@my-redis.example.com:6379/0
//   - Cluster: redis://:password@host1:6379/0?addr=host2:6379&addr=host3:6379
type Config struct {
	URL        string `env:"URL"         envDefault:"redis://localhost:6379/0"`
	ClientName string `env:"CLIENT_NAME" envDefault:"profile-api"`

	// RequireTLS rejects plaintext redis:// URLs.
	RequireTLS bool `env:"REQUIRE_TLS"`

	DisableRetry     bool          `env:"DISABLE_RETRY"`
	ConnWriteTimeout time.Duration `env:"CONN_WRITE_TIMEOUT"`
	PingTimeout      time.Duration `env:"PING_TIMEOUT"       envDefault:"5s"`
}

// clientOption translates cfg into rueidis options without connecting.
func clientOption(cfg Config) (rueidis.ClientOption, error) {
	if cfg.URL == "" {
		return rueidis.ClientOption{}, errors.New("redis: URL must not be empty")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return rueidis.ClientOption{}, fmt.Errorf("redis: parse url: %w", err)
	}
	if cfg.RequireTLS && u.Scheme != "rediss" {
		return rueidis.ClientOption{}, errors.New("redis: RequireTLS=true but URL does not use rediss://")
	}

	opt, err := rueidis.ParseURL(cfg.URL)
	if err != nil {
		return rueidis.ClientOption{}, fmt.Errorf("redis: %w", err)
	}
	opt.ClientName = cfg.ClientName
	opt.DisableRetry = cfg.DisableRetry
	// Profiles are read through Lua scripts and plain GETs; no client-side cache.
	opt.DisableCache = true
	if cfg.ConnWriteTimeout > 0 {
		opt.ConnWriteTimeout = cfg.ConnWriteTimeout
	}
	return opt, nil
}

// NewClient connects and verifies the connection with a PING.
func NewClient(ctx context.Context, cfg Config) (rueidis.Client, error) {
	opt, err := clientOption(cfg)
	if err != nil {
		return nil, err
	}

	client, err := rueidis.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("redis: connect: %w", err)
	}

	timeout := cfg.PingTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Do(pingCtx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}

	applog.LogInfo(ctx, "redis connected",
		zap.String("mode", string(client.Mode())),
		zap.String("clientName", cfg.ClientName),
	)
	return client, nil
}
