// Package postgres opens a pgx connection pool wrapped in a bob.DB.
package postgres

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/stephenafamo/bob"
)

// Config holds connection pool settings. Fields are parsed with a POSTGRES_ prefix.
type Config struct {
	// URL, when set, overrides the individual connection fields.
	URL             string        `env:"URL"`
	Host            string        `env:"HOST"              envDefault:"localhost"`
	Port            uint16        `env:"PORT"              envDefault:"5432"`
	User            string        `env:"USER"              envDefault:"postgres"`
	Password        string        `env:"PASSWORD"          envDefault:"postgres"`
	Database        string        `env:"DATABASE"          envDefault:"profiles"`
	SSLMode         string        `env:"SSLMODE"           envDefault:"disable"`
	PoolMaxConns    int           `env:"POOL_MAX_CONNS"    envDefault:"5"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT"   envDefault:"5s"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
}

// ConnString renders cfg as a postgres:// URL.
func (c Config) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   c.Host + ":" + strconv.Itoa(int(c.Port)),
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", c.SSLMode)
	q.Set("pool_max_conns", strconv.Itoa(c.PoolMaxConns))
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects a pool, verifies it with a ping and wraps it in a bob.DB.
// Closing the returned DB closes the pool.
func Open(ctx context.Context, cfg Config) (bob.DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return bob.DB{}, fmt.Errorf("parse postgres config: %w", err)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return bob.DB{}, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return bob.DB{}, fmt.Errorf("ping postgres: %w", err)
	}

	return bob.NewDB(stdlib.OpenDBFromPool(pool)), nil
}
