package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/backend/memory"
	"github.com/ledgerdocs/procflow/backend/mysql"
	"github.com/ledgerdocs/procflow/backend/postgres"
	redisbackend "github.com/ledgerdocs/procflow/backend/redis"
	"github.com/ledgerdocs/procflow/backend/sqlite"
	"github.com/ledgerdocs/procflow/backend/sqlstore"
	"github.com/ledgerdocs/procflow/internal/config"
	"github.com/redis/go-redis/v9"
)

// waitReady pings until the backend answers or timeout expires.
func waitReady(ctx context.Context, logger *slog.Logger, timeout time.Duration, ping func(context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout

	return backoff.RetryNotify(
		func() error { return ping(ctx) },
		backoff.WithContext(b, ctx),
		func(err error, next time.Duration) {
			logger.Warn("Backend not ready", "error", err, "retry_in", next)
		},
	)
}

type migrator interface {
	backend.Backend
	DB() *sql.DB
	Migrate() error
}

// prepare waits for a SQL backend and applies its migrations. The backend is closed on failure.
func prepare(ctx context.Context, logger *slog.Logger, timeout time.Duration, b migrator) (backend.Backend, error) {
	if err := waitReady(ctx, logger, timeout, b.DB().PingContext); err != nil {
		b.Close()
		return nil, fmt.Errorf("waiting for backend: %w", err)
	}

	if err := b.Migrate(); err != nil {
		b.Close()
		return nil, fmt.Errorf("migrating backend: %w", err)
	}

	return b, nil
}

func openBackend(ctx context.Context, cfg *config.Backend, logger *slog.Logger) (backend.Backend, error) {
	bopts := []backend.BackendOption{backend.WithLogger(logger)}

	// Migrations run once the database answers
	sqlopts := []sqlstore.Option{sqlstore.WithApplyMigrations(false), sqlstore.WithBackendOptions(bopts...)}

	switch cfg.Type {
	case "memory":
		return memory.NewMemoryBackend(bopts...), nil

	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(cfg.SQLite.Path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		b, err := sqlite.NewSqliteBackend(cfg.SQLite.Path, sqlopts...)
		if err != nil {
			return nil, err
		}

		return prepare(ctx, logger, cfg.ReadyTimeout, b)

	case "mysql":
		db := cfg.MySQL
		b, err := mysql.NewMysqlBackend(db.Host, db.Port, db.User, db.Password, db.Name, sqlopts...)
		if err != nil {
			return nil, err
		}

		return prepare(ctx, logger, cfg.ReadyTimeout, b)

	case "postgres":
		db := cfg.Postgres
		b, err := postgres.NewPostgresBackend(db.Host, db.Port, db.User, db.Password, db.Name,
			append(sqlopts, sqlstore.WithParam("sslmode", db.SSLMode))...)
		if err != nil {
			return nil, err
		}

		return prepare(ctx, logger, cfg.ReadyTimeout, b)

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{cfg.Redis.Addr},
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
		if err := waitReady(ctx, logger, cfg.ReadyTimeout, ping); err != nil {
			client.Close()
			return nil, fmt.Errorf("waiting for redis: %w", err)
		}

		ropts := []redisbackend.Option{
			redisbackend.WithKeyPrefix(cfg.Redis.KeyPrefix),
			redisbackend.WithBackendOptions(bopts...),
		}
		if cfg.Redis.AutoExpiration > 0 {
			ropts = append(ropts, redisbackend.WithAutoExpiration(cfg.Redis.AutoExpiration))
		}

		b, err := redisbackend.NewRedisBackend(client, ropts...)
		if err != nil {
			client.Close()
			return nil, err
		}

		return b, nil
	}

	return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
}
