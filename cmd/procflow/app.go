package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/ledgerdocs/procflow/audit"
	"github.com/ledgerdocs/procflow/backend"
	"github.com/ledgerdocs/procflow/docanalysis"
	"github.com/ledgerdocs/procflow/docanalysis/sidecar"
	"github.com/ledgerdocs/procflow/docanalysis/tagcache"
	"github.com/ledgerdocs/procflow/docanalysis/xinvoice"
	"github.com/ledgerdocs/procflow/docstore"
	"github.com/ledgerdocs/procflow/engine"
	"github.com/ledgerdocs/procflow/internal/config"
	"github.com/ledgerdocs/procflow/process"
	"github.com/ledgerdocs/procflow/tenant"
)

// app holds everything a command needs. It lives for a single command invocation.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	backend    backend.Backend
	engine     *engine.Engine
	store      *docstore.Store
	definition *process.Definition

	stopEviction   context.CancelFunc
	shutdownTraces func(context.Context) error
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	logger, err := newLogger(stderr, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	tp, shutdownTraces, err := setupTracing(ctx, cfg, stderr)
	if err != nil {
		return nil, err
	}

	b, err := openBackend(ctx, &cfg.Backend, logger)
	if err != nil {
		shutdownTraces(ctx)
		return nil, err
	}

	store := docstore.New(filepath.Join(cfg.DataDir, "store"))

	evictionCtx, stopEviction := context.WithCancel(context.Background())
	tags := tagcache.New(store, b.Metrics(), cfg.TagCache.TTL, cfg.TagCache.Capacity)
	go tags.StartEviction(evictionCtx)

	e := engine.New(b,
		engine.WithLogger(logger),
		engine.WithTracerProvider(tp),
		engine.WithAuditSink(audit.MultiSink{b, audit.NewLogSink(logger, slog.LevelDebug)}),
	)

	def := docanalysis.NewDefinition(docanalysis.Dependencies{
		Blobs:     store,
		Documents: store,
		Tags:      tags,
		Primary:   xinvoice.New(),
		Secondary: sidecar.New(store),
		Logger:    logger,
	})

	if err := e.Register(def); err != nil {
		stopEviction()
		b.Close()
		shutdownTraces(ctx)
		return nil, err
	}

	return &app{
		cfg:            cfg,
		logger:         logger,
		backend:        b,
		engine:         e,
		store:          store,
		definition:     def,
		stopEviction:   stopEviction,
		shutdownTraces: shutdownTraces,
	}, nil
}

// tenantContext attaches the configured tenant.
func (a *app) tenantContext(ctx context.Context) context.Context {
	return tenant.WithTenant(ctx, a.cfg.Tenant)
}

func (a *app) Close(ctx context.Context) error {
	a.stopEviction()

	return errors.Join(
		a.backend.Close(),
		a.shutdownTraces(ctx),
	)
}
