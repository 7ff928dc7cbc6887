package main

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/config"
	"github.com/kittclouds/nodespace/internal/coordinator"
	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/mentions"
	"github.com/kittclouds/nodespace/internal/node"
	"github.com/kittclouds/nodespace/internal/ordering"
	"github.com/kittclouds/nodespace/internal/schema"
	"github.com/kittclouds/nodespace/internal/storage"
)

// app bundles the components in leaves-first construction order: storage,
// event bus, schema registry, node service, persistence coordinator.
type app struct {
	cfg    config.Config
	store  *storage.Store
	bus    *eventbus.Bus
	schema *schema.Registry
	svc    *node.Service
	coord  *coordinator.Coordinator
	log    *zap.Logger
}

func buildApp(ctx context.Context, cfg config.Config, log *zap.Logger) (*app, error) {
	store, err := storage.Open(ctx, storage.Options{
		Path:              cfg.StoragePath,
		BusyTimeoutMillis: int(cfg.BusyTimeout.Milliseconds()),
		MaxWriters:        int64(cfg.MaxWriters),
		Log:               log,
	})
	if err != nil {
		return nil, err
	}

	bus := eventbus.New(eventbus.WithHistoryCap(cfg.EventHistorySize))

	schemaDir := filepath.Join(filepath.Dir(schemaDirBase(cfg)), "schemas")
	schemas, err := schema.LoadDir(schemaDir)
	if err != nil {
		store.Close()
		return nil, err
	}
	registry := schema.NewRegistry(schemas)

	svc := node.NewService(store, bus,
		node.WithSchemas(registry),
		node.WithRetryPolicy(ordering.RetryPolicy{
			MaxAttempts: cfg.MaxRetryAttempts,
			BaseDelay:   cfg.RetryBaseDelay,
		}),
		node.WithLogger(log),
	)

	if ids, err := svc.AllNodeIDs(ctx); err == nil {
		svc.SetMentionIndex(mentions.NewIndex(ids))
	} else {
		log.Warn("could not build initial mention index", zap.Error(err))
	}

	coord := coordinator.New(svc, bus, coordinator.Config{
		DebounceWindow: cfg.DebounceWindow,
		BatchWindow:    cfg.BatchWindow,
		ShutdownGrace:  cfg.ShutdownGrace,
	}, log)

	return &app{cfg: cfg, store: store, bus: bus, schema: registry, svc: svc, coord: coord, log: log}, nil
}

// schemaDirBase anchors the schemas/ lookup next to the storage file so
// "nodespace.db" and "schemas/*.yaml" live side by side by default; an
// explicit StoragePath of ":memory:" falls back to the working directory.
func schemaDirBase(cfg config.Config) string {
	if cfg.StoragePath == ":memory:" || cfg.StoragePath == "" {
		return "."
	}
	return cfg.StoragePath
}

func (a *app) Close() {
	_ = a.store.Close()
}
