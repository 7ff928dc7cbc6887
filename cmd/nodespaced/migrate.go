package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/config"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply schema and checkpoint the database (idempotent; safe to run before serve)",
	RunE:  runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	log := zap.NewNop()
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx := context.Background()
	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	// storage.Open already applied the core schema; running it
	// here again is how a host confirms the database is reachable and
	// up to date without also starting a transport.
	if err := a.store.Checkpoint(ctx); err != nil {
		return fmt.Errorf("checkpoint: %w", err)
	}
	fmt.Println("schema applied, wal checkpointed:", cfg.StoragePath)
	return nil
}
