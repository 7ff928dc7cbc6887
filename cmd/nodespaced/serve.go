package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kittclouds/nodespace/internal/adapter"
	"github.com/kittclouds/nodespace/internal/adapter/httpadapter"
	"github.com/kittclouds/nodespace/internal/config"
	"github.com/kittclouds/nodespace/internal/mcp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the MCP stdio dispatcher, optionally alongside the HTTP dev-server adapter",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := buildApp(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.Close()

	var httpServer *http.Server
	if cfg.HTTPAddr != "" {
		direct := adapter.NewDirect(a.store, a.svc, a.bus, log)
		httpServer = &http.Server{Addr: cfg.HTTPAddr, Handler: httpadapter.NewServer(direct, log)}
		go func() {
			log.Info("http adapter listening", zap.String("addr", cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("http adapter stopped", zap.Error(err))
			}
		}()
	}

	mcpServer := mcp.New(a.svc, a.bus, log)
	done := make(chan error, 1)
	go func() { done <- mcpServer.Serve(os.Stdin, os.Stdout) }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-done:
		if err != nil {
			log.Error("mcp server exited", zap.Error(err))
		}
	}

	if httpServer != nil {
		_ = httpServer.Close()
	}
	report := a.coord.Shutdown(context.Background())
	log.Info("coordinator drained",
		zap.Int("pending_nodes", len(report.PendingNodes)),
		zap.Int("deferred_nodes", len(report.DeferredNodes)),
		zap.Bool("timed_out", report.TimedOut))
	return nil
}
