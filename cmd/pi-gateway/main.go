// Package main is the entry point for pi-gateway - a process that
// exposes a pool of AI agent CLI wrappers, PTY sessions, RPC agent
// sessions, background threads, and filesystem-protocol teams behind a
// single HTTP+WebSocket API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/pi-gateway/pi-gateway/internal/common/config"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/internal/gateway"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting pi-gateway",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("events_mode", cfg.Events.Mode),
	)

	srv, err := gateway.New(cfg)
	if err != nil {
		log.Fatal("failed to build gateway", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		log.Error("gateway server error", zap.Error(err))
		os.Exit(1)
	}

	log.Info("pi-gateway stopped")
}
