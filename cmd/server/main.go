package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ccns/internal/platform/config"
	"ccns/internal/platform/logger"
)

// main loads configuration and runs the node selected by CCNS_ROLE until
// SIGINT or SIGTERM. Protocol logic lives in the internal service packages.
func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("ccns stopped with error", "role", cfg.Role, "error", err)
		os.Exit(1)
	}
	log.Info("ccns stopped", "role", cfg.Role)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	log.InfoContext(ctx, "starting ccns", "role", cfg.Role)
	switch cfg.Role {
	case config.RoleLocal:
		return runLocal(ctx, cfg, log)
	case config.RoleSource:
		return runSource(ctx, cfg, log)
	case config.RoleDestination:
		return runDestination(ctx, cfg, log)
	default:
		return fmt.Errorf("unknown role %q", cfg.Role)
	}
}
