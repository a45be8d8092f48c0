package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/ocppctl/internal/centralsystem"
	"github.com/danmuck/ocppctl/internal/observability"
)

func main() {
	path := flag.String("config", "cmd/centralsystem/config.toml", "central system config path")
	flag.Parse()

	logger := observability.InitLogger("centralsystem")

	cfg := centralsystem.DefaultServiceConfig()
	if _, err := os.Stat(*path); err == nil {
		loaded, err := loadServiceConfig(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "centralsystem: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "centralsystem: %v\n", err)
		os.Exit(1)
	} else {
		logger.Warn().Str("path", *path).Msg("config not found, using defaults")
	}

	svc, err := centralsystem.NewService(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "centralsystem: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := svc.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "centralsystem: %v\n", err)
		os.Exit(1)
	}
}
