package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/danmuck/ocppctl/internal/chargepoint"
	"github.com/danmuck/ocppctl/internal/observability"
)

func main() {
	path := flag.String("config", "cmd/chargepoint/config.toml", "charge point config path")
	flag.Parse()

	logger := observability.InitLogger("chargepoint")

	stations := []chargepoint.Config{chargepoint.DefaultConfig()}
	if _, err := os.Stat(*path); err == nil {
		loaded, err := loadStationConfigs(*path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chargepoint: %v\n", err)
			os.Exit(1)
		}
		stations = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "chargepoint: %v\n", err)
		os.Exit(1)
	} else {
		logger.Warn().Str("path", *path).Msg("config not found, using defaults")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, stations); err != nil {
		fmt.Fprintf(os.Stderr, "chargepoint: %v\n", err)
		os.Exit(1)
	}
}

// run drives every station until ctx ends or one of them fails.
func run(ctx context.Context, stations []chargepoint.Config) error {
	clients := make([]*chargepoint.Client, 0, len(stations))
	states := make([]*chargepoint.Station, 0, len(stations))
	for _, cfg := range stations {
		st := chargepoint.NewStation()
		client, err := chargepoint.NewClient(cfg, st.Profiles())
		if err != nil {
			return fmt.Errorf("station %s: %w", cfg.ID, err)
		}
		clients = append(clients, client)
		states = append(states, st)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, client := range clients {
		st := states[i]
		id := stations[i].ID
		g.Go(func() error {
			if err := client.Run(ctx, st); err != nil {
				return fmt.Errorf("station %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}
