package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/danmuck/ocppctl/internal/chargepoint"
	"github.com/danmuck/ocppctl/internal/config"
	"github.com/danmuck/ocppctl/internal/observability"
)

var defaultPaths = map[string]string{
	"centralsystem": "cmd/centralsystem/config.toml",
	"fleet":         "cmd/chargepoint/fleet.toml",
}

func main() {
	kind := flag.String("kind", "centralsystem", "config kind: centralsystem|fleet")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	observability.InitLogger("configgen")

	if _, ok := defaultPaths[*kind]; !ok {
		log.Error().Str("kind", *kind).Msg("configgen unknown config kind")
		os.Exit(2)
	}

	if *validate {
		path := pick(*input, *kind)
		summary, err := check(*kind, path)
		if err != nil {
			log.Error().Err(err).Str("path", path).Msg("configgen validation failed")
			os.Exit(1)
		}
		log.Info().Str("kind", *kind).Str("path", path).Msg("configgen validated " + summary)
		return
	}

	target := pick(*output, *kind)
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Error().Err(err).Str("path", target).Msg("configgen write failed")
		os.Exit(1)
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("configgen wrote template")
}

func pick(path, kind string) string {
	if path != "" {
		return path
	}
	return defaultPaths[kind]
}

// check loads path and converts it the way the daemons will, so a file
// that passes here also starts.
func check(kind, path string) (string, error) {
	switch kind {
	case "centralsystem":
		cfg, err := config.LoadCentralSystemConfig(path)
		if err != nil {
			return "", err
		}
		svc, err := config.CentralSystemService(cfg)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("central system %s (%d versions)", svc.Server.ID, len(svc.Server.Versions)), nil
	case "fleet":
		fleet, err := config.LoadFleetConfig(path)
		if err != nil {
			return "", err
		}
		stations, err := config.FleetStations(fleet, chargepoint.DefaultConfig())
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("fleet of %d stations", len(stations)), nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}
