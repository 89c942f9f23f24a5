// migrate applies the embedded Postgres schema; use with go run ./cmd/migrate. The bolt store needs no migrations.
package main

import (
	"errors"
	"flag"
	"os"

	"github.com/rs/zerolog"

	"relay-gate/internal/config"
	"relay-gate/internal/db/migrate"
	"relay-gate/internal/logging"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("logging")
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		logger.Info().Str("driver", cfg.StoreDriver).Msg("nothing to migrate")
		return
	}

	if err := migrate.Run(cfg.DatabaseURL, *direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info().Str("direction", *direction).Msg("schema already current")
			return
		}
		logger.Fatal().Err(err).Str("direction", *direction).Msg("migrate")
	}
	logger.Info().Str("direction", *direction).Msg("migrations applied")
}
