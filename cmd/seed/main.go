// seed writes operator settings and pre-verified users straight into the durable store, for local
// testing. Idempotent. A running relay picks up changed settings once its cached copy expires.
package main

import (
	"context"
	"flag"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"relay-gate/internal/config"
	"relay-gate/internal/db"
	"relay-gate/internal/db/bolt"
	"relay-gate/internal/logging"
	settingsdomain "relay-gate/internal/settings/domain"
	settingsrepo "relay-gate/internal/settings/repository"
	"relay-gate/internal/verification/domain"
	verifiedrepo "relay-gate/internal/verified/repository"
)

func main() {
	captcha := flag.String("captcha", "", "Captcha mode to store: math, button or tguard")
	tguardURL := flag.String("tguard-url", "", "TGuard API base URL")
	tguardKey := flag.String("tguard-key", "", "TGuard API key")
	verify := flag.String("verify", "", "Comma-separated user ids to mark verified")
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

	var (
		settings settingsrepo.Repository
		verified verifiedrepo.Repository
	)
	ctx := context.Background()

	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db")
		}
		defer conn.Close()
		settings = settingsrepo.NewPostgresRepository(conn)
		verified = verifiedrepo.NewPostgresRepository(conn)
	default:
		bdb, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			logger.Fatal().Err(err).Msg("bolt")
		}
		defer bdb.Close()
		repo := settingsrepo.NewBoltRepository(bdb)
		for _, key := range []string{settingsdomain.KeyCaptcha, settingsdomain.KeyTGuardURL, settingsdomain.KeyTGuardKey} {
			if err := repo.Seed(ctx, key); err != nil {
				logger.Fatal().Err(err).Str("key", key).Msg("seed setting")
			}
		}
		settings = repo
		verified = verifiedrepo.NewBoltRepository(bdb)
	}

	if *captcha != "" {
		mode, err := domain.ParseMode(*captcha)
		if err != nil {
			logger.Fatal().Err(err).Msg("captcha")
		}
		*captcha = string(mode)
	}
	for key, value := range map[string]string{
		settingsdomain.KeyCaptcha:   *captcha,
		settingsdomain.KeyTGuardURL: *tguardURL,
		settingsdomain.KeyTGuardKey: *tguardKey,
	} {
		if value == "" {
			continue
		}
		if err := settings.Set(ctx, key, value); err != nil {
			logger.Fatal().Err(err).Str("key", key).Msg("set setting")
		}
		logger.Info().Str("key", key).Msg("setting stored")
	}

	for _, field := range strings.Split(*verify, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		userID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			logger.Fatal().Err(err).Str("user_id", field).Msg("invalid user id")
		}
		if err := verified.MarkVerified(ctx, userID); err != nil {
			logger.Fatal().Err(err).Int64("user_id", userID).Msg("mark verified")
		}
		logger.Info().Int64("user_id", userID).Msg("user verified")
	}

	n, err := verified.Count(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("count")
	}
	logger.Info().Int("verified_users", n).Msg("seed complete")
}
