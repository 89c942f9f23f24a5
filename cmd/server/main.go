package main

import (
	"context"
	"database/sql"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	boltdb "github.com/boltdb/bolt"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	tb "gopkg.in/tucnak/telebot.v2"

	"relay-gate/internal/bot"
	"relay-gate/internal/cache"
	"relay-gate/internal/config"
	"relay-gate/internal/db"
	"relay-gate/internal/db/bolt"
	healthhandler "relay-gate/internal/health/handler"
	"relay-gate/internal/logging"
	"relay-gate/internal/notify"
	settingsdomain "relay-gate/internal/settings/domain"
	settingsrepo "relay-gate/internal/settings/repository"
	settingsservice "relay-gate/internal/settings/service"
	"relay-gate/internal/telemetry"
	telemetryotel "relay-gate/internal/telemetry/otel"
	"relay-gate/internal/telemetry/producer"
	"relay-gate/internal/tguard"
	"relay-gate/internal/verification/challenge"
	"relay-gate/internal/verification/domain"
	"relay-gate/internal/verification/service"
	verifiedrepo "relay-gate/internal/verified/repository"
)

const serviceName = "relay-gate"

// stores groups the durable repositories for the configured driver.
type stores struct {
	verified verifiedrepo.Repository
	settings settingsrepo.Repository
	pinger   healthhandler.Pinger
	close    func() error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("config")
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if err != nil {
		fallback := zerolog.New(os.Stderr)
		fallback.Fatal().Err(err).Msg("logging")
	}
	logger = logger.With().Str("service", serviceName).Logger()
	if cfg.BotToken == "" {
		logger.Fatal().Msg("BOT_TOKEN is required")
	}

	ctx := context.Background()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("open store")
	}
	defer st.close()

	store, cachePinger, closeCache, err := openCache(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.CacheDriver).Msg("open cache")
	}
	defer closeCache()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Options{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("otel")
	}
	providers.SetGlobal()

	emitters := telemetry.Fanout{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	kafkaProducer := producer.NewKafkaProducer(cfg.TelemetryKafkaBrokersList(), cfg.TelemetryKafkaTopic)
	if kafkaProducer != nil {
		emitters = append(emitters, kafkaProducer)
		logger.Info().Strs("brokers", cfg.TelemetryKafkaBrokersList()).Str("topic", cfg.TelemetryKafkaTopic).Msg("kafka telemetry enabled")
	}

	botLog := logging.Component(logger, "bot")
	tbBot, err := tb.NewBot(tb.Settings{
		Token:  cfg.BotToken,
		Poller: &tb.LongPoller{Timeout: 15 * time.Second},
		Reporter: func(err error) {
			botLog.Warn().Err(err).Msg("telegram update failed")
		},
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram bot")
	}

	defaultMode, err := domain.ParseMode(cfg.DefaultCaptcha)
	if err != nil {
		logger.Fatal().Err(err).Msg("DEFAULT_CAPTCHA")
	}
	notifier := notify.NewTelegramNotifier(tbBot, cfg.OperatorChatID, logging.Component(logger, "notify"))
	presenter := notify.NewTelegramPresenter(tbBot)
	settings := settingsservice.NewService(store, st.settings, defaultMode, logging.Component(logger, "settings"))
	client := tguard.NewClient(cfg.CreateTimeout(), cfg.PollTimeout(), logging.Component(logger, "tguard"))
	generator := challenge.NewGenerator(store, settings, client, presenter, notifier, nil, logging.Component(logger, "challenge"))
	coordinator := service.NewCoordinator(store, st.verified, settings, generator, client, presenter, notifier, logging.Component(logger, "verification")).
		WithTelemetry(emitters, providers.Meter())

	relay := bot.New(tbBot, coordinator, settings, cfg.OperatorChatID, botLog)
	relay.Register()
	go tbBot.Start()
	logger.Info().Int64("operator_chat_id", cfg.OperatorChatID).Str("default_captcha", string(defaultMode)).Msg("relay started")

	var grpcServer *grpc.Server
	if cfg.HealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.HealthAddr)
		if err != nil {
			logger.Fatal().Err(err).Str("addr", cfg.HealthAddr).Msg("listen")
		}
		grpcServer = grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
		healthpb.RegisterHealthServer(grpcServer, healthhandler.NewServer(st.pinger, cachePinger, logging.Component(logger, "health")))
		go func() {
			logger.Info().Str("addr", cfg.HealthAddr).Msg("gRPC health server listening")
			if err := grpcServer.Serve(lis); err != nil {
				logger.Fatal().Err(err).Msg("serve")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")
	tbBot.Stop()
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if cfg.OTLPEndpoint != "" || kafkaProducer != nil {
		time.Sleep(telemetry.ShutdownDrainDuration)
	}
	if err := kafkaProducer.Close(); err != nil {
		logger.Warn().Err(err).Msg("kafka producer close")
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := providers.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("otel shutdown")
	}
	logger.Info().Msg("stopped")
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return postgresStores(conn), nil
	default:
		bdb, err := bolt.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		settings := settingsrepo.NewBoltRepository(bdb)
		for _, key := range []string{settingsdomain.KeyCaptcha, settingsdomain.KeyTGuardURL, settingsdomain.KeyTGuardKey} {
			if err := settings.Seed(ctx, key); err != nil {
				logger.Warn().Err(err).Str("key", key).Msg("settings seed failed")
			}
		}
		return boltStores(bdb, settings), nil
	}
}

func postgresStores(conn *sql.DB) *stores {
	return &stores{
		verified: verifiedrepo.NewPostgresRepository(conn),
		settings: settingsrepo.NewPostgresRepository(conn),
		pinger:   conn,
		close:    conn.Close,
	}
}

func boltStores(bdb *boltdb.DB, settings *settingsrepo.BoltRepository) *stores {
	return &stores{
		verified: verifiedrepo.NewBoltRepository(bdb),
		settings: settings,
		pinger:   bolt.Pinger{DB: bdb},
		close:    bdb.Close,
	}
}

// openCache returns the configured cache with its health pinger (nil for the in-process cache).
func openCache(ctx context.Context, cfg *config.Config) (cache.Store, healthhandler.Pinger, func() error, error) {
	if cfg.CacheDriver != config.CacheDriverRedis {
		return cache.NewMemoryStore(), nil, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, err
	}
	pinger := healthhandler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
	return cache.NewRedisStore(rdb, serviceName), pinger, rdb.Close, nil
}
