// Command kraken-autotrade runs the autonomous spot trading bot: it wires
// the exchange factory, strategy router, risk/accounting state, the trading
// engine's per-pair tick loops, the Telegram notification orchestrator, the
// cron-driven scheduler, and the diagnostics/WebSocket API server, then
// blocks until SIGINT/SIGTERM triggers an orderly shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"kraken-autotrade/config"
	"kraken-autotrade/internal/accounting"
	"kraken-autotrade/internal/api"
	"kraken-autotrade/internal/cache"
	"kraken-autotrade/internal/circuit"
	"kraken-autotrade/internal/database"
	"kraken-autotrade/internal/engine"
	"kraken-autotrade/internal/events"
	"kraken-autotrade/internal/exchange"
	"kraken-autotrade/internal/lock"
	"kraken-autotrade/internal/logging"
	"kraken-autotrade/internal/notify"
	"kraken-autotrade/internal/orders"
	"kraken-autotrade/internal/risk"
	"kraken-autotrade/internal/scheduling"
	vault "kraken-autotrade/internal/secrets"
	"kraken-autotrade/internal/strategy"
	"kraken-autotrade/internal/wsauth"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := logging.New(&logging.Config{
		Level:       cfg.LoggingConfig.Level,
		Output:      cfg.LoggingConfig.Output,
		JSONFormat:  cfg.LoggingConfig.JSONFormat,
		IncludeFile: cfg.LoggingConfig.IncludeFile,
		Component:   "main",
	})
	logger.Info("configuration loaded", "trading_venue", cfg.ExchangeConfig.TradingVenue, "dry_run", cfg.TradingConfig.DryRun)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewDB(database.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
		MaxConns: cfg.DatabaseConfig.MaxConns,
	})
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Pool.Close()

	if err := db.RunMigrations(context.Background()); err != nil {
		log.Fatalf("failed to run migrations: %v", err)
	}
	repo := database.NewRepository(db)
	logger.Info("database connected and migrated")

	// Redis backs the poller lock, the idempotent clientOrderId cache, and
	// the heartbeat's health readout. Engine and notify degrade gracefully
	// when it is disabled or unreachable.
	var cacheService *cache.CacheService
	if cfg.RedisConfig.Enabled {
		cacheService, err = cache.NewCacheService(cfg.RedisConfig)
		if err != nil {
			logger.Warn("failed to initialize redis cache service", "error", err.Error())
		} else {
			logger.Info("redis cache service initialized", "address", cfg.RedisConfig.Address, "healthy", cacheService.IsHealthy())
		}
	}

	// Exchange credentials are never read from env/config directly; they
	// come from Vault (falling back to an in-memory cache when disabled).
	vaultClient, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		log.Fatalf("failed to initialize vault client: %v", err)
	}

	factory, err := buildExchangeFactory(ctx, cfg, vaultClient, logger)
	if err != nil {
		log.Fatalf("failed to build exchange factory: %v", err)
	}

	markup := exchange.NewMarkupTracker()
	accountant := accounting.NewAccountant()

	eventBus := events.NewBus()

	breaker := circuit.NewBreaker(circuit.DefaultConfig(), eventBus)
	breaker.OnTrip(func(reason string) { logger.Warn("circuit breaker tripped", "reason", reason) })
	breaker.OnReset(func() { logger.Info("circuit breaker reset") })

	admission := risk.NewAdmission(risk.AdmissionConfig{
		MaxPairExposurePct:  cfg.RiskConfig.MaxPairExposurePct,
		MaxTotalExposurePct: cfg.RiskConfig.MaxTotalExposurePct,
		DailyLossLimitPct:   cfg.RiskConfig.DailyLossLimitPct,
		CooldownSec:         cfg.RiskConfig.CooldownSec,
	})
	positions := risk.NewManager(risk.Config{
		StopLossPct:         cfg.RiskConfig.StopLossPct,
		TakeProfitPct:       cfg.RiskConfig.TakeProfitPct,
		BEArmPct:            cfg.RiskConfig.BreakEvenArmPct,
		BELockPct:           cfg.RiskConfig.BreakEvenArmPct,
		TrailingStopEnabled: true,
		TrailingArmPct:      cfg.RiskConfig.TrailingActivatePct,
		TrailingDistancePct: cfg.RiskConfig.TrailingDistancePct,
	})

	// The idempotent clientOrderId claim lives in Redis when available; a
	// disabled/unreachable Redis degrades to an always-unclaimed store so
	// submission is never blocked, matching the cache service's own
	// fail-open posture.
	var submissionStore orders.SubmissionStore
	if cacheService != nil {
		submissionStore = cacheService
	} else {
		submissionStore = noopSubmissionStore{}
	}
	orderGen := orders.NewGenerator(submissionStore, zerologFor(cfg.LoggingConfig))

	router := strategy.NewRouter(strategy.Momentum{}, strategy.MeanReversion{}, strategy.NewScalping(), strategy.DefaultRegimeThresholds())
	strategyCfg := strategy.DefaultConfig()
	strategyCfg.VolatileConfidenceBoost = cfg.RouterConfig.VolatileConfidenceBoost
	strategyCfg.VolatilePositionSizeCut = cfg.RouterConfig.VolatilePositionSizeCut

	wsAuth, err := wsauth.NewManager(cfg.ServerConfig.WSAuthSecret, cfg.ServerConfig.WSAuthSecret, time.Duration(cfg.ServerConfig.WSTokenTTLMin)*time.Minute)
	if err != nil {
		log.Fatalf("failed to initialize ws auth manager: %v", err)
	}

	// The Telegram long-poll is single-poller: a Redis-backed advisory lock
	// ensures only one running instance of this bot answers getUpdates.
	var locker notify.Locker
	if cacheService != nil {
		locker = lock.NewRedisLock(cacheService.GetClient(), cfg.NotificationConfig.Telegram.EnvTag, cfg.NotificationConfig.Telegram.BotToken, 30*time.Second)
	} else {
		locker = noopLocker{}
	}

	orchestrator, err := notify.New(cfg.NotificationConfig, repo, locker, logger)
	if err != nil {
		log.Fatalf("failed to initialize notification orchestrator: %v", err)
	}
	publish := func(ctx context.Context, msg notify.Context) { orchestrator.Publish(ctx, msg) }

	tradingEngine := engine.New(engine.Deps{
		Config:      cfg.TradingConfig,
		RiskConfig:  cfg.RiskConfig,
		Factory:     factory,
		Router:      router,
		StrategyCfg: strategyCfg,
		Admission:   admission,
		Positions:   positions,
		Accountant:  accountant,
		Breaker:     breaker,
		OrderGen:    orderGen,
		Markup:      markup,
		Repo:        repo,
		Bus:         eventBus,
		Redis:       redisHealthOf(cacheService),
		Log:         logger,
		Publish:     publish,
	})
	orchestrator.SetStatusProvider(tradingEngine)

	server := api.NewServer(cfg.ServerConfig, repo, eventBus, wsAuth, tradingEngine, logger)

	scheduler := scheduling.New(logger)
	schedPublisher := scheduling.NewPublisher(publish)
	loc, err := time.LoadLocation(cfg.NotificationConfig.OperatorTimezone)
	if err != nil {
		logger.Warn("unknown operator timezone, defaulting to UTC", "timezone", cfg.NotificationConfig.OperatorTimezone)
		loc = time.UTC
	}

	if err := scheduler.AddJob("heartbeat", cfg.SchedulingConfig.HeartbeatCron, scheduling.NewHeartbeatJob(tradingEngine, schedPublisher)); err != nil {
		log.Fatalf("failed to register heartbeat job: %v", err)
	}
	if err := scheduler.AddJob("daily_report", cfg.SchedulingConfig.DailyReportCron, scheduling.NewDailyReportJob(tradingEngine, schedPublisher, loc)); err != nil {
		log.Fatalf("failed to register daily report job: %v", err)
	}
	if err := scheduler.AddJob("position_snapshot", cfg.SchedulingConfig.PositionSnapshotCron, scheduling.NewPositionSnapshotJob(tradingEngine, repo, loc)); err != nil {
		log.Fatalf("failed to register position snapshot job: %v", err)
	}
	if tradingVenue, err := factory.Trading(); err == nil {
		syncSrc := scheduling.SyncSource{Exchange: tradingVenue, Accountant: accountant, Repo: repo}
		if err := scheduler.AddJob("daily_sync", cfg.SchedulingConfig.DailySyncCron, scheduling.NewDailySyncJob(syncSrc, schedPublisher)); err != nil {
			log.Fatalf("failed to register daily sync job: %v", err)
		}
	}

	tradingEngine.Start(ctx)
	go orchestrator.Run(ctx)
	scheduler.Start()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("api server stopped", "error", err.Error())
		}
	}()

	logger.Info("kraken-autotrade started",
		"pairs", cfg.TradingConfig.Pairs,
		"dry_run", cfg.TradingConfig.DryRun,
		"trading_venue", cfg.ExchangeConfig.TradingVenue,
		"addr", fmt.Sprintf("%s:%d", cfg.ServerConfig.Host, cfg.ServerConfig.Port),
	)

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("error shutting down api server", "error", err.Error())
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping scheduler", "error", err.Error())
	}
	tradingEngine.Stop()
	if cacheService != nil {
		if err := cacheService.Close(); err != nil {
			logger.Warn("error closing cache service", "error", err.Error())
		}
	}

	logger.Info("shutdown complete")
}

// buildExchangeFactory registers Kraken (always, as the data exchange) and
// RevolutX, then selects the configured trading venue, per spec.md §4.1.
func buildExchangeFactory(ctx context.Context, cfg *config.Config, vaultClient *vault.Client, logger *logging.Logger) (*exchange.Factory, error) {
	factory := exchange.NewFactory("kraken")

	krakenLimiter := exchange.NewRateLimiter(float64(cfg.ExchangeConfig.RateLimitPerSec), cfg.ExchangeConfig.RateLimitPerSec*2)
	krakenKeys, err := vaultClient.GetAPIKey(ctx, "kraken", cfg.ExchangeConfig.Sandbox)
	if err != nil {
		logger.Warn("no kraken credentials in vault, registering with empty keys (public endpoints only)", "error", err.Error())
		krakenKeys = &vault.APIKeyData{}
	}
	kraken, err := exchange.NewKraken(krakenKeys.APIKey, krakenKeys.SecretKey, cfg.ExchangeConfig.KrakenBaseURL, krakenLimiter, logger)
	if err != nil {
		return nil, fmt.Errorf("build kraken client: %w", err)
	}
	factory.Register(kraken)

	revolutXLimiter := exchange.NewRateLimiter(float64(cfg.ExchangeConfig.RateLimitPerSec), cfg.ExchangeConfig.RateLimitPerSec*2)
	revolutXKeys, err := vaultClient.GetAPIKey(ctx, "revolutx", cfg.ExchangeConfig.Sandbox)
	if err != nil {
		logger.Warn("no revolutx credentials in vault, registering with empty keys", "error", err.Error())
		revolutXKeys = &vault.APIKeyData{}
	}
	revolutX := exchange.NewRevolutX(revolutXKeys.APIKey, revolutXKeys.SecretKey, cfg.ExchangeConfig.RevolutXBaseURL, revolutXLimiter)
	factory.Register(revolutX)

	if err := factory.SetTradingExchange(cfg.ExchangeConfig.TradingVenue); err != nil {
		return nil, fmt.Errorf("select trading venue %q: %w", cfg.ExchangeConfig.TradingVenue, err)
	}
	return factory, nil
}

func redisHealthOf(cs *cache.CacheService) engine.RedisHealth {
	if cs == nil {
		return nil
	}
	return cs
}

// zerologFor builds the zerolog.Logger handed to internal/orders, mapping
// the bot's own LoggingConfig.Level so the two logging paths stay in sync.
func zerologFor(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	if cfg.JSONFormat {
		return zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}

// noopSubmissionStore is used when Redis is disabled: every clientOrderId
// claim succeeds, matching the fail-open posture the cache service itself
// takes when it loses connectivity mid-run.
type noopSubmissionStore struct{}

func (noopSubmissionStore) Claim(ctx context.Context, clientOrderID string, ttl time.Duration) (bool, error) {
	return true, nil
}
func (noopSubmissionStore) IsHealthy() bool { return false }

// noopLocker is used when Redis is disabled: this instance always holds the
// (uncontested) Telegram poller role.
type noopLocker struct{}

func (noopLocker) Acquire(ctx context.Context) (bool, error) { return true, nil }
func (noopLocker) Renew(ctx context.Context) error           { return nil }
func (noopLocker) Release(ctx context.Context) error         { return nil }
