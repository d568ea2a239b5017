package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates every per-concern configuration struct for the bot.
// It is assembled by Load: an optional config.json base merged with
// environment-variable overrides, which always take precedence.
type Config struct {
	ExchangeConfig     ExchangeConfig     `json:"exchange"`
	TradingConfig      TradingConfig      `json:"trading"`
	RiskConfig         RiskConfig         `json:"risk"`
	RouterConfig       RouterConfig       `json:"router"`
	AccountingConfig   AccountingConfig   `json:"accounting"`
	NotificationConfig NotificationConfig `json:"notification"`
	SchedulingConfig   SchedulingConfig   `json:"scheduling"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	ServerConfig       ServerConfig       `json:"server"`
	VaultConfig        VaultConfig        `json:"vault"`
	RedisConfig        RedisConfig        `json:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
}

// ExchangeConfig holds per-venue connection settings. API keys are never
// read from config/env in production — they come from Vault (internal/secrets);
// the fields here only carry non-credential routing/behavior knobs, mirroring
// the teacher's own "credentials are per-user, never from environment" stance.
type ExchangeConfig struct {
	TradingVenue   string `json:"trading_venue"`    // "kraken" or "revolutx"
	DataVenue      string `json:"data_venue"`        // always "kraken" per spec.md
	KrakenBaseURL  string `json:"kraken_base_url"`
	RevolutXBaseURL string `json:"revolutx_base_url"`
	Sandbox        bool   `json:"sandbox"`
	RequestTimeoutSec int `json:"request_timeout_sec"`
	RateLimitPerSec   int `json:"rate_limit_per_sec"`
}

// TradingConfig holds top-level trading behavior toggles.
type TradingConfig struct {
	Pairs             []string `json:"pairs"`
	DryRun            bool     `json:"dry_run"`
	TickIntervalSec   int      `json:"tick_interval_sec"`
	ScanConcurrency   int      `json:"scan_concurrency"`
	QuoteCurrency     string   `json:"quote_currency"`
	BasePositionSizeQuote float64 `json:"base_position_size_quote"`
}

// RiskConfig mirrors internal/risk.AdmissionConfig plus exit-state defaults;
// main.go translates these into risk.AdmissionConfig/risk.Config at startup.
type RiskConfig struct {
	MaxPairExposurePct  float64 `json:"max_pair_exposure_pct"`
	MaxTotalExposurePct float64 `json:"max_total_exposure_pct"`
	DailyLossLimitPct   float64 `json:"daily_loss_limit_pct"`
	CooldownSec         int     `json:"cooldown_sec"`
	StopLossPct         float64 `json:"stop_loss_pct"`
	BreakEvenArmPct     float64 `json:"break_even_arm_pct"`
	TrailingActivatePct float64 `json:"trailing_activate_pct"`
	TrailingDistancePct float64 `json:"trailing_distance_pct"`
	TakeProfitPct       float64 `json:"take_profit_pct"`
}

// RouterConfig exposes the strategy router's regime-dependent knobs.
// VolatileConfidenceBoost/VolatilePositionSizeCut resolve spec.md §9 Open
// Question 1: thresholds for VOLATILE-regime strategy selection are
// configurable, not hardcoded.
type RouterConfig struct {
	VolatileConfidenceBoost  float64 `json:"volatile_confidence_boost"`
	VolatilePositionSizeCut  float64 `json:"volatile_position_size_cut"`
	MinConfluence            int     `json:"min_confluence"`
}

// AccountingConfig controls the FIFO lot accountant. ValuationOfIncomeEvents
// gates synthetic BUY-lot creation for staking/lending income (spec.md §9
// Open Question 3) since upstream valuation rules for these are incomplete.
type AccountingConfig struct {
	ValuationOfIncomeEvents bool   `json:"valuation_of_income_events"`
	BaseCurrency            string `json:"base_currency"`
}

// NotificationConfig configures the Telegram notification orchestrator.
type NotificationConfig struct {
	Enabled          bool   `json:"enabled"`
	Telegram         TelegramConfig `json:"telegram"`
	DailyReportHour  int    `json:"daily_report_hour"`   // 0-23, operator timezone
	OperatorTimezone string `json:"operator_timezone"`   // IANA tz name, e.g. "Europe/Madrid"
	HeartbeatEveryHr int    `json:"heartbeat_every_hr"`
}

type TelegramConfig struct {
	Enabled     bool   `json:"enabled"`
	BotToken    string `json:"bot_token"`
	AdminChatID int64  `json:"admin_chat_id"`
	EnvTag      string `json:"env_tag"` // distinguishes poller-lock identity across deployments
}

// SchedulingConfig configures the robfig/cron jobs (heartbeat, daily report,
// daily FIFO sync, daily position snapshot).
type SchedulingConfig struct {
	DailyReportCron      string `json:"daily_report_cron"`      // cron expr, default "0 14 * * *"
	DailySyncCron        string `json:"daily_sync_cron"`        // default "0 8 * * *"
	HeartbeatCron        string `json:"heartbeat_cron"`         // default "0 */12 * * *"
	PositionSnapshotCron string `json:"position_snapshot_cron"` // default "55 23 * * *"
}

type LoggingConfig struct {
	Level       string `json:"level"`        // DEBUG, INFO, WARN, ERROR
	Output      string `json:"output"`        // stdout, stderr, or file path
	JSONFormat  bool   `json:"json_format"`   // Output as JSON
	IncludeFile bool   `json:"include_file"`  // Include file and line number
}

// ServerConfig holds the internal/api HTTP+WS surface (healthz, diagnostics,
// ws/events only — no dashboard rendering).
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
	WSAuthSecret    string `json:"ws_auth_secret"` // bcrypt-hashed admin secret source, env-only in practice
	WSTokenTTLMin   int    `json:"ws_token_ttl_min"`
}

// VaultConfig holds HashiCorp Vault configuration for exchange credential storage.
type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
	TLSEnabled bool   `json:"tls_enabled"`
	CACert     string `json:"ca_cert"`
}

// RedisConfig backs internal/lock (single-poller advisory lock) and the
// idempotent clientOrderId cache.
type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// DatabaseConfig holds Postgres connection settings for internal/database.
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
	MaxConns int32  `json:"max_conns"`
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
// Note: exchange API keys are NOT read from the environment here — they are
// resolved per-venue from Vault via internal/secrets at startup.
func applyEnvOverrides(cfg *Config) {
	// Exchange config
	cfg.ExchangeConfig.TradingVenue = getEnvOrDefault("TRADING_VENUE", orDefault(cfg.ExchangeConfig.TradingVenue, "kraken"))
	cfg.ExchangeConfig.DataVenue = "kraken" // spec.md: data exchange is always Kraken
	cfg.ExchangeConfig.KrakenBaseURL = getEnvOrDefault("KRAKEN_BASE_URL", orDefault(cfg.ExchangeConfig.KrakenBaseURL, "https://api.kraken.com"))
	cfg.ExchangeConfig.RevolutXBaseURL = getEnvOrDefault("REVOLUTX_BASE_URL", orDefault(cfg.ExchangeConfig.RevolutXBaseURL, "https://api.revolutx.com"))
	cfg.ExchangeConfig.Sandbox = getEnvOrDefault("EXCHANGE_SANDBOX", "false") == "true"
	cfg.ExchangeConfig.RequestTimeoutSec = getEnvIntOrDefault("EXCHANGE_REQUEST_TIMEOUT_SEC", 10)
	cfg.ExchangeConfig.RateLimitPerSec = getEnvIntOrDefault("EXCHANGE_RATE_LIMIT_PER_SEC", 1)

	// Trading config
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "false") == "true"
	cfg.TradingConfig.TickIntervalSec = getEnvIntOrDefault("TRADING_TICK_INTERVAL_SEC", 30)
	cfg.TradingConfig.ScanConcurrency = getEnvIntOrDefault("TRADING_SCAN_CONCURRENCY", 4)
	cfg.TradingConfig.QuoteCurrency = getEnvOrDefault("TRADING_QUOTE_CURRENCY", orDefault(cfg.TradingConfig.QuoteCurrency, "EUR"))
	cfg.TradingConfig.BasePositionSizeQuote = getEnvFloatOrDefault("TRADING_BASE_POSITION_SIZE_QUOTE", 100.0)
	if len(cfg.TradingConfig.Pairs) == 0 {
		cfg.TradingConfig.Pairs = splitCSV(getEnvOrDefault("TRADING_PAIRS", "BTC/EUR,ETH/EUR"))
	}

	// Risk config
	cfg.RiskConfig.MaxPairExposurePct = getEnvFloatOrDefault("RISK_MAX_PAIR_EXPOSURE_PCT", 10.0)
	cfg.RiskConfig.MaxTotalExposurePct = getEnvFloatOrDefault("RISK_MAX_TOTAL_EXPOSURE_PCT", 40.0)
	cfg.RiskConfig.DailyLossLimitPct = getEnvFloatOrDefault("RISK_DAILY_LOSS_LIMIT_PCT", 5.0)
	cfg.RiskConfig.CooldownSec = getEnvIntOrDefault("RISK_COOLDOWN_SEC", 300)
	cfg.RiskConfig.StopLossPct = getEnvFloatOrDefault("RISK_STOP_LOSS_PCT", 2.0)
	cfg.RiskConfig.BreakEvenArmPct = getEnvFloatOrDefault("RISK_BREAK_EVEN_ARM_PCT", 1.0)
	cfg.RiskConfig.TrailingActivatePct = getEnvFloatOrDefault("RISK_TRAILING_ACTIVATE_PCT", 1.5)
	cfg.RiskConfig.TrailingDistancePct = getEnvFloatOrDefault("RISK_TRAILING_DISTANCE_PCT", 0.8)
	cfg.RiskConfig.TakeProfitPct = getEnvFloatOrDefault("RISK_TAKE_PROFIT_PCT", 3.0)

	// Router config (spec.md §9 Open Question 1)
	cfg.RouterConfig.VolatileConfidenceBoost = getEnvFloatOrDefault("ROUTER_VOLATILE_CONFIDENCE_BOOST", 10)
	cfg.RouterConfig.VolatilePositionSizeCut = getEnvFloatOrDefault("ROUTER_VOLATILE_POSITION_SIZE_CUT", 0.5)
	cfg.RouterConfig.MinConfluence = getEnvIntOrDefault("ROUTER_MIN_CONFLUENCE", 2)

	// Accounting config (spec.md §9 Open Question 3)
	cfg.AccountingConfig.ValuationOfIncomeEvents = getEnvOrDefault("ACCOUNTING_VALUATION_OF_INCOME_EVENTS", "false") == "true"
	cfg.AccountingConfig.BaseCurrency = getEnvOrDefault("ACCOUNTING_BASE_CURRENCY", orDefault(cfg.AccountingConfig.BaseCurrency, "EUR"))

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "true") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.AdminChatID = int64(getEnvIntOrDefault("TELEGRAM_ADMIN_CHAT_ID", int(cfg.NotificationConfig.Telegram.AdminChatID)))
	cfg.NotificationConfig.Telegram.EnvTag = getEnvOrDefault("TELEGRAM_ENV_TAG", orDefault(cfg.NotificationConfig.Telegram.EnvTag, "prod"))
	cfg.NotificationConfig.DailyReportHour = getEnvIntOrDefault("NOTIFICATION_DAILY_REPORT_HOUR", 14)
	cfg.NotificationConfig.OperatorTimezone = getEnvOrDefault("NOTIFICATION_OPERATOR_TIMEZONE", orDefault(cfg.NotificationConfig.OperatorTimezone, "Europe/Madrid"))
	cfg.NotificationConfig.HeartbeatEveryHr = getEnvIntOrDefault("NOTIFICATION_HEARTBEAT_EVERY_HR", 12)

	// Scheduling config
	cfg.SchedulingConfig.DailyReportCron = getEnvOrDefault("SCHEDULING_DAILY_REPORT_CRON", orDefault(cfg.SchedulingConfig.DailyReportCron, "0 14 * * *"))
	cfg.SchedulingConfig.DailySyncCron = getEnvOrDefault("SCHEDULING_DAILY_SYNC_CRON", orDefault(cfg.SchedulingConfig.DailySyncCron, "0 8 * * *"))
	cfg.SchedulingConfig.HeartbeatCron = getEnvOrDefault("SCHEDULING_HEARTBEAT_CRON", orDefault(cfg.SchedulingConfig.HeartbeatCron, "0 */12 * * *"))
	cfg.SchedulingConfig.PositionSnapshotCron = getEnvOrDefault("SCHEDULING_POSITION_SNAPSHOT_CRON", orDefault(cfg.SchedulingConfig.PositionSnapshotCron, "55 23 * * *"))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
	cfg.LoggingConfig.IncludeFile = getEnvOrDefault("LOG_INCLUDE_FILE", "false") == "true"

	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)
	cfg.ServerConfig.WSAuthSecret = getEnvOrDefault("WS_AUTH_SECRET", cfg.ServerConfig.WSAuthSecret)
	cfg.ServerConfig.WSTokenTTLMin = getEnvIntOrDefault("WS_TOKEN_TTL_MIN", 60)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "kraken-autotrade/api-keys")
	cfg.VaultConfig.TLSEnabled = getEnvOrDefault("VAULT_TLS_ENABLED", "false") == "true"

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", orDefault(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", 10)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", orDefault(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", orDefault(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", orDefault(cfg.DatabaseConfig.Database, "kraken_autotrade"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	cfg.DatabaseConfig.MaxConns = int32(getEnvIntOrDefault("DB_MAX_CONNS", 10))
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func orDefault(value, defaultValue string) string {
	if value != "" {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// GenerateSampleConfig creates a sample configuration file.
func GenerateSampleConfig(filename string) error {
	cfg := Config{
		ExchangeConfig: ExchangeConfig{
			TradingVenue:      "kraken",
			DataVenue:         "kraken",
			KrakenBaseURL:     "https://api.kraken.com",
			RevolutXBaseURL:   "https://api.revolutx.com",
			Sandbox:           true,
			RequestTimeoutSec: 10,
			RateLimitPerSec:   1,
		},
		TradingConfig: TradingConfig{
			Pairs:                 []string{"BTC/EUR", "ETH/EUR"},
			DryRun:                true,
			TickIntervalSec:       30,
			ScanConcurrency:       4,
			QuoteCurrency:         "EUR",
			BasePositionSizeQuote: 100.0,
		},
		RiskConfig: RiskConfig{
			MaxPairExposurePct:  10.0,
			MaxTotalExposurePct: 40.0,
			DailyLossLimitPct:   5.0,
			CooldownSec:         300,
			StopLossPct:         2.0,
			BreakEvenArmPct:     1.0,
			TrailingActivatePct: 1.5,
			TrailingDistancePct: 0.8,
			TakeProfitPct:       3.0,
		},
		RouterConfig: RouterConfig{
			VolatileConfidenceBoost: 10,
			VolatilePositionSizeCut: 0.5,
			MinConfluence:           2,
		},
		AccountingConfig: AccountingConfig{
			ValuationOfIncomeEvents: false,
			BaseCurrency:            "EUR",
		},
		NotificationConfig: NotificationConfig{
			Enabled: false,
			Telegram: TelegramConfig{
				Enabled: false,
			},
			DailyReportHour:  14,
			OperatorTimezone: "Europe/Madrid",
			HeartbeatEveryHr: 12,
		},
		LoggingConfig: LoggingConfig{
			Level:       "INFO",
			Output:      "stdout",
			JSONFormat:  true,
			IncludeFile: false,
		},
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
