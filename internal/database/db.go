package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// Config holds database configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int32
}

// NewDB creates a new database connection
func NewDB(cfg Config) (*DB, error) {
	// Build connection string
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	// Parse connection string
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	// Create connection pool
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	log.Printf("Successfully connected to PostgreSQL database: %s", cfg.Database)

	return &DB{Pool: pool}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		log.Println("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	log.Println("Running database migrations...")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS trade_fills (
			id BIGSERIAL PRIMARY KEY,
			fill_id VARCHAR(100) NOT NULL UNIQUE,
			exchange VARCHAR(20) NOT NULL,
			pair VARCHAR(20) NOT NULL,
			asset VARCHAR(20) NOT NULL,
			side VARCHAR(4) NOT NULL,
			price_eur DECIMAL(24, 8) NOT NULL,
			quantity DECIMAL(24, 8) NOT NULL,
			fee_eur DECIMAL(24, 8) NOT NULL DEFAULT 0,
			client_order_id VARCHAR(100),
			executed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_fills_asset ON trade_fills(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_fills_executed_at ON trade_fills(executed_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_fills_exchange ON trade_fills(exchange)`,

		`CREATE TABLE IF NOT EXISTS lots (
			id BIGSERIAL PRIMARY KEY,
			lot_id VARCHAR(64) NOT NULL UNIQUE,
			asset VARCHAR(20) NOT NULL,
			exchange VARCHAR(20) NOT NULL,
			source VARCHAR(20) NOT NULL DEFAULT 'fill',
			acquired_at TIMESTAMP NOT NULL,
			quantity DECIMAL(24, 8) NOT NULL,
			remaining_qty DECIMAL(24, 8) NOT NULL,
			unit_cost_eur DECIMAL(24, 8) NOT NULL,
			cost_eur DECIMAL(24, 8) NOT NULL,
			fee_eur DECIMAL(24, 8) NOT NULL DEFAULT 0,
			is_closed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_lots_asset ON lots(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_lots_is_closed ON lots(is_closed)`,

		`CREATE TABLE IF NOT EXISTS disposals (
			id BIGSERIAL PRIMARY KEY,
			disposal_id VARCHAR(64) NOT NULL UNIQUE,
			sell_fill_id VARCHAR(100) NOT NULL,
			lot_id VARCHAR(64),
			asset VARCHAR(20) NOT NULL,
			quantity DECIMAL(24, 8) NOT NULL,
			proceeds_eur DECIMAL(24, 8) NOT NULL,
			cost_basis_eur DECIMAL(24, 8) NOT NULL,
			gain_loss_eur DECIMAL(24, 8) NOT NULL,
			is_warning BOOLEAN NOT NULL DEFAULT FALSE,
			disposed_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_disposals_asset ON disposals(asset)`,
		`CREATE INDEX IF NOT EXISTS idx_disposals_disposed_at ON disposals(disposed_at)`,

		`CREATE TABLE IF NOT EXISTS bot_events (
			id BIGSERIAL PRIMARY KEY,
			event_id VARCHAR(64) NOT NULL UNIQUE,
			level VARCHAR(10) NOT NULL,
			type VARCHAR(50) NOT NULL,
			pair VARCHAR(20),
			message TEXT NOT NULL,
			meta JSONB,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_events_timestamp ON bot_events(timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_bot_events_type ON bot_events(type)`,

		`CREATE TABLE IF NOT EXISTS bot_config (
			key VARCHAR(100) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS telegram_chats (
			chat_id BIGINT PRIMARY KEY,
			label VARCHAR(100),
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS fisco_alert_config (
			id BIGSERIAL PRIMARY KEY,
			tax_year INT NOT NULL UNIQUE,
			gain_threshold_eur DECIMAL(24, 2) NOT NULL DEFAULT 0,
			notify_on_threshold BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS fisco_sync_history (
			id BIGSERIAL PRIMARY KEY,
			sync_run_id VARCHAR(64) NOT NULL UNIQUE,
			exchange VARCHAR(20) NOT NULL,
			synced_from TIMESTAMP NOT NULL,
			synced_to TIMESTAMP NOT NULL,
			fills_fetched INT NOT NULL DEFAULT 0,
			lots_created INT NOT NULL DEFAULT 0,
			disposals_created INT NOT NULL DEFAULT 0,
			warnings INT NOT NULL DEFAULT 0,
			error TEXT,
			started_at TIMESTAMP NOT NULL,
			finished_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fisco_sync_history_exchange ON fisco_sync_history(exchange)`,

		`CREATE TABLE IF NOT EXISTS equity_snapshots (
			id BIGSERIAL PRIMARY KEY,
			total_equity_eur DECIMAL(24, 8) NOT NULL,
			total_exposure_eur DECIMAL(24, 8) NOT NULL,
			open_positions INT NOT NULL DEFAULT 0,
			realized_pnl_eur DECIMAL(24, 8) NOT NULL DEFAULT 0,
			timestamp TIMESTAMP NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_snapshots_timestamp ON equity_snapshots(timestamp DESC)`,

		`CREATE TABLE IF NOT EXISTS position_snapshots (
			id BIGSERIAL PRIMARY KEY,
			snapshot_date TIMESTAMP NOT NULL,
			pair VARCHAR(20) NOT NULL,
			exchange VARCHAR(20) NOT NULL,
			lot_id VARCHAR(64) NOT NULL,
			quantity DECIMAL(24, 8) NOT NULL,
			entry_price DECIMAL(24, 8) NOT NULL,
			mark_price DECIMAL(24, 8) NOT NULL,
			unrealized_pnl DECIMAL(24, 8) NOT NULL,
			exit_state VARCHAR(20) NOT NULL,
			stop_price DECIMAL(24, 8) NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (snapshot_date, pair, exchange, lot_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_position_snapshots_date ON position_snapshots(snapshot_date)`,
		`CREATE INDEX IF NOT EXISTS idx_position_snapshots_pair ON position_snapshots(pair)`,
	}

	// Execute migrations
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	log.Println("Database migrations completed successfully")
	return nil
}

// HealthCheck performs a database health check
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}
