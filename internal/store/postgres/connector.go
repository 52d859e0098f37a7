// Package postgres implements the Persistent Store on PostgreSQL: a
// thin connector plus one file per logical map, all against plain
// database/sql + github.com/lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"factory/internal/store"
)

// Config contains the PostgreSQL connection configuration.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// queryer is satisfied by both *sql.DB and *sql.Tx, letting every method
// in this package run unmodified whether or not it's inside WithTx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store implements store.Store against PostgreSQL.
type Store struct {
	db     *sql.DB
	q      queryer
	tx     *sql.Tx
	logger *logrus.Logger
}

// New opens a connection pool and initializes the schema.
func New(cfg *Config, logger *logrus.Logger) (*Store, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL")

	s := &Store{db: db, logger: logger}
	s.q = db

	if err := s.initSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS accounts (
		owner VARCHAR(255) PRIMARY KEY,
		balance BIGINT NOT NULL DEFAULT 0 CHECK (balance >= 0),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS transaction_records (
		id BIGSERIAL PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		kind VARCHAR(20) NOT NULL,
		amount BIGINT NOT NULL,
		deployment_id VARCHAR(64),
		memo VARCHAR(255),
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_refund_dedup
		ON transaction_records(deployment_id)
		WHERE kind = 'refund';

	CREATE UNIQUE INDEX IF NOT EXISTS idx_tx_fee_dedup
		ON transaction_records(deployment_id)
		WHERE kind = 'fee';

	CREATE INDEX IF NOT EXISTS idx_tx_owner ON transaction_records(owner, created_at DESC);

	CREATE TABLE IF NOT EXISTS deployment_records (
		id VARCHAR(64) PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		status VARCHAR(32) NOT NULL,
		fee_charged BIGINT NOT NULL DEFAULT 0,
		container_id VARCHAR(64),
		container_create_attempted BOOLEAN NOT NULL DEFAULT FALSE,
		config_blob JSONB,
		install_attempts INT NOT NULL DEFAULT 0,
		refund_attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_update_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_owner ON deployment_records(owner);
	CREATE INDEX IF NOT EXISTS idx_deployments_status ON deployment_records(status);
	CREATE INDEX IF NOT EXISTS idx_deployments_last_update ON deployment_records(last_update_time);

	CREATE TABLE IF NOT EXISTS deployment_records_archive (
		LIKE deployment_records INCLUDING DEFAULTS,
		archived_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS strategy_metadata (
		container_id VARCHAR(64) PRIMARY KEY,
		owner VARCHAR(255) NOT NULL,
		kind VARCHAR(32) NOT NULL,
		deployment_id VARCHAR(64) NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_strategies_owner ON strategy_metadata(owner);

	CREATE TABLE IF NOT EXISTS code_images (
		kind VARCHAR(32) PRIMARY KEY,
		version_tag VARCHAR(64) NOT NULL,
		object_key VARCHAR(255) NOT NULL,
		size_bytes BIGINT NOT NULL,
		checksum VARCHAR(128) NOT NULL,
		uploaded_by VARCHAR(255) NOT NULL,
		uploaded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS admin_set (
		owner VARCHAR(255) PRIMARY KEY,
		added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS factory_settings (
		id SMALLINT PRIMARY KEY DEFAULT 1,
		deployment_fee BIGINT NOT NULL DEFAULT 0,
		tick_cursor BIGINT NOT NULL DEFAULT 0,
		CHECK (id = 1)
	);

	INSERT INTO factory_settings (id, deployment_fee, tick_cursor)
	VALUES (1, 0, 0)
	ON CONFLICT (id) DO NOTHING;
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	s.logger.Info("Database schema initialized")
	return nil
}

// WithTx runs fn against a transactional view of the store. Account
// mutations that must be atomic with a transaction-record insert (C5's
// debit_fee/credit_refund) use this instead of two independent calls.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &Store{db: s.db, q: sqlTx, tx: sqlTx, logger: s.logger}

	if err := fn(txStore); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			s.logger.Errorf("rollback failed: %v", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Tx exposes the underlying *sql.Tx, nil outside WithTx.
func (s *Store) Tx() *sql.Tx { return s.tx }

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		s.logger.Info("Closing database connection")
		return s.db.Close()
	}
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
