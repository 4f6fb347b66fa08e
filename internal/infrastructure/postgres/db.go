package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-storefront/internal/observability"

	_ "github.com/lib/pq"
)

const (
	DefaultMaxOpenConns    = 25
	DefaultMaxIdleConns    = 5
	DefaultConnMaxLifetime = 5 * time.Minute
	DefaultConnMaxIdleTime = 30 * time.Second

	pingTimeout = 5 * time.Second
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		DBName:          "storefront",
		SSLMode:         "disable",
		MaxOpenConns:    DefaultMaxOpenConns,
		MaxIdleConns:    DefaultMaxIdleConns,
		ConnMaxLifetime: DefaultConnMaxLifetime,
		ConnMaxIdleTime: DefaultConnMaxIdleTime,
	}
}

// DSN renders the key/value connection string lib/pq understands. It is
// also what the LISTEN connection dials.
func (c Config) DSN() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.DBName, c.SSLMode)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}

// Open connects, applies the pool settings and pings once.
func Open(ctx context.Context, cfg Config, logger observability.Logger) (*sql.DB, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}
	logger.Info("db_connecting",
		observability.F("host", cfg.Host),
		observability.F("port", cfg.Port),
		observability.F("database", cfg.DBName),
		observability.F("ssl_mode", cfg.SSLMode),
	)

	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	db.SetMaxOpenConns(positiveOr(cfg.MaxOpenConns, DefaultMaxOpenConns))
	db.SetMaxIdleConns(positiveOr(cfg.MaxIdleConns, DefaultMaxIdleConns))
	db.SetConnMaxLifetime(positiveOr(cfg.ConnMaxLifetime, DefaultConnMaxLifetime))
	db.SetConnMaxIdleTime(positiveOr(cfg.ConnMaxIdleTime, DefaultConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	logger.Info("db_connected", observability.F("database", cfg.DBName))
	return db, nil
}

func positiveOr[T int | time.Duration](v, def T) T {
	if v <= 0 {
		return def
	}
	return v
}

// Schema creates the tables the store reads and writes.
const Schema = `
CREATE TABLE IF NOT EXISTS finished_goods (
	id             TEXT PRIMARY KEY,
	recipe_name    TEXT NOT NULL,
	packaging_type TEXT NOT NULL,
	quantity       INTEGER NOT NULL DEFAULT 0,
	selling_price  NUMERIC(12,2) NOT NULL DEFAULT 0,
	image_url      TEXT NOT NULL DEFAULT '',
	is_public      BOOLEAN NOT NULL DEFAULT TRUE,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recipes (
	name  TEXT PRIMARY KEY,
	notes TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS orders (
	id               TEXT PRIMARY KEY,
	customer_name    TEXT NOT NULL,
	customer_phone   TEXT NOT NULL,
	customer_email   TEXT NOT NULL DEFAULT '',
	customer_address TEXT NOT NULL DEFAULT '',
	total            NUMERIC(12,2) NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS order_items (
	order_id       TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
	line_no        INTEGER NOT NULL,
	recipe_name    TEXT NOT NULL,
	packaging_type TEXT NOT NULL,
	quantity       INTEGER NOT NULL CHECK (quantity > 0),
	unit_price     NUMERIC(12,2) NOT NULL,
	PRIMARY KEY (order_id, line_no)
);

CREATE OR REPLACE FUNCTION notify_finished_goods_changed() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('finished_goods_changed', '');
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS finished_goods_changed ON finished_goods;
CREATE TRIGGER finished_goods_changed
	AFTER INSERT OR UPDATE OR DELETE ON finished_goods
	FOR EACH STATEMENT EXECUTE FUNCTION notify_finished_goods_changed();
`

// Migrate applies Schema. Every statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("postgres: migrate: %w", err)
	}
	return nil
}
