package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/fhsh/makeup-exam-api/pkg/config"
)

// Open returns a configured client for the driver named in cfg.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = config.DriverPostgres
	}

	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	if driver == config.DriverSQLite {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return db, nil
}

// DSN builds the connection string for the configured driver. DATABASE_URL
// takes precedence over the discrete Postgres settings.
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case "", config.DriverPostgres, config.DriverPgx:
		if cfg.URL != "" {
			return cfg.URL, nil
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host,
			cfg.Port,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.SSLMode,
		), nil
	case config.DriverSQLite:
		if cfg.SQLitePath == "" {
			return "", fmt.Errorf("sqlite path is required")
		}
		// immediate transactions serialise concurrent roster replacements
		return cfg.SQLitePath + "?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// IsPostgres reports whether db talks to PostgreSQL through either driver.
func IsPostgres(db *sqlx.DB) bool {
	if db == nil {
		return false
	}
	switch db.DriverName() {
	case config.DriverPostgres, config.DriverPgx:
		return true
	}
	return false
}
