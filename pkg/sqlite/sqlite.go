// Package sqlite opens modernc.org/sqlite databases with the pool and pragma settings
// shared by the cache store, the telemetry span store and the domain repositories.
package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// MemoryDSN is the data source name of a private in-memory database.
const MemoryDSN = ":memory:"

type config struct {
	dsn          string
	maxOpenConns int
	maxIdleConns int
	walMode      bool
}

func defaultConfig() config {
	return config{
		dsn:          "shopcore.db",
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
	}
}

// Option configures Open.
type Option func(*config)

// WithDSN sets the data source name (file path or ":memory:").
func WithDSN(dsn string) Option {
	return func(c *config) {
		c.dsn = dsn
	}
}

// WithMemoryDatabase selects a private in-memory database.
func WithMemoryDatabase() Option {
	return func(c *config) {
		c.dsn = MemoryDSN
	}
}

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *config) {
		c.maxOpenConns = n
	}
}

// WithMaxIdleConns sets the maximum number of idle connections in the pool.
func WithMaxIdleConns(n int) Option {
	return func(c *config) {
		c.maxIdleConns = n
	}
}

// WithWALMode toggles write-ahead logging. It is ignored for in-memory databases.
func WithWALMode(enabled bool) Option {
	return func(c *config) {
		c.walMode = enabled
	}
}

// Open opens the database described by opts and applies connection pragmas.
//
//	db, err := sqlite.Open(sqlite.WithDSN("/var/lib/shopcore/shop.db"))
//	db, err := sqlite.Open(sqlite.WithMemoryDatabase())
func Open(opts ...Option) (*sql.DB, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" gets its own database, so pin the pool to one.
	if cfg.dsn == MemoryDSN {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		cfg.walMode = false
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	pragmas := `PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;`
	if cfg.walMode {
		pragmas += ` PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL;`
	}
	if _, err := db.Exec(pragmas); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}
