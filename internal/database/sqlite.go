package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/jengzang/ais-anomaly-go/pkg/logger"
)

var (
	db   *sql.DB
	once sync.Once
)

// Config holds database configuration
type Config struct {
	Path string // ":memory:" for a private in-memory database
}

// Open opens the SQLite database at cfg.Path, applies connection pragmas and
// runs pending migrations
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*sql.DB, error) {
	log = logger.OrNop(log).Named("database")

	dsn := cfg.Path
	memory := dsn == ":memory:"
	if !memory {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database dir: %w", err)
			}
		}
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings; an in-memory database lives in a single connection
	if memory {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}

	pragmas := []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"}
	if !memory {
		// Enable WAL mode for better concurrency
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := NewMigrationManager(conn, log).RunMigrations(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Info("Database initialized", logger.String("path", cfg.Path))
	return conn, nil
}

// Init initializes the shared database connection
func Init(ctx context.Context, cfg Config, log *logger.Logger) error {
	var err error
	once.Do(func() {
		db, err = Open(ctx, cfg, log)
	})
	return err
}

// GetDB returns the shared database instance, or nil before Init
func GetDB() *sql.DB {
	return db
}

// Close closes the shared database connection
func Close() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// Transaction executes a function within a database transaction
func Transaction(ctx context.Context, conn *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %v, rollback error: %w", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
