// Package sqlite implements a SQLite source and destination on the pure-Go
// modernc.org/sqlite driver. It backs local dry runs and the end-to-end tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"migrator/internal/sqlgen"
	"migrator/internal/storage"
)

func init() {
	storage.RegisterDestination("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
		db, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLDestination(db, sqlgen.SQLite{}, cfg.Schema, Classify), nil
	})
	storage.RegisterSource("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		db, err := Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLSource(db, Classify), nil
	})
}

// Open opens dsn, e.g. "file:migrator.db" or a plain path, with foreign keys
// enabled. SQLite has a single writer, so the pool is limited to one
// connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, storage.Connection(fmt.Errorf("sqlite: ping: %w", err))
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys = ON;")
	return db, nil
}

// Classify maps SQLite result codes onto the storage error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) {
		switch se.Code() & 0xff {
		case sqlite3.SQLITE_CONSTRAINT:
			return storage.Constraint(err)
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR:
			return storage.Connection(err)
		}
		return err
	}
	return storage.DefaultClassifier(err)
}
