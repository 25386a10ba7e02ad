// Package postgres implements the PostgreSQL source and destination with
// pgx v5. Each destination statement runs inside its own savepoint so one
// failed INSERT does not abort the surrounding transaction.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"migrator/internal/schema"
	"migrator/internal/sqlgen"
	"migrator/internal/storage"
)

// pool is the subset of *pgxpool.Pool used here.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
	Close()
}

// newPool is a test hook.
var newPool = func(ctx context.Context, dsn string) (pool, error) {
	p, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, storage.Connection(fmt.Errorf("postgres ping: %w", err))
	}
	return p, nil
}

func init() {
	storage.RegisterDestination("postgres", func(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
		p, err := newPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Destination{pool: p, schema: cfg.Schema}, nil
	})
	storage.RegisterSource("postgres", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		p, err := newPool(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Source{pool: p}, nil
	})
}

// Classify maps pgx errors onto the storage error taxonomy. SQLSTATE class
// 23 is integrity constraint violation.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23" {
			return storage.Constraint(err)
		}
		if len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08" {
			return storage.Connection(err)
		}
		return err
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.Timeout(err) {
		return storage.Connection(err)
	}
	return storage.DefaultClassifier(err)
}

// Destination is a pgx-backed storage.Destination.
type Destination struct {
	pool   pool
	tx     pgx.Tx
	schema string
}

// Exec implements storage.Destination.
func (d *Destination) Exec(ctx context.Context, stmt string) error {
	if d.tx == nil {
		tx, err := d.pool.Begin(ctx)
		if err != nil {
			return storage.Connection(fmt.Errorf("begin tx: %w", err))
		}
		d.tx = tx
	}
	sp, err := d.tx.Begin(ctx)
	if err != nil {
		return Classify(fmt.Errorf("savepoint: %w", err))
	}
	if _, err := sp.Exec(ctx, stmt); err != nil {
		_ = sp.Rollback(ctx)
		return Classify(err)
	}
	if err := sp.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("release savepoint: %w", err))
	}
	return nil
}

// Commit implements storage.Destination.
func (d *Destination) Commit(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Commit(ctx)
	d.tx = nil
	if err != nil {
		return Classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Rollback implements storage.Destination.
func (d *Destination) Rollback(ctx context.Context) error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Rollback(ctx)
	d.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Ping implements storage.Destination.
func (d *Destination) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return storage.Connection(err)
	}
	return nil
}

func (d *Destination) Dialect() sqlgen.Dialect { return sqlgen.Postgres{} }

func (d *Destination) Schema() string { return d.schema }

// Close implements storage.Destination.
func (d *Destination) Close() error {
	_ = d.Rollback(context.Background())
	d.pool.Close()
	return nil
}

// Source is a pgx-backed storage.Source.
type Source struct {
	pool pool
}

// FetchRows implements storage.Source.
func (s *Source) FetchRows(ctx context.Context, query string) ([]schema.FlatRow, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var out []schema.FlatRow
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", len(out)+1, Classify(err))
		}
		out = append(out, schema.FlatRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, Classify(err)
	}
	return out, nil
}

// Ping implements storage.Source.
func (s *Source) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return storage.Connection(err)
	}
	return nil
}

// Close implements storage.Source.
func (s *Source) Close() error {
	s.pool.Close()
	return nil
}
