package storage

import (
	"context"
	"database/sql"
	"fmt"

	"migrator/internal/schema"
	"migrator/internal/sqlgen"
)

// Classifier maps a driver error onto ErrConstraint / ErrConnection, or
// returns it unchanged.
type Classifier func(error) error

// DefaultClassifier only recognizes generic connection failures.
func DefaultClassifier(err error) error {
	if LooksLikeConnection(err) {
		return Connection(err)
	}
	return err
}

// SQLSource is a Source over database/sql.
type SQLSource struct {
	db       *sql.DB
	classify Classifier
}

// NewSQLSource wraps an open *sql.DB.
func NewSQLSource(db *sql.DB, classify Classifier) *SQLSource {
	if classify == nil {
		classify = DefaultClassifier
	}
	return &SQLSource{db: db, classify: classify}
}

// FetchRows implements Source.
func (s *SQLSource) FetchRows(ctx context.Context, query string) ([]schema.FlatRow, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, s.classify(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, s.classify(err)
	}
	var out []schema.FlatRow
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row %d: %w", len(out)+1, s.classify(err))
		}
		out = append(out, schema.FlatRow(vals))
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err)
	}
	return out, nil
}

// Ping implements Source.
func (s *SQLSource) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return Connection(err)
	}
	return nil
}

// Close implements Source.
func (s *SQLSource) Close() error { return s.db.Close() }

// SQLDestination is a Destination over database/sql.
type SQLDestination struct {
	db       *sql.DB
	tx       *sql.Tx
	dialect  sqlgen.Dialect
	schema   string
	classify Classifier
}

// NewSQLDestination wraps an open *sql.DB.
func NewSQLDestination(db *sql.DB, d sqlgen.Dialect, schemaName string, classify Classifier) *SQLDestination {
	if classify == nil {
		classify = DefaultClassifier
	}
	return &SQLDestination{db: db, dialect: d, schema: schemaName, classify: classify}
}

// Exec implements Destination. The first call opens the transaction.
func (d *SQLDestination) Exec(ctx context.Context, stmt string) error {
	if d.tx == nil {
		tx, err := d.db.BeginTx(ctx, nil)
		if err != nil {
			return Connection(fmt.Errorf("begin tx: %w", err))
		}
		d.tx = tx
	}
	if _, err := d.tx.ExecContext(ctx, stmt); err != nil {
		return d.classify(err)
	}
	return nil
}

// Commit implements Destination. Without an open transaction it is a no-op.
func (d *SQLDestination) Commit(context.Context) error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		return d.classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Rollback implements Destination.
func (d *SQLDestination) Rollback(context.Context) error {
	if d.tx == nil {
		return nil
	}
	err := d.tx.Rollback()
	d.tx = nil
	if err != nil && err != sql.ErrTxDone {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Ping implements Destination.
func (d *SQLDestination) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return Connection(err)
	}
	return nil
}

func (d *SQLDestination) Dialect() sqlgen.Dialect { return d.dialect }

func (d *SQLDestination) Schema() string { return d.schema }

// Close rolls back any open transaction and closes the handle.
func (d *SQLDestination) Close() error {
	_ = d.Rollback(context.Background())
	return d.db.Close()
}
