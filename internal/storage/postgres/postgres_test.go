package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"migrator/internal/storage"
)

// fakeTx records statements; nested Begin returns a savepoint sharing the log.
type fakeTx struct {
	pgx.Tx
	log       *[]string
	failOn    string
	committed bool
}

func (f *fakeTx) Begin(context.Context) (pgx.Tx, error) {
	*f.log = append(*f.log, "SAVEPOINT")
	return &fakeTx{log: f.log, failOn: f.failOn}, nil
}

func (f *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if f.failOn != "" && strings.Contains(sql, f.failOn) {
		return pgconn.CommandTag{}, &pgconn.PgError{Code: "23505", Message: "duplicate key value violates unique constraint"}
	}
	*f.log = append(*f.log, sql)
	return pgconn.CommandTag{}, nil
}

func (f *fakeTx) Commit(context.Context) error {
	*f.log = append(*f.log, "COMMIT")
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	*f.log = append(*f.log, "ROLLBACK")
	return nil
}

type fakePool struct {
	log    []string
	failOn string
	closed bool
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	p.log = append(p.log, "BEGIN")
	return &fakeTx{log: &p.log, failOn: p.failOn}, nil
}

func (p *fakePool) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not used")
}

func (p *fakePool) Ping(context.Context) error { return nil }

func (p *fakePool) Close() { p.closed = true }

func TestDestination_FailedStatementDoesNotPoisonTx(t *testing.T) {
	t.Parallel()
	fp := &fakePool{failOn: "dup"}
	d := &Destination{pool: fp, schema: "dbo"}
	ctx := context.Background()

	if err := d.Exec(ctx, "INSERT ok1"); err != nil {
		t.Fatalf("Exec ok1: %v", err)
	}
	err := d.Exec(ctx, "INSERT dup")
	if !storage.IsConstraint(err) {
		t.Fatalf("want constraint violation, got %v", err)
	}
	if err := d.Exec(ctx, "INSERT ok2"); err != nil {
		t.Fatalf("Exec ok2: %v", err)
	}
	if err := d.Commit(ctx); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	want := []string{
		"BEGIN",
		"SAVEPOINT", "INSERT ok1", "COMMIT",
		"SAVEPOINT", "ROLLBACK",
		"SAVEPOINT", "INSERT ok2", "COMMIT",
		"COMMIT",
	}
	if strings.Join(fp.log, "|") != strings.Join(want, "|") {
		t.Fatalf("log = %v\nwant  %v", fp.log, want)
	}

	_ = d.Close()
	if !fp.closed {
		t.Fatal("pool not closed")
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	if !storage.IsConstraint(Classify(&pgconn.PgError{Code: "23503"})) {
		t.Fatal("23503 should be a constraint violation")
	}
	if !storage.IsConnection(Classify(&pgconn.PgError{Code: "08006"})) {
		t.Fatal("08006 should be a connection failure")
	}
	if err := Classify(&pgconn.PgError{Code: "42P01"}); storage.IsConstraint(err) || storage.IsConnection(err) {
		t.Fatalf("42P01 misclassified: %v", err)
	}
}
