package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"migrator/internal/storage"
)

func openDest(t *testing.T) storage.Destination {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "dest.db")
	d, err := storage.OpenDestination(context.Background(), storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("OpenDestination: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDestination_ConstraintViolationIsClassified(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	d := openDest(t)

	if err := d.Exec(ctx, `CREATE TABLE "OWHS" ("WhsCode" TEXT PRIMARY KEY, "WhsName" TEXT)`); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := d.Exec(ctx, `INSERT INTO "OWHS" VALUES ('01', 'Central')`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	err := d.Exec(ctx, `INSERT INTO "OWHS" VALUES ('01', 'Again')`)
	if !storage.IsConstraint(err) {
		t.Fatalf("want constraint violation, got %v", err)
	}
	// The transaction survives a failed statement.
	if err := d.Exec(ctx, `INSERT INTO "OWHS" VALUES ('02', 'North')`); err != nil {
		t.Fatalf("insert after violation: %v", err)
	}
	if err := d.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	err = d.Exec(ctx, `INSERT INTO "MISSING" VALUES (1)`)
	if err == nil || storage.IsConstraint(err) || storage.IsConnection(err) {
		t.Fatalf("missing table should be a plain statement error, got %v", err)
	}
	_ = d.Rollback(ctx)
}

func TestSource_FetchRows(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "src.db")

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE t (a INTEGER, b TEXT, c TEXT)`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.ExecContext(ctx, `INSERT INTO t VALUES (1, 'x', NULL), (2, 'y', 'z')`); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	src, err := storage.OpenSource(ctx, storage.Config{Kind: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("OpenSource: %v", err)
	}
	defer src.Close()

	pingCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := src.Ping(pingCtx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	rows, err := src.FetchRows(ctx, `SELECT a, b, c FROM t ORDER BY a`)
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[0][2] != nil {
		t.Fatalf("NULL should scan as nil, got %#v", rows[0][2])
	}
	if rows[1][1] != "y" {
		t.Fatalf("rows[1][1] = %#v", rows[1][1])
	}
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()
	if _, err := Open(context.Background(), " "); err == nil {
		t.Fatal("expected error")
	}
}
