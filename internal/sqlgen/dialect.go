// Package sqlgen renders the SQL text the engine executes against a
// destination: identifier quoting, qualified table names, truncates, date
// casts and INSERT statements. Each destination backend exposes one Dialect.
package sqlgen

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect captures the differences between destination databases that matter
// to the generated statements.
type Dialect interface {
	Name() string
	// Quote quotes a single identifier.
	Quote(ident string) string
	// Table returns the qualified, quoted name of table in schema.
	Table(schema, table string) string
	// Truncate returns a statement that empties table (already qualified).
	Truncate(table string) string
	// DateOf truncates a date/time expression to a calendar date.
	DateOf(expr string) string
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mssql", "sqlserver":
		return MSSQL{}, nil
	case "postgres", "postgresql", "pg":
		return Postgres{}, nil
	case "sqlite", "sqlite3":
		return SQLite{}, nil
	}
	return nil, fmt.Errorf("sqlgen: unknown dialect %q", name)
}

// MSSQL is the SQL Server dialect.
type MSSQL struct{}

func (MSSQL) Name() string { return "mssql" }

func (MSSQL) Quote(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

func (d MSSQL) Table(schema, table string) string {
	if schema == "" {
		return d.Quote(table)
	}
	return d.Quote(schema) + "." + d.Quote(table)
}

func (MSSQL) Truncate(table string) string { return "TRUNCATE TABLE " + table }

func (MSSQL) DateOf(expr string) string { return "CAST(" + expr + " AS DATE)" }

// Postgres is the PostgreSQL dialect.
type Postgres struct{}

func (Postgres) Name() string { return "postgres" }

func (Postgres) Quote(id string) string { return pgx.Identifier{id}.Sanitize() }

func (Postgres) Table(schema, table string) string {
	if schema == "" {
		return pgx.Identifier{table}.Sanitize()
	}
	return pgx.Identifier{schema, table}.Sanitize()
}

func (Postgres) Truncate(table string) string { return "TRUNCATE TABLE " + table }

func (Postgres) DateOf(expr string) string { return "CAST(" + expr + " AS DATE)" }

// SQLite has no schemas for our purposes and no TRUNCATE.
type SQLite struct{}

func (SQLite) Name() string { return "sqlite" }

func (SQLite) Quote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

func (d SQLite) Table(_, table string) string { return d.Quote(table) }

func (SQLite) Truncate(table string) string { return "DELETE FROM " + table }

func (SQLite) DateOf(expr string) string { return "date(" + expr + ")" }
