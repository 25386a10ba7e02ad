// Package mssql implements the SQL Server source and destination using
// go-mssqldb. SQL Server is the default destination of the migrator.
package mssql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"migrator/internal/sqlgen"
	"migrator/internal/storage"
)

// SQL Server error numbers treated as constraint violations.
const (
	errUniqueIndex    = 2601
	errPrimaryKey     = 2627
	errForeignOrCheck = 547
)

// SQL Server error numbers that leave the transaction rolled back or
// uncommittable.
const (
	errDeadlockVictim    = 1205
	errUncommittable     = 3930
	errSnapshotConflict  = 3960
	errUncommittableExit = 3998
)

// severityFatal and above closes the connection.
const severityFatal = 20

// openDB is a test hook.
var openDB = open

func init() {
	storage.RegisterDestination("mssql", func(ctx context.Context, cfg storage.Config) (storage.Destination, error) {
		db, err := openDB(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		schemaName := cfg.Schema
		if schemaName == "" {
			schemaName = "dbo"
		}
		return storage.NewSQLDestination(db, sqlgen.MSSQL{}, schemaName, Classify), nil
	})
	storage.RegisterSource("mssql", func(ctx context.Context, cfg storage.Config) (storage.Source, error) {
		db, err := openDB(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return storage.NewSQLSource(db, Classify), nil
	})
}

// open validates the DSN, opens the pool and pings it.
func open(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, storage.Connection(fmt.Errorf("mssql ping: %w", err))
	}
	return db, nil
}

// Classify maps SQL Server errors onto the storage error taxonomy.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if me, ok := serverError(err); ok {
		switch me.Number {
		case errPrimaryKey, errUniqueIndex, errForeignOrCheck:
			return storage.Constraint(err)
		case errDeadlockVictim, errUncommittable, errSnapshotConflict, errUncommittableExit:
			return storage.Aborted(err)
		}
		if me.Class >= severityFatal {
			return storage.Connection(err)
		}
		return err
	}
	return storage.DefaultClassifier(err)
}

func serverError(err error) (mssql.Error, bool) {
	var me mssql.Error
	if errors.As(err, &me) {
		return me, true
	}
	var pme *mssql.Error
	if errors.As(err, &pme) && pme != nil {
		return *pme, true
	}
	return mssql.Error{}, false
}
