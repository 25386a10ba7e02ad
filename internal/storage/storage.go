// Package storage contains the backend-agnostic contracts for the two
// databases a migration talks to: the Source the flat rows are extracted from
// and the Destination the decomposed records are loaded into.
//
// Concrete backends live in subpackages (hana, mssql, postgres, sqlite) and
// register their factories from init. Import storage/all to enable every
// backend in a binary.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"migrator/internal/schema"
	"migrator/internal/sqlgen"
)

// Config selects and configures one backend.
type Config struct {
	// Kind is the registered backend name, e.g. "hana", "mssql".
	Kind string
	DSN  string
	// Schema is the database schema tables live in ("dbo", "SBO_PROD").
	Schema string
}

// Source runs extraction queries.
type Source interface {
	// FetchRows runs query and materializes every result row.
	FetchRows(ctx context.Context, query string) ([]schema.FlatRow, error)
	Ping(ctx context.Context) error
	Close() error
}

// Destination executes generated statements inside a transaction that is
// opened on first use and ended by Commit or Rollback.
type Destination interface {
	Exec(ctx context.Context, stmt string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Ping(ctx context.Context) error
	Dialect() sqlgen.Dialect
	Schema() string
	Close() error
}

// SourceFactory opens a Source.
type SourceFactory func(ctx context.Context, cfg Config) (Source, error)

// DestinationFactory opens a Destination.
type DestinationFactory func(ctx context.Context, cfg Config) (Destination, error)

var (
	mu           sync.RWMutex
	sources      = map[string]SourceFactory{}
	destinations = map[string]DestinationFactory{}
)

// RegisterSource makes a source backend available under kind.
func RegisterSource(kind string, f SourceFactory) {
	mu.Lock()
	defer mu.Unlock()
	sources[strings.ToLower(kind)] = f
}

// RegisterDestination makes a destination backend available under kind.
func RegisterDestination(kind string, f DestinationFactory) {
	mu.Lock()
	defer mu.Unlock()
	destinations[strings.ToLower(kind)] = f
}

// OpenSource opens the source backend named by cfg.Kind.
func OpenSource(ctx context.Context, cfg Config) (Source, error) {
	mu.RLock()
	f, ok := sources[strings.ToLower(cfg.Kind)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown source kind %q (have %s)", cfg.Kind, strings.Join(SourceKinds(), ", "))
	}
	return f(ctx, cfg)
}

// OpenDestination opens the destination backend named by cfg.Kind.
func OpenDestination(ctx context.Context, cfg Config) (Destination, error) {
	mu.RLock()
	f, ok := destinations[strings.ToLower(cfg.Kind)]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown destination kind %q (have %s)", cfg.Kind, strings.Join(DestinationKinds(), ", "))
	}
	return f(ctx, cfg)
}

// SourceKinds lists registered source backends.
func SourceKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(sources)
}

// DestinationKinds lists registered destination backends.
func DestinationKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	return sortedKeys(destinations)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
