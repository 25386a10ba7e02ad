// Package batch groups decomposed records per entity into size-bounded,
// ordered batches and renders them as INSERT statements.
package batch

import (
	"errors"
	"fmt"

	"migrator/internal/decompose"
	"migrator/internal/sqlgen"
)

const (
	// DefaultSize is the largest batch observed to execute reliably against
	// the production SQL Server.
	DefaultSize = 400
	// MaxSize keeps multi-row INSERTs below SQL Server's 1000-row VALUES limit.
	MaxSize = 1000
)

// ErrFlushed is returned by Add once FlushAll has sealed the batcher.
var ErrFlushed = errors.New("batch: batcher already flushed")

// Batch is an ordered group of records of one entity.
type Batch struct {
	Entity  string
	Seq     int
	Records []decompose.Record
}

// Len is the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }

// Statements renders one INSERT per record, in order.
func (b Batch) Statements(d sqlgen.Dialect, table string, columns []string) []string {
	out := make([]string, 0, len(b.Records))
	for _, r := range b.Records {
		out = append(out, sqlgen.Insert(d, table, columns, r.Values))
	}
	return out
}

// MultiRow renders the whole batch as a single INSERT.
func (b Batch) MultiRow(d sqlgen.Dialect, table string, columns []string) string {
	rows := make([][]string, 0, len(b.Records))
	for _, r := range b.Records {
		rows = append(rows, r.Values)
	}
	return sqlgen.Insert(d, table, columns, rows...)
}

// Batcher accumulates records per entity. It belongs to one run.
type Batcher struct {
	size    int
	sizes   map[string]int
	open    map[string]*Batch
	sealed  map[string][]Batch
	order   []string
	flushed bool
}

// New returns a Batcher with a default batch size and optional per-entity
// overrides.
func New(size int, perEntity map[string]int) (*Batcher, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	sizes := make(map[string]int, len(perEntity))
	for e, n := range perEntity {
		if err := checkSize(n); err != nil {
			return nil, fmt.Errorf("entity %s: %w", e, err)
		}
		sizes[e] = n
	}
	return &Batcher{
		size:   size,
		sizes:  sizes,
		open:   make(map[string]*Batch),
		sealed: make(map[string][]Batch),
	}, nil
}

func checkSize(n int) error {
	if n <= 0 || n > MaxSize {
		return fmt.Errorf("batch: size %d out of range (1..%d)", n, MaxSize)
	}
	return nil
}

// SizeFor returns the maximum batch size used for entity.
func (b *Batcher) SizeFor(entity string) int {
	if n, ok := b.sizes[entity]; ok {
		return n
	}
	return b.size
}

// Add appends rec to its entity's open batch, sealing it when full.
func (b *Batcher) Add(entity string, rec decompose.Record) error {
	if b.flushed {
		return ErrFlushed
	}
	cur, ok := b.open[entity]
	if !ok {
		cur = &Batch{Entity: entity, Seq: len(b.sealed[entity]) + 1}
		b.open[entity] = cur
		if _, known := b.sealed[entity]; !known {
			b.order = append(b.order, entity)
			b.sealed[entity] = nil
		}
	}
	cur.Records = append(cur.Records, rec)
	if len(cur.Records) >= b.SizeFor(entity) {
		b.sealed[entity] = append(b.sealed[entity], *cur)
		delete(b.open, entity)
	}
	return nil
}

// FlushAll seals every open batch and returns all batches per entity. Empty
// batches are never returned, so K records of one entity yield ceil(K/B)
// batches. Calling it again returns the same result.
func (b *Batcher) FlushAll() map[string][]Batch {
	if !b.flushed {
		for _, e := range b.order {
			if cur, ok := b.open[e]; ok && len(cur.Records) > 0 {
				b.sealed[e] = append(b.sealed[e], *cur)
			}
			delete(b.open, e)
		}
		b.flushed = true
	}
	out := make(map[string][]Batch, len(b.sealed))
	for e, bs := range b.sealed {
		if len(bs) > 0 {
			out[e] = bs
		}
	}
	return out
}
