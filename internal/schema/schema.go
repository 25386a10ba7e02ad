// Package schema holds the declarative description of every document type the
// migrator knows how to move: which destination tables (entities) a flat
// source row is made of, where each entity's columns sit inside the row, which
// columns identify an entity instance, the order entities must be loaded in,
// and how a scoped cleanup walks back from a child table to the document root.
//
// Nothing in this package talks to a database. The registry is built once,
// validated, and then treated as immutable configuration by the rest of the
// engine.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// FlatRow is one denormalized result row exactly as the source query returned
// it. Values are whatever the driver produced (string, []byte, int64, float64,
// bool, time.Time, decimals, nil). Rows are never mutated.
type FlatRow []any

// FieldRange is the half-open slice [Start, End) of a FlatRow that belongs to
// one entity inside one document type.
type FieldRange struct {
	Entity string
	Start  int
	End    int
}

// Width is the number of columns the range covers.
func (r FieldRange) Width() int { return r.End - r.Start }

// KeySpec lists indices, relative to the entity slice, whose values form the
// entity key. A nil KeySpec marks a fan-out entity: every occurrence is kept.
type KeySpec []int

// FanOut reports whether the entity is never deduplicated.
func (k KeySpec) FanOut() bool { return k == nil }

// Table describes one destination table.
type Table struct {
	Name    string
	Columns []string
	// Key names the identifying columns. Nil means fan-out.
	Key []string
}

// ColumnIndex returns the position of col in the table, or -1.
func (t Table) ColumnIndex(col string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, col) {
			return i
		}
	}
	return -1
}

// KeySpec resolves Key into column indices.
func (t Table) KeySpec() KeySpec {
	if t.Key == nil {
		return nil
	}
	ks := make(KeySpec, 0, len(t.Key))
	for _, k := range t.Key {
		ks = append(ks, t.ColumnIndex(k))
	}
	return ks
}

// ColumnPair equates a child column with a parent column in a cleanup join.
type ColumnPair struct {
	Child  string
	Parent string
}

// Entity places one table inside a document's flat row.
type Entity struct {
	Table string
	Start int
	End   int

	// Optional marks the LEFT JOIN side of the source query: when the key
	// columns (or every column, for fan-out tables) are NULL the entity is
	// absent from that row and nothing is emitted.
	Optional bool

	// Parent and On describe how a scoped cleanup reaches the document root
	// from this entity. Entities with no Parent other than the root itself are
	// shared master data and are left alone by scoped cleanups.
	Parent string
	On     []ColumnPair
}

// Range returns the entity's FieldRange.
func (e Entity) Range() FieldRange {
	return FieldRange{Entity: e.Table, Start: e.Start, End: e.End}
}

// FilterOp is the operator of a fixed identity filter.
type FilterOp string

const (
	OpNotNull FilterOp = "not_null"
	OpIn      FilterOp = "in"
)

// Filter is a fixed predicate on the root table that every run of a document
// applies, independently of the scope.
type Filter struct {
	Column string
	Op     FilterOp
	Values []string
}

// ScopePredicate says how a (date, warehouse) scope maps onto root columns.
type ScopePredicate struct {
	// DateColumns are coalesced left to right; the first non-NULL wins.
	DateColumns []string
	// WarehouseColumn is compared with the scope warehouse.
	WarehouseColumn string
	// WarehouseAliases expands one requested warehouse into several codes.
	WarehouseAliases map[string][]string
	Filters          []Filter
	// WindowDays widens the extraction date filter on both sides. Cleanup
	// always uses the exact scope date.
	WindowDays int
}

// Document is one migratable document type.
type Document struct {
	Name        string
	Description string
	Root        string
	Width       int
	// Entities are listed in load order: parents before children.
	Entities []Entity
	Scope    ScopePredicate
	// FullRefresh documents are always truncated and reloaded, whatever the
	// scope.
	FullRefresh bool
}

// Entity looks up an entity of the document by table name.
func (d *Document) Entity(name string) (Entity, bool) {
	for _, e := range d.Entities {
		if e.Table == name {
			return e, true
		}
	}
	return Entity{}, false
}

// LoadOrder returns entity names parents first.
func (d *Document) LoadOrder() []string {
	out := make([]string, 0, len(d.Entities))
	for _, e := range d.Entities {
		out = append(out, e.Table)
	}
	return out
}

// CleanupOrder is the exact reverse of LoadOrder.
func (d *Document) CleanupOrder() []string {
	lo := d.LoadOrder()
	out := make([]string, len(lo))
	for i, n := range lo {
		out[len(lo)-1-i] = n
	}
	return out
}

// ExpandWarehouse applies the document's warehouse aliases.
func (d *Document) ExpandWarehouse(w string) []string {
	if alias, ok := d.Scope.WarehouseAliases[w]; ok {
		return append([]string(nil), alias...)
	}
	return []string{w}
}

// PathToRoot returns the chain of entities from name up to, and including,
// the root. ok is false when the entity does not reach the root.
func (d *Document) PathToRoot(name string) (path []Entity, ok bool) {
	seen := map[string]bool{}
	cur := name
	for {
		e, found := d.Entity(cur)
		if !found || seen[cur] {
			return nil, false
		}
		seen[cur] = true
		path = append(path, e)
		if cur == d.Root {
			return path, true
		}
		if e.Parent == "" {
			return nil, false
		}
		cur = e.Parent
	}
}

// Registry answers layout questions for every known document.
type Registry struct {
	tables map[string]Table
	docs   map[string]*Document
	names  []string
}

// NewRegistry validates tables and documents and builds a Registry.
func NewRegistry(tables []Table, docs []Document) (*Registry, error) {
	r := &Registry{
		tables: make(map[string]Table, len(tables)),
		docs:   make(map[string]*Document, len(docs)),
	}
	for _, t := range tables {
		if t.Name == "" {
			return nil, &ConfigurationError{Reason: "table with empty name"}
		}
		if _, dup := r.tables[t.Name]; dup {
			return nil, &ConfigurationError{Entity: t.Name, Reason: "duplicate table"}
		}
		if len(t.Columns) == 0 {
			return nil, &ConfigurationError{Entity: t.Name, Reason: "table has no columns"}
		}
		for _, k := range t.Key {
			if t.ColumnIndex(k) < 0 {
				return nil, &ConfigurationError{Entity: t.Name, Reason: fmt.Sprintf("key column %q not in table", k)}
			}
		}
		r.tables[t.Name] = t
	}
	for i := range docs {
		d := docs[i]
		if d.Name == "" {
			return nil, &ConfigurationError{Reason: "document with empty name"}
		}
		if _, dup := r.docs[d.Name]; dup {
			return nil, &ConfigurationError{Document: d.Name, Reason: "duplicate document"}
		}
		if err := r.validateDocument(&d); err != nil {
			return nil, err
		}
		r.docs[d.Name] = &d
		r.names = append(r.names, d.Name)
	}
	sort.Strings(r.names)
	return r, nil
}

func (r *Registry) validateDocument(d *Document) error {
	cfgErr := func(entity, format string, args ...any) error {
		return &ConfigurationError{Document: d.Name, Entity: entity, Reason: fmt.Sprintf(format, args...)}
	}
	if len(d.Entities) == 0 {
		return cfgErr("", "document has no entities")
	}
	pos := make(map[string]int, len(d.Entities))
	for i, e := range d.Entities {
		t, ok := r.tables[e.Table]
		if !ok {
			return cfgErr(e.Table, "unknown table")
		}
		if _, dup := pos[e.Table]; dup {
			return cfgErr(e.Table, "entity listed twice in load order")
		}
		pos[e.Table] = i
		if e.Start < 0 || e.End <= e.Start {
			return cfgErr(e.Table, "invalid field range [%d,%d)", e.Start, e.End)
		}
		if e.End-e.Start != len(t.Columns) {
			return cfgErr(e.Table, "field range width %d does not match %d columns", e.End-e.Start, len(t.Columns))
		}
	}

	// Ranges must tile [0, Width) with no gaps or overlaps.
	sorted := append([]Entity(nil), d.Entities...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	next := 0
	for _, e := range sorted {
		if e.Start != next {
			return cfgErr(e.Table, "field range starts at %d, expected %d", e.Start, next)
		}
		next = e.End
	}
	if d.Width == 0 {
		d.Width = next
	}
	if next != d.Width {
		return cfgErr("", "field ranges cover %d columns, width is %d", next, d.Width)
	}

	root, ok := d.Entity(d.Root)
	if !ok {
		return cfgErr(d.Root, "root entity not in document")
	}
	if root.Parent != "" {
		return cfgErr(d.Root, "root entity cannot have a parent")
	}
	for _, e := range d.Entities {
		if e.Parent == "" {
			if len(e.On) > 0 {
				return cfgErr(e.Table, "join columns without parent")
			}
			continue
		}
		pi, ok := pos[e.Parent]
		if !ok {
			return cfgErr(e.Table, "parent %q not in document", e.Parent)
		}
		if pi >= pos[e.Table] {
			return cfgErr(e.Table, "parent %q must be loaded before its child", e.Parent)
		}
		if len(e.On) == 0 {
			return cfgErr(e.Table, "parent %q without join columns", e.Parent)
		}
		ct, pt := r.tables[e.Table], r.tables[e.Parent]
		for _, on := range e.On {
			if ct.ColumnIndex(on.Child) < 0 {
				return cfgErr(e.Table, "join column %q not in table", on.Child)
			}
			if pt.ColumnIndex(on.Parent) < 0 {
				return cfgErr(e.Table, "join column %q not in parent %s", on.Parent, e.Parent)
			}
		}
		if _, reaches := d.PathToRoot(e.Table); !reaches {
			return cfgErr(e.Table, "join path does not reach root %s", d.Root)
		}
	}

	rt := r.tables[d.Root]
	for _, c := range d.Scope.DateColumns {
		if rt.ColumnIndex(c) < 0 {
			return cfgErr(d.Root, "date column %q not in root table", c)
		}
	}
	if c := d.Scope.WarehouseColumn; c != "" && rt.ColumnIndex(c) < 0 {
		return cfgErr(d.Root, "warehouse column %q not in root table", c)
	}
	for _, f := range d.Scope.Filters {
		if rt.ColumnIndex(f.Column) < 0 {
			return cfgErr(d.Root, "filter column %q not in root table", f.Column)
		}
		if f.Op == OpIn && len(f.Values) == 0 {
			return cfgErr(d.Root, "filter on %q has no values", f.Column)
		}
	}
	return nil
}

// Document returns a document type by name.
func (r *Registry) Document(name string) (*Document, error) {
	d, ok := r.docs[name]
	if !ok {
		return nil, &ConfigurationError{Document: name, Reason: "unknown document type"}
	}
	return d, nil
}

// Documents lists document names in lexical order.
func (r *Registry) Documents() []string { return append([]string(nil), r.names...) }

// Table returns a destination table by name.
func (r *Registry) Table(name string) (Table, error) {
	t, ok := r.tables[name]
	if !ok {
		return Table{}, &ConfigurationError{Entity: name, Reason: "unknown table"}
	}
	return t, nil
}

// FieldRange returns where entity sits in the flat rows of doc.
func (r *Registry) FieldRange(doc, entity string) (FieldRange, error) {
	d, err := r.Document(doc)
	if err != nil {
		return FieldRange{}, err
	}
	e, ok := d.Entity(entity)
	if !ok {
		return FieldRange{}, &ConfigurationError{Document: doc, Entity: entity, Reason: "no field range"}
	}
	return e.Range(), nil
}

// KeySpec returns the key indices of entity; nil means fan-out.
func (r *Registry) KeySpec(entity string) (KeySpec, error) {
	t, err := r.Table(entity)
	if err != nil {
		return nil, err
	}
	return t.KeySpec(), nil
}
