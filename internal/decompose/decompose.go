// Package decompose splits one flat source row into per-entity records whose
// values are already formatted as SQL literals.
package decompose

import (
	"fmt"

	"migrator/internal/schema"
)

// Record is one entity instance extracted from a flat row.
type Record struct {
	Entity string
	// Values are SQL literals in table column order.
	Values []string
	// Key holds the key literals; nil for fan-out entities.
	Key []string
}

// Absent reports whether the record came from the unmatched side of a LEFT
// JOIN: every key value (or, with no key, every value) is NULL.
func (r Record) Absent() bool {
	vals := r.Key
	if vals == nil {
		vals = r.Values
	}
	for _, v := range vals {
		if !IsNull(v) {
			return false
		}
	}
	return true
}

// RowShapeError means a flat row is shorter than an entity's field range.
type RowShapeError struct {
	Document string
	Entity   string
	Need     int
	Got      int
}

func (e *RowShapeError) Error() string {
	return fmt.Sprintf("row shape: %s.%s needs %d columns, row has %d", e.Document, e.Entity, e.Need, e.Got)
}

// Decomposer turns flat rows into records using a schema registry.
type Decomposer struct {
	reg *schema.Registry
}

// New returns a Decomposer backed by reg.
func New(reg *schema.Registry) *Decomposer { return &Decomposer{reg: reg} }

// Decompose extracts entity from row. The row is only read.
func (d *Decomposer) Decompose(row schema.FlatRow, doc *schema.Document, entity string) (Record, error) {
	e, ok := doc.Entity(entity)
	if !ok {
		return Record{}, &schema.ConfigurationError{Document: doc.Name, Entity: entity, Reason: "entity not in document"}
	}
	ks, err := d.reg.KeySpec(entity)
	if err != nil {
		return Record{}, err
	}
	if len(row) < e.End {
		return Record{}, &RowShapeError{Document: doc.Name, Entity: entity, Need: e.End, Got: len(row)}
	}

	vals := make([]string, e.End-e.Start)
	for i, v := range row[e.Start:e.End] {
		vals[i] = Literal(v)
	}
	rec := Record{Entity: entity, Values: vals}
	if !ks.FanOut() {
		rec.Key = make([]string, len(ks))
		for i, k := range ks {
			rec.Key[i] = vals[k]
		}
	}
	return rec, nil
}
