// Package cleanup computes the statements that remove a scope's rows from the
// destination before they are reloaded, which is what makes a rerun of the
// same scope idempotent.
//
// A plan is pure data. Nothing here executes SQL.
//
// Wildcard scopes (and full-refresh documents) truncate every entity of the
// document in reverse load order. Concrete scopes delete child rows first:
// each child is reached through its join path back to the document root, and
// only rows whose root matches the scope predicate are removed. Shared master
// tables (items, batches, batch locations) have no path to a root and are
// left alone by concrete scopes.
package cleanup

import (
	"fmt"
	"strings"

	"migrator/internal/schema"
	"migrator/internal/scope"
	"migrator/internal/sqlgen"
)

// Action is the kind of cleanup statement.
type Action string

const (
	ActionTruncate Action = "truncate"
	ActionDelete   Action = "delete"
)

// Statement is one cleanup step.
type Statement struct {
	Entity string
	Action Action
	SQL    string
}

// Plan is the ordered list of cleanup statements for a run.
type Plan struct {
	Document   string
	Scope      scope.Scope
	Statements []Statement
	// Shared lists entities a scoped plan deliberately leaves untouched.
	Shared []string
}

// String renders the plan as a SQL script.
func (p Plan) String() string {
	var b strings.Builder
	for _, s := range p.Statements {
		b.WriteString(s.SQL)
		b.WriteString(";\n")
	}
	return b.String()
}

// Planner builds plans for one destination.
type Planner struct {
	Registry *schema.Registry
	Dialect  sqlgen.Dialect
	// Schema is the destination schema, e.g. "dbo". May be empty.
	Schema string
}

// BuildPlan returns the cleanup plan of doc for sc.
func (p *Planner) BuildPlan(doc *schema.Document, sc scope.Scope) (Plan, error) {
	plan := Plan{Document: doc.Name, Scope: sc}
	if sc.Wildcard() || doc.FullRefresh {
		for _, e := range doc.CleanupOrder() {
			plan.Statements = append(plan.Statements, Statement{
				Entity: e,
				Action: ActionTruncate,
				SQL:    p.Dialect.Truncate(p.table(e)),
			})
		}
		return plan, nil
	}

	if sc.HasDate() && len(doc.Scope.DateColumns) == 0 {
		return Plan{}, &schema.ConfigurationError{Document: doc.Name, Reason: "scope has a date but document has no date columns"}
	}
	if sc.HasWarehouse() && doc.Scope.WarehouseColumn == "" {
		return Plan{}, &schema.ConfigurationError{Document: doc.Name, Reason: "scope has a warehouse but document has no warehouse column"}
	}

	for _, e := range doc.CleanupOrder() {
		path, ok := doc.PathToRoot(e)
		if !ok {
			plan.Shared = append(plan.Shared, e)
			continue
		}
		sql, err := p.scopedDelete(doc, sc, path)
		if err != nil {
			return Plan{}, err
		}
		plan.Statements = append(plan.Statements, Statement{Entity: e, Action: ActionDelete, SQL: sql})
	}
	return plan, nil
}

func (p *Planner) table(name string) string { return p.Dialect.Table(p.Schema, name) }

func (p *Planner) col(alias, name string) string {
	if alias == "" {
		return p.Dialect.Quote(name)
	}
	return alias + "." + p.Dialect.Quote(name)
}

// scopedDelete renders the delete of path[0] joined back to the root path[len-1].
func (p *Planner) scopedDelete(doc *schema.Document, sc scope.Scope, path []schema.Entity) (string, error) {
	target := p.table(path[0].Table)
	if len(path) == 1 {
		return "DELETE FROM " + target + " WHERE " + strings.Join(p.predicate(doc, sc, ""), " AND "), nil
	}

	alias := func(i int) string { return fmt.Sprintf("p%d", i) }

	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(target)
	b.WriteString(" WHERE EXISTS (SELECT 1 FROM ")
	b.WriteString(p.table(path[1].Table))
	b.WriteString(" ")
	b.WriteString(alias(1))
	for i := 1; i < len(path)-1; i++ {
		b.WriteString(" JOIN ")
		b.WriteString(p.table(path[i+1].Table))
		b.WriteString(" ")
		b.WriteString(alias(i + 1))
		b.WriteString(" ON ")
		b.WriteString(p.joinOn(path[i].On, alias(i), alias(i+1)))
	}

	var where []string
	for _, on := range path[0].On {
		where = append(where, p.col(alias(1), on.Parent)+" = "+target+"."+p.Dialect.Quote(on.Child))
	}
	where = append(where, p.predicate(doc, sc, alias(len(path)-1))...)
	b.WriteString(" WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	b.WriteString(")")
	return b.String(), nil
}

func (p *Planner) joinOn(on []schema.ColumnPair, child, parent string) string {
	parts := make([]string, 0, len(on))
	for _, c := range on {
		parts = append(parts, p.col(child, c.Child)+" = "+p.col(parent, c.Parent))
	}
	return strings.Join(parts, " AND ")
}

// predicate is the scope test on the root table under alias.
func (p *Planner) predicate(doc *schema.Document, sc scope.Scope, alias string) []string {
	var out []string
	sp := doc.Scope
	if sc.HasDate() {
		cols := make([]string, 0, len(sp.DateColumns))
		for _, c := range sp.DateColumns {
			cols = append(cols, p.col(alias, c))
		}
		expr := cols[0]
		if len(cols) > 1 {
			expr = "COALESCE(" + strings.Join(cols, ", ") + ")"
		}
		out = append(out, p.Dialect.DateOf(expr)+" = "+sqlgen.Literal(sc.DateString()))
	}
	if sc.HasWarehouse() {
		out = append(out, inList(p.col(alias, sp.WarehouseColumn), doc.ExpandWarehouse(sc.Warehouse)))
	}
	for _, f := range sp.Filters {
		switch f.Op {
		case schema.OpNotNull:
			out = append(out, p.col(alias, f.Column)+" IS NOT NULL")
		case schema.OpIn:
			out = append(out, inList(p.col(alias, f.Column), f.Values))
		}
	}
	return out
}

func inList(col string, vals []string) string {
	if len(vals) == 1 {
		return col + " = " + sqlgen.Literal(vals[0])
	}
	lits := make([]string, len(vals))
	for i, v := range vals {
		lits[i] = sqlgen.Literal(v)
	}
	return col + " IN (" + strings.Join(lits, ", ") + ")"
}
