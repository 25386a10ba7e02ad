// Package extract renders the source query of a document type for a scope.
//
// Queries are text/template SQL files named after the document
// ("transfer.sql"). Defaults are embedded in the binary; a directory of
// overrides can replace any of them without a rebuild.
package extract

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"text/template"

	"migrator/internal/schema"
	"migrator/internal/scope"
	"migrator/internal/sqlgen"
)

//go:embed queries/*.sql
var embedded embed.FS

// Params is the data every query template receives.
type Params struct {
	Schema       string
	Document     string
	HasDate      bool
	Date         string
	DateFrom     string
	DateTo       string
	HasWarehouse bool
	Warehouse    string
	// Warehouses is Warehouse expanded through the document's aliases.
	Warehouses []string
}

var funcs = template.FuncMap{
	"quote": sqlgen.Literal,
	"list": func(vals []string) string {
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = sqlgen.Literal(v)
		}
		return strings.Join(out, ", ")
	},
}

// Catalog holds parsed query templates.
type Catalog struct {
	tmpl *template.Template
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Load("")
}

// Load parses the embedded queries and then every *.sql file in dir, which
// replaces embedded templates of the same name. An empty dir loads only the
// embedded set.
func Load(dir string) (*Catalog, error) {
	sub, err := fs.Sub(embedded, "queries")
	if err != nil {
		return nil, err
	}
	t, err := template.New("queries").Funcs(funcs).Option("missingkey=error").ParseFS(sub, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("extract: parse embedded queries: %w", err)
	}
	if dir != "" {
		matches, err := fs.Glob(os.DirFS(dir), "*.sql")
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		if len(matches) > 0 {
			if t, err = t.ParseFS(os.DirFS(dir), "*.sql"); err != nil {
				return nil, fmt.Errorf("extract: parse %s: %w", dir, err)
			}
		}
	}
	return &Catalog{tmpl: t}, nil
}

// Has reports whether the catalog has a query for doc.
func (c *Catalog) Has(doc string) bool { return c.tmpl.Lookup(doc+".sql") != nil }

// NewParams builds the template data of doc for sc.
func NewParams(doc *schema.Document, sc scope.Scope, schemaName string) Params {
	p := Params{Schema: schemaName, Document: doc.Name}
	if sc.HasDate() {
		w := doc.Scope.WindowDays
		p.HasDate = true
		p.Date = sc.DateString()
		p.DateFrom = sc.Date.AddDate(0, 0, -w).Format(scope.DateLayout)
		p.DateTo = sc.Date.AddDate(0, 0, w).Format(scope.DateLayout)
	}
	if sc.HasWarehouse() {
		p.HasWarehouse = true
		p.Warehouse = sc.Warehouse
		p.Warehouses = doc.ExpandWarehouse(sc.Warehouse)
	}
	return p
}

// Query renders the extraction query of doc for sc against schemaName.
func (c *Catalog) Query(doc *schema.Document, sc scope.Scope, schemaName string) (string, error) {
	name := doc.Name + ".sql"
	if c.tmpl.Lookup(name) == nil {
		return "", &schema.ConfigurationError{Document: doc.Name, Reason: "no extraction query " + name}
	}
	var b strings.Builder
	if err := c.tmpl.ExecuteTemplate(&b, name, NewParams(doc, sc, schemaName)); err != nil {
		return "", fmt.Errorf("extract: render %s: %w", name, err)
	}
	return strings.TrimSpace(b.String()), nil
}
