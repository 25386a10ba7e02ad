// Package scope defines the (business date, warehouse) unit a migration run
// owns in the destination.
package scope

import (
	"fmt"
	"strings"
	"time"
)

// All is the wildcard warehouse.
const All = "*"

// DateLayout is the accepted business date format.
const DateLayout = "2006-01-02"

// Scope selects the destination rows a run replaces. A zero Date means all
// dates; an empty or "*" Warehouse means all warehouses.
type Scope struct {
	Date      time.Time
	Warehouse string
}

// Parse builds a Scope from user input. Empty or "*" date means all dates.
func Parse(date, warehouse string) (Scope, error) {
	var s Scope
	date = strings.TrimSpace(date)
	if date != "" && date != All {
		d, err := time.Parse(DateLayout, date)
		if err != nil {
			return Scope{}, fmt.Errorf("scope: date %q: want YYYY-MM-DD", date)
		}
		s.Date = d
	}
	s.Warehouse = strings.TrimSpace(warehouse)
	if s.Warehouse == All {
		s.Warehouse = ""
	}
	return s, nil
}

// HasDate reports whether the scope is limited to one business date.
func (s Scope) HasDate() bool { return !s.Date.IsZero() }

// HasWarehouse reports whether the scope is limited to one warehouse.
func (s Scope) HasWarehouse() bool { return s.Warehouse != "" && s.Warehouse != All }

// Wildcard reports whether the scope covers everything.
func (s Scope) Wildcard() bool { return !s.HasDate() && !s.HasWarehouse() }

// DateString renders the date as YYYY-MM-DD, or "*".
func (s Scope) DateString() string {
	if !s.HasDate() {
		return All
	}
	return s.Date.Format(DateLayout)
}

// WarehouseString renders the warehouse, or "*".
func (s Scope) WarehouseString() string {
	if !s.HasWarehouse() {
		return All
	}
	return s.Warehouse
}

func (s Scope) String() string {
	return "date=" + s.DateString() + " warehouse=" + s.WarehouseString()
}
