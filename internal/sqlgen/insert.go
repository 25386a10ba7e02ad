package sqlgen

import "strings"

// Insert renders a single INSERT for one or more rows of already formatted
// SQL literals. Every row must have len(columns) values.
func Insert(d Dialect, table string, columns []string, rows ...[]string) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(table)
	b.WriteString(" (")
	for i, c := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Quote(c))
	}
	b.WriteString(") VALUES ")
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(strings.Join(r, ", "))
		b.WriteByte(')')
	}
	return b.String()
}

// Literal quotes s as a SQL string literal.
func Literal(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
