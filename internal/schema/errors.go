package schema

import "strings"

// ConfigurationError reports a missing or inconsistent layout entry. It is a
// programming fault, not a data fault.
type ConfigurationError struct {
	Document string
	Entity   string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("schema")
	if e.Document != "" {
		b.WriteString(" document=" + e.Document)
	}
	if e.Entity != "" {
		b.WriteString(" entity=" + e.Entity)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}
