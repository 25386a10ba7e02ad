package config

import (
	"fmt"
	"os"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue is a single validation finding. Path is a dotted path into the
// config (e.g. "destination.dsn", "runtime.entity_batch_sizes.OITL").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has SeverityError.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

var (
	sourceKinds = map[string]struct{}{"hana": {}, "mssql": {}, "postgres": {}, "sqlite": {}}
	destKinds   = map[string]struct{}{"mssql": {}, "postgres": {}, "sqlite": {}}
	logLevels   = map[string]struct{}{"debug": {}, "info": {}, "warn": {}, "warning": {}, "error": {}}
)

// maxBatchSize mirrors batch.MaxSize; SQL Server rejects larger VALUES lists.
const maxBatchSize = 1000

// Validate performs static checks over c. It does not mutate c.
func Validate(c *Config) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Job) == "" {
		add(SeverityError, "job", "job must not be empty; it labels metrics and runs")
	}
	issues = append(issues, validateEndpoint("source", c.Source, sourceKinds)...)
	issues = append(issues, validateEndpoint("destination", c.Destination, destKinds)...)
	if c.Source.Kind == "hana" && strings.TrimSpace(c.Source.Schema) == "" {
		add(SeverityError, "source.schema", "hana source requires the company schema (HANA_SCHEMA)")
	}

	rt := c.Runtime
	if rt.BatchSize < 1 || rt.BatchSize > maxBatchSize {
		add(SeverityError, "runtime.batch_size", "batch_size %d out of range [1, %d]", rt.BatchSize, maxBatchSize)
	}
	for entity, n := range rt.EntityBatchSizes {
		if n < 1 || n > maxBatchSize {
			add(SeverityError, "runtime.entity_batch_sizes."+entity, "batch size %d out of range [1, %d]", n, maxBatchSize)
		}
	}
	if rt.Parallel < 1 {
		add(SeverityError, "runtime.parallel", "parallel must be >= 1")
	}
	if rt.CommitPerEntity {
		add(SeverityWarning, "runtime.commit_per_entity", "a failure mid-run leaves earlier entities committed")
	}
	if c.Destination.Kind == "sqlite" && rt.Parallel > 1 {
		add(SeverityWarning, "runtime.parallel", "sqlite has a single writer; parallel runs will serialize")
	}

	if c.Queries.Dir != "" {
		if st, err := os.Stat(c.Queries.Dir); err != nil || !st.IsDir() {
			add(SeverityError, "queries.dir", "%q is not a directory", c.Queries.Dir)
		}
	}

	switch c.Metrics.Backend {
	case "", "none":
	case "prometheus":
		if c.Metrics.PushgatewayURL == "" {
			add(SeverityError, "metrics.pushgateway_url", "prometheus backend requires pushgateway_url")
		}
	case "datadog":
		if c.Metrics.DatadogAddr == "" {
			add(SeverityWarning, "metrics.datadog_addr", "empty address; the statsd client falls back to DD_AGENT_HOST")
		}
	default:
		add(SeverityError, "metrics.backend", "unknown metrics backend %q", c.Metrics.Backend)
	}

	if k := c.Events.Kafka; len(k.Brokers) > 0 && strings.TrimSpace(k.Topic) == "" {
		add(SeverityError, "events.kafka.topic", "kafka brokers set without a topic")
	}

	if _, ok := logLevels[strings.ToLower(c.Log.Level)]; !ok {
		add(SeverityError, "log.level", "unknown level %q", c.Log.Level)
	}
	if f := c.Log.Format; f != "text" && f != "json" {
		add(SeverityError, "log.format", "format must be text or json, got %q", f)
	}
	return issues
}

func validateEndpoint(path string, e Endpoint, known map[string]struct{}) []Issue {
	var issues []Issue
	if strings.TrimSpace(e.Kind) == "" {
		return append(issues, Issue{Severity: SeverityError, Path: path + ".kind", Message: path + ".kind must not be empty"})
	}
	if _, ok := known[e.Kind]; !ok {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     path + ".kind",
			Message:  fmt.Sprintf("unsupported %s kind %q", path, e.Kind),
		})
	}
	if strings.TrimSpace(e.DSN) == "" {
		issues = append(issues, Issue{Severity: SeverityError, Path: path + ".dsn", Message: "dsn must not be empty"})
	}
	return issues
}
