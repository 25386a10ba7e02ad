// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from migration runs.
//
// The package exposes a narrow Backend interface (counters and durations)
// behind a global, pluggable backend that defaults to a no-op, so metrics are
// always safe to call even when nothing is configured. Concrete systems live
// in subpackages (prompush, datadog).
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names shared by every backend.
const (
	StepTotal       = "migrator_step_total"
	StepDuration    = "migrator_step_duration_seconds"
	RecordsTotal    = "migrator_records_total"
	BatchesTotal    = "migrator_batches_total"
	StatementsTotal = "migrator_statements_total"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and outcome of one run phase
// (cleaning, extracting, decomposing, loading, commit).
func RecordStep(job, document, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":      job,
		"document": document,
		"step":     step,
		"status":   status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRecords increments a per-entity record counter. Kinds mirror the run
// summary: extracted, deduplicated, absent, shape_errors, loaded, skipped,
// failed.
func RecordRecords(job, entity, kind string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":    job,
		"entity": entity,
		"kind":   kind,
	})
}

// RecordBatches increments the batch counter of an entity.
func RecordBatches(job, entity string, delta int) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job":    job,
		"entity": entity,
	})
}

// RecordStatement counts executed statements by phase and outcome
// (ok, constraint, error).
func RecordStatement(job, phase, outcome string) {
	backend.IncCounter(StatementsTotal, 1, Labels{
		"job":     job,
		"phase":   phase,
		"outcome": outcome,
	})
}
