package migrate

import (
	"log/slog"
	"time"
)

// ErrorSample is one distinct error message and how often it occurred.
type ErrorSample struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

// EntitySummary holds the counters of one entity.
//
// For every entity:
//
//	extracted == deduplicated + absent + shape_errors + loaded + skipped + failed
//
// as long as the run reached the loading phase and configuration was valid.
type EntitySummary struct {
	Extracted    int           `json:"extracted"`
	Deduplicated int           `json:"deduplicated"`
	Absent       int           `json:"absent"`
	ShapeErrors  int           `json:"shape_errors"`
	Loaded       int           `json:"loaded"`
	Skipped      int           `json:"skipped"`
	Failed       int           `json:"failed"`
	Batches      int           `json:"batches"`
	Disabled     bool          `json:"disabled,omitempty"`
	Errors       []ErrorSample `json:"errors"`

	agg *errAgg
}

// CleanupSummary reports the cleanup phase.
type CleanupSummary struct {
	Planned  int           `json:"planned"`
	Executed int           `json:"executed"`
	Failed   int           `json:"failed"`
	Shared   []string      `json:"shared,omitempty"`
	Errors   []ErrorSample `json:"errors"`
}

// Summary is the user-visible result of a run.
type Summary struct {
	RunID     string                    `json:"run_id"`
	Document  string                    `json:"document"`
	Date      string                    `json:"date"`
	Warehouse string                    `json:"warehouse"`
	State     State                     `json:"state"`
	DryRun    bool                      `json:"dry_run,omitempty"`
	Rows      int                       `json:"rows"`
	Empty     bool                      `json:"empty"`
	Cleanup   CleanupSummary            `json:"cleanup"`
	Entities  map[string]*EntitySummary `json:"entities"`
	Order     []string                  `json:"order"`
	StartedAt time.Time                 `json:"started_at"`
	Duration  time.Duration             `json:"duration_ns"`
	Error     string                    `json:"error,omitempty"`
}

// Totals sums loaded, skipped and failed statements over all entities.
func (s *Summary) Totals() (loaded, skipped, failed int) {
	for _, e := range s.Entities {
		loaded += e.Loaded
		skipped += e.Skipped
		failed += e.Failed
	}
	return
}

// LogValue renders the summary compactly for slog.
func (s *Summary) LogValue() slog.Value {
	loaded, skipped, failed := s.Totals()
	return slog.GroupValue(
		slog.String("run_id", s.RunID),
		slog.String("document", s.Document),
		slog.String("date", s.Date),
		slog.String("warehouse", s.Warehouse),
		slog.String("state", string(s.State)),
		slog.Int("rows", s.Rows),
		slog.Bool("empty", s.Empty),
		slog.Int("loaded", loaded),
		slog.Int("skipped", skipped),
		slog.Int("failed", failed),
		slog.Duration("duration", s.Duration),
	)
}

// otherErrors labels the bucket that absorbs messages past the limit.
const otherErrors = "(other errors)"

// errAgg counts error messages by text, keeping at most limit distinct
// messages in first-seen order.
type errAgg struct {
	limit   int
	count   int
	order   []string
	buckets map[string]int
	other   int
}

func newErrAgg(limit int) *errAgg {
	if limit <= 0 {
		limit = 20
	}
	return &errAgg{limit: limit, buckets: make(map[string]int)}
}

// add records msg and reports whether it is the first occurrence.
func (a *errAgg) add(msg string) bool {
	a.count++
	if _, ok := a.buckets[msg]; ok {
		a.buckets[msg]++
		return false
	}
	if len(a.order) >= a.limit {
		a.other++
		return false
	}
	a.order = append(a.order, msg)
	a.buckets[msg] = 1
	return true
}

func (a *errAgg) samples() []ErrorSample {
	out := make([]ErrorSample, 0, len(a.order)+1)
	for _, m := range a.order {
		out = append(out, ErrorSample{Message: m, Count: a.buckets[m]})
	}
	if a.other > 0 {
		out = append(out, ErrorSample{Message: otherErrors, Count: a.other})
	}
	return out
}
