package migrate

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"migrator/internal/batch"
	"migrator/internal/cleanup"
	"migrator/internal/dedup"
	"migrator/internal/schema"
	"migrator/internal/scope"
)

// Run is one migration of one document for one scope. It owns every piece of
// mutable state the engine needs: the dedup tracker, the batcher and the
// counters. A Run is used once and then discarded.
type Run struct {
	ID       string
	Document *schema.Document
	Scope    scope.Scope

	state    State
	tracker  *dedup.Tracker
	batcher  *batch.Batcher
	plan     cleanup.Plan
	disabled map[string]bool
	summary  *Summary
	cleanAgg *errAgg
	log      *slog.Logger
}

func newRun(doc *schema.Document, sc scope.Scope, opts Options, log *slog.Logger) (*Run, error) {
	b, err := batch.New(opts.batchSize(), opts.EntityBatchSizes)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	r := &Run{
		ID:       id,
		Document: doc,
		Scope:    sc,
		state:    StateIdle,
		tracker:  dedup.New(),
		batcher:  b,
		disabled: make(map[string]bool),
		cleanAgg: newErrAgg(opts.ErrorSamples),
		log: log.With(
			slog.String("run_id", id),
			slog.String("document", doc.Name),
			slog.String("date", sc.DateString()),
			slog.String("warehouse", sc.WarehouseString()),
		),
		summary: &Summary{
			RunID:     id,
			Document:  doc.Name,
			Date:      sc.DateString(),
			Warehouse: sc.WarehouseString(),
			State:     StateIdle,
			DryRun:    opts.DryRun,
			Entities:  make(map[string]*EntitySummary, len(doc.Entities)),
			Order:     doc.LoadOrder(),
			StartedAt: time.Now(),
		},
	}
	for _, e := range doc.Entities {
		r.summary.Entities[e.Table] = &EntitySummary{agg: newErrAgg(opts.ErrorSamples)}
	}
	return r, nil
}

// State returns the current lifecycle state.
func (r *Run) State() State { return r.state }

// Plan returns the cleanup plan computed for the run.
func (r *Run) Plan() cleanup.Plan { return r.plan }

func (r *Run) transition(to State) error {
	if err := checkTransition(r.state, to); err != nil {
		return err
	}
	r.log.Debug("state", slog.String("from", string(r.state)), slog.String("to", string(to)))
	r.state = to
	r.summary.State = to
	return nil
}

func (r *Run) entity(name string) *EntitySummary { return r.summary.Entities[name] }

// finish freezes error samples and the duration into the summary.
func (r *Run) finish(err error) *Summary {
	s := r.summary
	for _, e := range s.Entities {
		e.Errors = e.agg.samples()
	}
	s.Cleanup.Errors = r.cleanAgg.samples()
	s.Cleanup.Shared = r.plan.Shared
	s.Duration = time.Since(s.StartedAt)
	if err != nil {
		s.Error = err.Error()
	}
	return s
}
