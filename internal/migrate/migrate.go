// Package migrate runs one migration: clean the scope out of the destination,
// extract the flat rows from the source, decompose and deduplicate them, and
// load the records back in dependency order inside a transaction.
//
// Per-row and per-statement problems never abort a run. They are counted,
// logged once per distinct message, and reported in the Summary. Only
// connection failures, server-side transaction aborts and invalid
// configuration fail a run.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"migrator/internal/batch"
	"migrator/internal/cleanup"
	"migrator/internal/decompose"
	"migrator/internal/extract"
	"migrator/internal/metrics"
	"migrator/internal/notify"
	"migrator/internal/schema"
	"migrator/internal/scope"
	"migrator/internal/sqlgen"
	"migrator/internal/storage"
)

// Source provides flat rows.
type Source interface {
	FetchRows(ctx context.Context, query string) ([]schema.FlatRow, error)
}

// Destination executes statements inside one transaction until Commit.
type Destination interface {
	Exec(ctx context.Context, stmt string) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
	Dialect() sqlgen.Dialect
	Schema() string
}

// Options tune a Migrator.
type Options struct {
	// Job labels metrics and logs.
	Job string
	// SourceSchema is the schema the extraction queries read from.
	SourceSchema string
	// BatchSize defaults to batch.DefaultSize.
	BatchSize        int
	EntityBatchSizes map[string]int
	// CommitPerEntity commits after each entity instead of once per run.
	CommitPerEntity bool
	// MultiRowInsert sends each batch as one INSERT, falling back to one
	// statement per record when the batch is rejected.
	MultiRowInsert bool
	// ErrorSamples bounds the distinct error messages kept per entity.
	ErrorSamples int
	// DryRun plans, extracts and decomposes without touching the destination.
	DryRun bool
	// Dialect and DestSchema are used for planning when Dest is nil (dry runs).
	Dialect    sqlgen.Dialect
	DestSchema string
}

func (o Options) batchSize() int {
	if o.BatchSize <= 0 {
		return batch.DefaultSize
	}
	return o.BatchSize
}

// Migrator wires the collaborators of a run. It keeps no per-run state and
// may be reused for consecutive runs against the same destination.
type Migrator struct {
	Registry *schema.Registry
	Queries  *extract.Catalog
	Source   Source
	Dest     Destination
	Events   notify.Publisher
	Logger   *slog.Logger
	Options  Options
}

// Migrate runs document for sc and returns its summary. The summary is
// returned even when the run fails.
func (m *Migrator) Migrate(ctx context.Context, document string, sc scope.Scope) (*Summary, error) {
	if m.Dest == nil && !m.Options.DryRun {
		return nil, errors.New("migrate: destination is required")
	}
	doc, err := m.Registry.Document(document)
	if err != nil {
		return nil, err
	}
	run, err := newRun(doc, sc, m.Options, m.logger())
	if err != nil {
		return nil, err
	}
	return m.Execute(ctx, run)
}

// NewRun prepares a run without executing it.
func (m *Migrator) NewRun(document string, sc scope.Scope) (*Run, error) {
	doc, err := m.Registry.Document(document)
	if err != nil {
		return nil, err
	}
	return newRun(doc, sc, m.Options, m.logger())
}

// Execute drives run through its phases.
func (m *Migrator) Execute(ctx context.Context, run *Run) (*Summary, error) {
	run.log.Info("run started", slog.Bool("dry_run", m.Options.DryRun))
	err := m.execute(ctx, run)
	if err != nil {
		m.fail(ctx, run, err)
	}
	sum := run.finish(err)
	m.report(ctx, run, sum)
	return sum, err
}

func (m *Migrator) execute(ctx context.Context, run *Run) error {
	if err := m.step(run, "cleaning", func() error { return m.clean(ctx, run) }); err != nil {
		return err
	}
	var rows []schema.FlatRow
	if err := m.step(run, "extracting", func() (err error) {
		rows, err = m.extract(ctx, run)
		return err
	}); err != nil {
		return err
	}
	if len(rows) == 0 {
		run.summary.Empty = true
		run.log.Info("source returned no rows for scope")
		return m.step(run, "commit", func() error { return m.commit(ctx, run) })
	}
	if err := m.step(run, "decomposing", func() error { return m.decompose(run, rows) }); err != nil {
		return err
	}
	if err := m.step(run, "loading", func() error { return m.load(ctx, run) }); err != nil {
		return err
	}
	return m.step(run, "commit", func() error { return m.commit(ctx, run) })
}

func (m *Migrator) step(run *Run, name string, fn func() error) error {
	start := time.Now()
	err := fn()
	metrics.RecordStep(m.Options.Job, run.Document.Name, name, err, time.Since(start))
	return err
}

func (m *Migrator) clean(ctx context.Context, run *Run) error {
	if err := run.transition(StateCleaning); err != nil {
		return err
	}
	planner := cleanup.Planner{Registry: m.Registry, Dialect: m.dialect(), Schema: m.destSchema()}
	plan, err := planner.BuildPlan(run.Document, run.Scope)
	if err != nil {
		return err
	}
	run.plan = plan
	cs := &run.summary.Cleanup
	cs.Planned = len(plan.Statements)
	if m.Options.DryRun {
		return nil
	}
	for _, st := range plan.Statements {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := m.Dest.Exec(ctx, st.SQL)
		switch {
		case err == nil:
			cs.Executed++
			metrics.RecordStatement(m.Options.Job, "cleanup", "ok")
		case storage.IsFatal(err):
			return fmt.Errorf("cleanup %s: %w", st.Entity, err)
		default:
			cs.Failed++
			metrics.RecordStatement(m.Options.Job, "cleanup", "error")
			if run.cleanAgg.add(err.Error()) {
				run.log.Warn("cleanup statement failed, continuing",
					slog.String("entity", st.Entity),
					slog.String("action", string(st.Action)),
					slog.Any("err", err))
			}
		}
	}
	run.log.Info("cleanup done", slog.Int("executed", cs.Executed), slog.Int("failed", cs.Failed))
	return nil
}

func (m *Migrator) extract(ctx context.Context, run *Run) ([]schema.FlatRow, error) {
	if err := run.transition(StateExtracting); err != nil {
		return nil, err
	}
	q, err := m.Queries.Query(run.Document, run.Scope, m.Options.SourceSchema)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := m.Source.FetchRows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("extract: %w", err)
	}
	run.summary.Rows = len(rows)
	run.log.Info("extracted", slog.Int("rows", len(rows)), slog.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))
	return rows, nil
}

func (m *Migrator) decompose(run *Run, rows []schema.FlatRow) error {
	if err := run.transition(StateDecomposing); err != nil {
		return err
	}
	dec := decompose.New(m.Registry)
	doc := run.Document
	for _, row := range rows {
		for _, e := range doc.Entities {
			if run.disabled[e.Table] {
				continue
			}
			es := run.entity(e.Table)
			es.Extracted++

			rec, err := dec.Decompose(row, doc, e.Table)
			if err != nil {
				var shape *decompose.RowShapeError
				var cfg *schema.ConfigurationError
				switch {
				case errors.As(err, &shape):
					es.ShapeErrors++
					if es.agg.add(err.Error()) {
						run.log.Warn("row too short, entity skipped for row", slog.String("entity", e.Table), slog.Any("err", err))
					}
				case errors.As(err, &cfg):
					es.Disabled = true
					run.disabled[e.Table] = true
					es.agg.add(err.Error())
					run.log.Error("entity disabled for this run", slog.String("entity", e.Table), slog.Any("err", err))
				default:
					return err
				}
				continue
			}
			if e.Optional && rec.Absent() {
				es.Absent++
				continue
			}
			if !run.tracker.ShouldEmit(e.Table, rec.Key) {
				continue
			}
			if err := run.batcher.Add(e.Table, rec); err != nil {
				return err
			}
		}
	}
	for _, e := range doc.Entities {
		es := run.entity(e.Table)
		es.Deduplicated = run.tracker.Suppressed(e.Table)
		run.log.Debug("entity decomposed",
			slog.String("entity", e.Table),
			slog.Int("extracted", es.Extracted),
			slog.Int("distinct", run.tracker.Distinct(e.Table)),
			slog.Int("deduplicated", es.Deduplicated))
	}
	return nil
}

func (m *Migrator) load(ctx context.Context, run *Run) error {
	if err := run.transition(StateLoading); err != nil {
		return err
	}
	batches := run.batcher.FlushAll()
	d := m.dialect()
	for _, name := range run.Document.LoadOrder() {
		bs := batches[name]
		if len(bs) == 0 {
			continue
		}
		table, err := m.Registry.Table(name)
		if err != nil {
			return err
		}
		target := d.Table(m.destSchema(), name)
		es := run.entity(name)

		var (
			start     = time.Now()
			lastFlush = start
			lastTotal int
		)
		for _, b := range bs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := m.loadBatch(ctx, run, es, b, target, table.Columns); err != nil {
				return err
			}
			es.Batches++

			now := time.Now()
			sinceLast := now.Sub(lastFlush)
			rps := float64(0)
			if sinceLast > 0 {
				rps = float64(es.Loaded-lastTotal) / sinceLast.Seconds()
			}
			run.log.Debug("batch loaded",
				slog.String("entity", name),
				slog.Int("batch", b.Seq),
				slog.Int("size", b.Len()),
				slog.Int("total_loaded", es.Loaded),
				slog.Float64("rps", rps))
			lastFlush, lastTotal = now, es.Loaded
		}
		metrics.RecordBatches(m.Options.Job, name, len(bs))
		run.log.Info("entity loaded",
			slog.String("entity", name),
			slog.Int("loaded", es.Loaded),
			slog.Int("skipped", es.Skipped),
			slog.Int("failed", es.Failed),
			slog.Int("batches", es.Batches),
			slog.Duration("elapsed", time.Since(start).Truncate(time.Millisecond)))

		if m.Options.CommitPerEntity && !m.Options.DryRun {
			if err := m.Dest.Commit(ctx); err != nil {
				return fmt.Errorf("commit %s: %w", name, err)
			}
		}
	}
	return nil
}

func (m *Migrator) loadBatch(ctx context.Context, run *Run, es *EntitySummary, b batch.Batch, target string, cols []string) error {
	if m.Options.DryRun {
		es.Loaded += b.Len()
		return nil
	}
	d := m.dialect()
	if m.Options.MultiRowInsert && b.Len() > 1 {
		err := m.Dest.Exec(ctx, b.MultiRow(d, target, cols))
		if err == nil {
			es.Loaded += b.Len()
			metrics.RecordStatement(m.Options.Job, "load", "ok")
			return nil
		}
		if storage.IsFatal(err) {
			return fmt.Errorf("load %s batch %d: %w", b.Entity, b.Seq, err)
		}
		run.log.Debug("batch rejected, retrying row by row",
			slog.String("entity", b.Entity), slog.Int("batch", b.Seq), slog.Any("err", err))
	}
	for _, stmt := range b.Statements(d, target, cols) {
		err := m.Dest.Exec(ctx, stmt)
		switch {
		case err == nil:
			es.Loaded++
			metrics.RecordStatement(m.Options.Job, "load", "ok")
		case storage.IsFatal(err):
			return fmt.Errorf("load %s batch %d: %w", b.Entity, b.Seq, err)
		case storage.IsConstraint(err):
			es.Skipped++
			metrics.RecordStatement(m.Options.Job, "load", "constraint")
			if es.agg.add(err.Error()) {
				run.log.Warn("constraint violation, record skipped", slog.String("entity", b.Entity), slog.Any("err", err))
			}
		default:
			es.Failed++
			metrics.RecordStatement(m.Options.Job, "load", "error")
			if es.agg.add(err.Error()) {
				run.log.Error("statement failed, record skipped", slog.String("entity", b.Entity), slog.Any("err", err))
			}
		}
	}
	return nil
}

func (m *Migrator) commit(ctx context.Context, run *Run) error {
	if !m.Options.DryRun {
		if err := m.Dest.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
	}
	return run.transition(StateCommitted)
}

func (m *Migrator) fail(ctx context.Context, run *Run, cause error) {
	run.state = StateFailed
	run.summary.State = StateFailed
	run.log.Error("run failed", slog.Any("err", cause))
	if m.Dest == nil || m.Options.DryRun {
		return
	}
	if err := m.Dest.Rollback(context.WithoutCancel(ctx)); err != nil {
		run.log.Error("rollback failed", slog.Any("err", err))
	}
}

func (m *Migrator) report(ctx context.Context, run *Run, sum *Summary) {
	job := m.Options.Job
	for _, name := range sum.Order {
		es := sum.Entities[name]
		metrics.RecordRecords(job, name, "extracted", es.Extracted)
		metrics.RecordRecords(job, name, "deduplicated", es.Deduplicated)
		metrics.RecordRecords(job, name, "absent", es.Absent)
		metrics.RecordRecords(job, name, "shape_errors", es.ShapeErrors)
		metrics.RecordRecords(job, name, "loaded", es.Loaded)
		metrics.RecordRecords(job, name, "skipped", es.Skipped)
		metrics.RecordRecords(job, name, "failed", es.Failed)
		for i, s := range es.Errors {
			run.log.Warn("error summary",
				slog.String("entity", name),
				slog.Int("n", i+1),
				slog.Int("count", s.Count),
				slog.String("message", s.Message))
		}
	}
	run.log.Info("run finished", slog.Any("summary", sum))

	if m.Events == nil || m.Options.DryRun {
		return
	}
	if err := m.Events.Publish(context.WithoutCancel(ctx), sum.RunID, sum); err != nil {
		run.log.Warn("publish run event failed", slog.Any("err", err))
	}
}

func (m *Migrator) dialect() sqlgen.Dialect {
	if m.Dest != nil {
		return m.Dest.Dialect()
	}
	if m.Options.Dialect != nil {
		return m.Options.Dialect
	}
	return sqlgen.MSSQL{}
}

func (m *Migrator) destSchema() string {
	if m.Dest != nil {
		return m.Dest.Schema()
	}
	return m.Options.DestSchema
}

func (m *Migrator) logger() *slog.Logger {
	if m.Logger != nil {
		return m.Logger.With(slog.String("component", "migrate"))
	}
	return slog.Default().With(slog.String("component", "migrate"))
}
