package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"migrator/internal/cleanup"
	"migrator/internal/config"
	"migrator/internal/extract"
	"migrator/internal/metrics"
	"migrator/internal/metrics/datadog"
	"migrator/internal/metrics/prompush"
	"migrator/internal/migrate"
	"migrator/internal/notify"
	"migrator/internal/scope"
	"migrator/internal/scopelock"
	"migrator/internal/sqlgen"
	"migrator/internal/storage"
	"migrator/internal/storage/hana"
)

// runner opens connections per run and drives a migrate.Migrator. It is safe
// for concurrent use: runs share only the catalog, the locker and the event
// publisher.
type runner struct {
	a       *app
	queries *extract.Catalog
	locker  *scopelock.Locker
	events  notify.Publisher
	// afterRun, when set, runs once every Migrate returns (metrics push in
	// serve mode).
	afterRun func()
}

func (a *app) newRunner() (*runner, error) {
	queries, err := a.catalog()
	if err != nil {
		return nil, err
	}
	locker, err := scopelock.New(a.cfg.Lock.Dir)
	if err != nil {
		return nil, err
	}
	var events notify.Publisher = notify.Nop{}
	if k := a.cfg.Events.Kafka; len(k.Brokers) > 0 {
		pub, err := notify.NewKafka(notify.KafkaConfig{Brokers: k.Brokers, Topic: k.Topic})
		if err != nil {
			return nil, err
		}
		events = pub
	}
	return &runner{a: a, queries: queries, locker: locker, events: events}, nil
}

func (r *runner) Close() error { return r.events.Close() }

// Documents implements server.Runner.
func (r *runner) Documents() []string { return r.a.registry.Documents() }

// Plan implements server.Runner. It needs no connection.
func (r *runner) Plan(document string, sc scope.Scope) (cleanup.Plan, error) {
	doc, err := r.a.registry.Document(document)
	if err != nil {
		return cleanup.Plan{}, err
	}
	d, err := sqlgen.Lookup(r.a.cfg.Destination.Kind)
	if err != nil {
		return cleanup.Plan{}, err
	}
	p := cleanup.Planner{Registry: r.a.registry, Dialect: d, Schema: r.a.cfg.Destination.Schema}
	return p.BuildPlan(doc, sc)
}

// Migrate implements server.Runner: lock the scope, connect, run.
func (r *runner) Migrate(ctx context.Context, document string, sc scope.Scope, dryRun bool) (_ *migrate.Summary, err error) {
	if r.afterRun != nil {
		defer r.afterRun()
	}
	cfg := r.a.cfg
	doc, err := r.a.registry.Document(document)
	if err != nil {
		return nil, err
	}
	opts := r.options(dryRun)
	if dryRun {
		if opts.Dialect, err = sqlgen.Lookup(cfg.Destination.Kind); err != nil {
			return nil, err
		}
	}

	if !dryRun {
		var unlock func() error
		lockScope := sc
		if doc.FullRefresh {
			lockScope = scope.Scope{}
		}
		if unlock, err = r.locker.Lock(ctx, doc.Root, lockScope); err != nil {
			return nil, err
		}
		defer func() { err = errors.Join(err, unlock()) }()
	}

	src, err := r.a.openSource(ctx, storage.Config{Kind: cfg.Source.Kind, DSN: cfg.Source.DSN, Schema: cfg.Source.Schema})
	if err != nil {
		return nil, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	m := &migrate.Migrator{
		Registry: r.a.registry,
		Queries:  r.queries,
		Source:   src,
		Events:   r.events,
		Logger:   r.a.log,
		Options:  opts,
	}
	if !dryRun {
		dst, err := r.a.openDest(ctx, storage.Config{Kind: cfg.Destination.Kind, DSN: cfg.Destination.DSN, Schema: cfg.Destination.Schema})
		if err != nil {
			return nil, fmt.Errorf("open destination: %w", err)
		}
		defer dst.Close()
		m.Dest = dst
	}
	return m.Migrate(ctx, document, sc)
}

func (r *runner) options(dryRun bool) migrate.Options {
	cfg := r.a.cfg
	return migrate.Options{
		Job:              cfg.Job,
		SourceSchema:     cfg.Source.Schema,
		BatchSize:        cfg.Runtime.BatchSize,
		EntityBatchSizes: cfg.Runtime.EntityBatchSizes,
		CommitPerEntity:  cfg.Runtime.CommitPerEntity,
		MultiRowInsert:   cfg.Runtime.MultiRowInsert,
		ErrorSamples:     cfg.Runtime.ErrorSamples,
		DryRun:           dryRun,
		DestSchema:       cfg.Destination.Schema,
	}
}

// setupMetrics installs the configured backend and returns its flush.
func (a *app) setupMetrics() func() {
	m := a.cfg.Metrics
	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(a.cfg.Job, m.PushgatewayURL)
		if err != nil {
			a.log.Warn("metrics: prometheus backend unavailable; using nop", slog.Any("err", err))
			return func() {}
		}
		metrics.SetBackend(b)
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  "migrator.",
			GlobalTags: []string{"job:" + a.cfg.Job},
		})
		if err != nil {
			a.log.Warn("metrics: datadog backend unavailable; using nop", slog.Any("err", err))
			return func() {}
		}
		metrics.SetBackend(b)
	default:
		a.log.Debug("metrics disabled", slog.String("backend", m.Backend))
		return func() {}
	}
	a.log.Debug("metrics enabled", slog.String("backend", m.Backend))
	return func() {
		if err := metrics.Flush(); err != nil {
			a.log.Warn("metrics: flush error", slog.Any("err", err))
		}
	}
}

// resolveHANA builds the source DSN from the discrete HANA_* variables the
// legacy .env files carry when no DSN is configured.
func resolveHANA(cfg *config.Config, getenv func(string) string) {
	if cfg.Source.Kind != "hana" || cfg.Source.DSN != "" || getenv("HANA_HOST") == "" {
		return
	}
	port := getenv("HANA_PORT")
	if port == "" {
		port = "30015"
	}
	cfg.Source.DSN = hana.DSN(getenv("HANA_HOST"), port, getenv("HANA_USER"), getenv("HANA_PASS"))
}

// job is one (document, scope) run requested on the command line.
type job struct {
	Document string
	Scope    scope.Scope
}

// expandJobs crosses documents with warehouses. Full-refresh documents (the
// masters) run once each, first, since scoped documents load against them.
func (a *app) expandJobs(documents []string, date string, warehouses []string) (first, rest []job, err error) {
	if len(documents) == 0 {
		return nil, nil, errors.New("at least one --document is required")
	}
	if len(documents) == 1 && documents[0] == "all" {
		documents = a.registry.Documents()
	}
	if len(warehouses) == 0 {
		warehouses = []string{scope.All}
	}
	seen := map[string]bool{}
	for _, name := range documents {
		doc, err := a.registry.Document(name)
		if err != nil {
			return nil, nil, err
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		if doc.FullRefresh {
			// The date only filters the extraction (batch expiry); the
			// whole table is reloaded regardless.
			sc, err := scope.Parse(date, "")
			if err != nil {
				return nil, nil, err
			}
			first = append(first, job{Document: name, Scope: sc})
			continue
		}
		for _, w := range warehouses {
			sc, err := scope.Parse(date, w)
			if err != nil {
				return nil, nil, err
			}
			rest = append(rest, job{Document: name, Scope: sc})
		}
	}
	sort.SliceStable(first, func(i, j int) bool { return first[i].Document < first[j].Document })
	return first, rest, nil
}
