package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

type migrateOptions struct {
	Documents  []string
	Date       string
	Warehouses []string
	Parallel   int
	DryRun     bool
}

func newMigrateCommand(a *app) *cobra.Command {
	opts := &migrateOptions{}
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Replace the destination rows of one or more scopes",
		Long: `Clean, extract, decompose and load every (document, warehouse) pair for the
given date. Up to --parallel runs execute at once. Runs sharing a root table
and date (any warehouse) or a root table without a date serialize on a scope
lock, so concurrency pays off across dates and document roots. Full-refresh
master documents (warehouse, item, batch, batch_location) run first.`,
		Example: `  migrator migrate -c migrator.yaml --document transfer --date 2025-06-01 --warehouse 15
  migrator migrate --document dispatch,sale --date 2025-06-01 --warehouse 01,02 --parallel 2
  migrator migrate --document all --date 2025-06-01 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd.Context(), a, opts, cmd)
		},
	}
	f := cmd.Flags()
	f.StringSliceVarP(&opts.Documents, "document", "d", nil, `document types ("all" for every type)`)
	f.StringVar(&opts.Date, "date", "", "business date YYYY-MM-DD (empty or * for all dates)")
	f.StringSliceVarP(&opts.Warehouses, "warehouse", "w", nil, "warehouses (empty or * for all)")
	f.IntVar(&opts.Parallel, "parallel", 0, "concurrent runs (overrides runtime.parallel)")
	f.BoolVar(&opts.DryRun, "dry-run", false, "plan, extract and decompose without writing")
	return cmd
}

func runMigrate(ctx context.Context, a *app, opts *migrateOptions, cmd *cobra.Command) error {
	first, rest, err := a.expandJobs(opts.Documents, opts.Date, opts.Warehouses)
	if err != nil {
		return err
	}
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = a.cfg.Runtime.Parallel
	}

	r, err := a.newRunner()
	if err != nil {
		return err
	}
	defer r.Close()
	flush := a.setupMetrics()
	defer flush()

	var (
		mu       sync.Mutex
		failures []error
	)
	run := func(j job) {
		sum, err := r.Migrate(ctx, j.Document, j.Scope, opts.DryRun)
		mu.Lock()
		defer mu.Unlock()
		if sum != nil {
			if perr := printSummary(cmd.OutOrStdout(), a.opts.Format, sum); perr != nil {
				a.log.Warn("print summary", slog.Any("err", perr))
			}
		}
		if err != nil {
			failures = append(failures, fmt.Errorf("%s %s: %w", j.Document, j.Scope, err))
		}
	}

	for _, j := range first {
		run(j)
	}

	var g errgroup.Group
	g.SetLimit(parallel)
	for _, j := range rest {
		g.Go(func() error {
			run(j)
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		a.log.Error("runs failed", slog.Int("failed", len(failures)), slog.Int("total", len(first)+len(rest)))
		return errors.Join(failures...)
	}
	a.log.Info("all runs committed", slog.Int("runs", len(first)+len(rest)), slog.Bool("dry_run", opts.DryRun))
	return nil
}
