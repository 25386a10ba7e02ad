package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"migrator/internal/cleanup"
	"migrator/internal/config"
	"migrator/internal/server"
	"migrator/internal/scope"
	"migrator/internal/storage"
	"migrator/internal/storage/hana"
)

func newPlanCommand(a *app) *cobra.Command {
	var document, date, warehouse string
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the cleanup statements a run would execute",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := scope.Parse(date, warehouse)
			if err != nil {
				return err
			}
			r := &runner{a: a}
			plan, err := r.Plan(document, sc)
			if err != nil {
				return err
			}
			return printPlan(cmd, a.opts.Format, plan)
		},
	}
	cmd.Flags().StringVarP(&document, "document", "d", "", "document type")
	cmd.Flags().StringVar(&date, "date", "", "business date YYYY-MM-DD")
	cmd.Flags().StringVarP(&warehouse, "warehouse", "w", "", "warehouse")
	_ = cmd.MarkFlagRequired("document")
	return cmd
}

func printPlan(cmd *cobra.Command, format string, plan cleanup.Plan) error {
	w := cmd.OutOrStdout()
	if format == "json" {
		return json.NewEncoder(w).Encode(struct {
			Document   string              `json:"document"`
			Scope      string              `json:"scope"`
			Statements []cleanup.Statement `json:"statements"`
			Shared     []string            `json:"shared,omitempty"`
		}{plan.Document, plan.Scope.String(), plan.Statements, plan.Shared})
	}
	fmt.Fprintf(w, "-- %s %s\n", plan.Document, plan.Scope)
	if len(plan.Shared) > 0 {
		fmt.Fprintf(w, "-- shared, not cleaned: %s\n", strings.Join(plan.Shared, ", "))
	}
	_, err := fmt.Fprint(w, plan.String())
	return err
}

func newValidateCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration, schema registry and query catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			issues := config.Validate(a.cfg)
			if a.cfg.Source.Kind == "hana" && a.cfg.Source.DSN != "" {
				if err := hana.ValidateDSN(a.cfg.Source.DSN); err != nil {
					issues = append(issues, config.Issue{Severity: config.SeverityError, Path: "source.dsn", Message: err.Error()})
				}
			}
			if q, err := a.catalog(); err != nil {
				issues = append(issues, config.Issue{Severity: config.SeverityError, Path: "queries.dir", Message: err.Error()})
			} else {
				for _, d := range a.registry.Documents() {
					if !q.Has(d) {
						issues = append(issues, config.Issue{Severity: config.SeverityWarning, Path: "queries", Message: "no extraction query for document " + d})
					}
				}
			}

			w := cmd.OutOrStdout()
			for _, iss := range issues {
				fmt.Fprintf(w, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
			}
			if config.HasErrors(issues) {
				return errors.New("configuration is invalid")
			}
			fmt.Fprintln(w, "configuration is valid")
			return nil
		},
	}
}

func newCheckCommand(a *app) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check connectivity to the source and destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			w := cmd.OutOrStdout()
			var errs []error

			sc := storage.Config{Kind: a.cfg.Source.Kind, DSN: a.cfg.Source.DSN, Schema: a.cfg.Source.Schema}
			if err := pingSource(ctx, a, sc); err != nil {
				fmt.Fprintf(w, "source (%s): %v\n", sc.Kind, err)
				errs = append(errs, fmt.Errorf("source: %w", err))
			} else {
				fmt.Fprintf(w, "source (%s): ok\n", sc.Kind)
			}

			dc := storage.Config{Kind: a.cfg.Destination.Kind, DSN: a.cfg.Destination.DSN, Schema: a.cfg.Destination.Schema}
			if err := pingDest(ctx, a, dc); err != nil {
				fmt.Fprintf(w, "destination (%s): %v\n", dc.Kind, err)
				errs = append(errs, fmt.Errorf("destination: %w", err))
			} else {
				fmt.Fprintf(w, "destination (%s): ok\n", dc.Kind)
			}
			return errors.Join(errs...)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "overall timeout")
	return cmd
}

func pingSource(ctx context.Context, a *app, cfg storage.Config) error {
	s, err := a.openSource(ctx, cfg)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.Ping(ctx)
}

func pingDest(ctx context.Context, a *app, cfg storage.Config) error {
	d, err := a.openDest(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Ping(ctx)
}

func newServeCommand(a *app) *cobra.Command {
	var (
		addr       string
		runTimeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			r, err := a.newRunner()
			if err != nil {
				return err
			}
			defer r.Close()
			flush := a.setupMetrics()
			defer flush()
			// a long-lived server pushes after every run, not only at exit
			r.afterRun = flush

			srv := server.New(server.Config{Addr: addr, RunTimeout: runTimeout}, r, a.log)
			return srv.ListenAndServe(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8000", "listen address")
	cmd.Flags().DurationVar(&runTimeout, "run-timeout", 30*time.Minute, "per-request migration timeout (0 for none)")
	return cmd
}

func newDocumentsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "documents",
		Short: "List document types and their load order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, name := range a.registry.Documents() {
				doc, err := a.registry.Document(name)
				if err != nil {
					return err
				}
				mode := "scoped"
				if doc.FullRefresh {
					mode = "full refresh"
				}
				fmt.Fprintf(w, "%-14s %-12s %s\n", name, mode, strings.Join(doc.LoadOrder(), " > "))
			}
			return nil
		},
	}
}
