// Package cli implements the migrator command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"migrator/internal/config"
	"migrator/internal/extract"
	"migrator/internal/logging"
	"migrator/internal/schema"
	"migrator/internal/storage"

	// register all backends with the storage factory.
	_ "migrator/internal/storage/all"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFiles   []string
	LogLevel   string
	LogFormat  string
	Format     string // "text" | "json"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// app carries what every command needs once flags are parsed. Fields are
// swapped by tests.
type app struct {
	opts     RootOptions
	cfg      *config.Config
	log      *slog.Logger
	closeLog func() error
	registry *schema.Registry

	getenv     func(string) string
	openSource func(ctx context.Context, cfg storage.Config) (storage.Source, error)
	openDest   func(ctx context.Context, cfg storage.Config) (storage.Destination, error)
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{
		registry:   schema.Builtin(),
		getenv:     os.Getenv,
		openSource: storage.OpenSource,
		openDest:   storage.OpenDestination,
	})
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrator",
		Short: "Idempotent SAP HANA to SQL Server document migration",
		Long: `migrator replaces the destination rows of a (document type, date, warehouse)
scope with a fresh copy extracted from the source. Re-running a scope yields the
same destination state.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if !isValidFormat(a.opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", a.opts.Format, ValidFormats)
			}
			return a.init(cmd)
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.closeLog != nil {
				return a.closeLog()
			}
			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&a.opts.ConfigPath, "config", "c", "", "config file (.yaml, .yml or .json)")
	pf.StringSliceVar(&a.opts.EnvFiles, "env-file", []string{".env"}, "dotenv files loaded before the config")
	pf.StringVar(&a.opts.LogLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	pf.StringVar(&a.opts.LogFormat, "log-format", "", "text|json (overrides config)")
	pf.StringVar(&a.opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newMigrateCommand(a))
	cmd.AddCommand(newPlanCommand(a))
	cmd.AddCommand(newValidateCommand(a))
	cmd.AddCommand(newCheckCommand(a))
	cmd.AddCommand(newServeCommand(a))
	cmd.AddCommand(newDocumentsCommand(a))
	return cmd
}

// init loads .env files and the config, then builds the logger.
func (a *app) init(cmd *cobra.Command) error {
	if err := config.LoadDotEnv(a.opts.EnvFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(a.opts.ConfigPath, a.getenv)
	if err != nil {
		return err
	}
	resolveHANA(cfg, a.getenv)
	if a.opts.LogLevel != "" {
		cfg.Log.Level = a.opts.LogLevel
	}
	if a.opts.LogFormat != "" {
		cfg.Log.Format = a.opts.LogFormat
	}
	a.cfg = cfg

	log, closeLog, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	a.log = log.With(slog.String("job", cfg.Job))
	a.closeLog = closeLog
	slog.SetDefault(a.log)
	return nil
}

// catalog returns the query catalog, honouring the configured override dir.
func (a *app) catalog() (*extract.Catalog, error) {
	return extract.Load(a.cfg.Queries.Dir)
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
