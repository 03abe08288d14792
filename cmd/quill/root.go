package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/syssam/quill"
	"github.com/syssam/quill/config"
	"github.com/syssam/quill/dialect"
	"github.com/syssam/quill/dialect/sql"
	"github.com/syssam/quill/schema"
)

// Version is set at build time.
var Version = "dev"

type appKey struct{}

// app holds the state shared by all commands of one invocation. The
// database is opened on first use.
type app struct {
	cfg   *config.Config
	log   *slog.Logger
	conv  *schema.Conventions
	sess  *quill.Session
	stats *sql.StatsDriver
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "quill",
		Short: "SQL templates and convention-driven queries",
		Long: `quill resolves SQL templates with ?, ??, :name, ::name and &table
markers and runs them through a session with result caching.

Settings are read from quill.yaml, QUILL_* environment variables and flags.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			flags := cmd.Root().PersistentFlags()
			path, _ := flags.GetString("config")
			cfg, err := config.Load(path, flags)
			if err != nil {
				return err
			}
			level := slog.LevelWarn
			if cfg.Verbose {
				level = slog.LevelDebug
			}
			a := &app{
				cfg: cfg,
				log: slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})),
			}
			if cfg.File != "" {
				a.log.Debug("using config file", "path", cfg.File)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey{}, a))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			a, ok := cmd.Context().Value(appKey{}).(*app)
			if !ok {
				return nil
			}
			return a.close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())
	_ = root.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return config.Outputs, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("driver", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "postgres", "pgx", "mysql"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(
		newTokensCmd(),
		newResolveCmd(),
		newQueryCmd(),
		newConventionsCmd(),
	)
	return root
}

func appFrom(cmd *cobra.Command) *app {
	return cmd.Context().Value(appKey{}).(*app)
}

// conventions returns the configured conventions, or the defaults.
func (a *app) conventions() (*schema.Conventions, error) {
	if a.conv != nil {
		return a.conv, nil
	}
	if a.cfg.Conventions == "" {
		a.conv = schema.New()
		return a.conv, nil
	}
	conv, err := schema.LoadConventions(a.cfg.Conventions)
	if err != nil {
		return nil, err
	}
	a.conv = conv
	return conv, nil
}

// session opens the database and returns a session on it.
func (a *app) session() (*quill.Session, error) {
	if a.sess != nil {
		return a.sess, nil
	}
	conv, err := a.conventions()
	if err != nil {
		return nil, err
	}
	drv, err := sql.Open(a.cfg.Driver, a.cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", a.cfg.Driver, err)
	}
	if drv.Dialect() == dialect.SQLite {
		drv.DB().SetMaxOpenConns(1)
	}
	a.stats = sql.NewStatsDriver(drv, sql.WithSlowThreshold(a.cfg.SlowQuery), sql.WithStatsLogger(a.log))
	var d dialect.Driver = a.stats
	if a.cfg.Verbose {
		d = sql.NewDebugDriver(d, a.log)
	}
	a.sess = quill.New(d, quill.WithConventions(conv), quill.WithLogger(a.log))
	return a.sess, nil
}

func (a *app) close() error {
	if a.sess == nil {
		return nil
	}
	a.log.Debug("statements", "stats", a.stats.QueryStats().Snapshot().String())
	return a.sess.Close()
}
