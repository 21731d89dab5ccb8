// Package commands implements the chanstats command line.
package commands

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/config"
	"github.com/onnwee/chanstats/db"
	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/telemetry"
)

// Version is stamped at build time with -ldflags "-X".
var Version = "dev"

var (
	cfg             *config.Config
	shutdownTracing func()

	dataDirFlag *string
	excludeFlag *string
)

var rootCmd = &cobra.Command{
	Use:          "chanstats",
	Short:        "chanstats snapshots YouTube channel statistics and ranks channels month over month.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if cmd.Flags().Changed("data-dir") {
			c.DataDir = *dataDirFlag
			if os.Getenv("REPORTS_DIR") == "" {
				c.ReportsDir = filepath.Join(c.DataDir, "reports")
			}
		}
		if *excludeFlag != "" {
			c.ExcludeChannels = append(c.ExcludeChannels, snapshot.ParseExcludeList(*excludeFlag)...)
		}
		cfg = c

		shutdown, err := telemetry.InitTracing("chanstats", Version, cfg.OTLPEndpoint)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		shutdownTracing = shutdown
		return nil
	},
}

func init() {
	dataDirFlag = rootCmd.PersistentFlags().String("data-dir", "data", "Root of the snapshot tree (overrides DATA_DIR).")
	excludeFlag = rootCmd.PersistentFlags().String("exclude", "", "Comma separated channel names to leave out, on top of EXCLUDE_CHANNELS.")
}

// ExecuteContext runs the command line and exits non-zero on failure.
func ExecuteContext(ctx context.Context) {
	err := rootCmd.ExecuteContext(ctx)
	if shutdownTracing != nil {
		shutdownTracing()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func layout() snapshot.Layout { return snapshot.DefaultLayout(cfg.DataDir) }

func excludeList() snapshot.ExcludeList { return snapshot.ExcludeList(cfg.ExcludeChannels) }

func metricsOptions() metrics.Options {
	return metrics.Options{
		EngagementWindow: cfg.EngagementWindow,
		Live:             metrics.LiveFilter{MinDuration: cfg.LiveMinDuration, RequireCompleted: true},
	}
}

// parsePeriodFlag returns nil for an empty value so readers fall back to the
// latest period on disk.
func parsePeriodFlag(s string) (*period.Period, error) {
	if s == "" {
		return nil, nil
	}
	p, err := period.Parse(s)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// loadRows computes every metric row from the snapshot tree.
func loadRows(ctx context.Context) ([]metrics.Row, error) {
	_, span := telemetry.StartSpan(ctx, "commands", "load_and_compute")
	defer span.End()

	loader := snapshot.NewLoader(layout(), excludeList(), slog.Default())
	var (
		h   *snapshot.History
		err error
	)
	d := telemetry.TimeFunc(telemetry.Stage("load"), func() { h, err = loader.Collect() })
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	h.Diagnostics.Log(slog.Default())

	var rows []metrics.Row
	telemetry.TimeFunc(telemetry.Stage("compute"), func() { rows = metrics.Compute(h, metricsOptions()) })
	telemetry.SetRowsComputed(len(rows))
	slog.Info("metrics computed",
		slog.Int("periods", len(h.Snapshots)),
		slog.Int("rows", len(rows)),
		slog.Duration("load_duration", d))
	telemetry.SetSpanSuccess(span)
	return rows, nil
}

// openDB connects and migrates when DB_DSN is set. A nil *sql.DB means
// persistence is disabled.
func openDB(ctx context.Context) (*sql.DB, error) {
	if cfg.DBDsn == "" {
		return nil, nil
	}
	database, err := db.Connect(cfg.DBDsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, err
	}
	return database, nil
}

// migrate prefers versioned migrations and falls back to the embedded schema.
func migrate(ctx context.Context, database *sql.DB) error {
	if err := db.RunMigrations(database); err != nil {
		slog.Warn("versioned migrations failed, applying embedded schema", slog.Any("err", err), slog.String("component", "db_migrate"))
		if err := db.Migrate(ctx, database); err != nil {
			return fmt.Errorf("migrate db: %w", err)
		}
	}
	return nil
}

func closeDB(database *sql.DB) {
	if database == nil {
		return
	}
	if err := database.Close(); err != nil {
		slog.Error("failed to close database", slog.Any("err", err))
	}
}
