package commands

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/db"
	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/report"
	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/telemetry"
)

var (
	analyzePeriod   *string
	analyzeTop      *int
	analyzeBy       *string
	analyzeTemplate *string
	analyzeColumns  *string
	analyzeSave     *bool

	ratioPeriod *string
	ratioTop    *int
)

func init() {
	analyzePeriod = analyzeCmd.Flags().String("period", "", "Period to display (YYYY-MM or MM-YYYY). Defaults to the latest on disk.")
	analyzeTop = analyzeCmd.Flags().Int("top", -1, "Channels to display (0 = all). Defaults to TOP_N.")
	analyzeBy = analyzeCmd.Flags().String("by", "subscribers", "Ranking key: subscribers, views, ratio or live_ratio.")
	analyzeTemplate = analyzeCmd.Flags().String("template", "", "Also print a social-media text: summary, instagram or linkedin.")
	analyzeColumns = analyzeCmd.Flags().String("columns", "", "Comma separated table columns.")
	analyzeSave = analyzeCmd.Flags().Bool("save", true, "Replace the stored rows of every recomputed period in postgres when DB_DSN is set.")
	rootCmd.AddCommand(analyzeCmd)

	ratioPeriod = ratioCmd.Flags().String("period", "", "Period to rank (YYYY-MM or MM-YYYY). Defaults to the latest on disk.")
	ratioTop = ratioCmd.Flags().Int("top", -1, "Channels to display (0 = all). Defaults to TOP_N.")
	rootCmd.AddCommand(ratioCmd)
}

func topFlag(v int) int {
	if v < 0 {
		return cfg.TopN
	}
	return v
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze [--period YYYY-MM] [--by key] [--template name]",
	Short: "Computes derived metrics for every period and writes the metric reports.",
	Long: `Computes derived metrics for every period on disk, writes one
channel_metrics_YYYY-MM.csv per period plus channel_metrics_all.csv, and prints
the ranking of one period. Output files are replaced atomically; do not run two
analyze jobs over the same reports directory at once.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := metrics.ParseKey(*analyzeBy)
		if err != nil {
			return err
		}
		want, err := parsePeriodFlag(*analyzePeriod)
		if err != nil {
			return err
		}
		var tmpl report.Template
		if *analyzeTemplate != "" {
			if tmpl, err = report.ParseTemplate(*analyzeTemplate); err != nil {
				return err
			}
		}
		var cols []report.Column
		if *analyzeColumns != "" {
			if cols, err = report.LookupColumns(strings.Split(*analyzeColumns, ",")...); err != nil {
				return err
			}
		}

		rows, err := loadRows(cmd.Context())
		if err != nil {
			return err
		}
		periods := metrics.Periods(rows)
		if len(periods) == 0 {
			return &snapshot.MissingSnapshotError{Dir: layout().ChannelsDir}
		}
		target := periods[len(periods)-1]
		if want != nil {
			if !slices.Contains(periods, *want) {
				return &snapshot.MissingSnapshotError{Period: *want, Dir: layout().ChannelsDir}
			}
			target = *want
		}

		if err := writeMetricReports(rows, periods); err != nil {
			return err
		}

		if *analyzeSave {
			database, err := openDB(cmd.Context())
			if err != nil {
				return err
			}
			if database != nil {
				defer closeDB(database)
				if err := db.SaveRows(cmd.Context(), database, rows); err != nil {
					return err
				}
				slog.Info("metrics saved", slog.Int("rows", len(rows)))
			}
		}

		current := metrics.ForPeriod(rows, target)
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s, ranked by %s\n", target.Label(), key)
		report.RenderTable(out, report.Top(current, topFlag(*analyzeTop), key), cols)
		if tmpl != "" {
			text, err := report.RenderSummaryTextTop(current, tmpl, max(topFlag(*analyzeTop), 1))
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, text)
		}
		return nil
	},
}

func writeMetricReports(rows []metrics.Row, periods []period.Period) error {
	var err error
	telemetry.TimeFunc(telemetry.Stage("report"), func() {
		for _, p := range periods {
			if err = report.WriteCSV(report.MetricsFile(cfg.ReportsDir, p), metrics.ForPeriod(rows, p)); err != nil {
				return
			}
		}
		err = report.WriteCSV(report.AllMetricsFile(cfg.ReportsDir), rows)
	})
	if err != nil {
		return err
	}
	slog.Info("metric reports written", slog.String("dir", cfg.ReportsDir), slog.Int("periods", len(periods)))
	return nil
}

var ratioCmd = &cobra.Command{
	Use:   "ratio [--period YYYY-MM]",
	Short: "Ranks one period's channels by live views per subscriber.",
	RunE: func(cmd *cobra.Command, args []string) error {
		want, err := parsePeriodFlag(*ratioPeriod)
		if err != nil {
			return err
		}
		reader := snapshot.NewReader(layout(), excludeList(), slog.Default())
		snap, err := reader.ReadPeriod(want)
		if err != nil {
			return err
		}
		snap.Diagnostics.Log(slog.Default())

		h := &snapshot.History{Snapshots: []*snapshot.Snapshot{snap}, Diagnostics: snap.Diagnostics}
		ranked := report.Top(metrics.Compute(h, metricsOptions()), 0, metrics.KeyLiveRatio)
		path := report.LiveRatioFile(cfg.ReportsDir, snap.Period)
		if err := report.WriteColumnsCSV(path, ranked, report.LiveRatioColumns); err != nil {
			return err
		}
		slog.Info("live ratio report written", slog.String("file", path), slog.Int("channels", len(ranked)))

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s, live views per subscriber\n", snap.Period.Label())
		report.RenderTable(out, report.Top(ranked, topFlag(*ratioTop), metrics.KeyLiveRatio), report.LiveRatioColumns)
		return nil
	},
}
