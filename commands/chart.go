package commands

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/report"
	"github.com/onnwee/chanstats/snapshot"
)

var (
	chartPeriod  *string
	chartBy      *string
	chartTop     *int
	chartChannel *string
	chartOut     *string
)

func init() {
	chartPeriod = chartCmd.Flags().String("period", "", "Period to plot (YYYY-MM or MM-YYYY). Defaults to the latest on disk.")
	chartBy = chartCmd.Flags().String("by", "subscribers", "Metric to plot: subscribers, views, ratio or live_ratio.")
	chartTop = chartCmd.Flags().Int("top", -1, "Channels to plot (0 = all). Defaults to TOP_N.")
	chartChannel = chartCmd.Flags().String("channel", "", "Plot one channel's trend across periods instead of a ranking.")
	chartOut = chartCmd.Flags().String("out", "", "Output PNG path. Defaults to a file under REPORTS_DIR.")
	rootCmd.AddCommand(chartCmd)
}

var chartCmd = &cobra.Command{
	Use:   "chart [--by key] [--channel id] [--out file.png]",
	Short: "Draws a ranking bar chart of one period, or a channel's trend line.",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := metrics.ParseKey(*chartBy)
		if err != nil {
			return err
		}
		want, err := parsePeriodFlag(*chartPeriod)
		if err != nil {
			return err
		}
		rows, err := loadRows(cmd.Context())
		if err != nil {
			return err
		}

		var (
			path string
			draw func(io.Writer) error
		)
		if *chartChannel != "" {
			path = filepath.Join(cfg.ReportsDir, fmt.Sprintf("trend_%s_%s.png", *chartChannel, key))
			draw = func(w io.Writer) error { return report.RenderTrend(w, rows, *chartChannel, key) }
		} else {
			periods := metrics.Periods(rows)
			if len(periods) == 0 {
				return &snapshot.MissingSnapshotError{Dir: layout().ChannelsDir}
			}
			p := periods[len(periods)-1]
			if want != nil {
				if !slices.Contains(periods, *want) {
					return &snapshot.MissingSnapshotError{Period: *want, Dir: layout().ChannelsDir}
				}
				p = *want
			}
			top := report.Top(metrics.ForPeriod(rows, p), topFlag(*chartTop), key)
			path = filepath.Join(cfg.ReportsDir, fmt.Sprintf("chart_%s_%s.png", key, p))
			title := fmt.Sprintf("%s by %s", p.Label(), key)
			draw = func(w io.Writer) error { return report.RenderChart(w, top, key, title) }
		}
		if *chartOut != "" {
			path = *chartOut
		}
		if err := snapshot.WriteFileAtomic(path, draw); err != nil {
			return err
		}
		slog.Info("chart written", slog.String("file", path))
		return nil
	},
}
