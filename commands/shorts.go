package commands

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/report"
	"github.com/onnwee/chanstats/shorts"
	"github.com/onnwee/chanstats/snapshot"
	"github.com/onnwee/chanstats/youtubeapi"
)

var (
	shortsPeriod   *string
	shortsChannels *string
	shortsMetric   *string
)

func init() {
	shortsPeriod = shortsCollectCmd.Flags().String("period", "", "Period to collect (YYYY-MM or MM-YYYY). Defaults to the current month.")
	shortsChannels = shortsCollectCmd.Flags().String("channels", "", "Channel list CSV (overrides CHANNELS_FILE).")
	shortsMetric = shortsSummaryCmd.Flags().String("metric", "", "Draw only this trend: count, views, avg_views or engagement.")
	shortsCmd.AddCommand(shortsCollectCmd, shortsSummaryCmd)
	rootCmd.AddCommand(shortsCmd)
}

func shortsDir() string { return shorts.Dir(cfg.DataDir) }

var shortsCmd = &cobra.Command{
	Use:   "shorts",
	Short: "Collects short-form uploads and summarizes them month over month.",
}

var shortsCollectCmd = &cobra.Command{
	Use:   "collect [--period YYYY-MM]",
	Short: "Fetches every channel's uploads of the period and keeps the short-form ones.",
	RunE: func(cmd *cobra.Command, args []string) error {
		p := period.Now()
		if *shortsPeriod != "" {
			var err error
			if p, err = period.Parse(*shortsPeriod); err != nil {
				return err
			}
		}
		refs, err := youtubeapi.ReadChannelList(channelsFile(*shortsChannels))
		if err != nil {
			return err
		}
		client, err := newYouTubeClient(cmd, cfg)
		if err != nil {
			return err
		}

		sc := youtubeapi.NewShortsCollector(client, shortsDir(), client.Quota(), slog.Default())
		sc.Filter = metricsOptions().Live
		res, err := sc.Run(cmd.Context(), refs, p)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d shorts from %d channels, %d failed, %d quota units (%d search.list, %d videos.list)\n",
			res.Period.Label(), res.Shorts, res.Channels, len(res.Failed), res.QuotaUsed,
			res.Calls[youtubeapi.MethodSearchList], res.Calls[youtubeapi.MethodVideosList])
		if res.Channels == 0 && len(res.Failed) > 0 {
			return fmt.Errorf("every channel failed: %w", res.Failed[0])
		}
		return nil
	},
}

var shortsSummaryCmd = &cobra.Command{
	Use:   "summary [--metric name]",
	Short: "Writes the per-channel monthly shorts summary and its trend charts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		charts := shorts.Metrics
		if *shortsMetric != "" {
			m, err := shorts.ParseMetric(*shortsMetric)
			if err != nil {
				return err
			}
			charts = []shorts.Metric{m}
		}
		dir := shortsDir()
		videos, malformed, err := shorts.Load(dir)
		if err != nil {
			return err
		}
		snapshot.Diagnostics{Malformed: malformed}.Log(slog.Default())
		if len(videos) == 0 {
			return fmt.Errorf("no shorts exports in %s", dir)
		}

		sums := shorts.Summarize(videos)
		path := filepath.Join(dir, shorts.SummaryFile)
		if err := shorts.WriteSummary(path, sums); err != nil {
			return err
		}
		slog.Info("shorts summary written", slog.String("file", path), slog.Int("rows", len(sums)))

		for _, m := range charts {
			chartPath := filepath.Join(dir, "charts", string(m)+".png")
			series := shorts.Trend(sums, m)
			err := snapshot.WriteFileAtomic(chartPath, func(w io.Writer) error {
				return report.RenderLines(w, m.Title(), series)
			})
			if errors.Is(err, report.ErrNoData) {
				slog.Warn("shorts trend skipped", slog.String("metric", string(m)), slog.Any("err", err))
				continue
			}
			if err != nil {
				return err
			}
			slog.Info("shorts trend written", slog.String("file", chartPath))
		}

		t := report.NewTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Period", "Channel", "Shorts", "Views", "Avg views", "Engagement"})
		t.SetColumnConfigs([]table.ColumnConfig{
			{Number: 3, Align: text.AlignRight}, {Number: 4, Align: text.AlignRight},
			{Number: 5, Align: text.AlignRight}, {Number: 6, Align: text.AlignRight},
		})
		for _, s := range sums {
			t.AppendRow(table.Row{s.Period.String(), s.ChannelName, s.Count, s.Views, s.AvgViews, s.Engagement})
		}
		t.Render()
		return nil
	},
}
