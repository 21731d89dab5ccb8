// Package report renders already computed metric rows: ranked selections,
// CSV files, terminal tables, social-media text and PNG charts. Nothing here
// recomputes a metric.
package report

import (
	"cmp"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
)

// Top orders rows by the precomputed rank for by, then channel id, and keeps
// the first n. n <= 0 keeps every row. The input is not modified.
func Top(rows []metrics.Row, n int, by metrics.Key) []metrics.Row {
	out := slices.Clone(rows)
	slices.SortStableFunc(out, func(a, b metrics.Row) int {
		if c := cmp.Compare(by.Rank(a), by.Rank(b)); c != 0 {
			return c
		}
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// Column is one output column of a metric row.
type Column struct {
	Name  string
	Title string
	value func(metrics.Row) string
}

// Value formats the column for r.
func (c Column) Value(r metrics.Row) string { return c.value(r) }

func intCol(name, title string, f func(metrics.Row) int64) Column {
	return Column{name, title, func(r metrics.Row) string { return strconv.FormatInt(f(r), 10) }}
}

func floatCol(name, title string, f func(metrics.Row) float64) Column {
	return Column{name, title, func(r metrics.Row) string { return strconv.FormatFloat(f(r), 'f', -1, 64) }}
}

// Columns is the derived-metrics file layout. New columns are only ever
// appended.
var Columns = []Column{
	{"period", "Period", func(r metrics.Row) string { return r.Period.String() }},
	{"channel_id", "Channel ID", func(r metrics.Row) string { return r.ChannelID }},
	{"channel_name", "Channel", func(r metrics.Row) string { return r.ChannelName }},
	intCol("subscribers", "Subscribers", func(r metrics.Row) int64 { return r.Subscribers }),
	intCol("views", "Views", func(r metrics.Row) int64 { return r.Views }),
	intCol("video_count", "Videos", func(r metrics.Row) int64 { return r.VideoCount }),
	intCol("live_count", "Lives", func(r metrics.Row) int64 { return r.LiveCount }),
	floatCol("views_per_subscriber", "Views/Sub", func(r metrics.Row) float64 { return r.ViewsPerSubscriber }),
	intCol("live_views", "Live views", func(r metrics.Row) int64 { return r.LiveViews }),
	intCol("live_broadcasts", "Broadcasts", func(r metrics.Row) int64 { return int64(r.LiveBroadcasts) }),
	floatCol("live_ratio", "Live ratio", func(r metrics.Row) float64 { return r.LiveRatio }),
	floatCol("engagement_rate", "Engagement", func(r metrics.Row) float64 { return r.EngagementRate }),
	floatCol("live_periodicity_days", "Every (days)", func(r metrics.Row) float64 { return r.LivePeriodicityDays }),
	intCol("subscribers_delta", "Subs Δ", func(r metrics.Row) int64 { return r.SubscribersDelta }),
	floatCol("subscribers_growth_pct", "Subs %", func(r metrics.Row) float64 { return r.SubscribersGrowthPct }),
	intCol("views_delta", "Views Δ", func(r metrics.Row) int64 { return r.ViewsDelta }),
	floatCol("views_growth_pct", "Views %", func(r metrics.Row) float64 { return r.ViewsGrowthPct }),
	intCol("rank_subscribers", "#Subs", func(r metrics.Row) int64 { return int64(r.RankSubscribers) }),
	intCol("rank_views", "#Views", func(r metrics.Row) int64 { return int64(r.RankViews) }),
	intCol("rank_ratio", "#Ratio", func(r metrics.Row) int64 { return int64(r.RankRatio) }),
	intCol("rank_live_ratio", "#Live", func(r metrics.Row) int64 { return int64(r.RankLiveRatio) }),
}

// LiveRatioColumns is the narrower layout of the live-ratio report.
var LiveRatioColumns = mustColumns("period", "channel_id", "channel_name", "subscribers", "live_views", "live_broadcasts", "live_ratio", "engagement_rate", "rank_live_ratio")

// DefaultTableColumns is what the terminal table shows when none are named.
var DefaultTableColumns = mustColumns("rank_subscribers", "channel_name", "subscribers", "subscribers_growth_pct", "views", "views_per_subscriber", "live_broadcasts", "live_ratio", "engagement_rate")

// LookupColumns resolves column names.
func LookupColumns(names ...string) ([]Column, error) {
	out := make([]Column, 0, len(names))
	for _, n := range names {
		i := slices.IndexFunc(Columns, func(c Column) bool { return c.Name == n })
		if i < 0 {
			return nil, fmt.Errorf("unknown column %q", n)
		}
		out = append(out, Columns[i])
	}
	return out, nil
}

func mustColumns(names ...string) []Column {
	cols, err := LookupColumns(names...)
	if err != nil {
		panic(err)
	}
	return cols
}

// Header returns the column names of cols.
func Header(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

// Record formats r for cols.
func Record(r metrics.Row, cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Value(r)
	}
	return out
}

// MetricsFile is <dir>/channel_metrics_YYYY-MM.csv.
func MetricsFile(dir string, p period.Period) string {
	return filepath.Join(dir, "channel_metrics_"+p.String()+".csv")
}

// AllMetricsFile is <dir>/channel_metrics_all.csv.
func AllMetricsFile(dir string) string {
	return filepath.Join(dir, "channel_metrics_all.csv")
}

// LiveRatioFile is <dir>/live_ratio_YYYY-MM.csv.
func LiveRatioFile(dir string, p period.Period) string {
	return filepath.Join(dir, "live_ratio_"+p.String()+".csv")
}
