// Package shorts stores the monthly short-form video exports and derives the
// per-channel monthly summary and trend series from them.
package shorts

import (
	"cmp"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/report"
	"github.com/onnwee/chanstats/snapshot"
)

const filePrefix = "shorts_"

// SummaryFile is the summary's name inside the shorts directory. It does not
// carry filePrefix so period scans never pick it up.
const SummaryFile = "summary_shorts.csv"

// Dir is <dataDir>/shorts.
func Dir(dataDir string) string { return filepath.Join(dataDir, "shorts") }

// File is <dir>/shorts_YYYY-MM.csv.
func File(dir string, p period.Period) string {
	return filepath.Join(dir, filePrefix+p.String()+".csv")
}

// URL is the public Shorts page of a video.
func URL(videoID string) string { return "https://youtube.com/shorts/" + videoID }

// Write replaces p's export with videos. Unlike channel snapshots a shorts
// export is recollected as a whole, so the file is never immutable.
func Write(dir string, p period.Period, videos []snapshot.Video) (string, error) {
	path := File(dir, p)
	if err := snapshot.WriteFileAtomic(path, func(w io.Writer) error {
		return snapshot.EncodeVideos(w, p, videos)
	}); err != nil {
		return "", fmt.Errorf("write shorts export: %w", err)
	}
	return path, nil
}

// Load reads every monthly export under dir in chronological order. A
// missing directory yields no videos.
func Load(dir string) ([]snapshot.Video, []snapshot.MalformedField, error) {
	idx, err := period.Scan(dir, filePrefix, ".csv")
	if err != nil {
		return nil, nil, err
	}
	var (
		videos    []snapshot.Video
		malformed []snapshot.MalformedField
	)
	for _, p := range idx.Periods() {
		path, _ := idx.Lookup(p)
		vs, bad, err := readFile(path, p)
		if err != nil {
			return nil, nil, err
		}
		videos = append(videos, vs...)
		malformed = append(malformed, bad...)
	}
	return videos, malformed, nil
}

func readFile(path string, p period.Period) ([]snapshot.Video, []snapshot.MalformedField, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open shorts export: %w", err)
	}
	defer f.Close()
	return snapshot.DecodeVideos(f, path, p, "")
}

// Summary aggregates one channel's shorts of one period.
type Summary struct {
	Period      period.Period
	ChannelID   string
	ChannelName string
	Count       int
	Views       int64
	Likes       int64
	Comments    int64
	AvgViews    float64
	Engagement  float64
}

// Summarize groups videos by channel and period, ordered by channel id and
// then chronologically. The channel name is the one of the latest period.
func Summarize(videos []snapshot.Video) []Summary {
	type key struct {
		channel string
		period  period.Period
	}
	groups := map[key][]snapshot.Video{}
	for _, v := range videos {
		k := key{v.ChannelID, v.Period}
		groups[k] = append(groups[k], v)
	}
	out := make([]Summary, 0, len(groups))
	for k, vs := range groups {
		s := Summary{Period: k.period, ChannelID: k.channel, ChannelName: k.channel, Count: len(vs)}
		for _, v := range vs {
			s.Views += v.Views
			s.Likes += v.Likes
			s.Comments += v.Comments
			if v.ChannelName != "" {
				s.ChannelName = v.ChannelName
			}
		}
		s.AvgViews = metrics.Ratio(s.Views, int64(s.Count))
		s.Engagement = metrics.Engagement(vs, 0)
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b Summary) int {
		if c := cmp.Compare(a.ChannelID, b.ChannelID); c != 0 {
			return c
		}
		return a.Period.Compare(b.Period)
	})
	names := map[string]string{}
	for _, s := range out {
		names[s.ChannelID] = s.ChannelName
	}
	for i := range out {
		out[i].ChannelName = names[out[i].ChannelID]
	}
	return out
}

var summaryHeader = []string{
	"period", "channel_id", "channel_name", "shorts", "views", "likes", "comments", "avg_views", "engagement_rate",
}

// WriteSummary replaces path with sums.
func WriteSummary(path string, sums []Summary) error {
	err := snapshot.WriteFileAtomic(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(summaryHeader); err != nil {
			return err
		}
		for _, s := range sums {
			rec := []string{
				s.Period.String(), s.ChannelID, s.ChannelName, strconv.Itoa(s.Count),
				strconv.FormatInt(s.Views, 10), strconv.FormatInt(s.Likes, 10), strconv.FormatInt(s.Comments, 10),
				strconv.FormatFloat(s.AvgViews, 'f', -1, 64), strconv.FormatFloat(s.Engagement, 'f', -1, 64),
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return fmt.Errorf("write shorts summary: %w", err)
	}
	return nil
}

// Metric is a plottable summary field.
type Metric string

const (
	MetricCount      Metric = "count"
	MetricViews      Metric = "views"
	MetricAvgViews   Metric = "avg_views"
	MetricEngagement Metric = "engagement"
)

// Metrics lists every trend chart drawn by default.
var Metrics = []Metric{MetricCount, MetricViews, MetricAvgViews, MetricEngagement}

// ParseMetric validates a metric name.
func ParseMetric(s string) (Metric, error) {
	m := Metric(s)
	if !slices.Contains(Metrics, m) {
		return "", fmt.Errorf("unknown shorts metric %q (want count, views, avg_views or engagement)", s)
	}
	return m, nil
}

// Value reads m from s.
func (m Metric) Value(s Summary) float64 {
	switch m {
	case MetricCount:
		return float64(s.Count)
	case MetricViews:
		return float64(s.Views)
	case MetricAvgViews:
		return s.AvgViews
	case MetricEngagement:
		return s.Engagement
	}
	return 0
}

// Title is the chart title for m.
func (m Metric) Title() string {
	switch m {
	case MetricCount:
		return "Shorts published per month"
	case MetricViews:
		return "Total Shorts views per month"
	case MetricAvgViews:
		return "Average views per Short"
	case MetricEngagement:
		return "Shorts engagement rate per month"
	}
	return string(m)
}

// Trend turns sums into one line per channel for m.
func Trend(sums []Summary, m Metric) []report.Series {
	var (
		out    []report.Series
		lastID string
	)
	for _, s := range sums {
		if len(out) == 0 || s.ChannelID != lastID {
			out = append(out, report.Series{Name: s.ChannelName})
			lastID = s.ChannelID
		}
		last := &out[len(out)-1]
		last.X = append(last.X, s.Period.Start())
		last.Y = append(last.Y, m.Value(s))
	}
	return out
}
