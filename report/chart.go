package report

import (
	"errors"
	"fmt"
	"io"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/onnwee/chanstats/metrics"
)

// ErrNoData is returned when there is nothing to plot.
var ErrNoData = errors.New("no data to chart")

// RenderChart draws a PNG bar chart of key over rows, in rank order.
func RenderChart(w io.Writer, rows []metrics.Row, key metrics.Key, title string) error {
	if len(rows) == 0 {
		return ErrNoData
	}
	ranked := Top(rows, 0, key)
	bars := make([]chart.Value, 0, len(ranked))
	var nonZero bool
	for _, r := range ranked {
		v := key.Value(r)
		nonZero = nonZero || v != 0
		bars = append(bars, chart.Value{Label: r.ChannelName, Value: v})
	}
	if !nonZero {
		return ErrNoData
	}
	graph := chart.BarChart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 40}},
		Width:      max(640, 90*len(bars)),
		Height:     512,
		BarWidth:   50,
		Bars:       bars,
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render bar chart: %w", err)
	}
	return nil
}

// RenderTrend draws one channel's key across periods as a PNG line chart.
func RenderTrend(w io.Writer, rows []metrics.Row, channelID string, key metrics.Key) error {
	history := metrics.ForChannel(rows, channelID)
	if len(history) < 2 {
		return fmt.Errorf("%w: channel %s has %d periods", ErrNoData, channelID, len(history))
	}
	xs := make([]time.Time, len(history))
	ys := make([]float64, len(history))
	for i, r := range history {
		xs[i] = r.Period.Start()
		ys[i] = key.Value(r)
	}
	graph := chart.Chart{
		Title:      fmt.Sprintf("%s: %s", history[len(history)-1].ChannelName, key),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20}},
		XAxis:      chart.XAxis{ValueFormatter: monthLabel},
		Series: []chart.Series{
			chart.TimeSeries{Name: string(key), XValues: xs, YValues: ys},
		},
	}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render trend chart: %w", err)
	}
	return nil
}

// Series is one named line of a multi-line chart.
type Series struct {
	Name string
	X    []time.Time
	Y    []float64
}

// RenderLines draws every series on one PNG line chart with a legend. It
// needs at least two distinct x values across the series.
func RenderLines(w io.Writer, title string, series []Series) error {
	var (
		lines      []chart.Series
		first      time.Time
		last       time.Time
		minY, maxY float64
	)
	for _, s := range series {
		if len(s.X) == 0 || len(s.X) != len(s.Y) {
			continue
		}
		for i, x := range s.X {
			y := s.Y[i]
			if len(lines) == 0 && i == 0 {
				first, last, minY, maxY = x, x, y, y
			}
			if x.Before(first) {
				first = x
			}
			if x.After(last) {
				last = x
			}
			minY, maxY = min(minY, y), max(maxY, y)
		}
		lines = append(lines, chart.TimeSeries{Name: s.Name, XValues: s.X, YValues: s.Y})
	}
	if len(lines) == 0 || !last.After(first) {
		return fmt.Errorf("%w: %q needs two periods", ErrNoData, title)
	}
	graph := chart.Chart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 20}},
		XAxis:      chart.XAxis{ValueFormatter: monthLabel},
		Series:     lines,
	}
	if minY == maxY {
		graph.YAxis.Range = &chart.ContinuousRange{Min: minY - 1, Max: maxY + 1}
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}
	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render line chart: %w", err)
	}
	return nil
}

func monthLabel(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.UTC().Format("Jan 06")
	case float64:
		return time.Unix(0, int64(t)).UTC().Format("Jan 06")
	default:
		return fmt.Sprint(v)
	}
}
