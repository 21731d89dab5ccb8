package metrics

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/snapshot"
)

// Row is the derived metric row for one channel in one period.
type Row struct {
	Period               period.Period `json:"period"`
	ChannelID            string        `json:"channel_id"`
	ChannelName          string        `json:"channel_name"`
	Subscribers          int64         `json:"subscribers"`
	Views                int64         `json:"views"`
	VideoCount           int64         `json:"video_count"`
	LiveCount            int64         `json:"live_count"`
	ViewsPerSubscriber   float64       `json:"views_per_subscriber"`
	LiveViews            int64         `json:"live_views"`
	LiveBroadcasts       int           `json:"live_broadcasts"`
	LiveRatio            float64       `json:"live_ratio"`
	EngagementRate       float64       `json:"engagement_rate"`
	LivePeriodicityDays  float64       `json:"live_periodicity_days"`
	SubscribersDelta     int64         `json:"subscribers_delta"`
	SubscribersGrowthPct float64       `json:"subscribers_growth_pct"`
	ViewsDelta           int64         `json:"views_delta"`
	ViewsGrowthPct       float64       `json:"views_growth_pct"`
	RankSubscribers      int           `json:"rank_subscribers"`
	RankViews            int           `json:"rank_views"`
	RankRatio            int           `json:"rank_ratio"`
	RankLiveRatio        int           `json:"rank_live_ratio"`
}

// Key selects a rankable metric.
type Key string

const (
	KeySubscribers Key = "subscribers"
	KeyViews       Key = "views"
	KeyRatio       Key = "ratio"
	KeyLiveRatio   Key = "live_ratio"
)

// Keys lists every rankable metric.
var Keys = []Key{KeySubscribers, KeyViews, KeyRatio, KeyLiveRatio}

// ParseKey accepts a Key name; empty means KeySubscribers.
func ParseKey(s string) (Key, error) {
	if s == "" {
		return KeySubscribers, nil
	}
	k := Key(s)
	if !slices.Contains(Keys, k) {
		return "", fmt.Errorf("unknown metric %q (want one of %v)", s, Keys)
	}
	return k, nil
}

// Value returns the metric value k ranks on.
func (k Key) Value(r Row) float64 {
	switch k {
	case KeyViews:
		return float64(r.Views)
	case KeyRatio:
		return r.ViewsPerSubscriber
	case KeyLiveRatio:
		return r.LiveRatio
	default:
		return float64(r.Subscribers)
	}
}

// Rank returns the precomputed within-period rank for k.
func (k Key) Rank(r Row) int {
	switch k {
	case KeyViews:
		return r.RankViews
	case KeyRatio:
		return r.RankRatio
	case KeyLiveRatio:
		return r.RankLiveRatio
	default:
		return r.RankSubscribers
	}
}

// Options parameterizes Compute.
type Options struct {
	// EngagementWindow is how many of the period's most recent live
	// broadcasts feed the engagement rate; <= 0 uses all of them.
	EngagementWindow int
	Live             LiveFilter
}

// DefaultOptions uses a five-video engagement window and the default live filter.
func DefaultOptions() Options {
	return Options{EngagementWindow: 5, Live: DefaultLiveFilter()}
}

// RankBy ranks rows by key; rows are expected to share a period.
func RankBy(rows []Row, key Key) []int {
	values := make([]float64, len(rows))
	for i, r := range rows {
		values[i] = key.Value(r)
	}
	return Rank(values)
}

// Compute derives every metric row of h. Periods are processed in
// chronological order so growth always compares against the channel's
// previous observed period. Rows come back ordered by period, then
// subscriber rank, then channel id.
func Compute(h *snapshot.History, opts Options) []Row {
	if h == nil {
		return nil
	}
	snaps := slices.Clone(h.Snapshots)
	slices.SortStableFunc(snaps, func(a, b *snapshot.Snapshot) int { return a.Period.Compare(b.Period) })

	prev := map[string]Row{}
	var out []Row
	for _, s := range snaps {
		rows := make([]Row, 0, len(s.Channels))
		for _, c := range s.Channels {
			last, seen := prev[c.ID]
			rows = append(rows, channelRow(s.Period, c, s.VideosFor(c.ID), last, seen, opts))
		}
		rankPeriod(rows)
		for _, r := range rows {
			prev[r.ChannelID] = r
		}
		out = append(out, rows...)
	}
	SortRows(out)
	return out
}

func channelRow(p period.Period, c snapshot.Channel, videos []snapshot.Video, last Row, seen bool, opts Options) Row {
	lives := opts.Live.Lives(videos, p)
	agg := LiveViews(lives, p, opts.Live)

	starts := make([]time.Time, 0, len(lives))
	for _, v := range lives {
		starts = append(starts, v.PublishedAt)
	}
	periodicity := Round(c.LivePeriodicityDays)
	if n, mean := Periodicity(starts); n > 0 {
		periodicity = mean
	}

	r := Row{
		Period:              p,
		ChannelID:           c.ID,
		ChannelName:         c.Name,
		Subscribers:         c.Subscribers,
		Views:               c.Views,
		VideoCount:          c.VideoCount,
		LiveCount:           c.LiveCount,
		ViewsPerSubscriber:  Ratio(c.Views, c.Subscribers),
		LiveViews:           agg.Views,
		LiveBroadcasts:      agg.Broadcasts,
		LiveRatio:           Ratio(agg.Views, c.Subscribers),
		EngagementRate:      Engagement(lives, opts.EngagementWindow),
		LivePeriodicityDays: periodicity,
	}
	r.SubscribersDelta, r.SubscribersGrowthPct = Growth(last.Subscribers, c.Subscribers, seen)
	r.ViewsDelta, r.ViewsGrowthPct = Growth(last.Views, c.Views, seen)
	return r
}

func rankPeriod(rows []Row) {
	subs := RankBy(rows, KeySubscribers)
	views := RankBy(rows, KeyViews)
	ratio := RankBy(rows, KeyRatio)
	live := RankBy(rows, KeyLiveRatio)
	for i := range rows {
		rows[i].RankSubscribers = subs[i]
		rows[i].RankViews = views[i]
		rows[i].RankRatio = ratio[i]
		rows[i].RankLiveRatio = live[i]
	}
}

// SortRows orders rows by period, subscriber rank, then channel id.
func SortRows(rows []Row) {
	slices.SortStableFunc(rows, func(a, b Row) int {
		if c := a.Period.Compare(b.Period); c != 0 {
			return c
		}
		if c := cmp.Compare(a.RankSubscribers, b.RankSubscribers); c != 0 {
			return c
		}
		return cmp.Compare(a.ChannelID, b.ChannelID)
	})
}

// Periods lists the distinct periods of rows in chronological order.
func Periods(rows []Row) []period.Period {
	var out []period.Period
	for _, r := range rows {
		if !slices.Contains(out, r.Period) {
			out = append(out, r.Period)
		}
	}
	slices.SortFunc(out, period.Period.Compare)
	return out
}

// ForPeriod returns the rows of p, keeping their order.
func ForPeriod(rows []Row, p period.Period) []Row {
	var out []Row
	for _, r := range rows {
		if r.Period == p {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the rows of the most recent period.
func Latest(rows []Row) []Row {
	ps := Periods(rows)
	if len(ps) == 0 {
		return nil
	}
	return ForPeriod(rows, ps[len(ps)-1])
}

// ForChannel returns one channel's rows across periods.
func ForChannel(rows []Row, channelID string) []Row {
	var out []Row
	for _, r := range rows {
		if r.ChannelID == channelID {
			out = append(out, r)
		}
	}
	slices.SortStableFunc(out, func(a, b Row) int { return a.Period.Compare(b.Period) })
	return out
}
