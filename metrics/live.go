package metrics

import (
	"slices"
	"time"

	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/snapshot"
)

// DefaultMinDuration is the short-form cutoff: videos this long or shorter
// are not counted as live broadcasts.
const DefaultMinDuration = 60 * time.Second

// LiveFilter decides which videos count as live broadcasts.
type LiveFilter struct {
	// MinDuration excludes short-form videos (Duration <= MinDuration). A
	// zero Duration means the export had no duration column and passes.
	MinDuration time.Duration
	// RequireCompleted keeps only finished broadcasts. Exports without a
	// live_status column (empty status) only ever held completed lives and pass.
	RequireCompleted bool
}

// DefaultLiveFilter excludes shorts and anything not yet finished.
func DefaultLiveFilter() LiveFilter {
	return LiveFilter{MinDuration: DefaultMinDuration, RequireCompleted: true}
}

// Qualifies reports whether v is a live broadcast published within p.
func (f LiveFilter) Qualifies(v snapshot.Video, p period.Period) bool {
	if !p.Contains(v.PublishedAt) {
		return false
	}
	if f.ShortForm(v.Duration) {
		return false
	}
	if f.RequireCompleted && v.LiveStatus != "" && v.LiveStatus != snapshot.LiveCompleted {
		return false
	}
	return true
}

// ShortForm reports whether a video of duration d is at or under the cutoff.
// An unknown (zero) duration is never short-form.
func (f LiveFilter) ShortForm(d time.Duration) bool {
	return d > 0 && d <= f.MinDuration
}

// Lives returns the videos that qualify for p, in input order.
func (f LiveFilter) Lives(videos []snapshot.Video, p period.Period) []snapshot.Video {
	var out []snapshot.Video
	for _, v := range videos {
		if f.Qualifies(v, p) {
			out = append(out, v)
		}
	}
	return out
}

// LiveAggregate sums a channel's qualifying broadcasts in a period.
type LiveAggregate struct {
	Views      int64
	Broadcasts int
}

// LiveViews sums the views of the videos in p that pass f.
func LiveViews(videos []snapshot.Video, p period.Period, f LiveFilter) LiveAggregate {
	var agg LiveAggregate
	for _, v := range f.Lives(videos, p) {
		agg.Views += v.Views
		agg.Broadcasts++
	}
	return agg
}

// Periodicity returns how many start times were given and the mean gap in
// whole days between consecutive ones. Fewer than two yields a mean of 0.
func Periodicity(times []time.Time) (count int, meanDays float64) {
	var ts []time.Time
	for _, t := range times {
		if !t.IsZero() {
			ts = append(ts, t)
		}
	}
	if len(ts) < 2 {
		return len(ts), 0
	}
	slices.SortFunc(ts, time.Time.Compare)
	var total int64
	for i := 1; i < len(ts); i++ {
		total += int64(ts[i].Sub(ts[i-1]) / (24 * time.Hour))
	}
	return len(ts), Round(float64(total) / float64(len(ts)-1))
}
