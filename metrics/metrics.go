// Package metrics derives per-channel, per-period metric rows from loaded
// snapshots: ratios, growth against the previous observed period, engagement
// over a window of recent videos, live-view aggregates and within-period
// ranks. Every function here is pure; re-running Compute over the same
// history yields identical rows.
package metrics

import (
	"cmp"
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/onnwee/chanstats/snapshot"
)

// Places is the rounding precision of every ratio and percentage.
const Places = 4

// Ratio returns num/den rounded half away from zero to Places decimals, or 0
// when den is not positive.
func Ratio(num, den int64) float64 {
	if den <= 0 {
		return 0
	}
	return decimal.NewFromInt(num).DivRound(decimal.NewFromInt(den), Places).InexactFloat64()
}

// Round rounds f half away from zero to Places decimals. NaN and infinities
// become 0.
func Round(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return decimal.NewFromFloat(f).Round(Places).InexactFloat64()
}

// Growth compares cur to the channel's previous observed value. Without a
// predecessor both results are 0; a zero predecessor yields a delta and a 0
// percentage.
func Growth(prev, cur int64, hasPrev bool) (delta int64, pct float64) {
	if !hasPrev {
		return 0, 0
	}
	delta = cur - prev
	if prev == 0 {
		return delta, 0
	}
	pct = decimal.NewFromInt(delta).Mul(decimal.NewFromInt(100)).DivRound(decimal.NewFromInt(prev), Places).InexactFloat64()
	return delta, pct
}

// Engagement is (likes+comments)/views over the window most recent videos
// by publish time, ties broken by video id. A window <= 0 uses every video.
func Engagement(videos []snapshot.Video, window int) float64 {
	recent := Recent(videos, window)
	var interactions, views int64
	for _, v := range recent {
		interactions += v.Likes + v.Comments
		views += v.Views
	}
	return Ratio(interactions, views)
}

// Recent returns up to n videos, newest first. The input is not modified.
func Recent(videos []snapshot.Video, n int) []snapshot.Video {
	sorted := slices.Clone(videos)
	slices.SortStableFunc(sorted, func(a, b snapshot.Video) int {
		if c := b.PublishedAt.Compare(a.PublishedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// Rank assigns descending competition ranks: equal values share the lowest
// rank and the next distinct value resumes at its position, so [100 100 50]
// ranks [1 1 3]. NaN ranks as 0.
func Rank(values []float64) []int {
	clean := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			v = 0
		}
		clean[i] = v
	}
	order := make([]int, len(clean))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp.Compare(clean[b], clean[a]) })

	ranks := make([]int, len(clean))
	for pos, idx := range order {
		if pos > 0 && clean[idx] == clean[order[pos-1]] {
			ranks[idx] = ranks[order[pos-1]]
			continue
		}
		ranks[idx] = pos + 1
	}
	return ranks
}
