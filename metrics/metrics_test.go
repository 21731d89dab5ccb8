package metrics

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/snapshot"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		num, den int64
		want     float64
	}{
		{7200, 1200, 6},
		{1, 3, 0.3333},
		{2, 3, 0.6667},
		{1, 8, 0.125},
		{5, 0, 0},
		{5, -1, 0},
		{0, 10, 0},
	}
	for _, tt := range tests {
		if got := Ratio(tt.num, tt.den); got != tt.want {
			t.Errorf("Ratio(%d, %d) = %v, want %v", tt.num, tt.den, got, tt.want)
		}
	}
}

func TestRatioMatchesRoundedQuotient(t *testing.T) {
	for num := int64(0); num < 50; num++ {
		for den := int64(1); den < 50; den++ {
			want := math.Round(float64(num)/float64(den)*1e4) / 1e4
			if got := Ratio(num, den); math.Abs(got-want) > 1e-9 {
				t.Fatalf("Ratio(%d, %d) = %v, want %v", num, den, got, want)
			}
		}
	}
}

func TestGrowth(t *testing.T) {
	tests := []struct {
		name      string
		prev, cur int64
		hasPrev   bool
		wantDelta int64
		wantPct   float64
	}{
		{"first period", 0, 1200, false, 0, 0},
		{"views", 5000, 7200, true, 2200, 44},
		{"subscribers", 1000, 1200, true, 200, 20},
		{"decline", 300, 200, true, -100, -33.3333},
		{"zero predecessor", 0, 10, true, 10, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, pct := Growth(tt.prev, tt.cur, tt.hasPrev)
			if d != tt.wantDelta || pct != tt.wantPct {
				t.Errorf("Growth = (%d, %v), want (%d, %v)", d, pct, tt.wantDelta, tt.wantPct)
			}
		})
	}
}

func TestRank(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want []int
	}{
		{"ties share minimum", []float64{100, 100, 50}, []int{1, 1, 3}},
		{"unsorted input", []float64{50, 100, 75, 100}, []int{4, 1, 3, 1}},
		{"nan is zero", []float64{math.NaN(), 5, 0}, []int{2, 1, 2}},
		{"empty", nil, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, Rank(tt.in)); diff != "" {
				t.Errorf("Rank mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

var july = period.MustParse("2025-07")

func day(d int) time.Time { return time.Date(2025, 7, d, 20, 0, 0, 0, time.UTC) }

func live(id string, d int, views, likes, comments int64) snapshot.Video {
	return snapshot.Video{
		Period: july, ID: id, ChannelID: "UC_A", PublishedAt: day(d), Duration: time.Hour,
		Views: views, Likes: likes, Comments: comments, LiveStatus: snapshot.LiveCompleted,
	}
}

func TestEngagementWindow(t *testing.T) {
	videos := []snapshot.Video{
		live("old", 1, 1000, 0, 0),
		live("v2", 2, 100, 10, 0),
		live("v3", 3, 100, 10, 0),
		live("v4", 4, 100, 10, 0),
		live("v5", 5, 100, 5, 5),
		live("v6", 6, 100, 0, 10),
	}
	if got := Engagement(videos, 5); got != 0.1 {
		t.Errorf("window 5 = %v, want 0.1", got)
	}
	if got := Engagement(videos, 0); got != 0.0333 {
		t.Errorf("all videos = %v, want 0.0333", got)
	}
	if got := Engagement(nil, 5); got != 0 {
		t.Errorf("no videos = %v, want 0", got)
	}
	if videos[0].ID != "old" {
		t.Error("Engagement reordered its input")
	}
}

func TestRecentTieBreak(t *testing.T) {
	videos := []snapshot.Video{live("b", 3, 1, 0, 0), live("a", 3, 1, 0, 0), live("c", 1, 1, 0, 0)}
	got := Recent(videos, 2)
	if len(got) != 2 || got[0].ID != "a" || got[1].ID != "b" {
		t.Errorf("Recent = %v, %v", got[0].ID, got[1].ID)
	}
}

func TestLiveViewsFilter(t *testing.T) {
	short := live("short", 2, 5000, 0, 0)
	short.Duration = 45 * time.Second
	upcoming := live("upcoming", 3, 7000, 0, 0)
	upcoming.LiveStatus = snapshot.LiveUpcoming
	legacy := live("legacy", 4, 30, 0, 0)
	legacy.LiveStatus = ""
	legacy.Duration = 0
	june := live("june", 1, 900, 0, 0)
	june.PublishedAt = time.Date(2025, 6, 30, 23, 0, 0, 0, time.UTC)

	videos := []snapshot.Video{live("ok", 1, 100, 0, 0), short, upcoming, legacy, june}
	got := LiveViews(videos, july, DefaultLiveFilter())
	if got != (LiveAggregate{Views: 130, Broadcasts: 2}) {
		t.Errorf("LiveViews = %+v", got)
	}
	all := LiveViews(videos, july, LiveFilter{})
	if all.Broadcasts != 4 {
		t.Errorf("unfiltered broadcasts = %d, want 4", all.Broadcasts)
	}
}

func TestShortForm(t *testing.T) {
	f := DefaultLiveFilter()
	for d, want := range map[time.Duration]bool{
		0:                  false,
		45 * time.Second:   true,
		DefaultMinDuration: true,
		61 * time.Second:   false,
		time.Hour:          false,
	} {
		if got := f.ShortForm(d); got != want {
			t.Errorf("ShortForm(%v) = %v, want %v", d, got, want)
		}
	}
}

func TestPeriodicity(t *testing.T) {
	n, mean := Periodicity([]time.Time{day(8).Add(16 * time.Hour), day(1), day(4)})
	if n != 3 || mean != 3.5 {
		t.Errorf("Periodicity = (%d, %v), want (3, 3.5)", n, mean)
	}
	if n, mean := Periodicity([]time.Time{day(1)}); n != 1 || mean != 0 {
		t.Errorf("single = (%d, %v)", n, mean)
	}
}

func snap(p period.Period, channels ...snapshot.Channel) *snapshot.Snapshot {
	for i := range channels {
		channels[i].Period = p
	}
	return &snapshot.Snapshot{Period: p, Channels: channels, Videos: map[string][]snapshot.Video{}}
}

func TestComputeGrowthAndRatio(t *testing.T) {
	p1, p2 := period.MustParse("2025-06"), period.MustParse("2025-07")
	h := &snapshot.History{Snapshots: []*snapshot.Snapshot{
		// deliberately out of order
		snap(p2, snapshot.Channel{ID: "A", Name: "Alpha", Subscribers: 1200, Views: 7200}),
		snap(p1, snapshot.Channel{ID: "A", Name: "Alpha", Subscribers: 1000, Views: 5000}),
	}}
	rows := Compute(h, DefaultOptions())
	if len(rows) != 2 {
		t.Fatalf("got %d rows", len(rows))
	}
	first, second := rows[0], rows[1]
	if first.Period != p1 || first.ViewsGrowthPct != 0 || first.SubscribersDelta != 0 {
		t.Errorf("first period row = %+v", first)
	}
	if second.ViewsGrowthPct != 44.0 || second.ViewsDelta != 2200 {
		t.Errorf("views growth = %v (%d), want 44.0", second.ViewsGrowthPct, second.ViewsDelta)
	}
	if second.ViewsPerSubscriber != 6.0 {
		t.Errorf("ratio = %v, want 6.0", second.ViewsPerSubscriber)
	}
	if second.SubscribersGrowthPct != 20 {
		t.Errorf("subscriber growth = %v, want 20", second.SubscribersGrowthPct)
	}
}

func TestComputeGrowthSkipsUnobservedPeriods(t *testing.T) {
	h := &snapshot.History{Snapshots: []*snapshot.Snapshot{
		snap(period.MustParse("2025-05"), snapshot.Channel{ID: "A", Subscribers: 100}),
		snap(period.MustParse("2025-06"), snapshot.Channel{ID: "B", Subscribers: 1}),
		snap(period.MustParse("2025-07"), snapshot.Channel{ID: "A", Subscribers: 150}),
	}}
	rows := Compute(h, DefaultOptions())
	last := ForChannel(rows, "A")[1]
	if last.SubscribersDelta != 50 || last.SubscribersGrowthPct != 50 {
		t.Errorf("growth vs previous observed = %+v", last)
	}
}

func TestComputeSinglePeriodGrowthIsZero(t *testing.T) {
	h := &snapshot.History{Snapshots: []*snapshot.Snapshot{
		snap(july, snapshot.Channel{ID: "A", Subscribers: 10, Views: 10}, snapshot.Channel{ID: "B", Subscribers: 0, Views: 5}),
	}}
	for _, r := range Compute(h, DefaultOptions()) {
		if r.SubscribersDelta != 0 || r.SubscribersGrowthPct != 0 || r.ViewsDelta != 0 || r.ViewsGrowthPct != 0 {
			t.Errorf("%s: growth not zero: %+v", r.ChannelID, r)
		}
		if math.IsNaN(r.ViewsPerSubscriber) {
			t.Errorf("%s: NaN ratio", r.ChannelID)
		}
	}
}

func TestComputeRanksAndOrder(t *testing.T) {
	h := &snapshot.History{Snapshots: []*snapshot.Snapshot{
		snap(july,
			snapshot.Channel{ID: "C", Subscribers: 50, Views: 500},
			snapshot.Channel{ID: "B", Subscribers: 100, Views: 100},
			snapshot.Channel{ID: "A", Subscribers: 100, Views: 300},
		),
	}}
	rows := Compute(h, DefaultOptions())
	var ids []string
	var subs, views, ratio []int
	for _, r := range rows {
		ids = append(ids, r.ChannelID)
		subs = append(subs, r.RankSubscribers)
		views = append(views, r.RankViews)
		ratio = append(ratio, r.RankRatio)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, ids); diff != "" {
		t.Errorf("order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 1, 3}, subs); diff != "" {
		t.Errorf("subscriber ranks (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3, 1}, views); diff != "" {
		t.Errorf("view ranks (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{2, 3, 1}, ratio); diff != "" {
		t.Errorf("ratio ranks (-want +got):\n%s", diff)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	s := snap(july,
		snapshot.Channel{ID: "A", Subscribers: 100, Views: 300},
		snapshot.Channel{ID: "B", Subscribers: 100, Views: 100},
	)
	s.Videos["A"] = []snapshot.Video{live("v1", 2, 100, 5, 5), live("v2", 9, 50, 1, 0)}
	h := &snapshot.History{Snapshots: []*snapshot.Snapshot{s}}
	first := Compute(h, DefaultOptions())
	second := Compute(h, DefaultOptions())
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("re-run differs (-first +second):\n%s", diff)
	}
	a := first[0]
	if a.LiveViews != 150 || a.LiveBroadcasts != 2 || a.LiveRatio != 1.5 || a.EngagementRate != 0.0733 || a.LivePeriodicityDays != 7 {
		t.Errorf("live metrics = %+v", a)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestComputeFromSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	layout := snapshot.DefaultLayout(dir)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_07-2025.csv"),
		"channel_id,channel_title,subscribers,view_count\n"+
			"UC_A,Alpha,100,1000\n"+
			"UC_B,Bravo Network,200,1000\n"+
			"UC_C,Charlie,50,1000\n")
	const header = "channel_id,video_id,published_at,duration_sec,view_count,like_count,comment_count,live_status\n"
	writeFile(t, filepath.Join(layout.VideosDir, "channel_UC_A", "videos_07-2025.csv"), header+
		"UC_A,a1,2025-07-02T20:00:00Z,3600,100,1,1,completed\n"+
		"UC_C9,c1,2025-07-02T20:00:00Z,3600,999,1,1,completed\n")
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_08-2025.csv"), "")

	t.Run("orphan excluded from live sum", func(t *testing.T) {
		h, err := snapshot.NewLoader(layout, nil, nil).Collect()
		if err != nil {
			t.Fatal(err)
		}
		if len(h.Snapshots) != 1 || len(h.Diagnostics.Skipped) != 1 {
			t.Fatalf("snapshots=%d skipped=%d", len(h.Snapshots), len(h.Diagnostics.Skipped))
		}
		if len(h.Diagnostics.Orphans) != 1 || h.Diagnostics.Orphans[0].ChannelID != "UC_C9" {
			t.Errorf("orphans = %+v", h.Diagnostics.Orphans)
		}
		rows := Compute(h, DefaultOptions())
		for _, r := range rows {
			if r.ChannelID == "UC_C9" {
				t.Error("orphan channel produced a row")
			}
			if r.ChannelID == "UC_A" && r.LiveViews != 100 {
				t.Errorf("UC_A live views = %d, want 100", r.LiveViews)
			}
		}
	})

	t.Run("exclusion re-ranks", func(t *testing.T) {
		h, err := snapshot.NewLoader(layout, snapshot.ParseExcludeList("bravo"), nil).Collect()
		if err != nil {
			t.Fatal(err)
		}
		rows := Compute(h, DefaultOptions())
		got := map[string]int{}
		for _, r := range rows {
			got[r.ChannelID] = r.RankSubscribers
		}
		if diff := cmp.Diff(map[string]int{"UC_A": 1, "UC_C": 2}, got); diff != "" {
			t.Errorf("ranks after exclusion (-want +got):\n%s", diff)
		}
	})
}

func TestParseKey(t *testing.T) {
	if k, err := ParseKey(""); err != nil || k != KeySubscribers {
		t.Errorf("ParseKey(\"\") = %v, %v", k, err)
	}
	if k, err := ParseKey("live_ratio"); err != nil || k != KeyLiveRatio {
		t.Errorf("ParseKey(live_ratio) = %v, %v", k, err)
	}
	if _, err := ParseKey("likes"); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLatestAndPeriods(t *testing.T) {
	rows := []Row{
		{Period: period.MustParse("2025-10"), ChannelID: "A"},
		{Period: period.MustParse("2025-09"), ChannelID: "A"},
		{Period: period.MustParse("2025-10"), ChannelID: "B"},
	}
	if got := Periods(rows); len(got) != 2 || got[1].String() != "2025-10" {
		t.Errorf("Periods = %v", got)
	}
	if got := Latest(rows); len(got) != 2 {
		t.Errorf("Latest = %+v", got)
	}
	if Latest(nil) != nil {
		t.Error("Latest(nil) should be nil")
	}
}
