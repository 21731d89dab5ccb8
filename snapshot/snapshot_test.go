package snapshot

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/onnwee/chanstats/period"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDecodeChannelsCoercion(t *testing.T) {
	in := "channel_id,channel_title,subscribers,view_count,video_count\n" +
		"UC1,Alpha,1200.0,abc,\n" +
		"UC2,,-5,100,3\n" +
		",Nameless,1,1,1\n" +
		"UC1,Alpha again,1,1,1\n"
	p := period.MustParse("07-2025")
	tbl, err := DecodeChannels(strings.NewReader(in), "report_07-2025.csv", p)
	if err != nil {
		t.Fatalf("DecodeChannels: %v", err)
	}
	if len(tbl.Channels) != 2 {
		t.Fatalf("got %d channels, want 2", len(tbl.Channels))
	}
	a, b := tbl.Channels[0], tbl.Channels[1]
	if a.Subscribers != 1200 || a.Views != 0 || a.VideoCount != 0 {
		t.Errorf("UC1 counters = %d/%d/%d", a.Subscribers, a.Views, a.VideoCount)
	}
	if b.Name != "UC2" || b.Subscribers != 0 || b.Views != 100 {
		t.Errorf("UC2 = %+v", b)
	}
	if b.Period != p {
		t.Errorf("period = %v, want %v", b.Period, p)
	}
	var got []string
	for _, m := range tbl.Malformed {
		got = append(got, m.Column+"="+m.Value)
	}
	want := []string{"view_count=abc", "subscribers=-5", "channel_id=", "channel_id=UC1"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("malformed mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCount(t *testing.T) {
	tests := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"1200", 1200, true},
		{"1200.0", 1200, true},
		{"9223372036854775807", math.MaxInt64, true},
		{"9223372036854775808", 0, false},
		{"1e19", 0, false},
		{"-5", 0, false},
		{"NaN", 0, false},
		{"abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseCount(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseCount(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestDecodeChannelsOverflowIsMalformed(t *testing.T) {
	in := "channel_id,channel_title,subscribers,view_count\n" +
		"UC1,Alpha,9223372036854775808,1e19\n"
	tbl, err := DecodeChannels(strings.NewReader(in), "report_07-2025.csv", period.MustParse("2025-07"))
	if err != nil {
		t.Fatalf("DecodeChannels: %v", err)
	}
	if c := tbl.Channels[0]; c.Subscribers != 0 || c.Views != 0 {
		t.Errorf("counters = %d/%d, want 0/0", c.Subscribers, c.Views)
	}
	var got []string
	for _, m := range tbl.Malformed {
		got = append(got, m.Column+"="+m.Value)
	}
	want := []string{"subscribers=9223372036854775808", "view_count=1e19"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("malformed mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeChannelsLegacyHeaders(t *testing.T) {
	in := "\ufeffCanalID,Nombre,Suscriptores,VistasTotales,CantidadVideos,CantidadVivosMes\n" +
		"UC1,Canal Uno,10,20,3,2\n"
	tbl, err := DecodeChannels(strings.NewReader(in), "report_07-2025.csv", period.MustParse("07-2025"))
	if err != nil {
		t.Fatalf("DecodeChannels: %v", err)
	}
	if len(tbl.Channels) != 1 {
		t.Fatalf("got %d channels", len(tbl.Channels))
	}
	c := tbl.Channels[0]
	if c.ID != "UC1" || c.Name != "Canal Uno" || c.Subscribers != 10 || c.Views != 20 || c.VideoCount != 3 || c.LiveCount != 2 {
		t.Errorf("decoded = %+v", c)
	}
}

func TestDecodeChannelsCorrupt(t *testing.T) {
	tests := map[string]string{
		"empty":       "",
		"no identity": "channel_title,subscribers\nAlpha,1\n",
		"bad quoting": "channel_id,subscribers\n\"UC1,1\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeChannels(strings.NewReader(in), "x.csv", period.MustParse("07-2025"))
			if !errors.Is(err, ErrCorrupt) {
				t.Errorf("err = %v, want ErrCorrupt", err)
			}
		})
	}
}

func TestDecodeVideosFallbackChannel(t *testing.T) {
	in := "video_id,title,published_at,duration_sec,view_count,like_count,comment_count,live_status\n" +
		"v1,Stream,2025-07-03T20:00:00Z,3600,500,40,10,completed\n" +
		",missing id,,,,,,\n"
	videos, malformed, err := DecodeVideos(strings.NewReader(in), "videos_07-2025.csv", period.MustParse("07-2025"), "UC1")
	if err != nil {
		t.Fatalf("DecodeVideos: %v", err)
	}
	if len(videos) != 1 || len(malformed) != 1 {
		t.Fatalf("videos=%d malformed=%d", len(videos), len(malformed))
	}
	v := videos[0]
	if v.ChannelID != "UC1" || v.Duration != time.Hour || v.Views != 500 || v.LiveStatus != LiveCompleted {
		t.Errorf("video = %+v", v)
	}
	if !v.PublishedAt.Equal(time.Date(2025, 7, 3, 20, 0, 0, 0, time.UTC)) {
		t.Errorf("published = %v", v.PublishedAt)
	}
}

const channelsJuly = "channel_id,channel_title,subscribers,view_count,video_count\n" +
	"UC_A,Alpha,1000,5000,10\n" +
	"UC_X,Excluded Co,500,900,4\n"

func TestReadPeriodOrphanAndExclusion(t *testing.T) {
	dir := t.TempDir()
	layout := DefaultLayout(dir)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_07-2025.csv"), channelsJuly)
	writeFile(t, filepath.Join(layout.VideosDir, "channel_UC_A", "videos_07-2025.csv"),
		"channel_id,video_id,view_count\nUC_A,a1,100\nUC_C9,c1,999\n")
	writeFile(t, filepath.Join(layout.VideosDir, "canal_UC_X", "videos_07-2025.csv"),
		"channel_id,video_id,view_count\nUC_X,x1,50\n")
	writeFile(t, filepath.Join(layout.VideosDir, "channel_UC_A", "videos_06-2025.csv"),
		"channel_id,video_id,view_count\nUC_A,old,1\n")

	r := NewReader(layout, ParseExcludeList("excluded"), nil)
	p := period.MustParse("2025-07")
	snap, err := r.ReadPeriod(&p)
	if err != nil {
		t.Fatalf("ReadPeriod: %v", err)
	}
	if len(snap.Channels) != 1 || snap.Channels[0].ID != "UC_A" {
		t.Fatalf("channels = %+v", snap.Channels)
	}
	if got := snap.VideosFor("UC_A"); len(got) != 1 || got[0].ID != "a1" {
		t.Errorf("UC_A videos = %+v", got)
	}
	if snap.VideosFor("UC_C9") != nil || snap.VideosFor("UC_X") != nil {
		t.Error("orphan or excluded videos were attributed")
	}
	want := []OrphanVideo{{Period: p, ChannelID: "UC_C9", VideoID: "c1", File: filepath.Join(layout.VideosDir, "channel_UC_A", "videos_07-2025.csv")}}
	if diff := cmp.Diff(want, snap.Diagnostics.Orphans); diff != "" {
		t.Errorf("orphans mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"UC_X"}, snap.Diagnostics.Excluded); diff != "" {
		t.Errorf("excluded mismatch (-want +got):\n%s", diff)
	}
}

func TestReadPeriodMissing(t *testing.T) {
	dir := t.TempDir()
	layout := DefaultLayout(dir)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_07-2025.csv"), channelsJuly)
	r := NewReader(layout, nil, nil)
	p := period.MustParse("2025-08")
	_, err := r.ReadPeriod(&p)
	var missing *MissingSnapshotError
	if !errors.As(err, &missing) {
		t.Fatalf("err = %v, want *MissingSnapshotError", err)
	}
	if missing.Period != p || !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("missing = %+v", missing)
	}
}

func TestReadPeriodLatestIsChronological(t *testing.T) {
	dir := t.TempDir()
	layout := DefaultLayout(dir)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_9-2025.csv"), channelsJuly)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_10-2025.csv"), channelsJuly)
	snap, err := NewReader(layout, nil, nil).ReadPeriod(nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Period.String() != "2025-10" {
		t.Errorf("latest = %s, want 2025-10", snap.Period)
	}
}

func TestLoaderSkipsCorruptFile(t *testing.T) {
	dir := t.TempDir()
	layout := DefaultLayout(dir)
	for _, stamp := range []string{"05-2025", "06-2025", "08-2025"} {
		writeFile(t, filepath.Join(layout.ChannelsDir, "report_"+stamp+".csv"), channelsJuly)
	}
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_07-2025.csv"), "")

	l := NewLoader(layout, nil, nil)
	for pass := 0; pass < 2; pass++ {
		var got []string
		for p := range l.All() {
			got = append(got, p.String())
		}
		if diff := cmp.Diff([]string{"2025-05", "2025-06", "2025-08"}, got); diff != "" {
			t.Errorf("pass %d periods (-want +got):\n%s", pass, diff)
		}
		w := l.Warnings()
		if len(w) != 1 || w[0].Period.String() != "2025-07" || !errors.Is(w[0].Err, ErrCorrupt) {
			t.Errorf("pass %d warnings = %+v", pass, w)
		}
	}

	h, err := l.Collect()
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(h.Snapshots) != 3 || len(h.Diagnostics.Skipped) != 1 {
		t.Errorf("snapshots=%d skipped=%d", len(h.Snapshots), len(h.Diagnostics.Skipped))
	}
}

func TestLoaderStopsEarly(t *testing.T) {
	dir := t.TempDir()
	layout := DefaultLayout(dir)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_05-2025.csv"), channelsJuly)
	writeFile(t, filepath.Join(layout.ChannelsDir, "report_06-2025.csv"), "")
	l := NewLoader(layout, nil, nil)
	for range l.All() {
		break
	}
	if len(l.Warnings()) != 0 {
		t.Error("file after break must not be parsed")
	}
}

func TestLoaderCollectEmpty(t *testing.T) {
	_, err := NewLoader(DefaultLayout(t.TempDir()), nil, nil).Collect()
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("err = %v, want ErrNoSnapshot", err)
	}
}

func TestWriterRoundTripAndImmutability(t *testing.T) {
	dir := t.TempDir()
	layout := DefaultLayout(dir)
	w := NewWriter(layout)
	p := period.MustParse("2025-07")
	live := time.Date(2025, 7, 3, 20, 0, 0, 0, time.UTC)
	channels := []Channel{{
		Period: p, ID: "UC_A", Name: "Alpha", Subscribers: 1000, Views: 5000, VideoCount: 10, LiveCount: 2,
		LivePeriodicityDays: 3.5, FirstLive: live, LastLive: live.AddDate(0, 0, 7),
		Platforms: []string{"Twitch", "Instagram"},
	}}
	videos := []Video{{
		Period: p, ID: "a1", ChannelID: "UC_A", ChannelName: "Alpha", Title: "Live, again", PublishedAt: live,
		Duration: 90 * time.Minute, Views: 100, Likes: 7, Comments: 3, LiveStatus: LiveCompleted, MonthRank: 1,
	}}
	if _, err := w.WriteChannels(p, channels); err != nil {
		t.Fatalf("WriteChannels: %v", err)
	}
	if _, err := w.WriteVideos("UC_A", p, videos); err != nil {
		t.Fatalf("WriteVideos: %v", err)
	}

	snap, err := NewReader(layout, nil, nil).ReadPeriod(&p)
	if err != nil {
		t.Fatalf("ReadPeriod: %v", err)
	}
	if diff := cmp.Diff(channels, snap.Channels); diff != "" {
		t.Errorf("channels mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(videos, snap.VideosFor("UC_A")); diff != "" {
		t.Errorf("videos mismatch (-want +got):\n%s", diff)
	}
	if !snap.Diagnostics.Empty() {
		t.Errorf("unexpected diagnostics: %+v", snap.Diagnostics)
	}

	if _, err := w.WriteChannels(p, nil); !errors.Is(err, ErrSnapshotExists) {
		t.Errorf("overwrite err = %v, want ErrSnapshotExists", err)
	}
	w.Force = true
	if _, err := w.WriteChannels(p, nil); err != nil {
		t.Errorf("forced overwrite: %v", err)
	}
	entries, _ := os.ReadDir(layout.ChannelsDir)
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %d entries", len(entries))
	}
}

func TestWriterVideosOfUncommittedPeriod(t *testing.T) {
	layout := DefaultLayout(t.TempDir())
	w := NewWriter(layout)
	p := period.MustParse("2025-07")
	first := []Video{{Period: p, ID: "old", ChannelID: "UC_A", Views: 1}}
	second := []Video{{Period: p, ID: "new", ChannelID: "UC_A", Views: 2}}

	if _, err := w.WriteVideos("UC_A", p, first); err != nil {
		t.Fatalf("first WriteVideos: %v", err)
	}
	if _, err := w.WriteVideos("UC_A", p, second); err != nil {
		t.Fatalf("rewrite before the summary exists: %v", err)
	}
	if _, err := w.WriteChannels(p, []Channel{{Period: p, ID: "UC_A", Name: "Alpha"}}); err != nil {
		t.Fatalf("WriteChannels: %v", err)
	}
	if _, err := w.WriteVideos("UC_A", p, first); !errors.Is(err, ErrSnapshotExists) {
		t.Errorf("rewrite after commit err = %v, want ErrSnapshotExists", err)
	}

	snap, err := NewReader(layout, nil, nil).ReadPeriod(&p)
	if err != nil {
		t.Fatalf("ReadPeriod: %v", err)
	}
	got := snap.VideosFor("UC_A")
	if len(got) != 1 || got[0].ID != "new" {
		t.Errorf("videos = %+v, want the rewritten export", got)
	}
}

func TestExcludeListMatch(t *testing.T) {
	e := ParseExcludeList(" Foo , ,bar baz")
	tests := map[string]bool{"FOO": true, "The Foo Show": true, "Bar Baz": true, "bar": false, "": false}
	for name, want := range tests {
		if got := e.Match(name); got != want {
			t.Errorf("Match(%q) = %v, want %v", name, got, want)
		}
	}
}
