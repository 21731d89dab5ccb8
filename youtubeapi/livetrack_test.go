package youtubeapi

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestParseWindow(t *testing.T) {
	tests := []struct {
		in      string
		want    Window
		wantErr bool
	}{
		{"19:00-22:00", Window{Start: 19 * 60, End: 22 * 60}, false},
		{" 23:30 - 01:15 ", Window{Start: 23*60 + 30, End: 75}, false},
		{"", Window{}, false},
		{"19:00", Window{}, true},
		{"25:00-26:00", Window{}, true},
		{"19:xx-22:00", Window{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseWindow(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindow(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestWindowContains(t *testing.T) {
	clock := func(h, m int) time.Time { return time.Date(2025, 7, 1, h, m, 0, 0, time.UTC) }
	evening := Window{Start: 19 * 60, End: 22 * 60}
	overnight := Window{Start: 23 * 60, End: 60}
	tests := []struct {
		name string
		w    Window
		t    time.Time
		want bool
	}{
		{"before", evening, clock(18, 59), false},
		{"start", evening, clock(19, 0), true},
		{"end inclusive", evening, clock(22, 0), true},
		{"after", evening, clock(22, 1), false},
		{"overnight late", overnight, clock(23, 30), true},
		{"overnight early", overnight, clock(0, 45), true},
		{"overnight midday", overnight, clock(12, 0), false},
		{"all day", Window{}, clock(4, 0), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.w.Contains(tt.t); got != tt.want {
				t.Errorf("Contains(%s) = %v, want %v", tt.t.Format("15:04"), got, tt.want)
			}
		})
	}
}

type fakeLive map[string]LiveStatus

func (f fakeLive) LiveNow(_ context.Context, id string) (LiveStatus, error) {
	if id == "broken" {
		return LiveStatus{}, errors.New("unavailable")
	}
	return f[id], nil
}

func TestLiveTrackerPollAppends(t *testing.T) {
	dir := t.TempDir()
	src := fakeLive{"C1": {Live: true, VideoID: "v9", Title: "En vivo", ConcurrentViewers: 42}}
	channels := []ChannelRef{{ID: "C1", Name: "Canal Uno"}, {ID: "C2", Name: "Canal Dos"}, {ID: "broken", Name: "Roto"}}
	lt := NewLiveTracker(src, channels, dir, Window{}, time.Minute, nil)
	ts := time.Date(2025, 7, 1, 20, 0, 0, 0, time.UTC)
	lt.now = func() time.Time { return ts }

	for range 2 {
		live, err := lt.Poll(context.Background())
		if err != nil {
			t.Fatalf("Poll: %v", err)
		}
		if live != 1 {
			t.Errorf("live = %d, want 1", live)
		}
	}

	f, err := os.Open(filepath.Join(dir, "live_data_20250701.csv"))
	if err != nil {
		t.Fatalf("open tracking file: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read tracking file: %v", err)
	}
	stamp := "2025-07-01T20:00:00Z"
	row := [][]string{
		{stamp, "C1", "Canal Uno", StatusLive, "42", "En vivo"},
		{stamp, "C2", "Canal Dos", StatusOffline, "0", ""},
		{stamp, "broken", "Roto", StatusError, "0", ""},
	}
	want := append([][]string{LiveTrackHeader}, append(row, row...)...)
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("tracking file mismatch (-want +got):\n%s", diff)
	}
}

func TestLiveTrackerRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	lt := NewLiveTracker(fakeLive{}, []ChannelRef{{ID: "C1", Name: "Canal Uno"}}, dir, Window{}, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lt.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
