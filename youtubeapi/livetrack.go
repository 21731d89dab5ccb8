package youtubeapi

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chanstats/telemetry"
)

// Tracker row statuses.
const (
	StatusLive    = "live"
	StatusOffline = "offline"
	StatusError   = "error"
)

// LiveTrackHeader is the header of a live_data_YYYYMMDD.csv file.
var LiveTrackHeader = []string{"Timestamp", "ChannelID", "Channel", "Status", "ConcurrentViewers", "Title"}

// LiveSource is the part of Client the tracker depends on.
type LiveSource interface {
	LiveNow(ctx context.Context, channelID string) (LiveStatus, error)
}

// Window is a daily time-of-day range in minutes after midnight. End before
// Start wraps past midnight; a zero Window covers the whole day.
type Window struct {
	Start int
	End   int
}

// ParseWindow parses "HH:MM-HH:MM". An empty string is the whole day.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Window{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	return Window{Start: start, End: end}, nil
}

func parseClock(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("bad clock %q", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil || hh < 0 || hh > 23 {
		return 0, fmt.Errorf("bad hour %q", h)
	}
	mm, err := strconv.Atoi(m)
	if err != nil || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("bad minute %q", m)
	}
	return hh*60 + mm, nil
}

// Contains reports whether t's local clock time falls inside the window.
// The end minute is inclusive so a 19:00-22:00 window polls at 22:00.
func (w Window) Contains(t time.Time) bool {
	if w.Start == w.End {
		return true
	}
	m := t.Hour()*60 + t.Minute()
	if w.Start < w.End {
		return m >= w.Start && m <= w.End
	}
	return m >= w.Start || m <= w.End
}

func (w Window) String() string {
	if w.Start == w.End {
		return "all day"
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.Start/60, w.Start%60, w.End/60, w.End%60)
}

// LiveTracker samples the live status of a channel list on an interval and
// appends one row per channel to a daily CSV file.
type LiveTracker struct {
	src      LiveSource
	channels []ChannelRef
	dir      string
	window   Window
	interval time.Duration
	now      func() time.Time
	log      *slog.Logger
}

// NewLiveTracker writes to dir (usually <dataDir>/live_tracking).
func NewLiveTracker(src LiveSource, channels []ChannelRef, dir string, window Window, interval time.Duration, logger *slog.Logger) *LiveTracker {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	return &LiveTracker{
		src:      src,
		channels: channels,
		dir:      dir,
		window:   window,
		interval: interval,
		now:      time.Now,
		log:      logger.With(slog.String("component", "live_tracker")),
	}
}

// DayFile is the tracking file for t's local date.
func (lt *LiveTracker) DayFile(t time.Time) string {
	return filepath.Join(lt.dir, "live_data_"+t.Format("20060102")+".csv")
}

// Poll checks every channel once and appends the results. A failing channel
// is recorded with the error status and does not stop the poll. It returns
// how many channels were live.
func (lt *LiveTracker) Poll(ctx context.Context) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "live_tracker", "poll")
	defer span.End()

	ts := lt.now()
	rows := make([][]string, 0, len(lt.channels))
	live := 0
	for _, ch := range lt.channels {
		if err := ctx.Err(); err != nil {
			return live, err
		}
		st, err := lt.src.LiveNow(ctx, ch.ID)
		status := StatusOffline
		switch {
		case err != nil:
			status = StatusError
			lt.log.Warn("live status check failed", slog.String("channel_id", ch.ID), slog.Any("err", err))
		case st.Live:
			status = StatusLive
			live++
		}
		rows = append(rows, []string{
			ts.Format(time.RFC3339), ch.ID, ch.Name, status,
			strconv.FormatInt(st.ConcurrentViewers, 10), st.Title,
		})
	}
	if err := lt.appendRows(lt.DayFile(ts), rows); err != nil {
		telemetry.RecordError(span, err)
		return live, err
	}
	telemetry.SetChannelsLiveNow(live)
	lt.log.Info("live poll recorded", slog.Int("channels", len(rows)), slog.Int("live", live))
	return live, nil
}

func (lt *LiveTracker) appendRows(path string, rows [][]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tracking dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open tracking file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat tracking file: %w", err)
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(LiveTrackHeader); err != nil {
			return err
		}
	}
	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("append tracking rows: %w", err)
	}
	return f.Sync()
}

// Run polls immediately and then on every interval tick while the clock is
// inside the window, until ctx is cancelled. Poll errors are logged.
func (lt *LiveTracker) Run(ctx context.Context) error {
	lt.log.Info("live tracker started",
		slog.Int("channels", len(lt.channels)),
		slog.String("window", lt.window.String()),
		slog.Duration("interval", lt.interval))
	ticker := time.NewTicker(lt.interval)
	defer ticker.Stop()
	for {
		if lt.window.Contains(lt.now()) {
			if _, err := lt.Poll(ctx); err != nil && ctx.Err() == nil {
				lt.log.Error("live poll failed", slog.Any("err", err))
			}
		} else {
			lt.log.Debug("outside tracking window", slog.String("window", lt.window.String()))
		}
		select {
		case <-ctx.Done():
			lt.log.Info("live tracker stopped")
			return nil
		case <-ticker.C:
		}
	}
}
