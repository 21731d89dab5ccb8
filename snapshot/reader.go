package snapshot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/telemetry"
)

// Reader loads a single period: its channel-summary file plus every video
// export found under the per-channel directories.
type Reader struct {
	layout  Layout
	exclude ExcludeList
	log     *slog.Logger
}

// NewReader returns a Reader. A nil logger uses slog.Default().
func NewReader(layout Layout, exclude ExcludeList, logger *slog.Logger) *Reader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{layout: layout, exclude: exclude, log: logger.With(slog.String("component", "snapshot"))}
}

// Layout returns the reader's file layout.
func (r *Reader) Layout() Layout { return r.layout }

// Index scans the channel-summary directory.
func (r *Reader) Index() (*period.Index, error) {
	return period.Scan(r.layout.ChannelsDir, r.layout.ChannelPrefix, ".csv")
}

// ReadPeriod loads the snapshot for p, or for the latest indexed period when
// p is nil. A missing channel-summary file is a *MissingSnapshotError.
func (r *Reader) ReadPeriod(p *period.Period) (*Snapshot, error) {
	idx, err := r.Index()
	if err != nil {
		return nil, err
	}
	var target period.Period
	if p == nil {
		latest, ok := idx.Latest()
		if !ok {
			return nil, &MissingSnapshotError{Dir: r.layout.ChannelsDir}
		}
		target = latest
	} else {
		target = *p
	}
	path, ok := idx.Lookup(target)
	if !ok {
		return nil, &MissingSnapshotError{Period: target, Dir: r.layout.ChannelsDir}
	}
	t, err := r.readTable(target, path)
	if err != nil {
		return nil, err
	}
	snap := r.join(t)
	telemetry.RecordDiagnostics(len(snap.Diagnostics.Malformed), len(snap.Diagnostics.Orphans))
	return snap, nil
}

// readTable parses one channel-summary file and drops excluded channels.
func (r *Reader) readTable(p period.Period, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			r.log.Warn("failed to close snapshot file", slog.String("file", path), slog.Any("err", err))
		}
	}()
	t, err := DecodeChannels(f, path, p)
	if err != nil {
		return nil, err
	}
	t.Channels = slices.DeleteFunc(t.Channels, func(c Channel) bool {
		if r.exclude.Match(c.Name) {
			t.Excluded = append(t.Excluded, c.ID)
			r.log.Debug("excluding channel", slog.String("channel_id", c.ID), slog.String("name", c.Name), slog.String("period", p.String()))
			return true
		}
		return false
	})
	telemetry.SnapshotFileLoaded()
	return t, nil
}

// join attaches the period's video exports to the table's channels. Rows
// whose channel identity is not in the table become OrphanVideo entries.
func (r *Reader) join(t *Table) *Snapshot {
	snap := &Snapshot{
		Period:   t.Period,
		Path:     t.Path,
		Channels: t.Channels,
		Videos:   map[string][]Video{},
	}
	snap.Diagnostics.Malformed = append(snap.Diagnostics.Malformed, t.Malformed...)

	known := make(map[string]bool, len(t.Channels))
	for _, c := range t.Channels {
		known[c.ID] = true
	}
	excluded := make(map[string]bool, len(t.Excluded))
	for _, id := range t.Excluded {
		excluded[id] = true
	}
	snap.Diagnostics.Excluded = append(snap.Diagnostics.Excluded, t.Excluded...)

	for _, dir := range r.videoDirs() {
		idx, err := period.Scan(dir.path, r.layout.VideoPrefix, ".csv")
		if err != nil {
			snap.Diagnostics.Skipped = append(snap.Diagnostics.Skipped, SkippedFile{Path: dir.path, Period: t.Period, Err: err})
			continue
		}
		path, ok := idx.Lookup(t.Period)
		if !ok {
			continue
		}
		videos, malformed, err := r.readVideos(path, t.Period, dir.channelID)
		if err != nil {
			r.log.Warn("skipping unreadable video export", slog.String("file", path), slog.Any("err", err))
			telemetry.SnapshotFileSkipped("videos")
			snap.Diagnostics.Skipped = append(snap.Diagnostics.Skipped, SkippedFile{Path: path, Period: t.Period, Err: err})
			continue
		}
		snap.Diagnostics.Malformed = append(snap.Diagnostics.Malformed, malformed...)
		for _, v := range videos {
			switch {
			case excluded[v.ChannelID]:
				continue
			case !known[v.ChannelID]:
				r.log.Warn("orphan video row: channel has no summary row in period",
					slog.String("period", t.Period.String()),
					slog.String("channel_id", v.ChannelID),
					slog.String("video_id", v.ID),
					slog.String("file", path))
				snap.Diagnostics.Orphans = append(snap.Diagnostics.Orphans, OrphanVideo{Period: t.Period, ChannelID: v.ChannelID, VideoID: v.ID, File: path})
				continue
			}
			if v.ChannelID != dir.channelID {
				r.log.Debug("video row filed under another channel directory", slog.String("video_id", v.ID), slog.String("channel_id", v.ChannelID), slog.String("dir", dir.path))
			}
			snap.Videos[v.ChannelID] = append(snap.Videos[v.ChannelID], v)
		}
	}
	return snap
}

func (r *Reader) readVideos(path string, p period.Period, channelID string) ([]Video, []MalformedField, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return DecodeVideos(f, path, p, channelID)
}

type videoDir struct {
	path      string
	channelID string
}

// videoDirs lists per-channel directories in name order so joins are
// deterministic.
func (r *Reader) videoDirs() []videoDir {
	entries, err := os.ReadDir(r.layout.VideosDir)
	if err != nil {
		if !os.IsNotExist(err) {
			r.log.Warn("cannot list video directory", slog.String("dir", r.layout.VideosDir), slog.Any("err", err))
		}
		return nil
	}
	var out []videoDir
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		id, ok := channelIDFromDir(e.Name())
		if !ok {
			continue
		}
		out = append(out, videoDir{path: filepath.Join(r.layout.VideosDir, e.Name()), channelID: id})
	}
	return out
}
