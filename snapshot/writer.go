package snapshot

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/chanstats/period"
)

// AtomicFile writes to a temp file next to path and renames it into place on
// Commit, so readers never observe a partially written snapshot.
type AtomicFile struct {
	path    string
	tmpPath string
	file    *os.File
}

// NewAtomicFile creates path's directory and a temp file beside it.
func NewAtomicFile(path string) (*AtomicFile, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".chanstats-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &AtomicFile{path: path, tmpPath: tmp.Name(), file: tmp}, nil
}

func (a *AtomicFile) Write(p []byte) (int, error) { return a.file.Write(p) }

// Commit syncs and renames the temp file over the target.
func (a *AtomicFile) Commit() error {
	if err := a.file.Sync(); err != nil {
		_ = a.Abort()
		return fmt.Errorf("sync: %w", err)
	}
	if err := a.file.Close(); err != nil {
		_ = os.Remove(a.tmpPath)
		return fmt.Errorf("close: %w", err)
	}
	if err := os.Rename(a.tmpPath, a.path); err != nil {
		_ = os.Remove(a.tmpPath)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// Abort discards the temp file.
func (a *AtomicFile) Abort() error {
	_ = a.file.Close()
	return os.Remove(a.tmpPath)
}

// WriteFileAtomic runs fill against a temp file and commits it to path only
// when fill succeeds.
func WriteFileAtomic(path string, fill func(io.Writer) error) error {
	a, err := NewAtomicFile(path)
	if err != nil {
		return err
	}
	if err := fill(a); err != nil {
		_ = a.Abort()
		return err
	}
	return a.Commit()
}

// Writer persists snapshots in the extractor's CSV layout. A period is
// committed once its channel-summary file exists; from then on every file of
// the period is immutable and writes fail with ErrSnapshotExists unless Force
// is set. Video exports left by an interrupted run before the summary was
// written are overwritten.
type Writer struct {
	layout Layout
	Force  bool
}

// NewWriter returns a Writer for layout.
func NewWriter(layout Layout) *Writer { return &Writer{layout: layout} }

func (w *Writer) guard(path string) error {
	if w.Force {
		return nil
	}
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrSnapshotExists, path)
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return fmt.Errorf("stat snapshot: %w", err)
	}
}

// CheckChannels fails with ErrSnapshotExists when p's channel-summary file
// is already on disk and Force is unset.
func (w *Writer) CheckChannels(p period.Period) error {
	return w.guard(w.layout.ChannelFile(p))
}

// WriteChannels writes the channel-summary file for p and returns its path.
func (w *Writer) WriteChannels(p period.Period, channels []Channel) (string, error) {
	path := w.layout.ChannelFile(p)
	if err := w.guard(path); err != nil {
		return "", err
	}
	err := WriteFileAtomic(path, func(out io.Writer) error {
		cw := csv.NewWriter(out)
		if err := cw.Write(ChannelHeader); err != nil {
			return err
		}
		for _, c := range channels {
			if err := cw.Write(encodeChannel(p, c)); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
	if err != nil {
		return "", fmt.Errorf("write channel snapshot: %w", err)
	}
	return path, nil
}

// WriteVideos writes one channel's video export for p and returns its path.
// It fails only when p is already committed.
func (w *Writer) WriteVideos(channelID string, p period.Period, videos []Video) (string, error) {
	if err := w.guard(w.layout.ChannelFile(p)); err != nil {
		return "", err
	}
	path := w.layout.VideoFile(channelID, p)
	err := WriteFileAtomic(path, func(out io.Writer) error { return EncodeVideos(out, p, videos) })
	if err != nil {
		return "", fmt.Errorf("write video snapshot: %w", err)
	}
	return path, nil
}

// EncodeVideos writes VideoHeader and one record per video of p.
func EncodeVideos(w io.Writer, p period.Period, videos []Video) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(VideoHeader); err != nil {
		return err
	}
	for _, v := range videos {
		if err := cw.Write(encodeVideo(p, v)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func encodeChannel(p period.Period, c Channel) []string {
	return []string{
		c.ID, c.Name, c.URL, c.Description, formatTime(c.PublishedAt),
		c.Country, itoa(c.Subscribers), itoa(c.Views), itoa(c.VideoCount), p.String(), itoa(c.LiveCount),
		strconv.FormatFloat(c.LivePeriodicityDays, 'f', -1, 64), formatTime(c.FirstLive), formatTime(c.LastLive),
		strings.Join(c.Platforms, ", "), strings.Join(c.Links, ", "), strings.Join(c.Programs, ", "),
		formatTime(c.ExtractedAt), c.Notes,
	}
}

func encodeVideo(p period.Period, v Video) []string {
	return []string{
		v.ChannelID, v.ChannelName, p.String(), v.ID, v.URL, v.Title, v.Program,
		strconv.Itoa(v.MonthRank), formatTime(v.PublishedAt), strconv.FormatInt(int64(v.Duration/time.Second), 10),
		itoa(v.Views), itoa(v.Likes), itoa(v.Comments),
		v.LiveStatus, strings.Join(v.Platforms, ", "), strings.Join(v.Links, ", "), formatTime(v.ExtractedAt),
	}
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
