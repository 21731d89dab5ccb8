package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/onnwee/chanstats/period"
)

var (
	// ErrNoSnapshot matches every MissingSnapshotError and is returned on its
	// own when no channel-summary file exists at all.
	ErrNoSnapshot = errors.New("no channel snapshot")
	// ErrSnapshotExists is returned when writing would overwrite a past period.
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrCorrupt marks a file that could not be parsed as a snapshot.
	ErrCorrupt = errors.New("corrupt snapshot file")
)

// MissingSnapshotError reports that no channel-summary file exists for the
// requested period. It is fatal for a single-period run.
type MissingSnapshotError struct {
	Period period.Period
	Dir    string
}

func (e *MissingSnapshotError) Error() string {
	if e.Period.IsZero() {
		return fmt.Sprintf("no channel snapshot found in %s", e.Dir)
	}
	return fmt.Sprintf("no channel snapshot for %s in %s", e.Period, e.Dir)
}

// Is lets errors.Is(err, ErrNoSnapshot) match.
func (e *MissingSnapshotError) Is(target error) bool { return target == ErrNoSnapshot }

// MalformedField is a numeric or time value that was coerced to zero.
type MalformedField struct {
	File   string
	Line   int
	Column string
	Value  string
}

// OrphanVideo is a video row whose channel has no summary row in its period.
type OrphanVideo struct {
	Period    period.Period
	ChannelID string
	VideoID   string
	File      string
}

// SkippedFile is a file left out of a load because it failed to parse.
type SkippedFile struct {
	Path   string
	Period period.Period
	Err    error
}

// Diagnostics collects the recoverable problems of a load.
type Diagnostics struct {
	Malformed []MalformedField
	Orphans   []OrphanVideo
	Skipped   []SkippedFile
	Excluded  []string
}

// Merge appends o into d.
func (d *Diagnostics) Merge(o Diagnostics) {
	d.Malformed = append(d.Malformed, o.Malformed...)
	d.Orphans = append(d.Orphans, o.Orphans...)
	d.Skipped = append(d.Skipped, o.Skipped...)
	d.Excluded = append(d.Excluded, o.Excluded...)
}

// Empty reports whether nothing was recorded.
func (d Diagnostics) Empty() bool {
	return len(d.Malformed) == 0 && len(d.Orphans) == 0 && len(d.Skipped) == 0
}

// Log writes a one-line summary and, at debug level, every entry.
func (d Diagnostics) Log(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	lvl := slog.LevelInfo
	if !d.Empty() {
		lvl = slog.LevelWarn
	}
	logger.Log(context.Background(), lvl, "snapshot load diagnostics",
		slog.Int("malformed_fields", len(d.Malformed)),
		slog.Int("orphan_videos", len(d.Orphans)),
		slog.Int("skipped_files", len(d.Skipped)),
		slog.Int("excluded_channels", len(d.Excluded)),
	)
	for _, m := range d.Malformed {
		logger.Debug("coerced value to zero", slog.String("file", m.File), slog.Int("line", m.Line), slog.String("column", m.Column), slog.String("value", m.Value))
	}
	for _, s := range d.Skipped {
		logger.Debug("skipped file", slog.String("file", s.Path), slog.Any("err", s.Err))
	}
}
