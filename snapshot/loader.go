package snapshot

import (
	"iter"
	"log/slog"
	"sync"

	"github.com/onnwee/chanstats/period"
	"github.com/onnwee/chanstats/telemetry"
)

// Loader walks every channel-summary file in chronological order. Files that
// fail to parse are skipped with a warning and remembered in Warnings.
type Loader struct {
	reader *Reader

	mu       sync.Mutex
	warnings []SkippedFile
}

// NewLoader returns a Loader over layout.
func NewLoader(layout Layout, exclude ExcludeList, logger *slog.Logger) *Loader {
	return &Loader{reader: NewReader(layout, exclude, logger)}
}

// Reader exposes the single-period reader the loader is built on.
func (l *Loader) Reader() *Reader { return l.reader }

// All yields every parseable table by ascending period. Each range re-scans
// the directory and parses files lazily, so the sequence can be restarted and
// stopping early leaves later files untouched.
func (l *Loader) All() iter.Seq2[period.Period, *Table] {
	return func(yield func(period.Period, *Table) bool) {
		idx, err := l.reader.Index()
		if err != nil {
			l.reader.log.Warn("cannot scan channel snapshots", slog.String("dir", l.reader.layout.ChannelsDir), slog.Any("err", err))
			return
		}
		l.mu.Lock()
		l.warnings = nil
		l.mu.Unlock()
		for _, p := range idx.Periods() {
			path, _ := idx.Lookup(p)
			t, err := l.reader.readTable(p, path)
			if err != nil {
				l.reader.log.Warn("skipping unreadable channel snapshot", slog.String("file", path), slog.String("period", p.String()), slog.Any("err", err))
				telemetry.SnapshotFileSkipped("channels")
				l.mu.Lock()
				l.warnings = append(l.warnings, SkippedFile{Path: path, Period: p, Err: err})
				l.mu.Unlock()
				continue
			}
			if !yield(p, t) {
				return
			}
		}
	}
}

// Warnings returns the files skipped by the most recent range over All.
func (l *Loader) Warnings() []SkippedFile {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SkippedFile, len(l.warnings))
	copy(out, l.warnings)
	return out
}

// Collect loads and joins every parseable period. It returns ErrNoSnapshot
// when the directory holds no channel-summary file at all; a directory whose
// files all fail to parse yields an empty History and the skip warnings.
func (l *Loader) Collect() (*History, error) {
	idx, err := l.reader.Index()
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		return nil, &MissingSnapshotError{Dir: l.reader.layout.ChannelsDir}
	}
	h := &History{}
	for _, t := range l.All() {
		snap := l.reader.join(t)
		h.Snapshots = append(h.Snapshots, snap)
		h.Diagnostics.Merge(snap.Diagnostics)
	}
	h.Diagnostics.Skipped = append(h.Diagnostics.Skipped, l.Warnings()...)
	telemetry.RecordDiagnostics(len(h.Diagnostics.Malformed), len(h.Diagnostics.Orphans))
	return h, nil
}
