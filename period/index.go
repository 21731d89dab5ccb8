package period

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Index maps periods to the file holding that period's snapshot. It replaces
// "sort filenames and take the last one" lookups.
type Index struct {
	dir    string
	prefix string
	files  map[Period]string
}

// Scan builds an index of dir for files named <prefix><period>.<ext>. Only
// files ending in ext are considered. A missing directory yields an empty index.
// Names that carry the prefix but no recognizable period are logged and skipped.
func Scan(dir, prefix, ext string) (*Index, error) {
	idx := &Index{dir: dir, prefix: prefix, files: map[Period]string{}}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return idx, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || !strings.EqualFold(filepath.Ext(name), ext) {
			continue
		}
		p, err := FromFilename(name, prefix)
		if err != nil {
			slog.Warn("ignoring snapshot file with unrecognized period", slog.String("file", name), slog.String("dir", dir))
			continue
		}
		path := filepath.Join(dir, name)
		if prev, ok := idx.files[p]; ok {
			// report_7-2025.csv and report_07-2025.csv: keep the greater name
			keep := prev
			if filepath.Base(path) > filepath.Base(prev) {
				keep = path
			}
			slog.Warn("duplicate snapshot files for period", slog.String("period", p.String()), slog.String("kept", keep), slog.String("a", prev), slog.String("b", path))
			path = keep
		}
		idx.files[p] = path
	}
	return idx, nil
}

// Dir returns the scanned directory.
func (x *Index) Dir() string { return x.dir }

// Len returns the number of indexed periods.
func (x *Index) Len() int { return len(x.files) }

// Lookup returns the path for p.
func (x *Index) Lookup(p Period) (string, bool) {
	path, ok := x.files[p]
	return path, ok
}

// Periods returns all indexed periods in chronological order.
func (x *Index) Periods() []Period {
	out := make([]Period, 0, len(x.files))
	for p := range x.files {
		out = append(out, p)
	}
	slices.SortFunc(out, Period.Compare)
	return out
}

// Latest returns the most recent indexed period.
func (x *Index) Latest() (Period, bool) {
	ps := x.Periods()
	if len(ps) == 0 {
		return Period{}, false
	}
	return ps[len(ps)-1], true
}
