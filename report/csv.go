package report

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/onnwee/chanstats/metrics"
	"github.com/onnwee/chanstats/snapshot"
)

// WriteCSV writes rows with the full column layout to path, replacing it
// atomically. Two runs writing the same path concurrently race: the last
// rename wins, so do not aggregate one period from two jobs at once.
func WriteCSV(path string, rows []metrics.Row) error {
	return WriteColumnsCSV(path, rows, Columns)
}

// WriteColumnsCSV is WriteCSV restricted to cols.
func WriteColumnsCSV(path string, rows []metrics.Row, cols []Column) error {
	err := snapshot.WriteFileAtomic(path, func(w io.Writer) error {
		return EncodeCSV(w, rows, cols)
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// EncodeCSV writes a header and one record per row.
func EncodeCSV(w io.Writer, rows []metrics.Row, cols []Column) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(cols)); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(Record(r, cols)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
