package report

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/onnwee/chanstats/metrics"
)

// NewTable returns a rounded table writer mirrored to w.
func NewTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// RenderTable prints rows as a terminal table. Nil cols uses
// DefaultTableColumns.
func RenderTable(w io.Writer, rows []metrics.Row, cols []Column) {
	if cols == nil {
		cols = DefaultTableColumns
	}
	t := NewTable(w)
	header := make(table.Row, len(cols))
	configs := make([]table.ColumnConfig, 0, len(cols))
	for i, c := range cols {
		header[i] = c.Title
		if c.Name != "channel_name" && c.Name != "channel_id" && c.Name != "period" {
			configs = append(configs, table.ColumnConfig{Number: i + 1, Align: text.AlignRight})
		}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)
	for _, r := range rows {
		rec := Record(r, cols)
		row := make(table.Row, len(rec))
		for i, v := range rec {
			row[i] = v
		}
		t.AppendRow(row)
	}
	t.Render()
}
