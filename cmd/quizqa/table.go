package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Counts are right aligned; free text such
// as rationales wraps on word boundaries at wrap runes.
type column struct {
	title string
	align text.Align
	wrap  int
}

func textColumn(title string) column  { return column{title: title, align: text.AlignLeft} }
func countColumn(title string) column { return column{title: title, align: text.AlignRight} }

func proseColumn(title string, wrap int) column {
	return column{title: title, align: text.AlignLeft, wrap: wrap}
}

// renderTable draws rows under columns. A non-nil footer is rendered below a
// separator, for totals.
func renderTable(columns []column, rows [][]string, footer []string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(tableRow(columns, headerCells(columns)))
	for _, row := range rows {
		tw.AppendRow(tableRow(columns, row))
	}
	if footer != nil {
		tw.AppendFooter(tableRow(columns, footer))
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		cfg := table.ColumnConfig{
			Number:      i + 1,
			Align:       col.align,
			AlignHeader: text.AlignLeft,
			AlignFooter: col.align,
			WidthMax:    72,
		}
		if col.wrap > 0 {
			cfg.WidthMax = col.wrap
			cfg.WidthMaxEnforcer = text.WrapSoft
		}
		configs = append(configs, cfg)
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func headerCells(columns []column) []string {
	cells := make([]string, len(columns))
	for i, col := range columns {
		cells[i] = col.title
	}
	return cells
}

func tableRow(columns []column, cells []string) table.Row {
	row := make(table.Row, len(columns))
	for i := range columns {
		if i < len(cells) {
			row[i] = cells[i]
		} else {
			row[i] = ""
		}
	}
	return row
}
