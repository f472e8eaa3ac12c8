package main

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/txn2/table-loader/pkg/catalog"
)

const renderColWidth = 32

// renderResults draws each loaded table in load order. maxRows <= 0 renders
// every row.
func renderResults(w io.Writer, tables []string, results map[string]*catalog.Result, maxRows int) error {
	rendered := 0
	for _, name := range tables {
		result, ok := results[name]
		if !ok {
			continue
		}
		head := result.Head(maxRows)

		if _, err := fmt.Fprintf(w, "%s (%d of %d rows)\n", name, head.Len(), result.Len()); err != nil {
			return fmt.Errorf("writing table header: %w", err)
		}

		table := tablewriter.NewWriter(w)
		table.SetColWidth(renderColWidth)
		table.SetAutoFormatHeaders(false)
		table.SetHeader(result.Columns)
		for _, row := range head.Rows {
			cells := make([]string, len(row))
			for i, v := range row {
				cells[i] = formatCell(v)
			}
			table.Append(cells)
		}
		table.Render()
		rendered++
	}
	if rendered == 0 {
		if _, err := fmt.Fprintln(w, "no tables loaded"); err != nil {
			return fmt.Errorf("writing table header: %w", err)
		}
	}
	return nil
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}
