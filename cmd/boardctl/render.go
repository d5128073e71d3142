package main

import (
	"fmt"
	"io"

	"github.com/bytedance/sonic"
	"github.com/jedib0t/go-pretty/v6/table"

	"board-sync/api"
)

func printView(w io.Writer, v api.View, asJSON bool) error {
	if asJSON {
		data, err := sonic.ConfigStd.MarshalIndent(v, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	switch {
	case v.Loading:
		_, err := fmt.Fprintln(w, "board is loading")
		return err
	case v.Offline:
		fmt.Fprintln(w, "OFFLINE: showing a local placeholder board, edits are not saved")
	}
	renderBoard(w, v)
	return nil
}

// renderBoard draws one table column per board column, in display order.
func renderBoard(w io.Writer, v api.View) {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)

	header := make(table.Row, 0, len(v.ColumnOrder))
	depth := 0
	for _, id := range v.ColumnOrder {
		col := v.Board.Columns[id]
		header = append(header, fmt.Sprintf("%s (%d)", col.Name, len(col.Items)))
		depth = max(depth, len(col.Items))
	}
	tw.AppendHeader(header)

	for i := 0; i < depth; i++ {
		row := make(table.Row, 0, len(v.ColumnOrder))
		for _, id := range v.ColumnOrder {
			items := v.Board.Columns[id].Items
			if i < len(items) {
				row = append(row, fmt.Sprintf("%s\n[%s]", items[i].Content, items[i].ID))
			} else {
				row = append(row, "")
			}
		}
		tw.AppendRow(row)
	}
	tw.Render()
}
