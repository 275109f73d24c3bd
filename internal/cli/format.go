package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	headerColor  = color.New(color.FgBlue, color.Bold)
	labelColor   = color.New(color.FgWhite, color.Bold)
	dimColor     = color.New(color.FgHiBlack)
)

func printSuccess(w io.Writer, msg string) {
	_, _ = successColor.Fprintf(w, "✓ %s\n", msg)
}

func printSection(w io.Writer, title string) {
	_, _ = headerColor.Fprintf(w, "▸ %s\n", title)
}

func printKeyValue(w io.Writer, key string, value any) {
	_, _ = labelColor.Fprintf(w, "  %-20s", key+":")
	fmt.Fprintf(w, " %v\n", value)
}

func printDim(w io.Writer, msg string) {
	_, _ = dimColor.Fprintf(w, "%s\n", msg)
}

func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printRows writes rows as an aligned text table with a header.
func printRows(w io.Writer, columns []string, rows []map[string]any) {
	cells := make([][]string, len(rows))
	widths := make([]int, len(columns))
	for i, c := range columns {
		widths[i] = len(c)
	}
	for r, row := range rows {
		cells[r] = make([]string, len(columns))
		for i, c := range columns {
			cells[r][i] = formatCell(row[c])
			if n := len(cells[r][i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	header := make([]string, len(columns))
	for i, c := range columns {
		header[i] = pad(c, widths[i])
	}
	_, _ = labelColor.Fprintln(w, strings.Join(header, "  "))
	for _, row := range cells {
		line := make([]string, len(row))
		for i, cell := range row {
			line[i] = pad(cell, widths[i])
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(line, "  "), " "))
	}
}

func formatCell(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
