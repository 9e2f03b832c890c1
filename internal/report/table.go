// Package report renders the compliance exports: the Missouri pesticide
// application log, the FSA-578 acreage summary and the harvest report, as
// CSV or as sheets of one workbook.
package report

import (
	"bufio"
	"io"
	"strings"
)

// Cell is one rendered value. Text cells are always quoted in CSV; plain
// cells are quoted only when they would otherwise break the row.
type Cell struct {
	Value string
	Text  bool
}

func text(v string) Cell  { return Cell{Value: v, Text: true} }
func plain(v string) Cell { return Cell{Value: v} }

// Table is a report ready for output.
type Table struct {
	Name   string
	Header []string
	Rows   [][]Cell
}

func (c Cell) csv() string {
	if c.Text || strings.ContainsAny(c.Value, ",\"\r\n") {
		return `"` + strings.ReplaceAll(c.Value, `"`, `""`) + `"`
	}
	return c.Value
}

// WriteCSV writes the header and rows joined by newlines with no trailing
// newline, the layout the state forms are validated against.
func WriteCSV(w io.Writer, t Table) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(strings.Join(t.Header, ",")); err != nil {
		return err
	}
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, c := range row {
			cells[i] = c.csv()
		}
		if _, err := bw.WriteString("\n" + strings.Join(cells, ",")); err != nil {
			return err
		}
	}
	return bw.Flush()
}
