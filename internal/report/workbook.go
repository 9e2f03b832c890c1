package report

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Workbook renders each table onto its own sheet, in order, with the first
// sheet active. Plain cells that parse as numbers are stored as numbers. The
// caller closes the file.
func Workbook(tables ...Table) (*excelize.File, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("workbook needs at least one table")
	}
	f := excelize.NewFile()
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E8F0E0"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetSheetName(defaultSheet, tables[0].Name); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, t := range tables {
		if err := writeSheet(f, t, headerStyle); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheet %q: %w", t.Name, err)
		}
	}
	return f, nil
}

func writeSheet(f *excelize.File, t Table, headerStyle int) error {
	// NewSheet returns the existing index for the renamed first sheet.
	if _, err := f.NewSheet(t.Name); err != nil {
		return err
	}
	for col, h := range t.Header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(t.Name, cell, h); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(t.Header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.Name, "A1", last, headerStyle); err != nil {
		return err
	}
	for r, row := range t.Rows {
		for c, cell := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			var v any = cell.Value
			if !cell.Text {
				if n, err := strconv.ParseFloat(cell.Value, 64); err == nil {
					v = n
				}
			}
			if err := f.SetCellValue(t.Name, name, v); err != nil {
				return err
			}
		}
	}
	lastCol, err := excelize.ColumnNumberToName(len(t.Header))
	if err != nil {
		return err
	}
	return f.SetColWidth(t.Name, "A", lastCol, 18)
}
