// Package export writes built KPI tables to a spreadsheet for the analysts
// who want the numbers without a database connection.
package export

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"portsignal/internal/kpi"
)

// WriteXLSX writes one sheet per table to path. Sheet names are the table
// names truncated to Excel's 31-character limit; rows keep the same column
// order as the SQL tables so the two destinations stay comparable.
//
// Edge cases:
//   - An empty tables slice still produces a valid workbook with the default
//     sheet, so a dry run with every builder failing does not error here.
//   - time.Time cells are written as RFC3339 UTC strings rather than Excel
//     serial dates, matching the text timestamps in the SQLite backend.
func WriteXLSX(path string, tables []kpi.Table) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := sheetName(t.Name)
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
			}
		} else {
			if _, err := f.NewSheet(sheet); err != nil {
				return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
			}
		}

		header := make([]any, len(t.Columns))
		for j, c := range t.Columns {
			header[j] = c.Name
		}
		if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}

		for r, row := range t.Rows {
			cells := make([]any, len(row))
			for j, v := range row {
				cells[j] = cellValue(v)
			}
			addr, err := excelize.CoordinatesToCellName(1, r+2)
			if err != nil {
				return fmt.Errorf("xlsx sheet %s row %d: %w", sheet, r, err)
			}
			if err := f.SetSheetRow(sheet, addr, &cells); err != nil {
				return fmt.Errorf("xlsx sheet %s row %d: %w", sheet, r, err)
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx save %s: %w", path, err)
	}
	return nil
}

func sheetName(table string) string {
	if len(table) > 31 {
		return table[:31]
	}
	return table
}

func cellValue(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	default:
		return v
	}
}
