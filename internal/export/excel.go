package export

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// WritePivotExcel renders the same grid as the pivot CSV into an .xlsx
// workbook for reviewers who audit the captures in Excel.
func WritePivotExcel(m *ReadModel) ([]byte, error) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	for rowIdx, record := range SerializePivot(m) {
		for colIdx, value := range record {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx+1)
			if err != nil {
				return nil, fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return nil, fmt.Errorf("set cell: %w", err)
			}
		}
	}

	columns := BuildPivotColumns(m.Items)
	if last, err := excelize.ColumnNumberToName(len(columns) + 1); err == nil {
		_ = f.SetColWidth(sheet, "A", last, 16)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write excel: %w", err)
	}
	return buf.Bytes(), nil
}
