package reports

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Movement"

var exportHeader = []interface{}{"Product ID", "Product", "Morning Stock", "Purchased", "Sold", "Expected", "Current Stock"}

// WriteXLSX renders the rows as a single-sheet workbook.
func WriteXLSX(w io.Writer, rows []MovementRow, win Window) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("reports: export: %w", err)
	}
	title := fmt.Sprintf("Stock movement %s to %s", win.Start.Format("2006-01-02"), win.End.AddDate(0, 0, -1).Format("2006-01-02"))
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return fmt.Errorf("reports: export: %w", err)
	}
	if err := f.SetSheetRow(sheetName, "A3", &exportHeader); err != nil {
		return fmt.Errorf("reports: export: %w", err)
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+4)
		if err != nil {
			return err
		}
		values := []interface{}{r.ProductID, r.ProductName, r.MorningStock, r.Purchased, r.Sold, r.MorningStock + r.Purchased - r.Sold, r.CurrentStock}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return fmt.Errorf("reports: export: %w", err)
		}
	}
	if err := f.SetColWidth(sheetName, "B", "B", 32); err != nil {
		return fmt.Errorf("reports: export: %w", err)
	}
	_, err := f.WriteTo(w)
	return err
}
