package inventory

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	SheetExpiring = "Expiring"
	SheetLowStock = "Low Stock"

	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	expiringHeader = []interface{}{"Batch No", "Item ID", "Expiry Date", "Days Left", "Stock Qty", "Selling Price"}
	lowStockHeader = []interface{}{"Item ID", "Total Stock", "Updated At"}
)

// BuildReport writes the expiring batches and low-stock totals to a two-sheet
// workbook.
func BuildReport(expiring []*Batch, low []*Total, now time.Time) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetExpiring); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetLowStock); err != nil {
		return nil, fmt.Errorf("add sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	expRows := make([][]interface{}, 0, len(expiring))
	for _, b := range expiring {
		expRows = append(expRows, []interface{}{
			b.BatchNo,
			b.ItemID.String(),
			b.ExpiryDate.Format(DateLayout),
			b.DaysToExpiry(now),
			b.StockQty,
			b.SellingPrice.StringFixed(2),
		})
	}
	if err := writeSheet(f, SheetExpiring, expiringHeader, expRows, bold); err != nil {
		return nil, err
	}

	lowRows := make([][]interface{}, 0, len(low))
	for _, t := range low {
		lowRows = append(lowRows, []interface{}{
			t.ItemID.String(),
			t.TotalStock,
			t.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	if err := writeSheet(f, SheetLowStock, lowStockHeader, lowRows, bold); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []interface{}, rows [][]interface{}, headerStyle int) error {
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("write %s header: %w", sheet, err)
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}
	lastCol, _, err := excelize.SplitCellName(last)
	if err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", lastCol, 18)
}
