package gridcalc

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExportXLSX writes the workbook's materialized values to an .xlsx file,
// one excelize sheet per gridcalc sheet. Formulas export as their last
// computed value and error sentinels as text: the spreadsheet leaving the
// engine shows what the engine showed, independent of the consumer's own
// recalculation.
func (wb *Workbook) ExportXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	for i, sheet := range wb.sheetsInOrder() {
		name := sheet.Name()
		if i == 0 {
			// excelize starts with one default sheet; rename it
			if err := f.SetSheetName(f.GetSheetName(0), name); err != nil {
				return fmt.Errorf("xlsx export: %w", err)
			}
		} else {
			if _, err := f.NewSheet(name); err != nil {
				return fmt.Errorf("xlsx export: %w", err)
			}
		}
		if err := exportSheetXLSX(f, sheet); err != nil {
			return err
		}
	}

	if active := wb.orderIndex(wb.active); active >= 0 {
		index, err := f.GetSheetIndex(wb.ActiveSheet().Name())
		if err == nil && index >= 0 {
			f.SetActiveSheet(index)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx export: %w", err)
	}
	return nil
}

func exportSheetXLSX(f *excelize.File, sheet *Sheet) error {
	name := sheet.Name()
	for _, addr := range sortedAddresses(sheet.cells) {
		cell := sheet.cells[addr]
		if cell.Value == nil {
			continue
		}
		var value any
		switch v := cell.Value.(type) {
		case *CellError:
			value = v.Error()
		case float64:
			switch cell.Type {
			case TypeDate:
				value = serialToDate(v).Format("2006-01-02")
			case TypePercentage, TypeCurrency:
				value = DisplayText(cell)
			default:
				value = v
			}
		default:
			value = v
		}
		if err := f.SetCellValue(name, addr.String(), value); err != nil {
			return fmt.Errorf("xlsx export %s!%s: %w", name, addr, err)
		}
	}
	for _, merge := range sheet.Merges() {
		if err := f.MergeCell(name, merge.Start.String(), merge.End.String()); err != nil {
			return fmt.Errorf("xlsx export merge %s: %w", merge, err)
		}
	}
	return exportLayoutXLSX(f, sheet)
}

// exportLayoutXLSX carries row/column sizing, visibility, and frozen panes
// into the exported file.
func exportLayoutXLSX(f *excelize.File, sheet *Sheet) error {
	name := sheet.Name()
	for row, height := range sheet.rowHeights {
		if err := f.SetRowHeight(name, row, height); err != nil {
			return fmt.Errorf("xlsx export row height %s!%d: %w", name, row, err)
		}
	}
	for col, width := range sheet.colWidths {
		letters := ColumnLetters(col)
		if err := f.SetColWidth(name, letters, letters, width); err != nil {
			return fmt.Errorf("xlsx export col width %s!%s: %w", name, letters, err)
		}
	}
	for row := range sheet.hiddenRows {
		if err := f.SetRowVisible(name, row, false); err != nil {
			return fmt.Errorf("xlsx export hide row %s!%d: %w", name, row, err)
		}
	}
	for col := range sheet.hiddenCols {
		letters := ColumnLetters(col)
		if err := f.SetColVisible(name, letters, false); err != nil {
			return fmt.Errorf("xlsx export hide col %s!%s: %w", name, letters, err)
		}
	}
	if rows, cols := sheet.Frozen(); rows > 0 || cols > 0 {
		top := Address{Col: cols + 1, Row: rows + 1}
		panes := &excelize.Panes{
			Freeze:      true,
			XSplit:      cols,
			YSplit:      rows,
			TopLeftCell: top.String(),
			ActivePane:  "bottomRight",
		}
		if err := f.SetPanes(name, panes); err != nil {
			return fmt.Errorf("xlsx export panes %s: %w", name, err)
		}
	}
	return nil
}
