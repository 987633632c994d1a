package gridcalc

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSV is the product's bulk interchange format: one record per grid row
// over the populated extent, one field per column, values as display text.
// Formulas do not round-trip; their last materialized value does.

// ExportCSV writes the active sheet to w.
func (wb *Workbook) ExportCSV(w io.Writer) error {
	return ExportSheetCSV(w, wb.ActiveSheet())
}

// ExportSheetCSV writes one sheet's populated extent to w.
func ExportSheetCSV(w io.Writer, sheet *Sheet) error {
	writer := csv.NewWriter(w)
	maxCol, maxRow := sheet.extent()
	for row := 1; row <= maxRow; row++ {
		record := make([]string, maxCol)
		for col := 1; col <= maxCol; col++ {
			record[col-1] = DisplayText(sheet.Cell(Address{Col: col, Row: row}))
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("csv export: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("csv export: %w", err)
	}
	return nil
}

// ImportCSV reads delimited text into the active sheet starting at A1.
// Each field's cell type is re-inferred from its textual shape (numeric,
// currency symbol, percent suffix, ISO date, boolean); empty fields leave
// the address untouched. The import is one committed mutation: a single
// undo reverts the whole load.
func (wb *Workbook) ImportCSV(r io.Reader) error {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("csv import: %w", err)
	}
	sheet := wb.ActiveSheet()
	wb.mutate(sheet, func() {
		for i, record := range records {
			for j, field := range record {
				if field == "" {
					continue
				}
				addr := Address{Col: j + 1, Row: i + 1}
				if IsFormulaText(field) {
					sheet.setFormula(addr, field)
					continue
				}
				value, typ := InferLiteral(field)
				sheet.setLiteral(addr, value, typ)
			}
		}
	})
	return nil
}
