package gridcalc

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportXLSX(t *testing.T) {
	wb := NewWorkbook(WithClock(testClock()))
	require.NoError(t, wb.Write("A1", "Company"))
	require.NoError(t, wb.Write("A2", "Acme"))
	require.NoError(t, wb.Write("B2", 100.0))
	require.NoError(t, wb.SetFormula("B3", "=B2*2"))
	require.NoError(t, wb.SetFormula("B4", "=1/0"))
	require.NoError(t, wb.WriteText("C2", "2024-06-30"))
	wb.ActiveSheet().Merge(RangeRef{Start: Address{Col: 1, Row: 5}, End: Address{Col: 2, Row: 5}})
	if _, err := wb.CreateSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	require.NoError(t, wb.Write("Notes!A1", "context"))

	var buf bytes.Buffer
	require.NoError(t, wb.ExportXLSX(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Sheet1", "Notes"}, f.GetSheetList())

	get := func(sheet, axis string) string {
		v, err := f.GetCellValue(sheet, axis)
		require.NoError(t, err)
		return v
	}
	assert.Equal(t, "Company", get("Sheet1", "A1"))
	assert.Equal(t, "100", get("Sheet1", "B2"))
	// formulas export as their computed value
	assert.Equal(t, "200", get("Sheet1", "B3"))
	assert.Equal(t, "#ERROR!", get("Sheet1", "B4"))
	assert.Equal(t, "2024-06-30", get("Sheet1", "C2"))
	assert.Equal(t, "context", get("Notes", "A1"))

	merges, err := f.GetMergeCells("Sheet1")
	require.NoError(t, err)
	require.Len(t, merges, 1)
	assert.Equal(t, "A5", merges[0].GetStartAxis())
	assert.Equal(t, "B5", merges[0].GetEndAxis())
}

func TestExportXLSXLayout(t *testing.T) {
	wb := NewWorkbook()
	require.NoError(t, wb.Write("A1", "header"))
	sheet := wb.ActiveSheet()
	sheet.SetRowHeight(1, 30)
	sheet.SetColumnWidth(2, 18)
	sheet.HideRow(3, true)
	sheet.HideColumn(4, true)
	sheet.SetFrozen(1, 0)

	require.True(t, sheet.RowHidden(3))
	require.True(t, sheet.ColumnHidden(4))
	require.False(t, sheet.RowHidden(1))

	var buf bytes.Buffer
	require.NoError(t, wb.ExportXLSX(&buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	height, err := f.GetRowHeight("Sheet1", 1)
	require.NoError(t, err)
	assert.Equal(t, 30.0, height)

	width, err := f.GetColWidth("Sheet1", "B")
	require.NoError(t, err)
	assert.Equal(t, 18.0, width)

	rowVisible, err := f.GetRowVisible("Sheet1", 3)
	require.NoError(t, err)
	assert.False(t, rowVisible)

	colVisible, err := f.GetColVisible("Sheet1", "D")
	require.NoError(t, err)
	assert.False(t, colVisible)
}
