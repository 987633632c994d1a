package gridcalc

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVRoundTrip(t *testing.T) {
	src := NewWorkbook(WithClock(testClock()))
	require.NoError(t, src.Write("A1", "Company"))
	require.NoError(t, src.Write("B1", "Invested"))
	require.NoError(t, src.Write("A2", "Acme, Inc.")) // comma forces quoting
	require.NoError(t, src.Write("B2", 100.0))
	require.NoError(t, src.Write("A3", "Borealis"))
	require.NoError(t, src.Write("B3", 250.0))
	require.NoError(t, src.SetFormula("B4", "=SUM(B2:B3)"))

	var buf bytes.Buffer
	require.NoError(t, src.ExportCSV(&buf))

	dst := NewWorkbook(WithClock(testClock()))
	require.NoError(t, dst.ImportCSV(&buf))

	for _, addr := range []string{"A1", "A2", "A3", "B2", "B3"} {
		want, err := src.ReadValue(addr)
		require.NoError(t, err)
		got, err := dst.ReadValue(addr)
		require.NoError(t, err)
		assert.Equal(t, want, got, "cell %s", addr)
	}

	// the formula cell comes back as its materialized value
	got, err := dst.ReadValue("B4")
	require.NoError(t, err)
	assert.Equal(t, 350.0, got)
	cell, err := dst.ReadCell("B4")
	require.NoError(t, err)
	assert.Empty(t, cell.Formula)
}

func TestImportCSVTypeInference(t *testing.T) {
	input := strings.Join([]string{
		"1250",
		`"$1,250.50"`,
		"12%",
		"2024-06-30",
		"TRUE",
		"growth stage",
	}, ",") + "\n"

	wb := NewWorkbook(WithClock(testClock()))
	require.NoError(t, wb.ImportCSV(strings.NewReader(input)))

	check := func(addr string, wantValue Scalar, wantType CellType, wantDisplay string) {
		t.Helper()
		cell, err := wb.ReadCell(addr)
		require.NoError(t, err)
		require.NotNil(t, cell, "cell %s", addr)
		assert.Equal(t, wantValue, cell.Value, "value at %s", addr)
		assert.Equal(t, wantType, cell.Type, "type at %s", addr)
		assert.Equal(t, wantDisplay, DisplayText(cell), "display at %s", addr)
	}

	check("A1", 1250.0, TypeNumber, "1250")
	check("B1", 1250.5, TypeCurrency, "$1250.50")
	check("C1", 0.12, TypePercentage, "12%")
	check("E1", true, TypeBoolean, "TRUE")
	check("F1", "growth stage", TypeText, "growth stage")

	date, err := wb.ReadCell("D1")
	require.NoError(t, err)
	assert.Equal(t, TypeDate, date.Type)
	assert.Equal(t, "2024-06-30", DisplayText(date))
}

func TestImportCSVFormulas(t *testing.T) {
	input := "5,=A1*3\n"
	wb := NewWorkbook()
	require.NoError(t, wb.ImportCSV(strings.NewReader(input)))

	value, err := wb.ReadValue("B1")
	require.NoError(t, err)
	assert.Equal(t, 15.0, value)

	// formulas stay live after the load
	require.NoError(t, wb.Write("A1", 10.0))
	value, err = wb.ReadValue("B1")
	require.NoError(t, err)
	assert.Equal(t, 30.0, value)
}

func TestImportCSVSingleUndo(t *testing.T) {
	wb := NewWorkbook()
	require.NoError(t, wb.ImportCSV(strings.NewReader("1,2\n3,4\n")))

	value, err := wb.ReadValue("B2")
	require.NoError(t, err)
	assert.Equal(t, 4.0, value)

	require.True(t, wb.Undo(), "one undo should revert the whole load")
	for _, addr := range []string{"A1", "B1", "A2", "B2"} {
		value, err := wb.ReadValue(addr)
		require.NoError(t, err)
		assert.Nil(t, value, "cell %s after undo", addr)
	}
}

func TestImportCSVRaggedRows(t *testing.T) {
	wb := NewWorkbook()
	require.NoError(t, wb.ImportCSV(strings.NewReader("a,b,c\nd\n")))

	value, err := wb.ReadValue("C1")
	require.NoError(t, err)
	assert.Equal(t, "c", value)
	value, err = wb.ReadValue("A2")
	require.NoError(t, err)
	assert.Equal(t, "d", value)
	value, err = wb.ReadValue("B2")
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestImportCSVSkipsEmptyFields(t *testing.T) {
	wb := NewWorkbook()
	require.NoError(t, wb.Write("B1", "keep"))
	require.NoError(t, wb.ImportCSV(strings.NewReader("new,\n")))

	value, err := wb.ReadValue("A1")
	require.NoError(t, err)
	assert.Equal(t, "new", value)
	value, err = wb.ReadValue("B1")
	require.NoError(t, err)
	assert.Equal(t, "keep", value, "empty field must not clobber existing data")
}

func TestExportCSVEmptySheet(t *testing.T) {
	wb := NewWorkbook()
	var buf bytes.Buffer
	require.NoError(t, wb.ExportCSV(&buf))
	assert.Zero(t, buf.Len())
}
