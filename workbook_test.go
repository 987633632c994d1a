package gridcalc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func appErrorCode(t *testing.T, err error) AppErrorCode {
	t.Helper()
	var appErr *AppError
	if !errors.As(err, &appErr) {
		t.Fatalf("expected *AppError, got %T: %v", err, err)
	}
	return appErr.Code
}

func TestSheetLifecycle(t *testing.T) {
	t.Run("create switch rename delete", func(t *testing.T) {
		wb := NewWorkbook()
		if _, err := wb.CreateSheet("Pipeline"); err != nil {
			t.Fatal(err)
		}
		if err := wb.SwitchSheet("Pipeline"); err != nil {
			t.Fatal(err)
		}
		if got := wb.ActiveSheet().Name(); got != "Pipeline" {
			t.Errorf("active sheet = %q, want Pipeline", got)
		}
		if err := wb.RenameSheet("Pipeline", "Deals"); err != nil {
			t.Fatal(err)
		}
		if got := wb.SheetNames(); !cmp.Equal(got, []string{"Sheet1", "Deals"}) {
			t.Errorf("sheet names = %v", got)
		}
		if err := wb.DeleteSheet("Deals"); err != nil {
			t.Fatal(err)
		}
		if got := wb.ActiveSheet().Name(); got != "Sheet1" {
			t.Errorf("active sheet after delete = %q, want Sheet1", got)
		}
	})

	t.Run("duplicate names are rejected case-insensitively", func(t *testing.T) {
		wb := NewWorkbook()
		if _, err := wb.CreateSheet("sheet1"); appErrorCode(t, err) != AlreadyExists {
			t.Errorf("CreateSheet(sheet1) = %v, want AlreadyExists", err)
		}
	})

	t.Run("invalid names", func(t *testing.T) {
		wb := NewWorkbook()
		for _, name := range []string{"", "  ", "Q1!", "a:b"} {
			if _, err := wb.CreateSheet(name); appErrorCode(t, err) != InvalidArgument {
				t.Errorf("CreateSheet(%q) = %v, want InvalidArgument", name, err)
			}
		}
	})

	t.Run("missing sheets", func(t *testing.T) {
		wb := NewWorkbook()
		if err := wb.SwitchSheet("Nope"); appErrorCode(t, err) != NotFound {
			t.Errorf("SwitchSheet = %v, want NotFound", err)
		}
		if err := wb.RenameSheet("Nope", "Else"); appErrorCode(t, err) != NotFound {
			t.Errorf("RenameSheet = %v, want NotFound", err)
		}
		if err := wb.DeleteSheet("Nope"); appErrorCode(t, err) != NotFound {
			t.Errorf("DeleteSheet = %v, want NotFound", err)
		}
	})

	t.Run("last sheet is protected", func(t *testing.T) {
		wb := NewWorkbook()
		if err := wb.DeleteSheet("Sheet1"); appErrorCode(t, err) != FailedPrecondition {
			t.Errorf("DeleteSheet(last) = %v, want FailedPrecondition", err)
		}
	})

	t.Run("deleting the active sheet moves the pointer", func(t *testing.T) {
		wb := NewWorkbook()
		for _, name := range []string{"Two", "Three"} {
			if _, err := wb.CreateSheet(name); err != nil {
				t.Fatal(err)
			}
		}
		if err := wb.SwitchSheet("Two"); err != nil {
			t.Fatal(err)
		}
		if err := wb.DeleteSheet("Two"); err != nil {
			t.Fatal(err)
		}
		if got := wb.ActiveSheet().Name(); got != "Three" {
			t.Errorf("active sheet = %q, want the next in creation order", got)
		}
	})
}

func TestCopySheet(t *testing.T) {
	wb := NewWorkbook()
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(wb.Write("A1", 2.0))
	must(wb.SetFormula("B1", "=A1*2"))
	must(wb.StyleCell("A1", Style{"weight": "bold"}))
	must(wb.DefineNamedRange("Input", "A1:A1"))
	wb.ActiveSheet().Merge(RangeRef{Start: Address{Col: 1, Row: 3}, End: Address{Col: 2, Row: 3}})

	if _, err := wb.CopySheet("Sheet1", "Scenario"); err != nil {
		t.Fatal(err)
	}

	// the copy is independent: edits to the source don't reach it
	must(wb.Write("A1", 100.0))

	value, err := wb.ReadValue("Scenario!B1")
	must(err)
	if value != 4.0 {
		t.Errorf("Scenario!B1 = %v, want 4", value)
	}
	copied, _ := wb.SheetByName("Scenario")
	if len(copied.Merges()) != 1 {
		t.Errorf("merges not copied: %v", copied.Merges())
	}
	if _, ok := copied.NamedRange("Input"); !ok {
		t.Error("named range not copied")
	}

	if _, err := wb.CopySheet("Missing", "X"); appErrorCode(t, err) != NotFound {
		t.Errorf("CopySheet from missing source = %v, want NotFound", err)
	}
}

func TestWriteRangeAndClearRange(t *testing.T) {
	wb := NewWorkbook()
	matrix := [][]Scalar{
		{1.0, 2.0, 3.0},
		{4.0, 5.0, 6.0},
		{7.0, 8.0, 9.0},
	}
	// the target rectangle clips the 3x3 matrix to 2x2
	if err := wb.WriteRange("A1", "B2", matrix); err != nil {
		t.Fatal(err)
	}
	for addr, want := range map[string]Scalar{"A1": 1.0, "B1": 2.0, "A2": 4.0, "B2": 5.0} {
		value, err := wb.ReadValue(addr)
		if err != nil {
			t.Fatal(err)
		}
		if value != want {
			t.Errorf("%s = %v, want %v", addr, value, want)
		}
	}
	for _, addr := range []string{"C1", "A3"} {
		value, _ := wb.ReadValue(addr)
		if value != nil {
			t.Errorf("%s = %v, want clipped away", addr, value)
		}
	}

	if err := wb.ClearRange("A1", "B1"); err != nil {
		t.Fatal(err)
	}
	value, _ := wb.ReadValue("A1")
	if value != nil {
		t.Errorf("A1 after clear = %v, want empty", value)
	}
	value, _ = wb.ReadValue("A2")
	if value != 4.0 {
		t.Errorf("A2 after clearing another row = %v, want 4", value)
	}
}

func TestRangeEndpointsAcceptSheetQualifier(t *testing.T) {
	wb := NewWorkbook()
	if _, err := wb.CreateSheet("Data"); err != nil {
		t.Fatal(err)
	}
	if err := wb.WriteRange("Data!A1", "Data!B2", [][]Scalar{{1.0, 2.0}, {3.0, 4.0}}); err != nil {
		t.Fatalf("WriteRange with qualified endpoints failed: %v", err)
	}
	value, err := wb.ReadValue("Data!B2")
	if err != nil {
		t.Fatal(err)
	}
	if value != 4.0 {
		t.Errorf("Data!B2 = %v, want 4", value)
	}

	if err := wb.ClearRange("Data!A1", "Data!B2"); err != nil {
		t.Fatalf("ClearRange with qualified endpoints failed: %v", err)
	}
	value, _ = wb.ReadValue("Data!A1")
	if value != nil {
		t.Errorf("Data!A1 after clear = %v, want empty", value)
	}

	// endpoints naming different sheets make no sense for a rectangle
	if err := wb.ClearRange("Data!A1", "Sheet1!B2"); appErrorCode(t, err) != InvalidArgument {
		t.Errorf("mismatched endpoint sheets = %v, want InvalidArgument", err)
	}
	if err := wb.ClearRange("Data!A1", "Missing!B2"); appErrorCode(t, err) != NotFound {
		t.Errorf("unknown endpoint sheet = %v, want NotFound", err)
	}
}

func TestWriteOptions(t *testing.T) {
	wb := NewWorkbook()
	if err := wb.Write("A1", 415.0, WithSource("Q2 board deck, p.12")); err != nil {
		t.Fatal(err)
	}
	cell, err := wb.ReadCell("A1")
	if err != nil {
		t.Fatal(err)
	}
	if cell.Source != "Q2 board deck, p.12" {
		t.Errorf("source = %q", cell.Source)
	}
	if cell.Type != TypeNumber {
		t.Errorf("type = %v, want number", cell.Type)
	}

	if err := wb.Write("A2", "dashboard", WithLink("https://example.com/d")); err != nil {
		t.Fatal(err)
	}
	cell, err = wb.ReadCell("A2")
	if err != nil {
		t.Fatal(err)
	}
	if cell.Type != TypeLink {
		t.Errorf("type = %v, want link", cell.Type)
	}
	if cell.Source != "https://example.com/d" {
		t.Errorf("link target = %q", cell.Source)
	}
}

func TestCellHistory(t *testing.T) {
	clock := testClock()
	wb := NewWorkbook(WithClock(clock))
	for _, v := range []Scalar{1.0, 2.0, 3.0} {
		if err := wb.Write("A1", v); err != nil {
			t.Fatal(err)
		}
	}
	cell, err := wb.ReadCell("A1")
	if err != nil {
		t.Fatal(err)
	}
	// the first entry is the displaced empty value
	if len(cell.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(cell.History))
	}
	if cell.History[0].Value != nil || cell.History[1].Value != 1.0 || cell.History[2].Value != 2.0 {
		t.Errorf("history = %+v, want displaced values in write order", cell.History)
	}
	if !cell.History[0].At.Equal(clock.Now()) {
		t.Errorf("history timestamp = %v, want the injected clock's time", cell.History[0].At)
	}
}

func TestDisplayValueFormats(t *testing.T) {
	wb := NewWorkbook(WithClock(testClock()))
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(wb.WriteText("A1", "$1,250.50"))
	must(wb.WriteText("A2", "12%"))
	must(wb.WriteText("A3", "2024-06-30"))
	must(wb.Write("A4", 42.0))
	must(wb.SetFormula("A5", "=1/0"))

	for addr, want := range map[string]string{
		"A1": "$1250.50",
		"A2": "12%",
		"A3": "2024-06-30",
		"A4": "42",
		"A5": "#ERROR!",
		"A6": "",
	} {
		got, err := wb.DisplayValue(addr)
		must(err)
		if got != want {
			t.Errorf("DisplayValue(%s) = %q, want %q", addr, got, want)
		}
	}
}

func TestStateRoundTrip(t *testing.T) {
	wb := NewWorkbook(WithClock(testClock()))
	must := func(err error) {
		if err != nil {
			t.Fatal(err)
		}
	}
	must(wb.Write("A1", 10.0))
	must(wb.SetFormula("B1", "=A1*2"))
	must(wb.SetFormula("C1", "=1/0")) // error sentinel must survive
	must(wb.StyleCell("A1", Style{"weight": "bold"}))
	must(wb.DefineNamedRange("Base", "A1:A1"))
	must(wb.AddConditionalFormat("A1:B1", FormatGreaterThan, []Scalar{5.0}, Style{"color": "green"}))
	if _, err := wb.CreateSheet("Notes"); err != nil {
		t.Fatal(err)
	}
	must(wb.Write("Notes!A1", "context"))
	wb.ActiveSheet().SetFrozen(1, 0)
	wb.ActiveSheet().HideColumn(3, true)

	state := wb.ExportState()

	restored := NewWorkbook()
	if err := restored.ImportState(state); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(state, restored.ExportState()); diff != "" {
		t.Errorf("re-exported state differs (-want +got):\n%s", diff)
	}

	value, err := restored.ReadValue("B1")
	must(err)
	if value != 20.0 {
		t.Errorf("B1 after import = %v, want 20", value)
	}
	errValue, err := restored.ReadValue("C1")
	must(err)
	cellErr, ok := errValue.(*CellError)
	if !ok || cellErr.Code != ErrorCodeGeneric {
		t.Errorf("C1 after import = %v, want #ERROR! sentinel", errValue)
	}

	// formulas stay live in the restored workbook
	must(restored.Write("A1", 50.0))
	value, _ = restored.ReadValue("B1")
	if value != 100.0 {
		t.Errorf("B1 after write in restored workbook = %v, want 100", value)
	}
}

func TestImportStateRejectsBadSnapshots(t *testing.T) {
	wb := NewWorkbook()
	if err := wb.ImportState(nil); appErrorCode(t, err) != InvalidArgument {
		t.Errorf("ImportState(nil) = %v, want InvalidArgument", err)
	}
	if err := wb.ImportState(&WorkbookState{}); appErrorCode(t, err) != InvalidArgument {
		t.Errorf("ImportState(empty) = %v, want InvalidArgument", err)
	}
	dup := &WorkbookState{Sheets: []SheetState{{Name: "A"}, {Name: "a"}}}
	if err := wb.ImportState(dup); appErrorCode(t, err) != InvalidArgument {
		t.Errorf("ImportState(duplicate names) = %v, want InvalidArgument", err)
	}
}

func TestWorkbookJSONRoundTrip(t *testing.T) {
	wb := NewWorkbook()
	if err := wb.Write("A1", 7.0); err != nil {
		t.Fatal(err)
	}
	if err := wb.SetFormula("B1", "=A1+1"); err != nil {
		t.Fatal(err)
	}

	data, err := json.Marshal(wb)
	if err != nil {
		t.Fatal(err)
	}

	var restored Workbook
	if err := json.Unmarshal(data, &restored); err != nil {
		t.Fatal(err)
	}
	value, err := restored.ReadValue("B1")
	if err != nil {
		t.Fatal(err)
	}
	if value != 8.0 {
		t.Errorf("B1 after JSON round trip = %v, want 8", value)
	}
}

func TestInvalidAddresses(t *testing.T) {
	wb := NewWorkbook()
	for _, addr := range []string{"", "A0", "7G", "Sheet1!", "AAAAAAAAA1", "XFE1", "A1048577"} {
		if err := wb.Write(addr, 1.0); appErrorCode(t, err) != InvalidArgument {
			t.Errorf("Write(%q) = %v, want InvalidArgument", addr, err)
		}
	}
	if err := wb.Write("Missing!A1", 1.0); appErrorCode(t, err) != NotFound {
		t.Errorf("Write to a missing sheet = %v, want NotFound", err)
	}
	// rejected writes leave nothing behind that rendering could trip over
	state := wb.ExportState()
	if n := len(state.Sheets[0].Cells); n != 0 {
		t.Errorf("rejected writes materialized %d cells, want 0", n)
	}
}
