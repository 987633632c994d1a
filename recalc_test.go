package gridcalc

import (
	"fmt"
	"testing"
)

func TestRecalculationPropagation(t *testing.T) {
	NewWorkbookTestCase(t, "writes propagate through formula chains").
		Set("A1", 1.0).
		SetFormula("B1", "=A1+1").
		SetFormula("C1", "=B1*2").
		AssertCellEq("C1", 4.0).
		Set("A1", 10.0).
		AssertCellEq("B1", 11.0).
		AssertCellEq("C1", 22.0).
		End()

	NewWorkbookTestCase(t, "clearing a formula stops propagation").
		Set("A1", 5.0).
		SetFormula("B1", "=A1*2").
		AssertCellEq("B1", 10.0).
		Set("B1", "fixed").
		Set("A1", 100.0).
		AssertCellEq("B1", "fixed").
		End()

	t.Run("deep chain evaluates in one pass", func(t *testing.T) {
		wb := NewWorkbook(WithClock(testClock()))
		if err := wb.Write("A1", 1.0); err != nil {
			t.Fatal(err)
		}
		for row := 2; row <= 50; row++ {
			formula := fmt.Sprintf("=A%d+1", row-1)
			if err := wb.SetFormula(fmt.Sprintf("A%d", row), formula); err != nil {
				t.Fatal(err)
			}
		}
		value, err := wb.ReadValue("A50")
		if err != nil {
			t.Fatal(err)
		}
		if value != 50.0 {
			t.Errorf("A50 = %v, want 50", value)
		}

		if err := wb.Write("A1", 101.0); err != nil {
			t.Fatal(err)
		}
		value, _ = wb.ReadValue("A50")
		if value != 150.0 {
			t.Errorf("A50 after rewrite = %v, want 150", value)
		}
	})

	t.Run("shared upstream feeds both dependents", func(t *testing.T) {
		wb := NewWorkbook(WithClock(testClock()))
		must := func(err error) {
			if err != nil {
				t.Fatal(err)
			}
		}
		must(wb.Write("A1", 7.0))
		must(wb.SetFormula("B1", "=A1+1"))
		must(wb.SetFormula("B2", "=A1*2"))
		must(wb.SetFormula("C1", "=B1+B2"))
		value, err := wb.ReadValue("C1")
		must(err)
		if value != 22.0 {
			t.Errorf("C1 = %v, want 22", value)
		}
	})
}

func TestCircularReferences(t *testing.T) {
	NewWorkbookTestCase(t, "mutual cycle poisons every member").
		SetFormula("A1", "=B1").
		SetFormula("B1", "=A1").
		AssertCellErr("A1", ErrorCodeCircular).
		AssertCellErr("B1", ErrorCodeCircular).
		End()

	NewWorkbookTestCase(t, "breaking the cycle recovers both cells").
		SetFormula("A1", "=B1+1").
		SetFormula("B1", "=A1+1").
		AssertCellErr("A1", ErrorCodeCircular).
		Set("B1", 5.0).
		AssertCellEq("A1", 6.0).
		AssertCellEq("B1", 5.0).
		End()

	NewWorkbookTestCase(t, "self reference").
		SetFormula("A1", "=A1+1").
		AssertCellErr("A1", ErrorCodeCircular).
		End()

	NewWorkbookTestCase(t, "three-cell loop").
		SetFormula("A1", "=B1").
		SetFormula("B1", "=C1").
		SetFormula("C1", "=A1").
		AssertCellErr("A1", ErrorCodeCircular).
		AssertCellErr("B1", ErrorCodeCircular).
		AssertCellErr("C1", ErrorCodeCircular).
		End()

	NewWorkbookTestCase(t, "cells outside the loop see the sentinel, not a hang").
		SetFormula("A1", "=B1").
		SetFormula("B1", "=A1").
		SetFormula("C1", "=ISERROR(A1)").
		AssertCellEq("C1", true).
		End()
}

func TestCrossSheetReferences(t *testing.T) {
	NewWorkbookTestCase(t, "qualified reference reads another sheet").
		CreateSheet("Data").
		Set("Data!A1", 42.0).
		SetFormula("B1", "=Data!A1*2").
		AssertCellEq("B1", 84.0).
		End()

	NewWorkbookTestCase(t, "quoted sheet names carry spaces").
		CreateSheet("Fund II").
		Set("Fund II!A1", 9.0).
		SetFormula("B1", "='Fund II'!A1+1").
		AssertCellEq("B1", 10.0).
		End()

	NewWorkbookTestCase(t, "unknown sheet is a reference error").
		SetFormula("B1", "=Missing!A1").
		AssertCellErr("B1", ErrorCodeRef).
		End()

	NewWorkbookTestCase(t, "rename leaves stale references broken").
		CreateSheet("Data").
		Set("Data!A1", 1.0).
		SetFormula("B1", "=Data!A1").
		AssertCellEq("B1", 1.0).
		RenameSheet("Data", "Archive").
		AssertCellErr("B1", ErrorCodeRef).
		End()

	NewWorkbookTestCase(t, "cross-sheet range aggregation").
		CreateSheet("Flows").
		Set("Flows!A1", 10.0).
		Set("Flows!A2", 20.0).
		Set("Flows!A3", 30.0).
		SetFormula("B1", "=SUM(Flows!A1:A3)").
		AssertCellEq("B1", 60.0).
		End()
}

func TestSheetSpans(t *testing.T) {
	spanned := func(tc *WorkbookTestCase) *WorkbookTestCase {
		return tc.
			Set("A1", 1.0).
			CreateSheet("Q2").
			CreateSheet("Q3").
			Set("Q2!A1", 2.0).
			Set("Q3!A1", 3.0)
	}

	spanned(NewWorkbookTestCase(t, "span sums the same cell across sheets")).
		SetFormula("B1", "=SUM(Sheet1:Q3!A1)").
		AssertCellEq("B1", 6.0).
		End()

	spanned(NewWorkbookTestCase(t, "span over a sub-interval")).
		SetFormula("B1", "=SUM(Q2:Q3!A1)").
		AssertCellEq("B1", 5.0).
		End()

	spanned(NewWorkbookTestCase(t, "reversed span is a reference error")).
		SetFormula("B1", "=SUM(Q3:Sheet1!A1)").
		AssertCellErr("B1", ErrorCodeRef).
		End()

	spanned(NewWorkbookTestCase(t, "span with an unknown endpoint")).
		SetFormula("B1", "=SUM(Sheet1:Q9!A1)").
		AssertCellErr("B1", ErrorCodeRef).
		End()
}

// BenchmarkRecalculation measures the synchronous write path over a sheet
// with a few hundred live formulas, the population a fund model typically
// carries.
func BenchmarkRecalculation(b *testing.B) {
	wb := NewWorkbook()
	if err := wb.Write("A1", 1.0); err != nil {
		b.Fatal(err)
	}
	for row := 2; row <= 200; row++ {
		formula := fmt.Sprintf("=A%d+1", row-1)
		if err := wb.SetFormula(fmt.Sprintf("A%d", row), formula); err != nil {
			b.Fatal(err)
		}
	}
	for col := 'B'; col <= 'D'; col++ {
		for row := 1; row <= 50; row++ {
			formula := fmt.Sprintf("=SUM(A1:A%d)", row)
			if err := wb.SetFormula(fmt.Sprintf("%c%d", col, row), formula); err != nil {
				b.Fatal(err)
			}
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := wb.Write("A1", float64(i)); err != nil {
			b.Fatal(err)
		}
	}
}
