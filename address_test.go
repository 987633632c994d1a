package gridcalc

import (
	"testing"
)

func TestColumnLetters(t *testing.T) {
	cases := []struct {
		col  int
		want string
	}{
		{1, "A"},
		{2, "B"},
		{26, "Z"},
		{27, "AA"},
		{28, "AB"},
		{52, "AZ"},
		{53, "BA"},
		{702, "ZZ"},
		{703, "AAA"},
		{MaxColumns, "XFD"},
		{MaxColumns + 1, ""},
		{0, ""},
		{-4, ""},
	}
	for _, c := range cases {
		if got := ColumnLetters(c.col); got != c.want {
			t.Errorf("ColumnLetters(%d) = %q, want %q", c.col, got, c.want)
		}
	}
}

func TestColumnIndex(t *testing.T) {
	cases := []struct {
		letters string
		want    int
	}{
		{"A", 1},
		{"Z", 26},
		{"AA", 27},
		{"AZ", 52},
		{"ZZ", 702},
		{"a", 1},
		{"aa", 27},
		{"XFD", MaxColumns},
		{"XFE", 0},
		{"AAAAAAAAA", 0},
		{"", 0},
		{"A1", 0},
		{"!", 0},
	}
	for _, c := range cases {
		if got := ColumnIndex(c.letters); got != c.want {
			t.Errorf("ColumnIndex(%q) = %d, want %d", c.letters, got, c.want)
		}
	}
}

func TestColumnRoundTrip(t *testing.T) {
	for col := 1; col <= 1000; col++ {
		if got := ColumnIndex(ColumnLetters(col)); got != col {
			t.Fatalf("round trip failed at %d: got %d", col, got)
		}
	}
}

func TestParseAddress(t *testing.T) {
	cases := []struct {
		text    string
		want    Address
		wantErr bool
	}{
		{"A1", Address{Col: 1, Row: 1}, false},
		{"B12", Address{Col: 2, Row: 12}, false},
		{"AA100", Address{Col: 27, Row: 100}, false},
		{"zz9", Address{Col: 702, Row: 9}, false},
		{"XFD1048576", Address{Col: MaxColumns, Row: MaxRows}, false},
		{"A0", Address{}, true},
		{"A1048577", Address{}, true},
		{"AAAAAAAAA1", Address{}, true},
		{"A-1", Address{}, true},
		{"1A", Address{}, true},
		{"A", Address{}, true},
		{"12", Address{}, true},
		{"", Address{}, true},
	}
	for _, c := range cases {
		got, err := ParseAddress(c.text)
		if c.wantErr {
			if err == nil {
				t.Errorf("ParseAddress(%q) succeeded, want error", c.text)
				continue
			}
			cellErr, ok := err.(*CellError)
			if !ok || cellErr.Code != ErrorCodeRef {
				t.Errorf("ParseAddress(%q) error = %v, want #REF!", c.text, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseAddress(%q) failed: %v", c.text, err)
			continue
		}
		if got != c.want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", c.text, got, c.want)
		}
	}
}

func TestAddressString(t *testing.T) {
	addr := Address{Col: 28, Row: 7}
	if got := addr.String(); got != "AB7" {
		t.Errorf("String() = %q, want AB7", got)
	}
}

func TestParseRange(t *testing.T) {
	ref, err := ParseRange("B2:A1")
	if err != nil {
		t.Fatalf("ParseRange failed: %v", err)
	}
	// normalized so Start is top-left
	if ref.Start != (Address{Col: 1, Row: 1}) || ref.End != (Address{Col: 2, Row: 2}) {
		t.Errorf("ParseRange(B2:A1) = %v, want A1:B2", ref)
	}

	single, err := ParseRange("C3")
	if err != nil {
		t.Fatalf("ParseRange single failed: %v", err)
	}
	if single.Start != single.End {
		t.Errorf("single-cell range not collapsed: %v", single)
	}

	if _, err := ParseRange("A1:"); err == nil {
		t.Error("ParseRange(A1:) succeeded, want error")
	}
}

func TestExpandRange(t *testing.T) {
	addrs, err := ExpandRange("A1:B2")
	if err != nil {
		t.Fatalf("ExpandRange failed: %v", err)
	}
	want := []Address{
		{Col: 1, Row: 1}, {Col: 2, Row: 1},
		{Col: 1, Row: 2}, {Col: 2, Row: 2},
	}
	if len(addrs) != len(want) {
		t.Fatalf("ExpandRange returned %d addresses, want %d", len(addrs), len(want))
	}
	for i := range want {
		if addrs[i] != want[i] {
			t.Errorf("ExpandRange[%d] = %v, want %v (row-major)", i, addrs[i], want[i])
		}
	}
}

func TestSplitSheetRef(t *testing.T) {
	cases := []struct {
		text      string
		wantSheet string
		wantRest  string
	}{
		{"A1", "", "A1"},
		{"Model!A1", "Model", "A1"},
		{"'Deal Model'!B2", "Deal Model", "B2"},
		{"Sheet1:Sheet3!A1", "Sheet1:Sheet3", "A1"},
	}
	for _, c := range cases {
		sheet, rest := splitSheetRef(c.text)
		if sheet != c.wantSheet || rest != c.wantRest {
			t.Errorf("splitSheetRef(%q) = (%q, %q), want (%q, %q)",
				c.text, sheet, rest, c.wantSheet, c.wantRest)
		}
	}
}
