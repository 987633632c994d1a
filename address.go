package gridcalc

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Address identifies one cell within a sheet. Column and Row are 1-based:
// column 1 is "A", row 1 is the first row.
type Address struct {
	Col int
	Row int
}

// String renders the address in A1 notation.
func (a Address) String() string {
	return ColumnLetters(a.Col) + strconv.Itoa(a.Row)
}

// Grid bounds match the XLSX sheet limits, so every address the engine
// accepts stays representable on export.
const (
	MaxColumns = 16384 // "XFD"
	MaxRows    = 1048576
)

// ColumnIndex converts column letters to a 1-based index ("A" -> 1,
// "Z" -> 26, "AA" -> 27). Returns 0 for malformed or out-of-bounds input.
func ColumnIndex(letters string) int {
	if letters == "" {
		return 0
	}
	col := 0
	for _, ch := range letters {
		switch {
		case ch >= 'A' && ch <= 'Z':
			col = col*26 + int(ch-'A') + 1
		case ch >= 'a' && ch <= 'z':
			col = col*26 + int(ch-'a') + 1
		default:
			return 0
		}
		if col > MaxColumns {
			return 0
		}
	}
	return col
}

// ColumnLetters converts a 1-based column index to letters. Bijective
// base-26: there is no zero digit, so 26 is "Z" and 27 is "AA".
func ColumnLetters(col int) string {
	if col < 1 || col > MaxColumns {
		return ""
	}
	var buf [8]byte
	i := len(buf)
	for col > 0 {
		col--
		i--
		buf[i] = byte('A' + col%26)
		col /= 26
	}
	return string(buf[i:])
}

// ParseAddress parses an A1-style address into coordinates. Malformed
// addresses return a #REF! CellError rather than panicking, so parse
// failures stay inside the evaluator's error taxonomy.
func ParseAddress(text string) (Address, error) {
	letterEnd := 0
	for i, ch := range text {
		if (ch >= 'A' && ch <= 'Z') || (ch >= 'a' && ch <= 'z') {
			letterEnd = i + 1
		} else {
			break
		}
	}
	if letterEnd == 0 || letterEnd == len(text) {
		return Address{}, newCellError(ErrorCodeRef, fmt.Sprintf("invalid cell address: %s", text))
	}

	col := ColumnIndex(text[:letterEnd])
	if col == 0 {
		return Address{}, newCellError(ErrorCodeRef, fmt.Sprintf("invalid column in address: %s", text))
	}

	row, err := strconv.Atoi(text[letterEnd:])
	if err != nil || row < 1 || row > MaxRows {
		return Address{}, newCellError(ErrorCodeRef, fmt.Sprintf("invalid row in address: %s", text))
	}

	return Address{Col: col, Row: row}, nil
}

// ParseRange parses "A1:B3" into a normalized RangeRef. A single address is
// accepted as a one-cell range.
func ParseRange(text string) (RangeRef, error) {
	start, end, found := strings.Cut(text, ":")
	a, err := ParseAddress(start)
	if err != nil {
		return RangeRef{}, err
	}
	if !found {
		return RangeRef{Start: a, End: a}, nil
	}
	b, err := ParseAddress(end)
	if err != nil {
		return RangeRef{}, err
	}
	return newRangeRef(a, b), nil
}

// ExpandRange parses a range and returns its addresses in row-major order.
func ExpandRange(text string) ([]Address, error) {
	ref, err := ParseRange(text)
	if err != nil {
		return nil, err
	}
	return ref.Addresses(), nil
}

// sortAddresses orders addresses row-major in place.
func sortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool {
		if addrs[i].Row != addrs[j].Row {
			return addrs[i].Row < addrs[j].Row
		}
		return addrs[i].Col < addrs[j].Col
	})
}

// splitSheetRef splits "Name!A1" into sheet name and the rest. Quoted names
// ('Deal Model'!A1) are unquoted. An empty sheet name means no prefix.
func splitSheetRef(text string) (sheet, rest string) {
	idx := strings.LastIndex(text, "!")
	if idx < 0 {
		return "", text
	}
	sheet, rest = text[:idx], text[idx+1:]
	if strings.HasPrefix(sheet, "'") && strings.HasSuffix(sheet, "'") && len(sheet) >= 2 {
		sheet = sheet[1 : len(sheet)-1]
	}
	return sheet, rest
}
