package gridcalc

import "iter"

// RangeRef is an inclusive rectangular span of addresses within one sheet,
// normalized so Start is the top-left corner.
type RangeRef struct {
	Start Address
	End   Address
}

func newRangeRef(a, b Address) RangeRef {
	return RangeRef{
		Start: Address{Col: min(a.Col, b.Col), Row: min(a.Row, b.Row)},
		End:   Address{Col: max(a.Col, b.Col), Row: max(a.Row, b.Row)},
	}
}

// String renders the range in A1:B2 notation.
func (r RangeRef) String() string {
	if r.Start == r.End {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// Contains reports whether the address falls inside the range.
func (r RangeRef) Contains(a Address) bool {
	return a.Col >= r.Start.Col && a.Col <= r.End.Col &&
		a.Row >= r.Start.Row && a.Row <= r.End.Row
}

// Addresses returns every address in the range in row-major order.
func (r RangeRef) Addresses() []Address {
	out := make([]Address, 0, (r.End.Row-r.Start.Row+1)*(r.End.Col-r.Start.Col+1))
	for row := r.Start.Row; row <= r.End.Row; row++ {
		for col := r.Start.Col; col <= r.End.Col; col++ {
			out = append(out, Address{Col: col, Row: row})
		}
	}
	return out
}

// Rows and Cols report the span's dimensions.
func (r RangeRef) Rows() int { return r.End.Row - r.Start.Row + 1 }
func (r RangeRef) Cols() int { return r.End.Col - r.Start.Col + 1 }

// Range is the lazy value a range or 3D reference evaluates to. Only
// functions may consume it: a bare range surfacing to arithmetic is an
// evaluation error. Values iterate in row-major order with formula cells
// materialized through the active evaluation session, so cycle detection
// sees references made through ranges.
type Range interface {
	Values() iter.Seq[Scalar]
}

// cellRange is a Range over one sheet's rectangle.
type cellRange struct {
	sheet *Sheet
	ref   RangeRef
	ctx   *evalContext
}

func (r *cellRange) Values() iter.Seq[Scalar] {
	return func(yield func(Scalar) bool) {
		for row := r.ref.Start.Row; row <= r.ref.End.Row; row++ {
			for col := r.ref.Start.Col; col <= r.ref.End.Col; col++ {
				v := r.ctx.valueAt(r.sheet, Address{Col: col, Row: row})
				if !yield(v) {
					return
				}
			}
		}
	}
}

// rows yields the range one row at a time, for lookup functions.
func (r *cellRange) rows() iter.Seq[[]Scalar] {
	return func(yield func([]Scalar) bool) {
		for row := r.ref.Start.Row; row <= r.ref.End.Row; row++ {
			vals := make([]Scalar, 0, r.ref.Cols())
			for col := r.ref.Start.Col; col <= r.ref.End.Col; col++ {
				vals = append(vals, r.ctx.valueAt(r.sheet, Address{Col: col, Row: row}))
			}
			if !yield(vals) {
				return
			}
		}
	}
}

// columns yields the range one column at a time.
func (r *cellRange) columns() iter.Seq[[]Scalar] {
	return func(yield func([]Scalar) bool) {
		for col := r.ref.Start.Col; col <= r.ref.End.Col; col++ {
			vals := make([]Scalar, 0, r.ref.Rows())
			for row := r.ref.Start.Row; row <= r.ref.End.Row; row++ {
				vals = append(vals, r.ctx.valueAt(r.sheet, Address{Col: col, Row: row}))
			}
			if !yield(vals) {
				return
			}
		}
	}
}

// sheetSpan is the Range a 3D reference (Start:End!A1) evaluates to: the
// same address sampled across an inclusive span of sheets in creation order.
type sheetSpan struct {
	sheets []*Sheet
	addr   Address
	ctx    *evalContext
}

func (s *sheetSpan) Values() iter.Seq[Scalar] {
	return func(yield func(Scalar) bool) {
		for _, sh := range s.sheets {
			if !yield(s.ctx.valueAt(sh, s.addr)) {
				return
			}
		}
	}
}
