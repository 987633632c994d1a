package gridcalc

import (
	"time"
)

// Default grid dimensions for a new sheet. Dimensions are display metadata:
// the cell map is sparse and writes beyond them simply grow the grid.
const (
	defaultRows = 100
	defaultCols = 26
)

// Sheet owns one grid: a sparse map from address to cell plus the grid
// metadata the UI layer persists (pane freezing, hidden rows/columns, size
// overrides, merges, conditional formats, named ranges).
type Sheet struct {
	id   uint32
	name string

	cells map[Address]*Cell

	rows, cols             int
	frozenRows, frozenCols int
	hiddenRows             map[int]bool
	hiddenCols             map[int]bool
	rowHeights             map[int]float64
	colWidths              map[int]float64
	merges                 []RangeRef
	formats                []ConditionalFormat
	namedRanges            map[string]RangeRef

	// style overlay produced by the conditional-format pass, keyed by address
	overlay map[Address]Style

	clock Clock
}

func newSheet(id uint32, name string, clock Clock) *Sheet {
	return &Sheet{
		id:          id,
		name:        name,
		cells:       make(map[Address]*Cell),
		rows:        defaultRows,
		cols:        defaultCols,
		hiddenRows:  make(map[int]bool),
		hiddenCols:  make(map[int]bool),
		rowHeights:  make(map[int]float64),
		colWidths:   make(map[int]float64),
		namedRanges: make(map[string]RangeRef),
		overlay:     make(map[Address]Style),
		clock:       clock,
	}
}

// ID returns the sheet's workbook-unique identifier.
func (s *Sheet) ID() uint32 { return s.id }

// Name returns the sheet's display name.
func (s *Sheet) Name() string { return s.name }

// Cell returns the cell at addr, or nil if the address is empty.
func (s *Sheet) Cell(addr Address) *Cell {
	return s.cells[addr]
}

// Value returns the materialized value at addr (nil for empty cells).
func (s *Sheet) Value(addr Address) Scalar {
	if c := s.cells[addr]; c != nil {
		return c.Value
	}
	return nil
}

// CellCount returns the number of populated cells.
func (s *Sheet) CellCount() int { return len(s.cells) }

// ensureCell creates the cell on first write, growing the grid dimensions
// to cover it.
func (s *Sheet) ensureCell(addr Address) *Cell {
	c, ok := s.cells[addr]
	if !ok {
		c = &Cell{}
		s.cells[addr] = c
	}
	if addr.Row > s.rows {
		s.rows = addr.Row
	}
	if addr.Col > s.cols {
		s.cols = addr.Col
	}
	return c
}

// setLiteral stores a literal value, clearing any prior formula. Every
// successful write appends the displaced value to the cell's history.
func (s *Sheet) setLiteral(addr Address, value Scalar, typ CellType) {
	c := s.ensureCell(addr)
	c.recordHistory(s.clock.Now())
	c.Value = value
	c.Formula = ""
	c.Type = typ
}

// setFormula stores formula source text. The materialized value is supplied
// by the recalculation pass, not here.
func (s *Sheet) setFormula(addr Address, formula string) {
	c := s.ensureCell(addr)
	c.recordHistory(s.clock.Now())
	c.Formula = formula
	c.Type = TypeFormula
	c.Value = nil
}

// setMaterialized stores an evaluation result without touching history:
// recalculation is derivation, not an edit.
func (s *Sheet) setMaterialized(addr Address, value Scalar) {
	if c := s.cells[addr]; c != nil {
		c.Value = value
	}
}

// styleCell merges style attributes into the cell, creating it if needed.
func (s *Sheet) styleCell(addr Address, style Style) {
	c := s.ensureCell(addr)
	c.Style = c.Style.merge(style)
}

// annotate attaches a provenance source to the cell.
func (s *Sheet) annotate(addr Address, source string) {
	s.ensureCell(addr).Source = source
}

// clearRange removes every cell in the inclusive rectangle.
func (s *Sheet) clearRange(ref RangeRef) {
	for addr := range s.cells {
		if ref.Contains(addr) {
			delete(s.cells, addr)
		}
	}
}

// writeRange writes a row-major matrix of literals anchored at ref.Start.
// Matrix cells beyond the range's extent grow it; nil entries are skipped.
func (s *Sheet) writeRange(start Address, matrix [][]Scalar) {
	for i, row := range matrix {
		for j, v := range row {
			if v == nil {
				continue
			}
			addr := Address{Col: start.Col + j, Row: start.Row + i}
			s.setLiteral(addr, v, classifyScalar(v))
		}
	}
}

// formulaAddresses returns the addresses of all formula cells in row-major
// order, the deterministic order recalculation walks them in.
func (s *Sheet) formulaAddresses() []Address {
	out := make([]Address, 0, len(s.cells))
	for addr, c := range s.cells {
		if c.IsFormula() {
			out = append(out, addr)
		}
	}
	sortAddresses(out)
	return out
}

// extent returns the populated bounding box (0,0 when the sheet is empty).
func (s *Sheet) extent() (maxCol, maxRow int) {
	for addr := range s.cells {
		if addr.Col > maxCol {
			maxCol = addr.Col
		}
		if addr.Row > maxRow {
			maxRow = addr.Row
		}
	}
	return maxCol, maxRow
}

// EffectiveStyle merges the cell's own style with the conditional-format
// overlay computed by the last recalculation.
func (s *Sheet) EffectiveStyle(addr Address) Style {
	var out Style
	if c := s.cells[addr]; c != nil {
		out = out.merge(c.Style)
	}
	return out.merge(s.overlay[addr])
}

// Grid metadata accessors and mutators. These are display state: none of
// them trigger recalculation or undo snapshots.

func (s *Sheet) Dimensions() (rows, cols int) { return s.rows, s.cols }

func (s *Sheet) SetFrozen(rows, cols int) {
	s.frozenRows, s.frozenCols = rows, cols
}

func (s *Sheet) Frozen() (rows, cols int) { return s.frozenRows, s.frozenCols }

func (s *Sheet) HideRow(row int, hidden bool) {
	if hidden {
		s.hiddenRows[row] = true
	} else {
		delete(s.hiddenRows, row)
	}
}

func (s *Sheet) HideColumn(col int, hidden bool) {
	if hidden {
		s.hiddenCols[col] = true
	} else {
		delete(s.hiddenCols, col)
	}
}

func (s *Sheet) RowHidden(row int) bool    { return s.hiddenRows[row] }
func (s *Sheet) ColumnHidden(col int) bool { return s.hiddenCols[col] }

func (s *Sheet) SetRowHeight(row int, height float64) { s.rowHeights[row] = height }
func (s *Sheet) SetColumnWidth(col int, width float64) {
	s.colWidths[col] = width
}

func (s *Sheet) Merge(ref RangeRef) { s.merges = append(s.merges, ref) }

func (s *Sheet) Merges() []RangeRef { return s.merges }

// DefineNamedRange binds a name to a range within this sheet.
func (s *Sheet) DefineNamedRange(name string, ref RangeRef) {
	s.namedRanges[name] = ref
}

// NamedRange resolves a name defined on this sheet.
func (s *Sheet) NamedRange(name string) (RangeRef, bool) {
	ref, ok := s.namedRanges[name]
	return ref, ok
}

// snapshotCells deep-copies the cell map for undo snapshots and CopySheet.
func (s *Sheet) snapshotCells() map[Address]*Cell {
	return copyCellMap(s.cells)
}

// restoreCells swaps in a previously captured cell map.
func (s *Sheet) restoreCells(cells map[Address]*Cell) {
	s.cells = copyCellMap(cells)
}

// Clock supplies timestamps for the per-cell history log; injected so tests
// control it.
type Clock interface {
	Now() time.Time
}

// WallClock is the default Clock using system time.
type WallClock struct{}

func (WallClock) Now() time.Time { return time.Now() }
