package gridcalc

import (
	"github.com/tiendc/go-deepcopy"
)

// defaultHistoryDepth bounds the undo stack; the oldest snapshot falls off
// when a new mutation would exceed it.
const defaultHistoryDepth = 100

// snapshot captures one sheet's cell population immediately before a
// mutation. Only the mutated sheet is copied: formulas on other sheets
// re-derive their values from it on the recalculation that follows an
// undo, so copying the whole workbook would buy nothing.
type snapshot struct {
	sheetID uint32
	cells   map[Address]*Cell
}

// undoRedoManager holds bounded past/future snapshot stacks. A new commit
// clears the future stack: once the timeline diverges, the old redo branch
// is unreachable.
type undoRedoManager struct {
	past   []snapshot
	future []snapshot
	depth  int
}

func newUndoRedoManager(depth int) *undoRedoManager {
	if depth <= 0 {
		depth = defaultHistoryDepth
	}
	return &undoRedoManager{depth: depth}
}

// commit records the pre-mutation state of the sheet about to change.
func (u *undoRedoManager) commit(sheet *Sheet) {
	u.past = append(u.past, snapshot{sheetID: sheet.ID(), cells: sheet.snapshotCells()})
	if len(u.past) > u.depth {
		u.past = u.past[1:]
	}
	u.future = nil
}

// undo pops the most recent snapshot, pushing the sheet's current state
// onto the future stack first. Returns false when there is nothing to
// undo or the snapshot's sheet no longer exists.
func (u *undoRedoManager) undo(resolve func(uint32) *Sheet) bool {
	if len(u.past) == 0 {
		return false
	}
	snap := u.past[len(u.past)-1]
	sheet := resolve(snap.sheetID)
	if sheet == nil {
		u.past = u.past[:len(u.past)-1]
		return false
	}
	u.past = u.past[:len(u.past)-1]
	u.future = append(u.future, snapshot{sheetID: sheet.ID(), cells: sheet.snapshotCells()})
	sheet.restoreCells(snap.cells)
	return true
}

// redo reverses the most recent undo.
func (u *undoRedoManager) redo(resolve func(uint32) *Sheet) bool {
	if len(u.future) == 0 {
		return false
	}
	snap := u.future[len(u.future)-1]
	sheet := resolve(snap.sheetID)
	if sheet == nil {
		u.future = u.future[:len(u.future)-1]
		return false
	}
	u.future = u.future[:len(u.future)-1]
	u.past = append(u.past, snapshot{sheetID: sheet.ID(), cells: sheet.snapshotCells()})
	sheet.restoreCells(snap.cells)
	return true
}

// dropSheet discards snapshots referencing a deleted sheet so undo never
// resurrects cells into a sheet that is gone.
func (u *undoRedoManager) dropSheet(sheetID uint32) {
	u.past = filterSnapshots(u.past, sheetID)
	u.future = filterSnapshots(u.future, sheetID)
}

func filterSnapshots(snaps []snapshot, sheetID uint32) []snapshot {
	out := snaps[:0]
	for _, s := range snaps {
		if s.sheetID != sheetID {
			out = append(out, s)
		}
	}
	return out
}

// copyCellMap deep-copies a cell population, including per-cell history
// slices and style maps, so snapshots are immune to later edits.
func copyCellMap(cells map[Address]*Cell) map[Address]*Cell {
	out := make(map[Address]*Cell, len(cells))
	if err := deepcopy.Copy(&out, cells); err != nil {
		// the cell graph is plain data; a copy failure is a programming error
		panic("gridcalc: cell snapshot copy failed: " + err.Error())
	}
	return out
}
