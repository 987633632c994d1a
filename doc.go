// Package gridcalc is a headless spreadsheet calculation engine for
// financial models: a sparse cell grid with a formula mini-language,
// synchronous recompute-on-write semantics, circular-reference detection,
// conditional formatting, snapshot-based undo/redo, and multi-sheet
// workbooks with cross-sheet and 3D references.
//
// The engine performs no I/O and holds no locks: callers serialize writes
// to a Workbook through its mutation entry points, and every write returns
// only after recalculation has fully settled. CSV and XLSX interchange live
// alongside the engine; rendering and orchestration belong to the host
// application.
package gridcalc
