package gridcalc

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// AppErrorCode classifies application-level failures (invalid sheet names,
// malformed addresses from callers). Distinct from cell-value errors, which
// stay inside the grid.
type AppErrorCode int

const (
	OK                 AppErrorCode = 0
	Unknown            AppErrorCode = 2
	InvalidArgument    AppErrorCode = 3
	NotFound           AppErrorCode = 5
	AlreadyExists      AppErrorCode = 6
	FailedPrecondition AppErrorCode = 9
)

// AppError is a coded application-level error.
type AppError struct {
	Code    AppErrorCode
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Workbook owns an ordered set of sheets, the active-sheet pointer, the
// formula cache, the function library, and the undo history. All mutations
// go through the workbook so every write settles synchronously: snapshot,
// mutate, recalculate, refresh conditional formats, then return.
//
// The workbook holds no internal locking; callers serialize writes.
type Workbook struct {
	sheets map[uint32]*Sheet
	order  []uint32          // creation order, drives 3D spans
	names  map[string]uint32 // lower-cased name -> id
	active uint32
	nextID uint32

	formulas *formulaCache
	funcs    *funcLibrary
	undo     *undoRedoManager
	clock    Clock
}

// Option configures a workbook at construction.
type Option func(*workbookConfig)

type workbookConfig struct {
	clock        Clock
	rng          RandomGenerator
	historyDepth int
}

// WithClock injects the time source used by history timestamps and the
// NOW/TODAY functions.
func WithClock(clock Clock) Option {
	return func(c *workbookConfig) { c.clock = clock }
}

// WithRandomGenerator injects the source behind RAND.
func WithRandomGenerator(rng RandomGenerator) Option {
	return func(c *workbookConfig) { c.rng = rng }
}

// WithHistoryDepth bounds the undo stack.
func WithHistoryDepth(depth int) Option {
	return func(c *workbookConfig) { c.historyDepth = depth }
}

// NewWorkbook creates a workbook with one empty sheet named "Sheet1".
func NewWorkbook(opts ...Option) *Workbook {
	cfg := workbookConfig{
		clock:        &WallClock{},
		rng:          &DefaultRandomGenerator{},
		historyDepth: defaultHistoryDepth,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	wb := &Workbook{
		sheets:   make(map[uint32]*Sheet),
		names:    make(map[string]uint32),
		formulas: newFormulaCache(),
		funcs:    newFuncLibrary(cfg.clock, cfg.rng),
		undo:     newUndoRedoManager(cfg.historyDepth),
		clock:    cfg.clock,
	}
	wb.addSheet("Sheet1")
	wb.active = wb.order[0]
	return wb
}

func (wb *Workbook) addSheet(name string) *Sheet {
	wb.nextID++
	sheet := newSheet(wb.nextID, name, wb.clock)
	wb.sheets[sheet.ID()] = sheet
	wb.order = append(wb.order, sheet.ID())
	wb.names[strings.ToLower(name)] = sheet.ID()
	return sheet
}

// --- Sheet lifecycle ---

func validSheetName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", NewApplicationError(InvalidArgument, "sheet name must not be empty")
	}
	if strings.ContainsAny(name, "!:") {
		return "", NewApplicationError(InvalidArgument, fmt.Sprintf("sheet name %q contains reference syntax", name))
	}
	return name, nil
}

// CreateSheet adds an empty sheet. Names are unique case-insensitively.
func (wb *Workbook) CreateSheet(name string) (*Sheet, error) {
	name, err := validSheetName(name)
	if err != nil {
		return nil, err
	}
	if _, exists := wb.names[strings.ToLower(name)]; exists {
		return nil, NewApplicationError(AlreadyExists, fmt.Sprintf("sheet %q already exists", name))
	}
	return wb.addSheet(name), nil
}

// SwitchSheet moves the active-sheet pointer.
func (wb *Workbook) SwitchSheet(name string) error {
	sheet, ok := wb.sheetByName(name)
	if !ok {
		return NewApplicationError(NotFound, fmt.Sprintf("sheet %q not found", name))
	}
	wb.active = sheet.ID()
	return nil
}

// RenameSheet renames a sheet. Formulas referencing the old name resolve
// against the new one only if rewritten by the caller; stale references
// evaluate to #REF!.
func (wb *Workbook) RenameSheet(oldName, newName string) error {
	sheet, ok := wb.sheetByName(oldName)
	if !ok {
		return NewApplicationError(NotFound, fmt.Sprintf("sheet %q not found", oldName))
	}
	newName, err := validSheetName(newName)
	if err != nil {
		return err
	}
	if other, exists := wb.names[strings.ToLower(newName)]; exists && other != sheet.ID() {
		return NewApplicationError(AlreadyExists, fmt.Sprintf("sheet %q already exists", newName))
	}
	delete(wb.names, strings.ToLower(sheet.name))
	sheet.name = newName
	wb.names[strings.ToLower(newName)] = sheet.ID()
	wb.recalculate()
	wb.refreshFormats()
	return nil
}

// CopySheet deep-copies a sheet's cells, metadata, and rules under a new
// name. The copy goes to the end of the creation order.
func (wb *Workbook) CopySheet(srcName, dstName string) (*Sheet, error) {
	src, ok := wb.sheetByName(srcName)
	if !ok {
		return nil, NewApplicationError(NotFound, fmt.Sprintf("sheet %q not found", srcName))
	}
	dst, err := wb.CreateSheet(dstName)
	if err != nil {
		return nil, err
	}
	dst.cells = src.snapshotCells()
	dst.rows, dst.cols = src.rows, src.cols
	dst.frozenRows, dst.frozenCols = src.frozenRows, src.frozenCols
	for row := range src.hiddenRows {
		dst.hiddenRows[row] = true
	}
	for col := range src.hiddenCols {
		dst.hiddenCols[col] = true
	}
	for row, h := range src.rowHeights {
		dst.rowHeights[row] = h
	}
	for col, w := range src.colWidths {
		dst.colWidths[col] = w
	}
	dst.merges = append([]RangeRef(nil), src.merges...)
	dst.formats = append([]ConditionalFormat(nil), src.formats...)
	for name, ref := range src.namedRanges {
		dst.namedRanges[name] = ref
	}
	wb.recalculate()
	wb.refreshFormats()
	return dst, nil
}

// DeleteSheet removes a sheet. The last remaining sheet is protected; when
// the active sheet is deleted the pointer moves to the nearest survivor in
// creation order.
func (wb *Workbook) DeleteSheet(name string) error {
	sheet, ok := wb.sheetByName(name)
	if !ok {
		return NewApplicationError(NotFound, fmt.Sprintf("sheet %q not found", name))
	}
	if len(wb.order) == 1 {
		return NewApplicationError(FailedPrecondition, "cannot delete the last sheet")
	}
	pos := wb.orderIndex(sheet.ID())
	wb.order = append(wb.order[:pos], wb.order[pos+1:]...)
	delete(wb.sheets, sheet.ID())
	delete(wb.names, strings.ToLower(sheet.name))
	wb.undo.dropSheet(sheet.ID())
	if wb.active == sheet.ID() {
		if pos >= len(wb.order) {
			pos = len(wb.order) - 1
		}
		wb.active = wb.order[pos]
	}
	wb.recalculate()
	wb.refreshFormats()
	return nil
}

// ActiveSheet returns the sheet mutations target by default.
func (wb *Workbook) ActiveSheet() *Sheet {
	return wb.sheets[wb.active]
}

// SheetNames lists sheets in creation order.
func (wb *Workbook) SheetNames() []string {
	names := make([]string, len(wb.order))
	for i, id := range wb.order {
		names[i] = wb.sheets[id].Name()
	}
	return names
}

// SheetByName resolves a sheet by display name, case-insensitively.
func (wb *Workbook) SheetByName(name string) (*Sheet, bool) {
	return wb.sheetByName(name)
}

func (wb *Workbook) sheetByName(name string) (*Sheet, bool) {
	id, ok := wb.names[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, false
	}
	return wb.sheets[id], true
}

func (wb *Workbook) sheetByID(id uint32) *Sheet {
	return wb.sheets[id]
}

func (wb *Workbook) orderIndex(id uint32) int {
	for i, candidate := range wb.order {
		if candidate == id {
			return i
		}
	}
	return -1
}

// sheetsInOrder returns sheets in creation order.
func (wb *Workbook) sheetsInOrder() []*Sheet {
	out := make([]*Sheet, len(wb.order))
	for i, id := range wb.order {
		out[i] = wb.sheets[id]
	}
	return out
}

// sheetSpan resolves a 3D reference's inclusive sheet interval in creation
// order. Missing endpoints or a reversed interval are reference errors.
func (wb *Workbook) sheetSpan(startName, endName string) ([]*Sheet, *CellError) {
	start, okStart := wb.sheetByName(startName)
	end, okEnd := wb.sheetByName(endName)
	if !okStart || !okEnd {
		return nil, newCellError(ErrorCodeRef, fmt.Sprintf("sheet span %s:%s has an unknown endpoint", startName, endName))
	}
	from, to := wb.orderIndex(start.ID()), wb.orderIndex(end.ID())
	if from > to {
		return nil, newCellError(ErrorCodeRef, fmt.Sprintf("sheet span %s:%s is reversed", startName, endName))
	}
	sheets := make([]*Sheet, 0, to-from+1)
	for _, id := range wb.order[from : to+1] {
		sheets = append(sheets, wb.sheets[id])
	}
	return sheets, nil
}

// --- Headless write/query API ---

// WriteOption augments a single write.
type WriteOption func(*writeOptions)

type writeOptions struct {
	source string
	link   string
}

// WithSource attaches a provenance annotation (citation text or URL).
func WithSource(source string) WriteOption {
	return func(o *writeOptions) { o.source = source }
}

// WithLink marks the cell as a hyperlink to url.
func WithLink(url string) WriteOption {
	return func(o *writeOptions) { o.link = url }
}

// resolveTarget parses a possibly sheet-qualified address against the
// active sheet.
func (wb *Workbook) resolveTarget(address string) (*Sheet, Address, error) {
	sheetName, rest := splitSheetRef(strings.TrimSpace(address))
	addr, err := ParseAddress(rest)
	if err != nil {
		return nil, Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q", address))
	}
	if sheetName == "" {
		return wb.ActiveSheet(), addr, nil
	}
	sheet, ok := wb.sheetByName(sheetName)
	if !ok {
		return nil, Address{}, NewApplicationError(NotFound, fmt.Sprintf("sheet %q not found", sheetName))
	}
	return sheet, addr, nil
}

// resolveRangeEnd parses the end address of a start..end pair. A sheet
// qualifier is accepted but must name the sheet start resolved to.
func (wb *Workbook) resolveRangeEnd(sheet *Sheet, end string) (Address, error) {
	sheetName, rest := splitSheetRef(strings.TrimSpace(end))
	addr, err := ParseAddress(rest)
	if err != nil {
		return Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("invalid address %q", end))
	}
	if sheetName != "" {
		named, ok := wb.sheetByName(sheetName)
		if !ok {
			return Address{}, NewApplicationError(NotFound, fmt.Sprintf("sheet %q not found", sheetName))
		}
		if named != sheet {
			return Address{}, NewApplicationError(InvalidArgument, fmt.Sprintf("range endpoints name different sheets: %q", end))
		}
	}
	return addr, nil
}

// mutate wraps one mutation in the synchronous write contract: snapshot the
// target sheet, apply, recalculate the whole workbook, refresh format
// overlays. Per-cell evaluation errors land in cells, never here.
func (wb *Workbook) mutate(sheet *Sheet, apply func()) {
	wb.undo.commit(sheet)
	apply()
	wb.recalculate()
	wb.refreshFormats()
}

// Write stores a value at an address. Strings carrying the formula marker
// are stored as formulas; everything else is a literal. The write settles
// before returning: the cell's materialized value reflects the new state.
func (wb *Workbook) Write(address string, value Scalar, opts ...WriteOption) error {
	sheet, addr, err := wb.resolveTarget(address)
	if err != nil {
		return err
	}
	var options writeOptions
	for _, opt := range opts {
		opt(&options)
	}
	wb.mutate(sheet, func() {
		if text, ok := value.(string); ok && IsFormulaText(text) {
			sheet.setFormula(addr, text)
		} else {
			sheet.setLiteral(addr, value, classifyScalar(value))
		}
		if options.source != "" {
			sheet.annotate(addr, options.source)
		}
		if options.link != "" {
			sheet.annotate(addr, options.link)
			sheet.cells[addr].Type = TypeLink
		}
	})
	return nil
}

// WriteText stores raw text with type inference: numbers, currency,
// percentages, ISO dates, and booleans become typed literals; the formula
// marker routes to SetFormula. This is the CSV-import write path.
func (wb *Workbook) WriteText(address string, text string, opts ...WriteOption) error {
	if IsFormulaText(text) {
		return wb.SetFormula(address, text)
	}
	sheet, addr, err := wb.resolveTarget(address)
	if err != nil {
		return err
	}
	var options writeOptions
	for _, opt := range opts {
		opt(&options)
	}
	wb.mutate(sheet, func() {
		value, typ := InferLiteral(text)
		sheet.setLiteral(addr, value, typ)
		if options.source != "" {
			sheet.annotate(addr, options.source)
		}
	})
	return nil
}

// SetFormula stores formula source at an address and evaluates it before
// returning. Malformed formulas settle as #ERROR! values, not call errors.
func (wb *Workbook) SetFormula(address string, formula string) error {
	sheet, addr, err := wb.resolveTarget(address)
	if err != nil {
		return err
	}
	formula = strings.TrimSpace(formula)
	if !IsFormulaText(formula) {
		formula = "=" + formula
	}
	wb.mutate(sheet, func() {
		sheet.setFormula(addr, formula)
	})
	return nil
}

// StyleCell merges style attributes into a cell.
func (wb *Workbook) StyleCell(address string, style Style) error {
	sheet, addr, err := wb.resolveTarget(address)
	if err != nil {
		return err
	}
	wb.mutate(sheet, func() {
		sheet.styleCell(addr, style)
	})
	return nil
}

// ClearRange deletes every cell in the inclusive rectangle.
func (wb *Workbook) ClearRange(start, end string) error {
	sheet, from, err := wb.resolveTarget(start)
	if err != nil {
		return err
	}
	to, err := wb.resolveRangeEnd(sheet, end)
	if err != nil {
		return err
	}
	wb.mutate(sheet, func() {
		sheet.clearRange(newRangeRef(from, to))
	})
	return nil
}

// WriteRange writes a row-major matrix of literals anchored at start,
// clipped to the start..end rectangle. Nil matrix entries leave existing
// cells untouched.
func (wb *Workbook) WriteRange(start, end string, matrix [][]Scalar) error {
	sheet, from, err := wb.resolveTarget(start)
	if err != nil {
		return err
	}
	to, err := wb.resolveRangeEnd(sheet, end)
	if err != nil {
		return err
	}
	ref := newRangeRef(from, to)
	clipped := make([][]Scalar, 0, len(matrix))
	for i, row := range matrix {
		if i >= ref.Rows() {
			break
		}
		if len(row) > ref.Cols() {
			row = row[:ref.Cols()]
		}
		clipped = append(clipped, row)
	}
	wb.mutate(sheet, func() {
		sheet.writeRange(ref.Start, clipped)
	})
	return nil
}

// ReadValue returns the materialized value at an address; empty cells read
// as nil. Error sentinels come back as the cell's *CellError value.
func (wb *Workbook) ReadValue(address string) (Scalar, error) {
	sheet, addr, err := wb.resolveTarget(address)
	if err != nil {
		return nil, err
	}
	return sheet.Value(addr), nil
}

// ReadCell returns the full cell at an address, or nil when empty. The
// returned cell is live state; callers must not mutate it.
func (wb *Workbook) ReadCell(address string) (*Cell, error) {
	sheet, addr, err := wb.resolveTarget(address)
	if err != nil {
		return nil, err
	}
	return sheet.Cell(addr), nil
}

// DisplayValue renders a cell's materialized value as display text
// honoring its type tag.
func (wb *Workbook) DisplayValue(address string) (string, error) {
	cell, err := wb.ReadCell(address)
	if err != nil {
		return "", err
	}
	return DisplayText(cell), nil
}

// DefineNamedRange binds a name to a range on the active sheet. Names are
// sheet-local.
func (wb *Workbook) DefineNamedRange(name string, rangeText string) error {
	ref, err := ParseRange(rangeText)
	if err != nil {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid range %q", rangeText))
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return NewApplicationError(InvalidArgument, "named range needs a name")
	}
	wb.ActiveSheet().DefineNamedRange(name, ref)
	wb.recalculate()
	return nil
}

// AddConditionalFormat appends a rule to the active sheet and refreshes its
// overlay.
func (wb *Workbook) AddConditionalFormat(rangeText string, kind FormatKind, values []Scalar, style Style) error {
	ref, err := ParseRange(rangeText)
	if err != nil {
		return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid range %q", rangeText))
	}
	wb.ActiveSheet().AddConditionalFormat(ConditionalFormat{
		Range:  ref,
		Kind:   kind,
		Values: values,
		Style:  style,
	})
	wb.refreshFormats()
	return nil
}

// refreshFormats recomputes every sheet's conditional-format overlay.
func (wb *Workbook) refreshFormats() {
	for _, sheet := range wb.sheetsInOrder() {
		sheet.refreshFormats()
	}
}

// Undo reverts the most recent committed mutation. Returns false when the
// history is empty.
func (wb *Workbook) Undo() bool {
	if !wb.undo.undo(wb.sheetByID) {
		return false
	}
	wb.recalculate()
	wb.refreshFormats()
	return true
}

// Redo reapplies the most recently undone mutation.
func (wb *Workbook) Redo() bool {
	if !wb.undo.redo(wb.sheetByID) {
		return false
	}
	wb.recalculate()
	wb.refreshFormats()
	return true
}

// ResetHistory discards undo/redo state.
func (wb *Workbook) ResetHistory() {
	wb.undo = newUndoRedoManager(wb.undo.depth)
}

// --- State snapshot ---

// WorkbookState is the JSON-serializable export of a workbook. Undo
// history and per-cell audit history are deliberately excluded: snapshots
// describe the grid, not the editing session.
type WorkbookState struct {
	Sheets []SheetState `json:"sheets"`
	Active string       `json:"active"`
}

type SheetState struct {
	Name        string            `json:"name"`
	Rows        int               `json:"rows"`
	Cols        int               `json:"cols"`
	FrozenRows  int               `json:"frozen_rows,omitempty"`
	FrozenCols  int               `json:"frozen_cols,omitempty"`
	HiddenRows  []int             `json:"hidden_rows,omitempty"`
	HiddenCols  []int             `json:"hidden_cols,omitempty"`
	RowHeights  map[int]float64   `json:"row_heights,omitempty"`
	ColWidths   map[int]float64   `json:"col_widths,omitempty"`
	Merges      []string          `json:"merges,omitempty"`
	NamedRanges map[string]string `json:"named_ranges,omitempty"`
	Formats     []FormatState     `json:"formats,omitempty"`
	Cells       []CellState       `json:"cells"`
}

type CellState struct {
	Address string `json:"address"`
	Value   any    `json:"value,omitempty"` // errors encoded as sentinel text
	Formula string `json:"formula,omitempty"`
	Type    string `json:"type,omitempty"`
	Style   Style  `json:"style,omitempty"`
	Source  string `json:"source,omitempty"`
}

type FormatState struct {
	Range  string `json:"range"`
	Kind   string `json:"kind"`
	Values []any  `json:"values,omitempty"`
	Style  Style  `json:"style,omitempty"`
}

// ExportState captures the workbook as a serializable snapshot.
func (wb *Workbook) ExportState() *WorkbookState {
	state := &WorkbookState{Active: wb.ActiveSheet().Name()}
	for _, sheet := range wb.sheetsInOrder() {
		state.Sheets = append(state.Sheets, exportSheet(sheet))
	}
	return state
}

func exportSheet(sheet *Sheet) SheetState {
	ss := SheetState{
		Name:       sheet.name,
		Rows:       sheet.rows,
		Cols:       sheet.cols,
		FrozenRows: sheet.frozenRows,
		FrozenCols: sheet.frozenCols,
	}
	for row := range sheet.hiddenRows {
		ss.HiddenRows = append(ss.HiddenRows, row)
	}
	for col := range sheet.hiddenCols {
		ss.HiddenCols = append(ss.HiddenCols, col)
	}
	sort.Ints(ss.HiddenRows)
	sort.Ints(ss.HiddenCols)
	if len(sheet.rowHeights) > 0 {
		ss.RowHeights = make(map[int]float64, len(sheet.rowHeights))
		for row, h := range sheet.rowHeights {
			ss.RowHeights[row] = h
		}
	}
	if len(sheet.colWidths) > 0 {
		ss.ColWidths = make(map[int]float64, len(sheet.colWidths))
		for col, w := range sheet.colWidths {
			ss.ColWidths[col] = w
		}
	}
	for _, merge := range sheet.merges {
		ss.Merges = append(ss.Merges, merge.String())
	}
	if len(sheet.namedRanges) > 0 {
		ss.NamedRanges = make(map[string]string, len(sheet.namedRanges))
		for name, ref := range sheet.namedRanges {
			ss.NamedRanges[name] = ref.String()
		}
	}
	for _, rule := range sheet.formats {
		fs := FormatState{
			Range: rule.Range.String(),
			Kind:  rule.Kind.String(),
			Style: rule.Style,
		}
		for _, v := range rule.Values {
			fs.Values = append(fs.Values, encodeScalar(v))
		}
		ss.Formats = append(ss.Formats, fs)
	}
	for _, addr := range sortedAddresses(sheet.cells) {
		cell := sheet.cells[addr]
		ss.Cells = append(ss.Cells, CellState{
			Address: addr.String(),
			Value:   encodeScalar(cell.Value),
			Formula: cell.Formula,
			Type:    cell.Type.String(),
			Style:   cell.Style,
			Source:  cell.Source,
		})
	}
	return ss
}

// encodeScalar maps engine values onto JSON-safe values: error sentinels
// become their display text.
func encodeScalar(v Scalar) any {
	if err, ok := v.(*CellError); ok {
		return err.Error()
	}
	return v
}

// decodeScalar reverses encodeScalar: sentinel strings become *CellError.
func decodeScalar(v any) Scalar {
	if text, ok := v.(string); ok {
		if err, matched := parseErrorSentinel(text); matched {
			return err
		}
	}
	return v
}

// ImportState replaces the workbook's contents with a snapshot and
// recalculates. Undo history is reset: the imported state is a new
// baseline.
func (wb *Workbook) ImportState(state *WorkbookState) error {
	if state == nil || len(state.Sheets) == 0 {
		return NewApplicationError(InvalidArgument, "snapshot must contain at least one sheet")
	}
	// tolerate a zero-value receiver from json.Unmarshal
	if wb.clock == nil {
		wb.clock = &WallClock{}
	}
	if wb.funcs == nil {
		wb.funcs = newFuncLibrary(wb.clock, &DefaultRandomGenerator{})
	}
	if wb.undo == nil {
		wb.undo = newUndoRedoManager(defaultHistoryDepth)
	}
	seen := make(map[string]bool, len(state.Sheets))
	for _, ss := range state.Sheets {
		name, err := validSheetName(ss.Name)
		if err != nil {
			return err
		}
		if seen[strings.ToLower(name)] {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("snapshot repeats sheet %q", name))
		}
		seen[strings.ToLower(name)] = true
	}

	wb.sheets = make(map[uint32]*Sheet)
	wb.order = nil
	wb.names = make(map[string]uint32)
	wb.formulas = newFormulaCache()
	wb.undo = newUndoRedoManager(wb.undo.depth)

	for _, ss := range state.Sheets {
		sheet := wb.addSheet(strings.TrimSpace(ss.Name))
		if err := importSheet(sheet, ss); err != nil {
			return err
		}
	}
	wb.active = wb.order[0]
	if active, ok := wb.sheetByName(state.Active); ok {
		wb.active = active.ID()
	}
	wb.recalculate()
	wb.refreshFormats()
	return nil
}

func importSheet(sheet *Sheet, ss SheetState) error {
	if ss.Rows > sheet.rows {
		sheet.rows = ss.Rows
	}
	if ss.Cols > sheet.cols {
		sheet.cols = ss.Cols
	}
	sheet.frozenRows, sheet.frozenCols = ss.FrozenRows, ss.FrozenCols
	for _, row := range ss.HiddenRows {
		sheet.hiddenRows[row] = true
	}
	for _, col := range ss.HiddenCols {
		sheet.hiddenCols[col] = true
	}
	for row, h := range ss.RowHeights {
		sheet.rowHeights[row] = h
	}
	for col, w := range ss.ColWidths {
		sheet.colWidths[col] = w
	}
	for _, text := range ss.Merges {
		ref, err := ParseRange(text)
		if err != nil {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid merge range %q", text))
		}
		sheet.merges = append(sheet.merges, ref)
	}
	for name, text := range ss.NamedRanges {
		ref, err := ParseRange(text)
		if err != nil {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid named range %q", text))
		}
		sheet.namedRanges[name] = ref
	}
	for _, fs := range ss.Formats {
		ref, err := ParseRange(fs.Range)
		if err != nil {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid format range %q", fs.Range))
		}
		rule := ConditionalFormat{Range: ref, Kind: parseFormatKind(fs.Kind), Style: fs.Style}
		for _, v := range fs.Values {
			rule.Values = append(rule.Values, decodeScalar(v))
		}
		sheet.formats = append(sheet.formats, rule)
	}
	for _, cs := range ss.Cells {
		addr, err := ParseAddress(cs.Address)
		if err != nil {
			return NewApplicationError(InvalidArgument, fmt.Sprintf("invalid cell address %q", cs.Address))
		}
		cell := sheet.ensureCell(addr)
		cell.Value = decodeScalar(cs.Value)
		cell.Formula = cs.Formula
		cell.Type = parseCellType(cs.Type)
		cell.Style = cs.Style
		cell.Source = cs.Source
	}
	return nil
}

func parseFormatKind(text string) FormatKind {
	switch text {
	case "greater_than":
		return FormatGreaterThan
	case "less_than":
		return FormatLessThan
	case "between":
		return FormatBetween
	case "contains":
		return FormatContains
	case "duplicate":
		return FormatDuplicate
	case "unique":
		return FormatUnique
	}
	return FormatEquals
}

// MarshalJSON / UnmarshalJSON round-trip the workbook through its state
// snapshot so hosts can persist a workbook directly.
func (wb *Workbook) MarshalJSON() ([]byte, error) {
	return json.Marshal(wb.ExportState())
}

func (wb *Workbook) UnmarshalJSON(data []byte) error {
	var state WorkbookState
	if err := json.Unmarshal(data, &state); err != nil {
		return err
	}
	return wb.ImportState(&state)
}

func sortedAddresses(cells map[Address]*Cell) []Address {
	out := make([]Address, 0, len(cells))
	for addr := range cells {
		out = append(out, addr)
	}
	sortAddresses(out)
	return out
}
