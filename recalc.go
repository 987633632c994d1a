package gridcalc

import "errors"

// Recalculation walks every formula cell after each mutation. There is no
// persistent dependency graph: dependencies are discovered by following
// references during evaluation, with a per-pass session memoizing finished
// cells and detecting cycles through the in-progress set.

type cellKey struct {
	sheetID uint32
	addr    Address
}

type evalFrame struct {
	key   cellKey
	sheet *Sheet
	addr  Address
}

// evalSession is the per-recalculation state. processing holds the frames
// currently on the evaluation stack; re-entering one means a reference
// cycle. completed memoizes results so shared upstream cells evaluate
// once per pass. cycled flags every frame that participated in a detected
// cycle so they all land on the circular sentinel, not just the frame that
// closed the loop.
type evalSession struct {
	processing map[cellKey]bool
	completed  map[cellKey]Scalar
	cycled     map[cellKey]bool
	stack      []evalFrame
}

func newEvalSession() *evalSession {
	return &evalSession{
		processing: make(map[cellKey]bool),
		completed:  make(map[cellKey]Scalar),
		cycled:     make(map[cellKey]bool),
	}
}

// markCycle flags every frame from the re-entered key to the top of the
// stack as circular.
func (s *evalSession) markCycle(key cellKey) {
	for i := len(s.stack) - 1; i >= 0; i-- {
		s.cycled[s.stack[i].key] = true
		if s.stack[i].key == key {
			return
		}
	}
}

// evalContext carries what a formula needs while evaluating: the workbook
// for sheet lookup and function dispatch, the formula's home sheet for
// unqualified references and named ranges, and the shared session.
type evalContext struct {
	wb      *Workbook
	sheet   *Sheet
	session *evalSession
}

// resolveSheet maps a reference's sheet qualifier to a sheet, defaulting to
// the formula's own sheet.
func (ctx *evalContext) resolveSheet(name string) (*Sheet, *CellError) {
	if name == "" {
		return ctx.sheet, nil
	}
	sh, ok := ctx.wb.sheetByName(name)
	if !ok {
		return nil, newCellError(ErrorCodeRef, "unknown sheet: "+name)
	}
	return sh, nil
}

// valueAt resolves the value of a cell during evaluation. Literal cells
// answer immediately; formula cells evaluate on first touch and memoize.
// Re-entering a cell already on the stack closes a cycle: every frame in
// the loop resolves to the circular sentinel.
func (ctx *evalContext) valueAt(sheet *Sheet, addr Address) Scalar {
	cell := sheet.Cell(addr)
	if cell == nil {
		return nil
	}
	if !cell.IsFormula() {
		return cell.Value
	}

	key := cellKey{sheetID: sheet.ID(), addr: addr}
	session := ctx.session
	if value, ok := session.completed[key]; ok {
		return value
	}
	if session.processing[key] {
		session.markCycle(key)
		return newCellError(ErrorCodeCircular, "circular reference at "+addr.String())
	}

	session.processing[key] = true
	session.stack = append(session.stack, evalFrame{key: key, sheet: sheet, addr: addr})

	child := &evalContext{wb: ctx.wb, sheet: sheet, session: session}
	result := evaluateFormula(child, cell.Formula)

	session.stack = session.stack[:len(session.stack)-1]
	delete(session.processing, key)

	if session.cycled[key] {
		result = newCellError(ErrorCodeCircular, "circular reference at "+addr.String())
	}

	session.completed[key] = result
	sheet.setMaterialized(addr, result)
	return result
}

// evaluateFormula parses and evaluates a formula's source text, folding
// every failure mode into the stored-value domain: parse errors and hard
// evaluation errors become sentinels, bare ranges are rejected, empty
// results coerce to zero.
func evaluateFormula(ctx *evalContext, source string) Scalar {
	root, err := ctx.wb.formulas.parse(source)
	if err != nil {
		// keep coded parse failures (#REF! from a bad address) intact
		var cellErr *CellError
		if errors.As(err, &cellErr) {
			return cellErr
		}
		return newCellError(ErrorCodeGeneric, err.Error())
	}
	value := evalToValue(root, ctx)
	switch v := value.(type) {
	case Range:
		return newCellError(ErrorCodeGeneric, "range result requires a function context")
	case float64:
		return finiteOrError(v)
	case nil:
		return 0.0
	default:
		return value
	}
}

// recalculate re-evaluates every formula cell in the workbook, sheets in
// creation order, cells row-major within each sheet. Cost is proportional
// to the live formula population, which keeps write latency predictable
// without graph bookkeeping.
func (wb *Workbook) recalculate() {
	session := newEvalSession()
	for _, sheet := range wb.sheetsInOrder() {
		ctx := &evalContext{wb: wb, sheet: sheet, session: session}
		for _, addr := range sheet.formulaAddresses() {
			ctx.valueAt(sheet, addr)
		}
	}
}
