package gridcalc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// astNode is a parsed formula expression. Evaluation returns errors as
// values wherever possible so sentinels propagate through the tree instead
// of aborting it; a non-nil error escaping Eval is converted to a sentinel
// at the cell boundary.
type astNode interface {
	eval(ctx *evalContext) (Scalar, error)
}

type numberNode struct{ value float64 }

func (n *numberNode) eval(*evalContext) (Scalar, error) { return n.value, nil }

type stringNode struct{ value string }

func (n *stringNode) eval(*evalContext) (Scalar, error) { return n.value, nil }

type booleanNode struct{ value bool }

func (n *booleanNode) eval(*evalContext) (Scalar, error) { return n.value, nil }

// cellRefNode is an absolute single-cell reference, optionally qualified
// with a sheet name resolved at evaluation time (sheets may be renamed
// between parse and eval).
type cellRefNode struct {
	sheet string // empty means the formula's own sheet
	addr  Address
}

func (n *cellRefNode) eval(ctx *evalContext) (Scalar, error) {
	sh, err := ctx.resolveSheet(n.sheet)
	if err != nil {
		return err, nil
	}
	return ctx.valueAt(sh, n.addr), nil
}

// rangeNode is a rectangular reference. It evaluates to a Range, which only
// function arguments may consume.
type rangeNode struct {
	sheet string
	ref   RangeRef
}

func (n *rangeNode) eval(ctx *evalContext) (Scalar, error) {
	sh, err := ctx.resolveSheet(n.sheet)
	if err != nil {
		return err, nil
	}
	return &cellRange{sheet: sh, ref: n.ref, ctx: ctx}, nil
}

// spanNode is a 3D reference: one address sampled across an inclusive span
// of sheets in creation order.
type spanNode struct {
	startSheet string
	endSheet   string
	addr       Address
}

func (n *spanNode) eval(ctx *evalContext) (Scalar, error) {
	sheets, err := ctx.wb.sheetSpan(n.startSheet, n.endSheet)
	if err != nil {
		return err, nil
	}
	return &sheetSpan{sheets: sheets, addr: n.addr, ctx: ctx}, nil
}

// namedRangeNode resolves a name against the evaluating sheet's named
// ranges.
type namedRangeNode struct{ name string }

func (n *namedRangeNode) eval(ctx *evalContext) (Scalar, error) {
	ref, ok := ctx.sheet.NamedRange(n.name)
	if !ok {
		return newCellError(ErrorCodeRef, fmt.Sprintf("named range %q not defined", n.name)), nil
	}
	return &cellRange{sheet: ctx.sheet, ref: ref, ctx: ctx}, nil
}

// binaryOp enumerates binary operators.
type binaryOp int

const (
	opAdd binaryOp = iota
	opSubtract
	opMultiply
	opDivide
	opPower
	opConcat
	opEqual
	opNotEqual
	opLess
	opLessEqual
	opGreater
	opGreaterEqual
)

type binaryNode struct {
	op          binaryOp
	left, right astNode
}

func (n *binaryNode) eval(ctx *evalContext) (Scalar, error) {
	left := evalToValue(n.left, ctx)
	right := evalToValue(n.right, ctx)

	// errors are infectious
	if err, ok := left.(*CellError); ok {
		return err, nil
	}
	if err, ok := right.(*CellError); ok {
		return err, nil
	}

	// bare ranges never reach arithmetic
	if _, ok := left.(Range); ok {
		return newCellError(ErrorCodeGeneric, "range used outside a function argument"), nil
	}
	if _, ok := right.(Range); ok {
		return newCellError(ErrorCodeGeneric, "range used outside a function argument"), nil
	}

	switch n.op {
	case opAdd, opSubtract, opMultiply, opDivide, opPower:
		a, okA := toNumber(left)
		b, okB := toNumber(right)
		if !okA || !okB {
			return newCellError(ErrorCodeGeneric, "arithmetic requires numeric operands"), nil
		}
		var out float64
		switch n.op {
		case opAdd:
			out = a + b
		case opSubtract:
			out = a - b
		case opMultiply:
			out = a * b
		case opDivide:
			out = a / b // /0 yields Inf, caught below
		case opPower:
			out = math.Pow(a, b)
		}
		return finiteOrError(out), nil

	case opConcat:
		return toText(left) + toText(right), nil

	case opEqual:
		return compareScalars(left, right) == 0, nil
	case opNotEqual:
		return compareScalars(left, right) != 0, nil
	case opLess:
		return compareScalars(left, right) < 0, nil
	case opLessEqual:
		return compareScalars(left, right) <= 0, nil
	case opGreater:
		return compareScalars(left, right) > 0, nil
	case opGreaterEqual:
		return compareScalars(left, right) >= 0, nil
	}
	return newCellError(ErrorCodeGeneric, "unknown operator"), nil
}

// unaryOp enumerates unary operators.
type unaryOp int

const (
	opPlus unaryOp = iota
	opMinus
	opPercent
)

type unaryNode struct {
	op      unaryOp
	operand astNode
}

func (n *unaryNode) eval(ctx *evalContext) (Scalar, error) {
	val := evalToValue(n.operand, ctx)
	if err, ok := val.(*CellError); ok {
		return err, nil
	}
	num, ok := toNumber(val)
	if !ok {
		return newCellError(ErrorCodeGeneric, "unary operator requires a numeric operand"), nil
	}
	switch n.op {
	case opPlus:
		return num, nil
	case opMinus:
		return -num, nil
	case opPercent:
		return num / 100.0, nil
	}
	return newCellError(ErrorCodeGeneric, "unknown unary operator"), nil
}

type callNode struct {
	name string
	args []astNode
}

func (n *callNode) eval(ctx *evalContext) (Scalar, error) {
	args := make([]Scalar, len(n.args))
	for i, arg := range n.args {
		// error values pass through as arguments; functions like IFERROR
		// and COUNT decide what to do with them
		args[i] = evalToValue(arg, ctx)
	}
	return ctx.wb.funcs.call(n.name, args)
}

// evalToValue evaluates a node and folds hard errors into sentinel values.
func evalToValue(n astNode, ctx *evalContext) Scalar {
	val, err := n.eval(ctx)
	if err == nil {
		return val
	}
	if cellErr, ok := err.(*CellError); ok {
		return cellErr
	}
	return newCellError(ErrorCodeGeneric, err.Error())
}

// finiteOrError maps NaN and infinities to the generic sentinel, the
// explicit step that keeps IEEE edge results inside the error taxonomy.
func finiteOrError(v float64) Scalar {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return newCellError(ErrorCodeGeneric, "non-finite arithmetic result")
	}
	return v
}

// compareScalars orders two scalars: numbers numerically, booleans
// false<true, everything else by text. Returns -1, 0, or 1.
func compareScalars(left, right Scalar) int {
	if left == nil && right == nil {
		return 0
	}
	la, lok := toNumber(left)
	ra, rok := toNumber(right)
	if lok && rok {
		switch {
		case la < ra:
			return -1
		case la > ra:
			return 1
		}
		return 0
	}
	ls, rs := toText(left), toText(right)
	switch {
	case ls < rs:
		return -1
	case ls > rs:
		return 1
	}
	return 0
}

// parser builds an AST from tokens via recursive descent. Precedence,
// loosest first: comparison, concatenation, addition, multiplication,
// power (right-associative), unary prefix, percent postfix, primary.
type parser struct {
	tokens []token
	pos    int
}

// parseFormula parses the expression following the '=' marker.
func parseFormula(expr string) (astNode, error) {
	tokens, err := newLexer(expr).tokenize()
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	node, err := p.parseComparison()
	if err != nil {
		return nil, err
	}
	if p.peek().typ != tokenEOF {
		return nil, fmt.Errorf("unexpected token after expression: %s", p.peek().val)
	}
	return node, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) parseComparison() (astNode, error) {
	left, err := p.parseConcatenation()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenBinaryOp {
		var op binaryOp
		switch p.peek().val {
		case "=":
			op = opEqual
		case "<>":
			op = opNotEqual
		case "<":
			op = opLess
		case "<=":
			op = opLessEqual
		case ">":
			op = opGreater
		case ">=":
			op = opGreaterEqual
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseConcatenation()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseConcatenation() (astNode, error) {
	left, err := p.parseAddition()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenBinaryOp && p.peek().val == "&" {
		p.pos++
		right, err := p.parseAddition()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: opConcat, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAddition() (astNode, error) {
	left, err := p.parseMultiplication()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenBinaryOp {
		var op binaryOp
		switch p.peek().val {
		case "+":
			op = opAdd
		case "-":
			op = opSubtract
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parseMultiplication()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseMultiplication() (astNode, error) {
	left, err := p.parsePower()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenBinaryOp {
		var op binaryOp
		switch p.peek().val {
		case "*":
			op = opMultiply
		case "/":
			op = opDivide
		default:
			return left, nil
		}
		p.pos++
		right, err := p.parsePower()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parsePower() (astNode, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.peek().typ == tokenBinaryOp && p.peek().val == "^" {
		p.pos++
		right, err := p.parsePower() // right-associative
		if err != nil {
			return nil, err
		}
		return &binaryNode{op: opPower, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseUnary() (astNode, error) {
	if p.peek().typ == tokenPrefixOp {
		op := opPlus
		if p.peek().val == "-" {
			op = opMinus
		}
		p.pos++
		operand, err := p.parseUnary() // chained unary operators
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() (astNode, error) {
	node, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for p.peek().typ == tokenPostfixOp {
		p.pos++
		node = &unaryNode{op: opPercent, operand: node}
	}
	return node, nil
}

func (p *parser) parsePrimary() (astNode, error) {
	tok := p.peek()
	switch tok.typ {
	case tokenNumber:
		p.pos++
		val, err := strconv.ParseFloat(tok.val, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number: %s", tok.val)
		}
		return &numberNode{value: val}, nil

	case tokenString:
		p.pos++
		return &stringNode{value: tok.val}, nil

	case tokenBoolean:
		p.pos++
		return &booleanNode{value: tok.val == "TRUE"}, nil

	case tokenCell:
		p.pos++
		sheet, rest := splitSheetRef(tok.val)
		addr, err := ParseAddress(rest)
		if err != nil {
			return nil, err
		}
		return &cellRefNode{sheet: sheet, addr: addr}, nil

	case tokenRange:
		p.pos++
		sheet, rest := splitSheetRef(tok.val)
		ref, err := ParseRange(rest)
		if err != nil {
			return nil, err
		}
		return &rangeNode{sheet: sheet, ref: ref}, nil

	case tokenSpan:
		p.pos++
		sheets, rest := splitSheetRef(tok.val)
		startSheet, endSheet, ok := strings.Cut(sheets, ":")
		if !ok {
			return nil, fmt.Errorf("invalid sheet span: %s", tok.val)
		}
		addr, err := ParseAddress(rest)
		if err != nil {
			return nil, err
		}
		return &spanNode{startSheet: startSheet, endSheet: endSheet, addr: addr}, nil

	case tokenIdentifier:
		p.pos++
		return &namedRangeNode{name: tok.val}, nil

	case tokenFunction:
		return p.parseCall()

	case tokenLeftParen:
		p.pos++
		node, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		if p.peek().typ != tokenRightParen {
			return nil, fmt.Errorf("expected closing parenthesis")
		}
		p.pos++
		return node, nil
	}

	return nil, fmt.Errorf("unexpected token: %s", tok.val)
}

func (p *parser) parseCall() (astNode, error) {
	name := p.peek().val
	p.pos++
	if p.peek().typ != tokenLeftParen {
		return nil, fmt.Errorf("expected '(' after function name %s", name)
	}
	p.pos++

	var args []astNode
	if p.peek().typ == tokenRightParen {
		p.pos++
		return &callNode{name: name, args: args}, nil
	}

	for {
		arg, err := p.parseComparison()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		switch p.peek().typ {
		case tokenRightParen:
			p.pos++
			return &callNode{name: name, args: args}, nil
		case tokenComma:
			p.pos++
		default:
			return nil, fmt.Errorf("expected ',' or ')' in arguments of %s", name)
		}
	}
}
