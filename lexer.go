package gridcalc

import "fmt"

// tokenType enumerates lexical token kinds in formula expressions.
type tokenType int

const (
	tokenEOF tokenType = iota
	tokenNumber
	tokenString
	tokenBoolean
	tokenCell     // A1 or Sheet!A1
	tokenRange    // A1:B2 or Sheet!A1:B2
	tokenSpan     // Sheet1:Sheet3!A1 (3D reference)
	tokenFunction // identifier directly followed by (
	tokenIdentifier
	tokenPrefixOp  // unary + -
	tokenPostfixOp // %
	tokenBinaryOp
	tokenComma
	tokenLeftParen
	tokenRightParen
)

// lexState drives token-sequence validation: the lexer rejects token
// orders no grammar production could accept (two adjacent values, an
// operator at end of input) before the parser ever sees them.
type lexState int

const (
	stateStart lexState = iota
	stateAfterValue
	stateAfterOperator
	stateAfterLeftParen
	stateAfterRightParen
	stateAfterComma
	stateAfterIdentifier
)

var lexTransitions = map[lexState]map[tokenType]bool{
	stateStart: {
		tokenNumber: true, tokenString: true, tokenBoolean: true,
		tokenCell: true, tokenRange: true, tokenSpan: true,
		tokenFunction: true, tokenIdentifier: true,
		tokenPrefixOp: true, tokenLeftParen: true,
	},
	stateAfterValue: {
		tokenBinaryOp: true, tokenPostfixOp: true,
		tokenRightParen: true, tokenComma: true, tokenEOF: true,
	},
	stateAfterOperator: {
		tokenNumber: true, tokenString: true, tokenBoolean: true,
		tokenCell: true, tokenFunction: true, tokenIdentifier: true,
		tokenPrefixOp: true, tokenLeftParen: true,
	},
	stateAfterLeftParen: {
		tokenNumber: true, tokenString: true, tokenBoolean: true,
		tokenCell: true, tokenRange: true, tokenSpan: true,
		tokenFunction: true, tokenIdentifier: true,
		tokenPrefixOp: true, tokenLeftParen: true, tokenRightParen: true,
	},
	stateAfterRightParen: {
		tokenBinaryOp: true, tokenPostfixOp: true,
		tokenRightParen: true, tokenComma: true, tokenEOF: true,
	},
	stateAfterComma: {
		tokenNumber: true, tokenString: true, tokenBoolean: true,
		tokenCell: true, tokenRange: true, tokenSpan: true,
		tokenFunction: true, tokenIdentifier: true,
		tokenPrefixOp: true, tokenLeftParen: true,
	},
	stateAfterIdentifier: {
		tokenLeftParen: true, tokenBinaryOp: true, tokenPostfixOp: true,
		tokenRightParen: true, tokenComma: true, tokenEOF: true,
	},
}

// token is one lexical token with its byte position in the expression.
type token struct {
	typ tokenType
	val string
	pos int
}

// lexer tokenizes a formula expression (the text after the '=' marker).
type lexer struct {
	runes      []rune
	pos        int
	state      lexState
	parenDepth int
}

func newLexer(expr string) *lexer {
	return &lexer{runes: []rune(expr)}
}

// tokenize scans the whole expression, returning tokens ending with EOF.
func (l *lexer) tokenize() ([]token, error) {
	var tokens []token
	for l.pos < len(l.runes) {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		if tok.typ == tokenEOF {
			break
		}
		if !l.validTransition(tok.typ) {
			return nil, fmt.Errorf("unexpected token %q at position %d", tok.val, tok.pos)
		}
		tokens = append(tokens, tok)
		l.advanceState(tok.typ)
	}
	if l.parenDepth > 0 {
		return nil, fmt.Errorf("unbalanced parentheses: missing closing parenthesis")
	}
	if len(tokens) == 0 {
		return nil, fmt.Errorf("empty expression")
	}
	if !l.validTransition(tokenEOF) {
		return nil, fmt.Errorf("unexpected end of expression")
	}
	tokens = append(tokens, token{typ: tokenEOF, pos: l.pos})
	return tokens, nil
}

func (l *lexer) validTransition(typ tokenType) bool {
	return lexTransitions[l.state][typ]
}

func (l *lexer) advanceState(typ tokenType) {
	switch typ {
	case tokenNumber, tokenString, tokenBoolean, tokenCell, tokenRange, tokenSpan:
		l.state = stateAfterValue
	case tokenPrefixOp, tokenBinaryOp:
		l.state = stateAfterOperator
	case tokenPostfixOp:
		// postfix keeps the current state
	case tokenLeftParen:
		l.state = stateAfterLeftParen
	case tokenRightParen:
		l.state = stateAfterRightParen
	case tokenComma:
		l.state = stateAfterComma
	case tokenFunction, tokenIdentifier:
		l.state = stateAfterIdentifier
	}
}

func (l *lexer) current() rune {
	if l.pos >= len(l.runes) {
		return 0
	}
	return l.runes[l.pos]
}

func (l *lexer) peek(offset int) rune {
	p := l.pos + offset
	if p < 0 || p >= len(l.runes) {
		return 0
	}
	return l.runes[p]
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.runes) {
		switch l.runes[l.pos] {
		case ' ', '\t', '\n', '\r':
			l.pos++
		default:
			return
		}
	}
}

func isDigit(ch rune) bool { return ch >= '0' && ch <= '9' }
func isAlpha(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}
func isIdentRune(ch rune) bool {
	return isAlpha(ch) || isDigit(ch) || ch == '_'
}

func (l *lexer) next() (token, error) {
	l.skipWhitespace()
	if l.pos >= len(l.runes) {
		return token{typ: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	ch := l.current()

	switch {
	case ch == '"':
		return l.scanString()
	case ch == '\'':
		return l.scanQuotedSheetRef()
	case isDigit(ch) || (ch == '.' && isDigit(l.peek(1))):
		return l.scanNumber(), nil
	case isAlpha(ch) || ch == '_':
		return l.scanWord()
	}

	switch ch {
	case '(':
		l.pos++
		l.parenDepth++
		return token{typ: tokenLeftParen, val: "(", pos: start}, nil
	case ')':
		l.pos++
		l.parenDepth--
		if l.parenDepth < 0 {
			return token{}, fmt.Errorf("unexpected closing parenthesis at position %d", start)
		}
		return token{typ: tokenRightParen, val: ")", pos: start}, nil
	case ',':
		l.pos++
		return token{typ: tokenComma, val: ",", pos: start}, nil
	case '+', '-':
		l.pos++
		if l.unaryContext() {
			return token{typ: tokenPrefixOp, val: string(ch), pos: start}, nil
		}
		return token{typ: tokenBinaryOp, val: string(ch), pos: start}, nil
	case '%':
		l.pos++
		return token{typ: tokenPostfixOp, val: "%", pos: start}, nil
	case '*', '/', '^', '&', '=':
		l.pos++
		return token{typ: tokenBinaryOp, val: string(ch), pos: start}, nil
	case '<':
		l.pos++
		if l.current() == '=' {
			l.pos++
			return token{typ: tokenBinaryOp, val: "<=", pos: start}, nil
		}
		if l.current() == '>' {
			l.pos++
			return token{typ: tokenBinaryOp, val: "<>", pos: start}, nil
		}
		return token{typ: tokenBinaryOp, val: "<", pos: start}, nil
	case '>':
		l.pos++
		if l.current() == '=' {
			l.pos++
			return token{typ: tokenBinaryOp, val: ">=", pos: start}, nil
		}
		return token{typ: tokenBinaryOp, val: ">", pos: start}, nil
	}

	return token{}, fmt.Errorf("unexpected character %q at position %d", string(ch), start)
}

// unaryContext reports whether + or - at the current state must be a
// prefix operator.
func (l *lexer) unaryContext() bool {
	switch l.state {
	case stateStart, stateAfterOperator, stateAfterLeftParen, stateAfterComma:
		return true
	}
	return false
}

// scanNumber scans integers, decimals, and scientific notation.
func (l *lexer) scanNumber() token {
	start := l.pos
	for isDigit(l.current()) {
		l.pos++
	}
	if l.current() == '.' && isDigit(l.peek(1)) {
		l.pos++
		for isDigit(l.current()) {
			l.pos++
		}
	}
	if l.current() == 'e' || l.current() == 'E' {
		saved := l.pos
		l.pos++
		if l.current() == '+' || l.current() == '-' {
			l.pos++
		}
		if isDigit(l.current()) {
			for isDigit(l.current()) {
				l.pos++
			}
		} else {
			l.pos = saved
		}
	}
	return token{typ: tokenNumber, val: string(l.runes[start:l.pos]), pos: start}
}

// scanString scans a double-quoted string; "" escapes a quote.
func (l *lexer) scanString() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	var out []rune
	for l.pos < len(l.runes) {
		ch := l.current()
		if ch == '"' {
			if l.peek(1) == '"' {
				out = append(out, '"')
				l.pos += 2
				continue
			}
			l.pos++
			return token{typ: tokenString, val: string(out), pos: start}, nil
		}
		out = append(out, ch)
		l.pos++
	}
	return token{}, fmt.Errorf("unclosed string literal at position %d", start)
}

// scanWord scans identifiers and everything that starts like one: booleans,
// cell references, ranges, sheet-qualified references, 3D spans, and
// function names.
func (l *lexer) scanWord() (token, error) {
	start := l.pos
	for isIdentRune(l.current()) {
		l.pos++
	}
	word := string(l.runes[start:l.pos])
	upper := asciiUpper(word)

	if upper == "TRUE" || upper == "FALSE" {
		return token{typ: tokenBoolean, val: upper, pos: start}, nil
	}

	// Sheet-qualified reference: Name!A1 or Name!A1:B2.
	if l.current() == '!' {
		return l.scanSheetSuffix(start)
	}

	// A call marker takes precedence over cell-shaped words, so names like
	// LOG10 lex as functions rather than references.
	if l.current() == '(' {
		return token{typ: tokenFunction, val: upper, pos: start}, nil
	}

	if isCellWord(word) {
		if l.current() == ':' {
			return l.scanColonSuffix(start, word)
		}
		return token{typ: tokenCell, val: word, pos: start}, nil
	}

	// A non-cell word followed by ':' can only begin a 3D span.
	if l.current() == ':' {
		return l.scanColonSuffix(start, word)
	}

	return token{typ: tokenIdentifier, val: word, pos: start}, nil
}

// scanColonSuffix disambiguates A1:B2 (range), Sheet1:Sheet3!A1 (3D span),
// and a bare cell followed by an unrelated colon.
func (l *lexer) scanColonSuffix(start int, first string) (token, error) {
	saved := l.pos
	l.pos++ // consume ':'

	secondStart := l.pos
	for isIdentRune(l.current()) {
		l.pos++
	}
	second := string(l.runes[secondStart:l.pos])

	// Sheet span: Name1:Name2!A1 — both parts are sheet names.
	if l.current() == '!' {
		l.pos++ // consume '!'
		cellStart := l.pos
		for isIdentRune(l.current()) {
			l.pos++
		}
		cellRef := string(l.runes[cellStart:l.pos])
		if !isCellWord(cellRef) {
			return token{}, fmt.Errorf("invalid cell reference %q after sheet span", cellRef)
		}
		return token{typ: tokenSpan, val: string(l.runes[start:l.pos]), pos: start}, nil
	}

	if isCellWord(first) && isCellWord(second) {
		return token{typ: tokenRange, val: string(l.runes[start:l.pos]), pos: start}, nil
	}

	if isCellWord(first) {
		// lone cell; the colon belongs to something else (likely an error
		// the state machine will catch)
		l.pos = saved
		return token{typ: tokenCell, val: first, pos: start}, nil
	}
	return token{}, fmt.Errorf("invalid range %q", string(l.runes[start:l.pos]))
}

// scanSheetSuffix scans !A1 or !A1:B2 after a sheet name.
func (l *lexer) scanSheetSuffix(start int) (token, error) {
	l.pos++ // consume '!'
	cellStart := l.pos
	for isIdentRune(l.current()) {
		l.pos++
	}
	first := string(l.runes[cellStart:l.pos])
	if !isCellWord(first) {
		return token{}, fmt.Errorf("invalid cell reference %q after sheet name", first)
	}

	if l.current() == ':' {
		l.pos++
		secondStart := l.pos
		for isIdentRune(l.current()) {
			l.pos++
		}
		second := string(l.runes[secondStart:l.pos])
		if !isCellWord(second) {
			return token{}, fmt.Errorf("invalid range end %q after sheet name", second)
		}
		return token{typ: tokenRange, val: string(l.runes[start:l.pos]), pos: start}, nil
	}
	return token{typ: tokenCell, val: string(l.runes[start:l.pos]), pos: start}, nil
}

// scanQuotedSheetRef scans 'Sheet Name'!A1 style references.
func (l *lexer) scanQuotedSheetRef() (token, error) {
	start := l.pos
	l.pos++ // opening quote
	for l.pos < len(l.runes) && l.current() != '\'' {
		l.pos++
	}
	if l.pos >= len(l.runes) {
		return token{}, fmt.Errorf("unclosed sheet name at position %d", start)
	}
	l.pos++ // closing quote
	if l.current() != '!' {
		return token{}, fmt.Errorf("expected '!' after quoted sheet name at position %d", start)
	}
	return l.scanSheetSuffix(start)
}

// isCellWord reports whether a word has the letters-then-digits shape of a
// cell reference (A1, BC23).
func isCellWord(s string) bool {
	if len(s) < 2 {
		return false
	}
	letterEnd := 0
	for i := 0; i < len(s); i++ {
		if isAlpha(rune(s[i])) {
			letterEnd = i + 1
		} else {
			break
		}
	}
	if letterEnd == 0 || letterEnd == len(s) {
		return false
	}
	for i := letterEnd; i < len(s); i++ {
		if !isDigit(rune(s[i])) {
			return false
		}
	}
	return true
}

func asciiUpper(s string) string {
	out := []rune(s)
	for i, ch := range out {
		if ch >= 'a' && ch <= 'z' {
			out[i] = ch - 32
		}
	}
	return string(out)
}
