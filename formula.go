package gridcalc

import "strings"

// parsedFormula pairs an AST with the parse error, if any. Both are cached
// so a malformed formula shared by many cells is rejected once.
type parsedFormula struct {
	root astNode
	err  error
}

// formulaCache deduplicates parsing by source text. Cells store their
// formula source verbatim; the cache maps that text to a reusable AST,
// which stays valid across recalculations because references are resolved
// at evaluation time.
type formulaCache struct {
	entries map[string]*parsedFormula
}

func newFormulaCache() *formulaCache {
	return &formulaCache{entries: make(map[string]*parsedFormula)}
}

// IsFormulaText reports whether text is formula input (leading '=').
func IsFormulaText(text string) bool {
	return strings.HasPrefix(text, "=")
}

// parse returns the AST for a formula's source text, parsing on first use.
// The source includes the leading '=' marker.
func (c *formulaCache) parse(source string) (astNode, error) {
	if cached, ok := c.entries[source]; ok {
		return cached.root, cached.err
	}
	expr := strings.TrimPrefix(source, "=")
	root, err := parseFormula(expr)
	c.entries[source] = &parsedFormula{root: root, err: err}
	return root, err
}
