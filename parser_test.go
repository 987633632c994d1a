package gridcalc

import (
	"testing"
)

func TestParserValidFormulas(t *testing.T) {
	valid := []string{
		"1+2",
		"A1",
		"SUM(A1:A10)",
		"Data!A1",
		"SUM(Data!A1:A10)",
		"'Fund II'!A1 + Data!B1",
		"SUM(Sheet1:Sheet3!A1)",
		"SUM(B2:A1)",
		"SUM(A1:A1)",
		"2^3^2",
		"-A1+3",
		"50%",
		`"Hello 世界"`,
		`CONCATENATE("a", "b")`,
		"IF(A1>5, 1, 0)",
		"SUM(A1:A3)*AVERAGE(B1:B3)",
		"LOG10(1000)",
		"CashFlows",
		"TRUE",
		"((1))",
	}
	for _, expr := range valid {
		t.Run(expr, func(t *testing.T) {
			if _, err := parseFormula(expr); err != nil {
				t.Errorf("parseFormula(%q) failed: %v", expr, err)
			}
		})
	}
}

func TestParserInvalidFormulas(t *testing.T) {
	invalid := []string{
		"",
		"1+",
		"SUM(",
		"SUM)",
		"A1:",
		`"unterminated`,
		"1 2",
		"(1",
		"1)",
		",1",
		"SUM(,)",
		"*3",
	}
	for _, expr := range invalid {
		t.Run(expr, func(t *testing.T) {
			if _, err := parseFormula(expr); err == nil {
				t.Errorf("parseFormula(%q) accepted a malformed expression", expr)
			}
		})
	}
}

func TestLexerTokenKinds(t *testing.T) {
	cases := []struct {
		expr string
		want []tokenType
	}{
		{"1+2", []tokenType{tokenNumber, tokenBinaryOp, tokenNumber}},
		{"A1:B2", []tokenType{tokenRange}},
		{"Data!A1", []tokenType{tokenCell}},
		{"Sheet1:Sheet3!A1", []tokenType{tokenSpan}},
		{"SUM(A1)", []tokenType{tokenFunction, tokenLeftParen, tokenCell, tokenRightParen}},
		// cell-shaped name lexes as a function when a call follows
		{"LOG10(1000)", []tokenType{tokenFunction, tokenLeftParen, tokenNumber, tokenRightParen}},
		{"LOG10", []tokenType{tokenCell}},
		{"50%", []tokenType{tokenNumber, tokenPostfixOp}},
		{"-1", []tokenType{tokenPrefixOp, tokenNumber}},
		{`"x"&A1`, []tokenType{tokenString, tokenBinaryOp, tokenCell}},
		{"TRUE", []tokenType{tokenBoolean}},
		{"CashFlows", []tokenType{tokenIdentifier}},
		{"1.5e3", []tokenType{tokenNumber}},
	}
	for _, tc := range cases {
		t.Run(tc.expr, func(t *testing.T) {
			tokens, err := newLexer(tc.expr).tokenize()
			if err != nil {
				t.Fatalf("tokenize(%q) failed: %v", tc.expr, err)
			}
			var got []tokenType
			for _, tok := range tokens {
				if tok.typ == tokenEOF {
					continue
				}
				got = append(got, tok.typ)
			}
			if len(got) != len(tc.want) {
				t.Fatalf("tokenize(%q) = %d tokens, want %d", tc.expr, len(got), len(tc.want))
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("tokenize(%q)[%d] = %v, want %v", tc.expr, i, got[i], tc.want[i])
				}
			}
		})
	}
}
