package gridcalc

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Scalar is the materialized value of a cell.
// types:
//   - float64: numeric values (dates are stored as serial day numbers)
//   - string: text values
//   - bool: boolean values (TRUE/FALSE)
//   - nil: empty cells
//   - *CellError: error sentinels (#ERROR!, #REF!, #N/A, #CIRC!)
type Scalar any

// ErrorCode classifies spreadsheet error sentinels. Errors are values, not
// panics: they live in cells and propagate through formulas that reference
// them.
type ErrorCode uint8

const (
	ErrorCodeGeneric  ErrorCode = 1 // #ERROR! - malformed expression or non-finite result
	ErrorCodeRef      ErrorCode = 2 // #REF! - invalid address or range
	ErrorCodeNA       ErrorCode = 3 // #N/A - lookup found no match
	ErrorCodeCircular ErrorCode = 4 // #CIRC! - circular reference
)

var errorSentinels = map[ErrorCode]string{
	ErrorCodeGeneric:  "#ERROR!",
	ErrorCodeRef:      "#REF!",
	ErrorCodeNA:       "#N/A",
	ErrorCodeCircular: "#CIRC!",
}

// CellError is a spreadsheet-value error. The Sentinel is what renders in
// the cell; Message carries detail for diagnostics only.
type CellError struct {
	Code    ErrorCode
	Message string
}

func (e *CellError) Error() string {
	return errorSentinels[e.Code]
}

// Detail returns the sentinel with the diagnostic message, if any.
func (e *CellError) Detail() string {
	if e.Message == "" {
		return errorSentinels[e.Code]
	}
	return fmt.Sprintf("%s (%s)", errorSentinels[e.Code], e.Message)
}

func newCellError(code ErrorCode, message string) *CellError {
	return &CellError{Code: code, Message: message}
}

// parseErrorSentinel recognizes an error sentinel's display form, used when
// re-importing exported state.
func parseErrorSentinel(text string) (*CellError, bool) {
	for code, s := range errorSentinels {
		if s == text {
			return &CellError{Code: code}, true
		}
	}
	return nil, false
}

// CellType tags a cell for display formatting. It never affects evaluation:
// a currency cell is still a float64 to the evaluator.
type CellType uint8

const (
	TypeText CellType = iota
	TypeNumber
	TypeCurrency
	TypePercentage
	TypeDate
	TypeBoolean
	TypeFormula
	TypeLink
)

var cellTypeNames = map[CellType]string{
	TypeText:       "text",
	TypeNumber:     "number",
	TypeCurrency:   "currency",
	TypePercentage: "percentage",
	TypeDate:       "date",
	TypeBoolean:    "boolean",
	TypeFormula:    "formula",
	TypeLink:       "link",
}

func (t CellType) String() string {
	return cellTypeNames[t]
}

// parseCellType reverses String; unknown names fall back to text.
func parseCellType(name string) CellType {
	for typ, candidate := range cellTypeNames {
		if candidate == name {
			return typ
		}
	}
	return TypeText
}

// Style holds visual attributes as a plain mergeable map
// (e.g. "color", "background", "align", "weight").
type Style map[string]string

// merge copies src entries over s, allocating if needed.
func (s Style) merge(src Style) Style {
	if len(src) == 0 {
		return s
	}
	if s == nil {
		s = make(Style, len(src))
	}
	for k, v := range src {
		s[k] = v
	}
	return s
}

// HistoryEntry is one prior value of a cell. History is an audit log: it is
// append-only and evaluation never reads it.
type HistoryEntry struct {
	Value Scalar    `json:"value"`
	At    time.Time `json:"at"`
}

// Cell is the unit of storage. A cell with a non-empty Formula has a Value
// equal to the most recent evaluation of that formula; a cell without one
// has the Value of the last literal write.
type Cell struct {
	Value   Scalar
	Formula string
	Type    CellType
	Style   Style
	Source  string // provenance annotation (citation text or URL), display-only
	History []HistoryEntry
}

// IsFormula reports whether the cell's value is derived.
func (c *Cell) IsFormula() bool {
	return c != nil && c.Formula != ""
}

// recordHistory appends the current value before it is replaced.
func (c *Cell) recordHistory(now time.Time) {
	c.History = append(c.History, HistoryEntry{Value: c.Value, At: now})
}

// classifyScalar picks the display type tag for a literal write.
func classifyScalar(v Scalar) CellType {
	switch v.(type) {
	case float64:
		return TypeNumber
	case bool:
		return TypeBoolean
	case string:
		return TypeText
	default:
		return TypeText
	}
}

// InferLiteral re-infers a cell value and type tag from textual shape, the
// way bulk import does: numeric pattern, leading currency symbol, percentage
// suffix, ISO-date prefix, boolean words. Anything else is text.
func InferLiteral(text string) (Scalar, CellType) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, TypeText
	}

	if num, err := strconv.ParseFloat(strings.ReplaceAll(trimmed, ",", ""), 64); err == nil {
		return num, TypeNumber
	}

	if strings.HasPrefix(trimmed, "$") || strings.HasPrefix(trimmed, "€") || strings.HasPrefix(trimmed, "£") {
		body := strings.TrimLeft(trimmed, "$€£")
		if num, err := strconv.ParseFloat(strings.ReplaceAll(body, ",", ""), 64); err == nil {
			return num, TypeCurrency
		}
	}

	if strings.HasSuffix(trimmed, "%") {
		body := strings.TrimSuffix(trimmed, "%")
		if num, err := strconv.ParseFloat(body, 64); err == nil {
			return num / 100.0, TypePercentage
		}
	}

	// ISO-date prefix (2024-06-30 or longer timestamp forms)
	if len(trimmed) >= 10 {
		if t, err := time.Parse("2006-01-02", trimmed[:10]); err == nil {
			return dateToSerial(t), TypeDate
		}
	}

	switch strings.ToUpper(trimmed) {
	case "TRUE":
		return true, TypeBoolean
	case "FALSE":
		return false, TypeBoolean
	}

	if err, ok := parseErrorSentinel(trimmed); ok {
		return err, TypeText
	}

	return text, TypeText
}

// DisplayText renders a cell's materialized value the way the grid shows
// it, honoring the display type tag.
func DisplayText(c *Cell) string {
	if c == nil || c.Value == nil {
		return ""
	}
	switch v := c.Value.(type) {
	case *CellError:
		return v.Error()
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	case float64:
		switch c.Type {
		case TypeCurrency:
			return fmt.Sprintf("$%.2f", v)
		case TypePercentage:
			return formatNumber(v*100) + "%"
		case TypeDate:
			return serialToDate(v).Format("2006-01-02")
		default:
			return formatNumber(v)
		}
	default:
		return fmt.Sprint(v)
	}
}

// formatNumber renders a float without trailing decimal noise.
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < 1e15 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Serial day numbers count days since the epoch below, the convention the
// date functions share with the import/export layer.
const serialEpochUnixMs = -2209161600000 // 1899-12-30T00:00:00Z

func dateToSerial(t time.Time) float64 {
	return float64(t.UnixMilli()-serialEpochUnixMs) / float64(24*time.Hour/time.Millisecond)
}

func serialToDate(serial float64) time.Time {
	ms := serialEpochUnixMs + int64(serial*float64(24*time.Hour/time.Millisecond))
	return time.UnixMilli(ms).UTC()
}
