package gridcalc

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"time"
)

// RandomGenerator provides random number generation for testing.
type RandomGenerator interface {
	Float64() float64
}

// DefaultRandomGenerator uses math/rand/v2.
type DefaultRandomGenerator struct{}

func (d *DefaultRandomGenerator) Float64() float64 {
	return rand.Float64()
}

// funcLibrary holds the built-in formula functions. Clock and random
// generator are injected so NOW, TODAY, and RAND are deterministic under
// test.
type funcLibrary struct {
	clock Clock
	rng   RandomGenerator
}

func newFuncLibrary(clock Clock, rng RandomGenerator) *funcLibrary {
	return &funcLibrary{clock: clock, rng: rng}
}

// call dispatches a built-in by name. Unknown names evaluate to an error
// value rather than aborting recalculation.
func (f *funcLibrary) call(name string, args []Scalar) (Scalar, error) {
	switch strings.ToUpper(name) {
	case "SUM":
		return f.SUM(args...)
	case "AVERAGE":
		return f.AVERAGE(args...)
	case "AVERAGEA":
		return f.AVERAGEA(args...)
	case "COUNT":
		return f.COUNT(args...)
	case "COUNTA":
		return f.COUNTA(args...)
	case "COUNTBLANK":
		return f.COUNTBLANK(args...)
	case "MAX":
		return f.MAX(args...)
	case "MIN":
		return f.MIN(args...)
	case "MEDIAN":
		return f.MEDIAN(args...)
	case "MODE":
		return f.MODE(args...)
	case "STDEV":
		return f.STDEV(args...)
	case "VAR":
		return f.VAR(args...)
	case "LARGE":
		return f.LARGE(args...)
	case "SMALL":
		return f.SMALL(args...)
	case "SUMIF":
		return f.SUMIF(args...)
	case "COUNTIF":
		return f.COUNTIF(args...)
	case "AVERAGEIF":
		return f.AVERAGEIF(args...)
	case "SUMPRODUCT":
		return f.SUMPRODUCT(args...)
	case "IF":
		return f.IF(args...)
	case "AND":
		return f.AND(args...)
	case "OR":
		return f.OR(args...)
	case "NOT":
		return f.NOT(args...)
	case "IFERROR":
		return f.IFERROR(args...)
	case "ISBLANK":
		return f.ISBLANK(args...)
	case "ISNUMBER":
		return f.ISNUMBER(args...)
	case "ISTEXT":
		return f.ISTEXT(args...)
	case "ISERROR":
		return f.ISERROR(args...)
	case "CONCATENATE", "CONCAT":
		return f.CONCATENATE(args...)
	case "LEN":
		return f.LEN(args...)
	case "UPPER":
		return f.UPPER(args...)
	case "LOWER":
		return f.LOWER(args...)
	case "TRIM":
		return f.TRIM(args...)
	case "PROPER":
		return f.PROPER(args...)
	case "LEFT":
		return f.LEFT(args...)
	case "RIGHT":
		return f.RIGHT(args...)
	case "MID":
		return f.MID(args...)
	case "SUBSTITUTE":
		return f.SUBSTITUTE(args...)
	case "REPT":
		return f.REPT(args...)
	case "FIND":
		return f.FIND(args...)
	case "VALUE":
		return f.VALUE(args...)
	case "TEXTJOIN":
		return f.TEXTJOIN(args...)
	case "NOW":
		return f.NOW(args...)
	case "TODAY":
		return f.TODAY(args...)
	case "DATE":
		return f.DATE(args...)
	case "YEAR":
		return f.YEAR(args...)
	case "MONTH":
		return f.MONTH(args...)
	case "DAY":
		return f.DAY(args...)
	case "DATEDIF":
		return f.DATEDIF(args...)
	case "VLOOKUP":
		return f.VLOOKUP(args...)
	case "HLOOKUP":
		return f.HLOOKUP(args...)
	case "INDEX":
		return f.INDEX(args...)
	case "MATCH":
		return f.MATCH(args...)
	case "CHOOSE":
		return f.CHOOSE(args...)
	case "ABS":
		return f.ABS(args...)
	case "ROUND":
		return f.ROUND(args...)
	case "ROUNDUP":
		return f.ROUNDUP(args...)
	case "ROUNDDOWN":
		return f.ROUNDDOWN(args...)
	case "FLOOR":
		return f.FLOOR(args...)
	case "CEILING":
		return f.CEILING(args...)
	case "SQRT":
		return f.SQRT(args...)
	case "POWER":
		return f.POWER(args...)
	case "MOD":
		return f.MOD(args...)
	case "PI":
		return f.PI(args...)
	case "EXP":
		return f.EXP(args...)
	case "LN":
		return f.LN(args...)
	case "LOG":
		return f.LOG(args...)
	case "LOG10":
		return f.LOG10(args...)
	case "INT":
		return f.INT(args...)
	case "SIGN":
		return f.SIGN(args...)
	case "RAND":
		return f.RAND(args...)
	case "NPV":
		return f.NPV(args...)
	case "IRR":
		return f.IRR(args...)
	case "PMT":
		return f.PMT(args...)
	case "FV":
		return f.FV(args...)
	case "PV":
		return f.PV(args...)
	case "NPER":
		return f.NPER(args...)
	case "CAGR":
		return f.CAGR(args...)
	case "MOIC":
		return f.MOIC(args...)
	default:
		return nil, newCellError(ErrorCodeGeneric, fmt.Sprintf("unknown function: %s", name))
	}
}

// checkForError returns the error if value is a *CellError, nil otherwise.
func checkForError(value Scalar) *CellError {
	if err, ok := value.(*CellError); ok {
		return err
	}
	return nil
}

// toNumber converts value to a number, returning ok=false if conversion
// fails. Booleans coerce to 1/0 and empty cells to 0.
func toNumber(value Scalar) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	case string:
		num, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		return num, true
	case nil:
		return 0, true
	default:
		return 0, false
	}
}

// toText renders value as text for concatenation and text functions.
func toText(value Scalar) string {
	switch v := value.(type) {
	case nil:
		return ""
	case float64:
		return formatNumber(v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprint(value)
	}
}

// isTruthy reports whether value counts as true in a condition.
func isTruthy(value Scalar) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case nil:
		return false
	default:
		return true
	}
}

// expandArgs walks args in order, passing each scalar to fn. Range
// arguments are flattened; direct error arguments propagate immediately,
// errors inside ranges are handed to fn so each function decides whether
// to skip or reject them.
func expandArgs(args []Scalar, fn func(Scalar) error) error {
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return err
		}
		if r, ok := arg.(Range); ok {
			for value := range r.Values() {
				if err := fn(value); err != nil {
					return err
				}
			}
			continue
		}
		if err := fn(arg); err != nil {
			return err
		}
	}
	return nil
}

// collectNumbers flattens args to the numeric values they contain. Errors
// anywhere propagate; non-numeric values are skipped.
func collectNumbers(args []Scalar) ([]float64, error) {
	var nums []float64
	err := expandArgs(args, func(value Scalar) error {
		if err := checkForError(value); err != nil {
			return err
		}
		if value == nil {
			return nil
		}
		if num, ok := toNumber(value); ok && !math.IsNaN(num) {
			nums = append(nums, num)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return nums, nil
}

func arityError(name string, detail string) *CellError {
	return newCellError(ErrorCodeGeneric, fmt.Sprintf("%s: %s", name, detail))
}

// numberArg extracts the numeric value of a positional argument.
func numberArg(name string, args []Scalar, i int) (float64, *CellError) {
	if err := checkForError(args[i]); err != nil {
		return 0, err
	}
	num, ok := toNumber(args[i])
	if !ok {
		return 0, arityError(name, fmt.Sprintf("argument %d must be numeric", i+1))
	}
	return num, nil
}

// textArg extracts the text value of a positional argument.
func textArg(args []Scalar, i int) (string, *CellError) {
	if err := checkForError(args[i]); err != nil {
		return "", err
	}
	return toText(args[i]), nil
}

// gridOf materializes a rectangular range argument as rows of scalars.
func gridOf(arg Scalar) ([][]Scalar, bool) {
	r, ok := arg.(*cellRange)
	if !ok {
		return nil, false
	}
	var grid [][]Scalar
	for row := range r.rows() {
		grid = append(grid, row)
	}
	return grid, true
}

// gridColumnsOf materializes a range argument column-by-column, the layout
// HLOOKUP scans.
func gridColumnsOf(arg Scalar) ([][]Scalar, bool) {
	r, ok := arg.(*cellRange)
	if !ok {
		return nil, false
	}
	var grid [][]Scalar
	for col := range r.columns() {
		grid = append(grid, col)
	}
	return grid, true
}

// flatten materializes any argument as a flat value list.
func flatten(arg Scalar) []Scalar {
	if r, ok := arg.(Range); ok {
		var values []Scalar
		for value := range r.Values() {
			values = append(values, value)
		}
		return values
	}
	return []Scalar{arg}
}

// --- Statistical ---

func (f *funcLibrary) SUM(args ...Scalar) (Scalar, error) {
	sum := 0.0
	err := expandArgs(args, func(value Scalar) error {
		if err := checkForError(value); err != nil {
			return err
		}
		if num, ok := toNumber(value); ok && !math.IsNaN(num) {
			sum += num
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

func (f *funcLibrary) AVERAGE(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, newCellError(ErrorCodeGeneric, "AVERAGE of no numeric values")
	}
	sum := 0.0
	for _, n := range nums {
		sum += n
	}
	return sum / float64(len(nums)), nil
}

func (f *funcLibrary) AVERAGEA(args ...Scalar) (Scalar, error) {
	sum := 0.0
	count := 0
	err := expandArgs(args, func(value Scalar) error {
		if value == nil {
			return nil
		}
		if err := checkForError(value); err != nil {
			return err
		}
		// non-numeric values count toward the denominator at 0
		switch v := value.(type) {
		case float64:
			sum += v
			count++
		case bool:
			if v {
				sum++
			}
			count++
		case string:
			count++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, newCellError(ErrorCodeGeneric, "AVERAGEA of no values")
	}
	return sum / float64(count), nil
}

func (f *funcLibrary) COUNT(args ...Scalar) (Scalar, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		for _, value := range flatten(arg) {
			// COUNT counts numbers only; errors inside ranges are skipped
			if _, ok := value.(float64); ok {
				count++
			}
		}
	}
	return float64(count), nil
}

func (f *funcLibrary) COUNTA(args ...Scalar) (Scalar, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		for _, value := range flatten(arg) {
			if value != nil {
				count++
			}
		}
	}
	return float64(count), nil
}

func (f *funcLibrary) COUNTBLANK(args ...Scalar) (Scalar, error) {
	count := 0
	for _, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		for _, value := range flatten(arg) {
			if value == nil || value == "" {
				count++
			}
		}
	}
	return float64(count), nil
}

func (f *funcLibrary) MAX(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return 0.0, nil
	}
	max := nums[0]
	for _, n := range nums[1:] {
		if n > max {
			max = n
		}
	}
	return max, nil
}

func (f *funcLibrary) MIN(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return 0.0, nil
	}
	min := nums[0]
	for _, n := range nums[1:] {
		if n < min {
			min = n
		}
	}
	return min, nil
}

func (f *funcLibrary) MEDIAN(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) == 0 {
		return nil, newCellError(ErrorCodeGeneric, "MEDIAN of no numeric values")
	}
	sort.Float64s(nums)
	mid := len(nums) / 2
	if len(nums)%2 == 1 {
		return nums[mid], nil
	}
	return (nums[mid-1] + nums[mid]) / 2, nil
}

func (f *funcLibrary) MODE(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	counts := make(map[float64]int)
	for _, n := range nums {
		counts[n]++
	}
	best, bestCount := 0.0, 0
	// first value reaching the highest count wins, iteration ordered by
	// first appearance
	seen := make(map[float64]bool)
	for _, n := range nums {
		if seen[n] {
			continue
		}
		seen[n] = true
		if counts[n] > bestCount {
			best, bestCount = n, counts[n]
		}
	}
	if bestCount < 2 {
		return nil, newCellError(ErrorCodeNA, "MODE found no repeated value")
	}
	return best, nil
}

func variance(nums []float64) float64 {
	mean := 0.0
	for _, n := range nums {
		mean += n
	}
	mean /= float64(len(nums))
	sq := 0.0
	for _, n := range nums {
		sq += (n - mean) * (n - mean)
	}
	return sq / float64(len(nums)-1)
}

func (f *funcLibrary) STDEV(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) < 2 {
		return nil, newCellError(ErrorCodeGeneric, "STDEV requires at least two numeric values")
	}
	return math.Sqrt(variance(nums)), nil
}

func (f *funcLibrary) VAR(args ...Scalar) (Scalar, error) {
	nums, err := collectNumbers(args)
	if err != nil {
		return nil, err
	}
	if len(nums) < 2 {
		return nil, newCellError(ErrorCodeGeneric, "VAR requires at least two numeric values")
	}
	return variance(nums), nil
}

func (f *funcLibrary) LARGE(args ...Scalar) (Scalar, error) {
	return f.nthRanked("LARGE", args, true)
}

func (f *funcLibrary) SMALL(args ...Scalar) (Scalar, error) {
	return f.nthRanked("SMALL", args, false)
}

func (f *funcLibrary) nthRanked(name string, args []Scalar, descending bool) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError(name, "expects a range and a rank")
	}
	nums, err := collectNumbers(args[:1])
	if err != nil {
		return nil, err
	}
	k, cellErr := numberArg(name, args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	rank := int(k)
	if rank < 1 || rank > len(nums) {
		return nil, newCellError(ErrorCodeGeneric, fmt.Sprintf("%s: rank %d out of bounds", name, rank))
	}
	sort.Float64s(nums)
	if descending {
		return nums[len(nums)-rank], nil
	}
	return nums[rank-1], nil
}

// matchCriteria evaluates a SUMIF-style criteria against a value. Criteria
// strings may carry a leading comparison operator (">5", "<>done"); plain
// criteria compare for equality, numerically when both sides parse.
func matchCriteria(value Scalar, criteria Scalar) bool {
	if _, ok := value.(*CellError); ok {
		return false
	}
	text, isText := criteria.(string)
	if !isText {
		a, okA := toNumber(value)
		b, okB := toNumber(criteria)
		if okA && okB {
			return a == b
		}
		return toText(value) == toText(criteria)
	}

	op := "="
	rest := text
	for _, candidate := range []string{">=", "<=", "<>", ">", "<", "="} {
		if strings.HasPrefix(text, candidate) {
			op = candidate
			rest = text[len(candidate):]
			break
		}
	}

	if num, numErr := strconv.ParseFloat(rest, 64); numErr == nil {
		v, ok := toNumber(value)
		if !ok {
			return false
		}
		switch op {
		case "=":
			return v == num
		case "<>":
			return v != num
		case ">":
			return v > num
		case ">=":
			return v >= num
		case "<":
			return v < num
		case "<=":
			return v <= num
		}
	}

	v := toText(value)
	switch op {
	case "=":
		return strings.EqualFold(v, rest)
	case "<>":
		return !strings.EqualFold(v, rest)
	case ">":
		return v > rest
	case ">=":
		return v >= rest
	case "<":
		return v < rest
	case "<=":
		return v <= rest
	}
	return false
}

func (f *funcLibrary) SUMIF(args ...Scalar) (Scalar, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, arityError("SUMIF", "expects range, criteria, and optional sum range")
	}
	if err := checkForError(args[1]); err != nil {
		return nil, err
	}
	test := flatten(args[0])
	values := test
	if len(args) == 3 {
		values = flatten(args[2])
	}
	sum := 0.0
	for i, probe := range test {
		if !matchCriteria(probe, args[1]) {
			continue
		}
		if i < len(values) {
			if num, ok := toNumber(values[i]); ok && !math.IsNaN(num) {
				sum += num
			}
		}
	}
	return sum, nil
}

func (f *funcLibrary) COUNTIF(args ...Scalar) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError("COUNTIF", "expects a range and a criteria")
	}
	if err := checkForError(args[1]); err != nil {
		return nil, err
	}
	count := 0
	for _, probe := range flatten(args[0]) {
		if matchCriteria(probe, args[1]) {
			count++
		}
	}
	return float64(count), nil
}

func (f *funcLibrary) AVERAGEIF(args ...Scalar) (Scalar, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, arityError("AVERAGEIF", "expects range, criteria, and optional average range")
	}
	if err := checkForError(args[1]); err != nil {
		return nil, err
	}
	test := flatten(args[0])
	values := test
	if len(args) == 3 {
		values = flatten(args[2])
	}
	sum, count := 0.0, 0
	for i, probe := range test {
		if !matchCriteria(probe, args[1]) {
			continue
		}
		if i < len(values) {
			if num, ok := toNumber(values[i]); ok && !math.IsNaN(num) {
				sum += num
				count++
			}
		}
	}
	if count == 0 {
		return nil, newCellError(ErrorCodeGeneric, "AVERAGEIF matched no numeric values")
	}
	return sum / float64(count), nil
}

func (f *funcLibrary) SUMPRODUCT(args ...Scalar) (Scalar, error) {
	if len(args) == 0 {
		return nil, arityError("SUMPRODUCT", "expects at least one range")
	}
	lists := make([][]Scalar, len(args))
	for i, arg := range args {
		if err := checkForError(arg); err != nil {
			return nil, err
		}
		lists[i] = flatten(arg)
		if len(lists[i]) != len(lists[0]) {
			return nil, newCellError(ErrorCodeGeneric, "SUMPRODUCT ranges differ in size")
		}
	}
	sum := 0.0
	for i := range lists[0] {
		product := 1.0
		for _, list := range lists {
			if err := checkForError(list[i]); err != nil {
				return nil, err
			}
			num, ok := list[i].(float64)
			if !ok {
				num = 0 // non-numeric entries contribute zero
			}
			product *= num
		}
		sum += product
	}
	return sum, nil
}

// --- Logical ---

func (f *funcLibrary) IF(args ...Scalar) (Scalar, error) {
	if len(args) < 2 || len(args) > 3 {
		return nil, arityError("IF", "expects condition, then, and optional else")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	if isTruthy(args[0]) {
		return args[1], nil
	}
	if len(args) == 3 {
		return args[2], nil
	}
	return false, nil
}

func (f *funcLibrary) AND(args ...Scalar) (Scalar, error) {
	result := true
	err := expandArgs(args, func(value Scalar) error {
		if err := checkForError(value); err != nil {
			return err
		}
		if value != nil && !isTruthy(value) {
			result = false
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *funcLibrary) OR(args ...Scalar) (Scalar, error) {
	result := false
	err := expandArgs(args, func(value Scalar) error {
		if err := checkForError(value); err != nil {
			return err
		}
		if value != nil && isTruthy(value) {
			result = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (f *funcLibrary) NOT(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("NOT", "expects one argument")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	return !isTruthy(args[0]), nil
}

func (f *funcLibrary) IFERROR(args ...Scalar) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError("IFERROR", "expects a value and a fallback")
	}
	if checkForError(args[0]) != nil {
		return args[1], nil
	}
	return args[0], nil
}

func (f *funcLibrary) ISBLANK(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("ISBLANK", "expects one argument")
	}
	return args[0] == nil, nil
}

func (f *funcLibrary) ISNUMBER(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("ISNUMBER", "expects one argument")
	}
	_, ok := args[0].(float64)
	return ok, nil
}

func (f *funcLibrary) ISTEXT(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("ISTEXT", "expects one argument")
	}
	_, ok := args[0].(string)
	return ok, nil
}

func (f *funcLibrary) ISERROR(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("ISERROR", "expects one argument")
	}
	return checkForError(args[0]) != nil, nil
}

// --- Text ---

func (f *funcLibrary) CONCATENATE(args ...Scalar) (Scalar, error) {
	var b strings.Builder
	err := expandArgs(args, func(value Scalar) error {
		if err := checkForError(value); err != nil {
			return err
		}
		b.WriteString(toText(value))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return b.String(), nil
}

func (f *funcLibrary) LEN(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("LEN", "expects one argument")
	}
	text, err := textArg(args, 0)
	if err != nil {
		return nil, err
	}
	return float64(len([]rune(text))), nil
}

func (f *funcLibrary) UPPER(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("UPPER", "expects one argument")
	}
	text, err := textArg(args, 0)
	if err != nil {
		return nil, err
	}
	return strings.ToUpper(text), nil
}

func (f *funcLibrary) LOWER(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("LOWER", "expects one argument")
	}
	text, err := textArg(args, 0)
	if err != nil {
		return nil, err
	}
	return strings.ToLower(text), nil
}

func (f *funcLibrary) TRIM(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("TRIM", "expects one argument")
	}
	text, err := textArg(args, 0)
	if err != nil {
		return nil, err
	}
	return strings.Join(strings.Fields(text), " "), nil
}

func (f *funcLibrary) PROPER(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("PROPER", "expects one argument")
	}
	text, err := textArg(args, 0)
	if err != nil {
		return nil, err
	}
	runes := []rune(strings.ToLower(text))
	startOfWord := true
	for i, r := range runes {
		if startOfWord && r >= 'a' && r <= 'z' {
			runes[i] = r - 'a' + 'A'
		}
		startOfWord = !((r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'))
	}
	return string(runes), nil
}

func (f *funcLibrary) LEFT(args ...Scalar) (Scalar, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, arityError("LEFT", "expects text and an optional count")
	}
	text, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	n := 1.0
	if len(args) == 2 {
		var numErr *CellError
		n, numErr = numberArg("LEFT", args, 1)
		if numErr != nil {
			return nil, numErr
		}
	}
	runes := []rune(text)
	count := int(n)
	if count < 0 {
		return nil, arityError("LEFT", "count must be non-negative")
	}
	if count > len(runes) {
		count = len(runes)
	}
	return string(runes[:count]), nil
}

func (f *funcLibrary) RIGHT(args ...Scalar) (Scalar, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, arityError("RIGHT", "expects text and an optional count")
	}
	text, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	n := 1.0
	if len(args) == 2 {
		var numErr *CellError
		n, numErr = numberArg("RIGHT", args, 1)
		if numErr != nil {
			return nil, numErr
		}
	}
	runes := []rune(text)
	count := int(n)
	if count < 0 {
		return nil, arityError("RIGHT", "count must be non-negative")
	}
	if count > len(runes) {
		count = len(runes)
	}
	return string(runes[len(runes)-count:]), nil
}

func (f *funcLibrary) MID(args ...Scalar) (Scalar, error) {
	if len(args) != 3 {
		return nil, arityError("MID", "expects text, start, and count")
	}
	text, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	start, cellErr := numberArg("MID", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	count, cellErr := numberArg("MID", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	if start < 1 || count < 0 {
		return nil, arityError("MID", "start must be >= 1 and count >= 0")
	}
	runes := []rune(text)
	from := int(start) - 1
	if from >= len(runes) {
		return "", nil
	}
	to := from + int(count)
	if to > len(runes) {
		to = len(runes)
	}
	return string(runes[from:to]), nil
}

func (f *funcLibrary) SUBSTITUTE(args ...Scalar) (Scalar, error) {
	if len(args) != 3 && len(args) != 4 {
		return nil, arityError("SUBSTITUTE", "expects text, old, new, and optional instance")
	}
	text, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	old, cellErr := textArg(args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	repl, cellErr := textArg(args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	if old == "" {
		return text, nil
	}
	if len(args) == 3 {
		return strings.ReplaceAll(text, old, repl), nil
	}
	instance, cellErr := numberArg("SUBSTITUTE", args, 3)
	if cellErr != nil {
		return nil, cellErr
	}
	nth := int(instance)
	if nth < 1 {
		return nil, arityError("SUBSTITUTE", "instance must be >= 1")
	}
	offset := 0
	for count := 0; ; count++ {
		idx := strings.Index(text[offset:], old)
		if idx < 0 {
			return text, nil
		}
		if count+1 == nth {
			pos := offset + idx
			return text[:pos] + repl + text[pos+len(old):], nil
		}
		offset += idx + len(old)
	}
}

func (f *funcLibrary) REPT(args ...Scalar) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError("REPT", "expects text and a count")
	}
	text, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	count, cellErr := numberArg("REPT", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	if count < 0 {
		return nil, arityError("REPT", "count must be non-negative")
	}
	return strings.Repeat(text, int(count)), nil
}

func (f *funcLibrary) FIND(args ...Scalar) (Scalar, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, arityError("FIND", "expects needle, haystack, and optional start")
	}
	needle, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	haystack, cellErr := textArg(args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	start := 1.0
	if len(args) == 3 {
		start, cellErr = numberArg("FIND", args, 2)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	from := int(start) - 1
	if from < 0 || from > len(haystack) {
		return nil, arityError("FIND", "start position out of bounds")
	}
	idx := strings.Index(haystack[from:], needle)
	if idx < 0 {
		return nil, newCellError(ErrorCodeGeneric, fmt.Sprintf("FIND: %q not found", needle))
	}
	return float64(from + idx + 1), nil
}

func (f *funcLibrary) VALUE(args ...Scalar) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError("VALUE", "expects one argument")
	}
	text, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	parsed, _ := InferLiteral(strings.TrimSpace(text))
	if num, ok := parsed.(float64); ok {
		return num, nil
	}
	return nil, newCellError(ErrorCodeGeneric, fmt.Sprintf("VALUE: %q is not numeric", text))
}

func (f *funcLibrary) TEXTJOIN(args ...Scalar) (Scalar, error) {
	if len(args) < 3 {
		return nil, arityError("TEXTJOIN", "expects delimiter, ignore-empty flag, and values")
	}
	delim, cellErr := textArg(args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	if err := checkForError(args[1]); err != nil {
		return nil, err
	}
	ignoreEmpty := isTruthy(args[1])
	var parts []string
	err := expandArgs(args[2:], func(value Scalar) error {
		if err := checkForError(value); err != nil {
			return err
		}
		text := toText(value)
		if ignoreEmpty && text == "" {
			return nil
		}
		parts = append(parts, text)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return strings.Join(parts, delim), nil
}

// --- Date ---

func (f *funcLibrary) NOW(args ...Scalar) (Scalar, error) {
	if len(args) != 0 {
		return nil, arityError("NOW", "takes no arguments")
	}
	return dateToSerial(f.clock.Now().UTC()), nil
}

func (f *funcLibrary) TODAY(args ...Scalar) (Scalar, error) {
	if len(args) != 0 {
		return nil, arityError("TODAY", "takes no arguments")
	}
	return math.Floor(dateToSerial(f.clock.Now().UTC())), nil
}

func (f *funcLibrary) DATE(args ...Scalar) (Scalar, error) {
	if len(args) != 3 {
		return nil, arityError("DATE", "expects year, month, and day")
	}
	year, cellErr := numberArg("DATE", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	month, cellErr := numberArg("DATE", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	day, cellErr := numberArg("DATE", args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	t := time.Date(int(year), time.Month(int(month)), int(day), 0, 0, 0, 0, time.UTC)
	return dateToSerial(t), nil
}

func (f *funcLibrary) datePart(name string, args []Scalar, part func(time.Time) float64) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError(name, "expects a date serial")
	}
	serial, cellErr := numberArg(name, args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	return part(serialToDate(serial)), nil
}

func (f *funcLibrary) YEAR(args ...Scalar) (Scalar, error) {
	return f.datePart("YEAR", args, func(t time.Time) float64 { return float64(t.Year()) })
}

func (f *funcLibrary) MONTH(args ...Scalar) (Scalar, error) {
	return f.datePart("MONTH", args, func(t time.Time) float64 { return float64(t.Month()) })
}

func (f *funcLibrary) DAY(args ...Scalar) (Scalar, error) {
	return f.datePart("DAY", args, func(t time.Time) float64 { return float64(t.Day()) })
}

func (f *funcLibrary) DATEDIF(args ...Scalar) (Scalar, error) {
	if len(args) != 3 {
		return nil, arityError("DATEDIF", "expects start, end, and a unit")
	}
	startSerial, cellErr := numberArg("DATEDIF", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	endSerial, cellErr := numberArg("DATEDIF", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	unit, cellErr := textArg(args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	if endSerial < startSerial {
		return nil, arityError("DATEDIF", "end date precedes start date")
	}
	start, end := serialToDate(startSerial), serialToDate(endSerial)
	switch strings.ToUpper(unit) {
	case "D":
		return math.Floor(endSerial) - math.Floor(startSerial), nil
	case "M":
		months := (end.Year()-start.Year())*12 + int(end.Month()) - int(start.Month())
		if end.Day() < start.Day() {
			months--
		}
		return float64(months), nil
	case "Y":
		years := end.Year() - start.Year()
		if end.Month() < start.Month() || (end.Month() == start.Month() && end.Day() < start.Day()) {
			years--
		}
		return float64(years), nil
	}
	return nil, arityError("DATEDIF", fmt.Sprintf("unknown unit %q", unit))
}

// --- Lookup ---

func (f *funcLibrary) VLOOKUP(args ...Scalar) (Scalar, error) {
	return f.tableLookup("VLOOKUP", args, false)
}

func (f *funcLibrary) HLOOKUP(args ...Scalar) (Scalar, error) {
	return f.tableLookup("HLOOKUP", args, true)
}

// tableLookup scans the first column (or row, transposed) of a table for
// the lookup value and returns the entry at the given offset in the
// matching row. With exact=false a text probe also matches by substring
// containment, which suits free-form tags in fund models.
func (f *funcLibrary) tableLookup(name string, args []Scalar, transposed bool) (Scalar, error) {
	if len(args) != 3 && len(args) != 4 {
		return nil, arityError(name, "expects value, table, index, and optional exact flag")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	grid, ok := gridOf(args[1])
	if transposed {
		grid, ok = gridColumnsOf(args[1])
	}
	if !ok {
		return nil, arityError(name, "second argument must be a range")
	}
	index, cellErr := numberArg(name, args, 2)
	if cellErr != nil {
		return nil, cellErr
	}
	exact := true
	if len(args) == 4 {
		if err := checkForError(args[3]); err != nil {
			return nil, err
		}
		exact = isTruthy(args[3])
	}

	offset := int(index) - 1
	for _, row := range grid {
		if len(row) == 0 {
			continue
		}
		if !lookupMatches(args[0], row[0], exact) {
			continue
		}
		if offset < 0 || offset >= len(row) {
			return nil, newCellError(ErrorCodeRef, fmt.Sprintf("%s: index %d outside the table", name, int(index)))
		}
		return row[offset], nil
	}
	return nil, newCellError(ErrorCodeNA, fmt.Sprintf("%s: value not found", name))
}

func lookupMatches(probe, candidate Scalar, exact bool) bool {
	a, okA := toNumber(probe)
	b, okB := toNumber(candidate)
	if okA && okB && probe != nil && candidate != nil {
		return a == b
	}
	ps, cs := toText(probe), toText(candidate)
	if strings.EqualFold(ps, cs) {
		return true
	}
	if !exact && ps != "" {
		return strings.Contains(strings.ToLower(cs), strings.ToLower(ps))
	}
	return false
}

func (f *funcLibrary) INDEX(args ...Scalar) (Scalar, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, arityError("INDEX", "expects range, row, and optional column")
	}
	grid, ok := gridOf(args[0])
	if !ok {
		return nil, arityError("INDEX", "first argument must be a range")
	}
	row, cellErr := numberArg("INDEX", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	col := 1.0
	if len(args) == 3 {
		col, cellErr = numberArg("INDEX", args, 2)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	r, c := int(row)-1, int(col)-1
	if r < 0 || r >= len(grid) || c < 0 || c >= len(grid[r]) {
		return nil, newCellError(ErrorCodeRef, "INDEX position outside the range")
	}
	return grid[r][c], nil
}

func (f *funcLibrary) MATCH(args ...Scalar) (Scalar, error) {
	if len(args) != 2 && len(args) != 3 {
		return nil, arityError("MATCH", "expects value, range, and optional match type")
	}
	if err := checkForError(args[0]); err != nil {
		return nil, err
	}
	// only exact matching is supported; a third argument must be 0
	if len(args) == 3 {
		mode, cellErr := numberArg("MATCH", args, 2)
		if cellErr != nil {
			return nil, cellErr
		}
		if mode != 0 {
			return nil, arityError("MATCH", "only exact match (type 0) is supported")
		}
	}
	for i, candidate := range flatten(args[1]) {
		if lookupMatches(args[0], candidate, true) {
			return float64(i + 1), nil
		}
	}
	return nil, newCellError(ErrorCodeNA, "MATCH: value not found")
}

func (f *funcLibrary) CHOOSE(args ...Scalar) (Scalar, error) {
	if len(args) < 2 {
		return nil, arityError("CHOOSE", "expects an index and at least one value")
	}
	index, cellErr := numberArg("CHOOSE", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	i := int(index)
	if i < 1 || i > len(args)-1 {
		return nil, arityError("CHOOSE", fmt.Sprintf("index %d out of bounds", i))
	}
	return args[i], nil
}

// --- Math ---

func (f *funcLibrary) oneNumber(name string, args []Scalar, fn func(float64) (float64, bool)) (Scalar, error) {
	if len(args) != 1 {
		return nil, arityError(name, "expects one numeric argument")
	}
	num, cellErr := numberArg(name, args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	out, ok := fn(num)
	if !ok {
		return nil, newCellError(ErrorCodeGeneric, fmt.Sprintf("%s: domain error for %v", name, num))
	}
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, fmt.Sprintf("%s: non-finite result", name))
	}
	return out, nil
}

func (f *funcLibrary) ABS(args ...Scalar) (Scalar, error) {
	return f.oneNumber("ABS", args, func(n float64) (float64, bool) { return math.Abs(n), true })
}

func (f *funcLibrary) SQRT(args ...Scalar) (Scalar, error) {
	return f.oneNumber("SQRT", args, func(n float64) (float64, bool) {
		if n < 0 {
			return 0, false
		}
		return math.Sqrt(n), true
	})
}

func (f *funcLibrary) EXP(args ...Scalar) (Scalar, error) {
	return f.oneNumber("EXP", args, func(n float64) (float64, bool) { return math.Exp(n), true })
}

func (f *funcLibrary) LN(args ...Scalar) (Scalar, error) {
	return f.oneNumber("LN", args, func(n float64) (float64, bool) {
		if n <= 0 {
			return 0, false
		}
		return math.Log(n), true
	})
}

func (f *funcLibrary) LOG10(args ...Scalar) (Scalar, error) {
	return f.oneNumber("LOG10", args, func(n float64) (float64, bool) {
		if n <= 0 {
			return 0, false
		}
		return math.Log10(n), true
	})
}

func (f *funcLibrary) LOG(args ...Scalar) (Scalar, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, arityError("LOG", "expects a number and an optional base")
	}
	num, cellErr := numberArg("LOG", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	base := 10.0
	if len(args) == 2 {
		base, cellErr = numberArg("LOG", args, 1)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	if num <= 0 || base <= 0 || base == 1 {
		return nil, arityError("LOG", "arguments outside the function domain")
	}
	return math.Log(num) / math.Log(base), nil
}

func (f *funcLibrary) INT(args ...Scalar) (Scalar, error) {
	return f.oneNumber("INT", args, func(n float64) (float64, bool) { return math.Floor(n), true })
}

func (f *funcLibrary) SIGN(args ...Scalar) (Scalar, error) {
	return f.oneNumber("SIGN", args, func(n float64) (float64, bool) {
		switch {
		case n > 0:
			return 1, true
		case n < 0:
			return -1, true
		}
		return 0, true
	})
}

func roundToDigits(n float64, digits int, mode func(float64) float64) float64 {
	scale := math.Pow(10, float64(digits))
	return mode(n*scale) / scale
}

func (f *funcLibrary) roundFamily(name string, args []Scalar, mode func(float64) float64) (Scalar, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, arityError(name, "expects a number and an optional digit count")
	}
	num, cellErr := numberArg(name, args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	digits := 0.0
	if len(args) == 2 {
		digits, cellErr = numberArg(name, args, 1)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	return roundToDigits(num, int(digits), mode), nil
}

func (f *funcLibrary) ROUND(args ...Scalar) (Scalar, error) {
	return f.roundFamily("ROUND", args, func(n float64) float64 {
		// half away from zero
		if n < 0 {
			return math.Ceil(n - 0.5)
		}
		return math.Floor(n + 0.5)
	})
}

func (f *funcLibrary) ROUNDUP(args ...Scalar) (Scalar, error) {
	return f.roundFamily("ROUNDUP", args, func(n float64) float64 {
		if n < 0 {
			return math.Floor(n)
		}
		return math.Ceil(n)
	})
}

func (f *funcLibrary) ROUNDDOWN(args ...Scalar) (Scalar, error) {
	return f.roundFamily("ROUNDDOWN", args, math.Trunc)
}

func (f *funcLibrary) significanceFamily(name string, args []Scalar, mode func(float64) float64) (Scalar, error) {
	if len(args) != 1 && len(args) != 2 {
		return nil, arityError(name, "expects a number and an optional significance")
	}
	num, cellErr := numberArg(name, args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	significance := 1.0
	if len(args) == 2 {
		significance, cellErr = numberArg(name, args, 1)
		if cellErr != nil {
			return nil, cellErr
		}
	}
	if significance == 0 {
		return 0.0, nil
	}
	return mode(num/significance) * significance, nil
}

func (f *funcLibrary) FLOOR(args ...Scalar) (Scalar, error) {
	return f.significanceFamily("FLOOR", args, math.Floor)
}

func (f *funcLibrary) CEILING(args ...Scalar) (Scalar, error) {
	return f.significanceFamily("CEILING", args, math.Ceil)
}

func (f *funcLibrary) POWER(args ...Scalar) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError("POWER", "expects a base and an exponent")
	}
	base, cellErr := numberArg("POWER", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	exponent, cellErr := numberArg("POWER", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	out := math.Pow(base, exponent)
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return nil, newCellError(ErrorCodeGeneric, "POWER: non-finite result")
	}
	return out, nil
}

func (f *funcLibrary) MOD(args ...Scalar) (Scalar, error) {
	if len(args) != 2 {
		return nil, arityError("MOD", "expects a dividend and a divisor")
	}
	dividend, cellErr := numberArg("MOD", args, 0)
	if cellErr != nil {
		return nil, cellErr
	}
	divisor, cellErr := numberArg("MOD", args, 1)
	if cellErr != nil {
		return nil, cellErr
	}
	if divisor == 0 {
		return nil, newCellError(ErrorCodeGeneric, "MOD: division by zero")
	}
	// result carries the sign of the divisor
	out := math.Mod(dividend, divisor)
	if out != 0 && (out < 0) != (divisor < 0) {
		out += divisor
	}
	return out, nil
}

func (f *funcLibrary) PI(args ...Scalar) (Scalar, error) {
	if len(args) != 0 {
		return nil, arityError("PI", "takes no arguments")
	}
	return math.Pi, nil
}

func (f *funcLibrary) RAND(args ...Scalar) (Scalar, error) {
	if len(args) != 0 {
		return nil, arityError("RAND", "takes no arguments")
	}
	return f.rng.Float64(), nil
}
