package gridcalc

import (
	"strings"
)

// FormatKind selects the predicate a conditional-format rule applies.
type FormatKind int

const (
	FormatEquals FormatKind = iota
	FormatGreaterThan
	FormatLessThan
	FormatBetween
	FormatContains
	FormatDuplicate
	FormatUnique
)

func (k FormatKind) String() string {
	switch k {
	case FormatEquals:
		return "equals"
	case FormatGreaterThan:
		return "greater_than"
	case FormatLessThan:
		return "less_than"
	case FormatBetween:
		return "between"
	case FormatContains:
		return "contains"
	case FormatDuplicate:
		return "duplicate"
	case FormatUnique:
		return "unique"
	}
	return "unknown"
}

// ConditionalFormat styles the cells of a range whose materialized values
// satisfy a predicate. Rules are evaluated in declaration order and their
// styles merge additively, so a later rule overrides the keys it shares
// with an earlier one and leaves the rest intact.
type ConditionalFormat struct {
	Range  RangeRef
	Kind   FormatKind
	Values []Scalar // comparison operands; Between uses two
	Style  Style
}

// matches applies the rule's predicate to one value. Duplicate and Unique
// are handled by the caller since they need the whole range's population.
func (cf *ConditionalFormat) matches(value Scalar) bool {
	switch cf.Kind {
	case FormatEquals:
		if len(cf.Values) != 1 {
			return false
		}
		return compareScalars(value, cf.Values[0]) == 0

	case FormatGreaterThan:
		if len(cf.Values) != 1 {
			return false
		}
		return numericCompare(value, cf.Values[0], func(a, b float64) bool { return a > b })

	case FormatLessThan:
		if len(cf.Values) != 1 {
			return false
		}
		return numericCompare(value, cf.Values[0], func(a, b float64) bool { return a < b })

	case FormatBetween:
		if len(cf.Values) != 2 {
			return false
		}
		return numericCompare(value, cf.Values[0], func(a, b float64) bool { return a >= b }) &&
			numericCompare(value, cf.Values[1], func(a, b float64) bool { return a <= b })

	case FormatContains:
		if len(cf.Values) != 1 {
			return false
		}
		needle := toText(cf.Values[0])
		if needle == "" {
			return false
		}
		return strings.Contains(strings.ToLower(toText(value)), strings.ToLower(needle))
	}
	return false
}

func numericCompare(value, operand Scalar, cmp func(a, b float64) bool) bool {
	if value == nil {
		return false
	}
	a, okA := value.(float64)
	b, okB := toNumber(operand)
	return okA && okB && cmp(a, b)
}

// displayKey normalizes a value for duplicate detection: numbers and the
// text that renders them identically count as the same entry.
func displayKey(value Scalar) string {
	return toText(value)
}

// refreshFormats recomputes the sheet's style overlay from its rules and
// current materialized values. Runs after every recalculation so the
// overlay always reflects what the cells hold now.
func (s *Sheet) refreshFormats() {
	s.overlay = make(map[Address]Style)
	for i := range s.formats {
		rule := &s.formats[i]
		switch rule.Kind {
		case FormatDuplicate, FormatUnique:
			s.applyPopulationRule(rule)
		default:
			for _, addr := range rule.Range.Addresses() {
				if rule.matches(s.Value(addr)) {
					s.overlay[addr] = s.overlay[addr].merge(rule.Style)
				}
			}
		}
	}
}

// applyPopulationRule handles duplicate/unique, which compare each cell
// against the whole rule range. Empty cells never count.
func (s *Sheet) applyPopulationRule(rule *ConditionalFormat) {
	counts := make(map[string]int)
	for _, addr := range rule.Range.Addresses() {
		value := s.Value(addr)
		if value == nil || value == "" {
			continue
		}
		counts[displayKey(value)]++
	}
	for _, addr := range rule.Range.Addresses() {
		value := s.Value(addr)
		if value == nil || value == "" {
			continue
		}
		n := counts[displayKey(value)]
		if (rule.Kind == FormatDuplicate && n > 1) || (rule.Kind == FormatUnique && n == 1) {
			s.overlay[addr] = s.overlay[addr].merge(rule.Style)
		}
	}
}

// AddConditionalFormat appends a rule to the sheet. The overlay refreshes
// on the next recalculation.
func (s *Sheet) AddConditionalFormat(rule ConditionalFormat) {
	s.formats = append(s.formats, rule)
}

// ConditionalFormats returns the sheet's rules in declaration order.
func (s *Sheet) ConditionalFormats() []ConditionalFormat {
	return s.formats
}
