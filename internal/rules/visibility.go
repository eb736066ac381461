package rules

import (
	"strconv"
	"strings"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

// IsVisible reports whether e is shown for the current values. Elements
// without a condition are always visible.
func IsVisible(e form.Element, values form.Values) bool {
	return IsVisibleIn(e, values, "")
}

// IsVisibleIn evaluates e's condition with an optional repeating-group row
// scope (for example "findings[2]"). Inside a scope the condition's field is
// looked up as a sibling in the same row first, then as a top-level key.
func IsVisibleIn(e form.Element, values form.Values, scope string) bool {
	cond := e.Common().VisibleWhen
	if cond == nil {
		return true
	}
	return evaluate(cond, lookup(values, scope, cond.FieldID))
}

// VisibleElements filters a page down to its currently visible elements,
// preserving order.
func VisibleElements(page form.Page, values form.Values) []form.Element {
	return visibleIn(page.Elements, values, "")
}

func visibleIn(es form.Elements, values form.Values, scope string) []form.Element {
	out := make([]form.Element, 0, len(es))
	for _, e := range es {
		if IsVisibleIn(e, values, scope) {
			out = append(out, e)
		}
	}
	return out
}

func lookup(values form.Values, scope, fieldID string) string {
	if scope != "" {
		if v, ok := values[scope+"."+fieldID]; ok {
			return v
		}
	}
	return values.Get(fieldID)
}

func evaluate(cond *form.Condition, actual string) bool {
	switch cond.Operator {
	case form.OpEquals:
		return actual == cond.Value
	case form.OpNotEquals:
		return actual != cond.Value
	case form.OpGreaterThan:
		a, b, ok := parsePair(actual, cond.Value)
		return ok && a > b
	case form.OpLessThan:
		a, b, ok := parsePair(actual, cond.Value)
		return ok && a < b
	case form.OpContains:
		return strings.Contains(strings.ToLower(actual), strings.ToLower(cond.Value))
	case form.OpIsEmpty:
		return actual == ""
	case form.OpIsNotEmpty:
		return actual != ""
	}
	return false
}

// parsePair parses both operands as floats; any failure makes the
// comparison false rather than an error.
func parsePair(a, b string) (float64, float64, bool) {
	x, err := strconv.ParseFloat(strings.TrimSpace(a), 64)
	if err != nil {
		return 0, 0, false
	}
	y, err := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err != nil {
		return 0, 0, false
	}
	return x, y, true
}
