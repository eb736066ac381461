package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/lofari/DynamicForms-sub000/internal/form"
)

// Errors maps a field key to its error message.
type Errors map[string]string

// Validate checks the visible elements of page against values. Hidden
// elements are skipped entirely, and each element reports at most one error.
func Validate(page form.Page, values form.Values) Errors {
	errs := Errors{}
	validateElements(page.Elements, values, "", errs)
	return errs
}

// ValidateAll validates every page and merges the results in page order.
func ValidateAll(pages []form.Page, values form.Values) Errors {
	errs := Errors{}
	for _, p := range pages {
		for k, msg := range Validate(p, values) {
			errs[k] = msg
		}
	}
	return errs
}

// FirstPageWithErrors returns the index of the first page holding a key of
// errs, or 0 when none does.
func FirstPageWithErrors(pages []form.Page, errs Errors) int {
	for i, p := range pages {
		for _, e := range p.Elements {
			for key := range errs {
				if form.BelongsTo(key, e.Common().ID) {
					return i
				}
			}
		}
	}
	return 0
}

func validateElements(es form.Elements, values form.Values, scope string, errs Errors) {
	for _, e := range visibleIn(es, values, scope) {
		key := e.Common().ID
		if scope != "" {
			key = scope + "." + key
		}
		if msg, ok := validateElement(e, key, values); !ok {
			errs[key] = msg
		}
		// Definition.Validate rejects nested groups, so rows only exist at the top level.
		if g, isGroup := e.(*form.RepeatingGroup); isGroup && scope == "" {
			for _, row := range form.GroupRows(values, g.ID) {
				validateElements(g.Children, values, fmt.Sprintf("%s[%d]", g.ID, row), errs)
			}
		}
	}
}

// validateElement returns the message of the first failing check.
func validateElement(e form.Element, key string, values form.Values) (string, bool) {
	a := e.Common()
	if !form.HasValue(e) {
		return "", true
	}

	value := values.Get(key)
	if g, ok := e.(*form.RepeatingGroup); ok {
		value = ""
		if n := form.GroupRowCount(values, g.ID); n > 0 {
			value = strconv.Itoa(n)
		}
	}

	if a.Required && strings.TrimSpace(value) == "" {
		return fmt.Sprintf("%s is required", a.DisplayName()), false
	}
	// Only a truly empty optional value skips the checks; whitespace is content.
	if value == "" {
		return "", true
	}

	switch el := e.(type) {
	case *form.TextField:
		return checkText(value, el.MinLength, el.MaxLength, el.Pattern, el.ErrorMessage)
	case *form.TextArea:
		return checkText(value, el.MinLength, el.MaxLength, el.Pattern, el.ErrorMessage)
	case *form.NumberField:
		return checkNumber(value, el.Min, el.Max, el.ErrorMessage)
	case *form.MultiSelect:
		return checkCount(countSelections(value), el.MinSelections, el.MaxSelections, el.ErrorMessage,
			"Select at least %d", "Select at most %d")
	case *form.RepeatingGroup:
		return checkCount(form.GroupRowCount(values, el.ID), el.MinItems, el.MaxItems, el.ErrorMessage,
			"Add at least %d items", "Add at most %d items")
	case *form.EmailField, *form.PhoneField, *form.SliderField, *form.RatingField, *form.DateField,
		*form.TimeField, *form.CheckboxField, *form.RadioGroup, *form.Dropdown, *form.SectionHeader:
		return "", true
	default:
		return "", true
	}
}

func checkText(value string, minLen, maxLen *int, pattern, custom string) (string, bool) {
	n := utf8.RuneCountInString(value)
	if minLen != nil && n < *minLen {
		return message(custom, "Minimum %d characters", *minLen), false
	}
	if maxLen != nil && n > *maxLen {
		return message(custom, "Maximum %d characters", *maxLen), false
	}
	if pattern != "" {
		re := compilePattern(pattern)
		if re != nil && !re.MatchString(value) {
			return message(custom, "Invalid format"), false
		}
	}
	return "", true
}

func checkNumber(value string, minV, maxV *float64, custom string) (string, bool) {
	num, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return message(custom, "Must be a number"), false
	}
	if minV != nil && num < *minV {
		return message(custom, "Must be at least %s", formatNumber(*minV)), false
	}
	if maxV != nil && num > *maxV {
		return message(custom, "Must be at most %s", formatNumber(*maxV)), false
	}
	return "", true
}

func checkCount(n int, minN, maxN *int, custom, minFmt, maxFmt string) (string, bool) {
	if minN != nil && n < *minN {
		return message(custom, minFmt, *minN), false
	}
	if maxN != nil && n > *maxN {
		return message(custom, maxFmt, *maxN), false
	}
	return "", true
}

func countSelections(value string) int {
	n := 0
	for _, part := range strings.Split(value, ",") {
		if strings.TrimSpace(part) != "" {
			n++
		}
	}
	return n
}

func message(custom, format string, args ...any) string {
	if custom != "" {
		return custom
	}
	return fmt.Sprintf(format, args...)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Compiled patterns are cached; unparseable patterns are cached as nil and
// impose no constraint.
var patternCache sync.Map

func compilePattern(pattern string) *regexp.Regexp {
	if cached, ok := patternCache.Load(pattern); ok {
		return cached.(*regexp.Regexp)
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		re = nil
	}
	patternCache.Store(pattern, re)
	return re
}
