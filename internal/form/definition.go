package form

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Page is an ordered sequence of elements.
type Page struct {
	Title    string   `json:"title,omitempty" yaml:"title,omitempty"`
	Elements Elements `json:"elements" yaml:"elements"`
}

// ExpressionRule is a server-side business rule evaluated against the
// submitted values. A true result means the submission is rejected.
type ExpressionRule struct {
	Expression string `json:"expression" yaml:"expression"`
	Message    string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Definition is the schema of one form. A fetched definition is never
// mutated; a refresh produces a new value.
type Definition struct {
	ID          string           `json:"id" yaml:"id"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Pages       []Page           `json:"pages" yaml:"pages"`
	Rules       []ExpressionRule `json:"rules,omitempty" yaml:"rules,omitempty"`
}

// Summary is the catalogue entry for a form.
type Summary struct {
	FormID      string `json:"formId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	PageCount   int    `json:"pageCount"`
	FieldCount  int    `json:"fieldCount"`
}

// Summary computes the catalogue entry for d.
func (d *Definition) Summary() Summary {
	fields := 0
	for _, e := range d.Flatten() {
		if HasValue(e) {
			fields++
		}
	}
	return Summary{
		FormID:      d.ID,
		Title:       d.Title,
		Description: d.Description,
		PageCount:   len(d.Pages),
		FieldCount:  fields,
	}
}

// Flatten returns every element of every page in definition order, with
// repeating-group children following their group.
func (d *Definition) Flatten() []Element {
	var out []Element
	for _, p := range d.Pages {
		out = appendFlat(out, p.Elements)
	}
	return out
}

func appendFlat(out []Element, es Elements) []Element {
	for _, e := range es {
		out = append(out, e)
		if g, ok := e.(*RepeatingGroup); ok {
			out = appendFlat(out, g.Children)
		}
	}
	return out
}

// DuplicateIDError lists element ids that occur more than once.
type DuplicateIDError struct {
	FormID string
	IDs    []string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("form %s: duplicate element ids: %s", e.FormID, strings.Join(e.IDs, ", "))
}

// CheckIDs rejects definitions whose flattened element set (including
// repeating-group children) reuses an id.
func (d *Definition) CheckIDs() error {
	seen := make(map[string]int)
	for _, e := range d.Flatten() {
		seen[e.Common().ID]++
	}
	var dups []string
	for id, n := range seen {
		if n > 1 {
			dups = append(dups, id)
		}
	}
	if len(dups) == 0 {
		return nil
	}
	sort.Strings(dups)
	return &DuplicateIDError{FormID: d.ID, IDs: dups}
}

// Validate checks the structural invariants of a definition.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("form definition: id is required")
	}
	if len(d.Pages) == 0 {
		return fmt.Errorf("form %s: at least one page is required", d.ID)
	}
	if err := d.checkNesting(); err != nil {
		return err
	}
	return d.CheckIDs()
}

// checkNesting rejects a repeating group placed inside another repeating
// group. Row keys have a single level (g[i].child).
func (d *Definition) checkNesting() error {
	for _, p := range d.Pages {
		for _, e := range p.Elements {
			g, ok := e.(*RepeatingGroup)
			if !ok {
				continue
			}
			for _, c := range g.Children {
				if _, nested := c.(*RepeatingGroup); nested {
					return fmt.Errorf("form %s: repeating group %s cannot contain repeating group %s", d.ID, g.ID, c.Common().ID)
				}
			}
		}
	}
	return nil
}

// Decode parses a JSON definition and validates it.
func Decode(data []byte) (*Definition, error) {
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}

// DecodeYAML parses a YAML definition and validates it.
func DecodeYAML(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode form definition: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
