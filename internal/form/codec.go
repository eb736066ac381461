package form

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// elementWire is the flat wire shape shared by all variants; Type selects
// which of the remaining fields are meaningful.
type elementWire struct {
	Type          Kind          `json:"type" yaml:"type"`
	ID            string        `json:"id" yaml:"id"`
	Label         string        `json:"label,omitempty" yaml:"label,omitempty"`
	Required      bool          `json:"required,omitempty" yaml:"required,omitempty"`
	VisibleWhen   *Condition    `json:"visibleWhen,omitempty" yaml:"visibleWhen,omitempty"`
	Placeholder   string        `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	ErrorMessage  string        `json:"errorMessage,omitempty" yaml:"errorMessage,omitempty"`
	MinLength     *int          `json:"minLength,omitempty" yaml:"minLength,omitempty"`
	MaxLength     *int          `json:"maxLength,omitempty" yaml:"maxLength,omitempty"`
	Pattern       string        `json:"pattern,omitempty" yaml:"pattern,omitempty"`
	Rows          int           `json:"rows,omitempty" yaml:"rows,omitempty"`
	Min           *float64      `json:"min,omitempty" yaml:"min,omitempty"`
	Max           *float64      `json:"max,omitempty" yaml:"max,omitempty"`
	Step          *float64      `json:"step,omitempty" yaml:"step,omitempty"`
	MaxRating     int           `json:"maxRating,omitempty" yaml:"maxRating,omitempty"`
	Options       []Option      `json:"options,omitempty" yaml:"options,omitempty"`
	MinSelections *int          `json:"minSelections,omitempty" yaml:"minSelections,omitempty"`
	MaxSelections *int          `json:"maxSelections,omitempty" yaml:"maxSelections,omitempty"`
	MinItems      *int          `json:"minItems,omitempty" yaml:"minItems,omitempty"`
	MaxItems      *int          `json:"maxItems,omitempty" yaml:"maxItems,omitempty"`
	Children      []elementWire `json:"children,omitempty" yaml:"children,omitempty"`
	Subtitle      string        `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
}

// Elements is an ordered list of elements with tagged-union (de)serialization.
type Elements []Element

func (es Elements) MarshalJSON() ([]byte, error) {
	wires, err := toWires(es)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wires)
}

func (es *Elements) UnmarshalJSON(data []byte) error {
	var wires []elementWire
	if err := json.Unmarshal(data, &wires); err != nil {
		return err
	}
	out, err := fromWires(wires)
	if err != nil {
		return err
	}
	*es = out
	return nil
}

func (es Elements) MarshalYAML() (any, error) {
	return toWires(es)
}

func (es *Elements) UnmarshalYAML(node *yaml.Node) error {
	var wires []elementWire
	if err := node.Decode(&wires); err != nil {
		return err
	}
	out, err := fromWires(wires)
	if err != nil {
		return err
	}
	*es = out
	return nil
}

func toWires(es Elements) ([]elementWire, error) {
	wires := make([]elementWire, 0, len(es))
	for _, e := range es {
		w, err := toWire(e)
		if err != nil {
			return nil, err
		}
		wires = append(wires, w)
	}
	return wires, nil
}

func fromWires(wires []elementWire) (Elements, error) {
	out := make(Elements, 0, len(wires))
	for _, w := range wires {
		e, err := fromWire(w)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func toWire(e Element) (elementWire, error) {
	a := e.Common()
	w := elementWire{
		Type:        e.Kind(),
		ID:          a.ID,
		Label:       a.Label,
		Required:    a.Required,
		VisibleWhen: a.VisibleWhen,
	}
	switch el := e.(type) {
	case *TextField:
		w.Placeholder, w.MinLength, w.MaxLength, w.Pattern, w.ErrorMessage = el.Placeholder, el.MinLength, el.MaxLength, el.Pattern, el.ErrorMessage
	case *TextArea:
		w.Rows, w.MinLength, w.MaxLength, w.Pattern, w.ErrorMessage = el.Rows, el.MinLength, el.MaxLength, el.Pattern, el.ErrorMessage
	case *EmailField:
		w.Placeholder = el.Placeholder
	case *PhoneField:
		w.Placeholder = el.Placeholder
	case *NumberField:
		w.Min, w.Max, w.ErrorMessage = el.Min, el.Max, el.ErrorMessage
	case *SliderField:
		w.Min, w.Max, w.Step = el.Min, el.Max, el.Step
	case *RatingField:
		w.MaxRating = el.MaxRating
	case *DateField, *TimeField, *CheckboxField:
	case *RadioGroup:
		w.Options = el.Options
	case *Dropdown:
		w.Options = el.Options
	case *MultiSelect:
		w.Options, w.MinSelections, w.MaxSelections, w.ErrorMessage = el.Options, el.MinSelections, el.MaxSelections, el.ErrorMessage
	case *RepeatingGroup:
		children, err := toWires(el.Children)
		if err != nil {
			return w, err
		}
		w.Children, w.MinItems, w.MaxItems, w.ErrorMessage = children, el.MinItems, el.MaxItems, el.ErrorMessage
	case *SectionHeader:
		w.Subtitle = el.Subtitle
	default:
		return w, fmt.Errorf("element %s: unsupported variant %T", a.ID, e)
	}
	return w, nil
}

func fromWire(w elementWire) (Element, error) {
	if w.ID == "" {
		return nil, fmt.Errorf("element of type %q: id is required", w.Type)
	}
	if w.VisibleWhen != nil {
		if err := w.VisibleWhen.validate(); err != nil {
			return nil, fmt.Errorf("element %s: %w", w.ID, err)
		}
	}
	a := Attrs{ID: w.ID, Label: w.Label, Required: w.Required, VisibleWhen: w.VisibleWhen}

	switch w.Type {
	case KindText:
		return &TextField{Attrs: a, Placeholder: w.Placeholder, MinLength: w.MinLength, MaxLength: w.MaxLength, Pattern: w.Pattern, ErrorMessage: w.ErrorMessage}, nil
	case KindTextArea:
		return &TextArea{Attrs: a, Rows: w.Rows, MinLength: w.MinLength, MaxLength: w.MaxLength, Pattern: w.Pattern, ErrorMessage: w.ErrorMessage}, nil
	case KindEmail:
		return &EmailField{Attrs: a, Placeholder: w.Placeholder}, nil
	case KindPhone:
		return &PhoneField{Attrs: a, Placeholder: w.Placeholder}, nil
	case KindNumber:
		return &NumberField{Attrs: a, Min: w.Min, Max: w.Max, ErrorMessage: w.ErrorMessage}, nil
	case KindSlider:
		return &SliderField{Attrs: a, Min: w.Min, Max: w.Max, Step: w.Step}, nil
	case KindRating:
		return &RatingField{Attrs: a, MaxRating: w.MaxRating}, nil
	case KindDate:
		return &DateField{Attrs: a}, nil
	case KindTime:
		return &TimeField{Attrs: a}, nil
	case KindCheckbox:
		return &CheckboxField{Attrs: a}, nil
	case KindRadio:
		return &RadioGroup{Attrs: a, Options: w.Options}, nil
	case KindDropdown:
		return &Dropdown{Attrs: a, Options: w.Options}, nil
	case KindMultiSelect:
		return &MultiSelect{Attrs: a, Options: w.Options, MinSelections: w.MinSelections, MaxSelections: w.MaxSelections, ErrorMessage: w.ErrorMessage}, nil
	case KindRepeatingGroup:
		children, err := fromWires(w.Children)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", w.ID, err)
		}
		return &RepeatingGroup{Attrs: a, Children: children, MinItems: w.MinItems, MaxItems: w.MaxItems, ErrorMessage: w.ErrorMessage}, nil
	case KindSectionHeader:
		a.Required = false
		return &SectionHeader{Attrs: a, Subtitle: w.Subtitle}, nil
	default:
		return nil, fmt.Errorf("element %s: unknown type %q", w.ID, w.Type)
	}
}
