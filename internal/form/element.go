package form

// Kind is the wire discriminant of an element variant.
type Kind string

const (
	KindText           Kind = "text"
	KindTextArea       Kind = "textarea"
	KindEmail          Kind = "email"
	KindPhone          Kind = "phone"
	KindNumber         Kind = "number"
	KindSlider         Kind = "slider"
	KindRating         Kind = "rating"
	KindDate           Kind = "date"
	KindTime           Kind = "time"
	KindCheckbox       Kind = "checkbox"
	KindRadio          Kind = "radio"
	KindDropdown       Kind = "dropdown"
	KindMultiSelect    Kind = "multi_select"
	KindRepeatingGroup Kind = "repeating_group"
	KindSectionHeader  Kind = "section_header"
)

// Element is one field or widget specification within a page. The set of
// implementations is closed: only the variant types in this file satisfy it.
type Element interface {
	Common() *Attrs
	Kind() Kind
	element()
}

// Attrs holds the fields shared by every element variant.
type Attrs struct {
	ID          string
	Label       string
	Required    bool
	VisibleWhen *Condition
}

func (a *Attrs) Common() *Attrs { return a }
func (a *Attrs) element()       {}

// DisplayName is the label used in messages; falls back to the id.
func (a *Attrs) DisplayName() string {
	if a.Label != "" {
		return a.Label
	}
	return a.ID
}

// Option is one choice of a radio group, dropdown or multi-select.
type Option struct {
	Value string `json:"value" yaml:"value"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

type TextField struct {
	Attrs
	Placeholder  string
	MinLength    *int
	MaxLength    *int
	Pattern      string
	ErrorMessage string
}

type TextArea struct {
	Attrs
	Rows         int
	MinLength    *int
	MaxLength    *int
	Pattern      string
	ErrorMessage string
}

type EmailField struct {
	Attrs
	Placeholder string
}

type PhoneField struct {
	Attrs
	Placeholder string
}

type NumberField struct {
	Attrs
	Min          *float64
	Max          *float64
	ErrorMessage string
}

type SliderField struct {
	Attrs
	Min  *float64
	Max  *float64
	Step *float64
}

type RatingField struct {
	Attrs
	MaxRating int
}

type DateField struct {
	Attrs
}

type TimeField struct {
	Attrs
}

type CheckboxField struct {
	Attrs
}

type RadioGroup struct {
	Attrs
	Options []Option
}

type Dropdown struct {
	Attrs
	Options []Option
}

// MultiSelect stores its selections as a comma-separated value.
type MultiSelect struct {
	Attrs
	Options       []Option
	MinSelections *int
	MaxSelections *int
	ErrorMessage  string
}

// RepeatingGroup nests child elements; each row's values are keyed with
// GroupKey(groupID, index, childID).
type RepeatingGroup struct {
	Attrs
	Children     Elements
	MinItems     *int
	MaxItems     *int
	ErrorMessage string
}

// SectionHeader is display-only and never carries a value.
type SectionHeader struct {
	Attrs
	Subtitle string
}

func (*TextField) Kind() Kind      { return KindText }
func (*TextArea) Kind() Kind       { return KindTextArea }
func (*EmailField) Kind() Kind     { return KindEmail }
func (*PhoneField) Kind() Kind     { return KindPhone }
func (*NumberField) Kind() Kind    { return KindNumber }
func (*SliderField) Kind() Kind    { return KindSlider }
func (*RatingField) Kind() Kind    { return KindRating }
func (*DateField) Kind() Kind      { return KindDate }
func (*TimeField) Kind() Kind      { return KindTime }
func (*CheckboxField) Kind() Kind  { return KindCheckbox }
func (*RadioGroup) Kind() Kind     { return KindRadio }
func (*Dropdown) Kind() Kind       { return KindDropdown }
func (*MultiSelect) Kind() Kind    { return KindMultiSelect }
func (*RepeatingGroup) Kind() Kind { return KindRepeatingGroup }
func (*SectionHeader) Kind() Kind  { return KindSectionHeader }

// HasValue reports whether the element contributes a key to Values.
func HasValue(e Element) bool {
	_, display := e.(*SectionHeader)
	return !display
}

// Int returns a pointer to n, for building constraint fields.
func Int(n int) *int { return &n }

// Float returns a pointer to f, for building constraint fields.
func Float(f float64) *float64 { return &f }
