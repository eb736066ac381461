package form

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const inspectionJSON = `{
  "id": "site-inspection",
  "title": "Site inspection",
  "pages": [
    {
      "title": "General",
      "elements": [
        {"type": "section_header", "id": "intro", "label": "General", "subtitle": "Basics"},
        {"type": "text", "id": "inspector", "label": "Inspector", "required": true, "minLength": 3, "maxLength": 40, "pattern": "[A-Za-z ]+"},
        {"type": "textarea", "id": "notes", "label": "Notes", "rows": 4},
        {"type": "email", "id": "email", "label": "Email"},
        {"type": "phone", "id": "phone", "label": "Phone"},
        {"type": "number", "id": "score", "label": "Score", "min": 0, "max": 10, "errorMessage": "Score must be 0-10"},
        {"type": "slider", "id": "confidence", "min": 0, "max": 100, "step": 5},
        {"type": "rating", "id": "stars", "maxRating": 5},
        {"type": "date", "id": "visited_on"},
        {"type": "time", "id": "visited_at"},
        {"type": "checkbox", "id": "hazard", "label": "Hazard found"}
      ]
    },
    {
      "title": "Details",
      "elements": [
        {"type": "radio", "id": "severity", "options": [{"value": "low"}, {"value": "high", "label": "High"}],
         "visibleWhen": {"fieldId": "hazard", "operator": "equals", "value": "true"}},
        {"type": "dropdown", "id": "zone", "options": [{"value": "a"}, {"value": "b"}]},
        {"type": "multi_select", "id": "tags", "options": [{"value": "x"}, {"value": "y"}], "minSelections": 1, "maxSelections": 2},
        {"type": "repeating_group", "id": "findings", "minItems": 1, "maxItems": 3, "children": [
          {"type": "text", "id": "finding", "required": true},
          {"type": "number", "id": "cost"}
        ]}
      ]
    }
  ],
  "rules": [{"expression": "values.score == '0'", "message": "Zero score needs review"}]
}`

func TestDecodeAllVariants(t *testing.T) {
	def, err := Decode([]byte(inspectionJSON))
	require.NoError(t, err)

	kinds := []Kind{}
	for _, e := range def.Flatten() {
		kinds = append(kinds, e.Kind())
	}
	want := []Kind{
		KindSectionHeader, KindText, KindTextArea, KindEmail, KindPhone, KindNumber, KindSlider,
		KindRating, KindDate, KindTime, KindCheckbox, KindRadio, KindDropdown, KindMultiSelect,
		KindRepeatingGroup, KindText, KindNumber,
	}
	if diff := cmp.Diff(want, kinds); diff != "" {
		t.Fatalf("kinds mismatch (-want +got):\n%s", diff)
	}

	text := def.Pages[0].Elements[1].(*TextField)
	assert.Equal(t, 3, *text.MinLength)
	assert.Equal(t, 40, *text.MaxLength)
	assert.True(t, text.Required)

	radio := def.Pages[1].Elements[0].(*RadioGroup)
	require.NotNil(t, radio.VisibleWhen)
	assert.Equal(t, OpEquals, radio.VisibleWhen.Operator)
	assert.Equal(t, "hazard", radio.VisibleWhen.FieldID)

	group := def.Pages[1].Elements[3].(*RepeatingGroup)
	assert.Len(t, group.Children, 2)
	assert.Equal(t, 3, *group.MaxItems)
}

func TestDefinitionJSONRoundTrip(t *testing.T) {
	def, err := Decode([]byte(inspectionJSON))
	require.NoError(t, err)

	data, err := json.Marshal(def)
	require.NoError(t, err)

	again, err := Decode(data)
	require.NoError(t, err)
	if diff := cmp.Diff(def, again); diff != "" {
		t.Fatalf("round trip mismatch (-first +second):\n%s", diff)
	}
}

func TestDecodeYAML(t *testing.T) {
	src := `
id: feedback
title: Feedback
pages:
  - title: One
    elements:
      - type: text
        id: name
        label: Name
        required: true
      - type: number
        id: age
        min: 18
        visibleWhen:
          fieldId: name
          operator: is_not_empty
`
	def, err := DecodeYAML([]byte(src))
	require.NoError(t, err)
	require.Len(t, def.Pages[0].Elements, 2)

	num, ok := def.Pages[0].Elements[1].(*NumberField)
	require.True(t, ok)
	assert.Equal(t, 18.0, *num.Min)
	assert.Equal(t, OpIsNotEmpty, num.VisibleWhen.Operator)
}

func TestDecodeRejectsUnknownType(t *testing.T) {
	_, err := Decode([]byte(`{"id":"f","pages":[{"elements":[{"type":"hologram","id":"x"}]}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown type")
}

func TestDecodeRejectsUnknownOperator(t *testing.T) {
	_, err := Decode([]byte(`{"id":"f","pages":[{"elements":[
		{"type":"text","id":"x","visibleWhen":{"fieldId":"y","operator":"roughly"}}]}]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown operator")
}

func TestCheckIDsIncludesGroupChildren(t *testing.T) {
	def := &Definition{
		ID: "dup",
		Pages: []Page{
			{Elements: Elements{&TextField{Attrs: Attrs{ID: "name"}}}},
			{Elements: Elements{&RepeatingGroup{
				Attrs:    Attrs{ID: "people"},
				Children: Elements{&TextField{Attrs: Attrs{ID: "name"}}},
			}}},
		},
	}

	err := def.CheckIDs()
	var dupErr *DuplicateIDError
	require.ErrorAs(t, err, &dupErr)
	assert.Equal(t, []string{"name"}, dupErr.IDs)

	_, err = Decode([]byte(`{"id":"f","pages":[{"elements":[{"type":"text","id":"a"},{"type":"email","id":"a"}]}]}`))
	require.ErrorAs(t, err, &dupErr)
}

func TestValidateRejectsNestedGroups(t *testing.T) {
	def := &Definition{
		ID: "nested",
		Pages: []Page{{Elements: Elements{&RepeatingGroup{
			Attrs: Attrs{ID: "rooms"},
			Children: Elements{&RepeatingGroup{
				Attrs:    Attrs{ID: "windows"},
				Children: Elements{&TextField{Attrs: Attrs{ID: "size"}}},
			}},
		}}}},
	}
	err := def.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot contain repeating group windows")

	_, err = Decode([]byte(`{"id":"f","pages":[{"elements":[{"type":"repeating_group","id":"g",
		"children":[{"type":"repeating_group","id":"h","children":[]}]}]}]}`))
	require.Error(t, err)
}

func TestSummaryCountsValueBearingElements(t *testing.T) {
	def, err := Decode([]byte(inspectionJSON))
	require.NoError(t, err)

	s := def.Summary()
	assert.Equal(t, "site-inspection", s.FormID)
	assert.Equal(t, 2, s.PageCount)
	// 17 flattened elements minus the section header
	assert.Equal(t, 16, s.FieldCount)
}

func TestGroupKeys(t *testing.T) {
	key := GroupKey("findings", 2, "cost")
	assert.Equal(t, "findings[2].cost", key)

	g, idx, child, ok := ParseGroupKey(key)
	require.True(t, ok)
	assert.Equal(t, "findings", g)
	assert.Equal(t, 2, idx)
	assert.Equal(t, "cost", child)

	for _, bad := range []string{"plain", "[0].x", "g[a].x", "g[0].", "g[0]x"} {
		_, _, _, ok := ParseGroupKey(bad)
		assert.False(t, ok, bad)
	}

	values := Values{
		"findings[0].finding": "crack",
		"findings[0].cost":    "10",
		"findings[3].finding": "leak",
		"other[1].x":          "y",
	}
	assert.Equal(t, []int{0, 3}, GroupRows(values, "findings"))
	assert.Equal(t, 2, GroupRowCount(values, "findings"))
	assert.True(t, BelongsTo("findings[3].finding", "findings"))
	assert.False(t, BelongsTo("findingsX", "findings"))
}

func TestValuesCloneIsIndependent(t *testing.T) {
	v := Values{"a": "1"}
	c := v.Clone()
	c["a"] = "2"
	assert.Equal(t, "1", v.Get("a"))
	assert.Equal(t, "", v.Get("missing"))
}
