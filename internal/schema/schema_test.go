package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var stepShape = &Shape{Name: "step", Fields: []Field{
	{Name: "sub_query", Type: String, Required: true, NonEmpty: true},
	{Name: "rationale", Type: String, Required: true},
	{Name: "priority", Type: Integer, Min: Float(1), Max: Float(5)},
}}

var planShape = Shape{Name: "plan", Fields: []Field{
	{Name: "steps", Type: Array, Required: true, MinItems: 1, MaxItems: 2, Shape: stepShape},
	{Name: "focus_areas", Type: Array, Elem: String},
	{Name: "meta", Type: Object, Shape: &Shape{Fields: []Field{{Name: "score", Type: Number, Required: true}}}},
}}

func TestValidateAccepts(t *testing.T) {
	data := map[string]any{
		"steps": []any{
			map[string]any{"sub_query": "q1", "rationale": "r1", "priority": float64(2)},
		},
		"focus_areas": []any{"a", "b"},
	}
	assert.Empty(t, planShape.Validate(data))
}

func TestValidateReportsFieldPaths(t *testing.T) {
	data := map[string]any{
		"steps": []any{
			map[string]any{"sub_query": "", "priority": 2.5},
			map[string]any{"sub_query": "q2", "rationale": "r", "priority": float64(9)},
			"not an object",
		},
		"focus_areas": []any{"a", float64(3)},
		"meta":        map[string]any{},
	}
	vs := planShape.Validate(data)
	got := Strings(vs)

	assert.Contains(t, got, "steps: expected at most 2 items, got 3")
	assert.Contains(t, got, "steps[0].sub_query: must not be empty")
	assert.Contains(t, got, "steps[0].rationale: required field missing")
	assert.Contains(t, got, "steps[0].priority: expected integer, got 2.5")
	assert.Contains(t, got, "steps[1].priority: 9 is above maximum 5")
	assert.Contains(t, got, "steps[2]: expected object, got string")
	assert.Contains(t, got, "focus_areas[1]: expected string, got number")
	assert.Contains(t, got, "meta.score: required field missing")
}

func TestValidateMissingRequired(t *testing.T) {
	vs := planShape.Validate(map[string]any{})
	require.Len(t, vs, 1)
	assert.Equal(t, "steps", vs[0].Path)
}

func TestDecode(t *testing.T) {
	var out struct {
		Steps []struct {
			SubQuery string `json:"sub_query"`
		} `json:"steps"`
	}
	data := map[string]any{"steps": []any{map[string]any{"sub_query": "q"}}}
	require.NoError(t, Decode(data, &out))
	require.Len(t, out.Steps, 1)
	assert.Equal(t, "q", out.Steps[0].SubQuery)
}

func TestDescribeMentionsFieldsAndBounds(t *testing.T) {
	d := planShape.Describe()
	assert.Contains(t, d, `"sub_query": <string>`)
	assert.Contains(t, d, "max 2 items")
	assert.Contains(t, d, "between 1 and 5")
}
