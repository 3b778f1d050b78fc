// Package schema validates structured model output against a declared shape.
package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// Type is the JSON type expected for a field.
type Type string

const (
	String  Type = "string"
	Number  Type = "number"
	Integer Type = "integer"
	Bool    Type = "boolean"
	Array   Type = "array"
	Object  Type = "object"
)

// Field declares one member of a shape.
type Field struct {
	Name     string
	Type     Type
	Required bool

	// Numeric bounds, inclusive. Nil means unbounded.
	Min *float64
	Max *float64

	// NonEmpty rejects blank strings.
	NonEmpty bool

	// Array bounds. Zero means unbounded.
	MinItems int
	MaxItems int

	// Elem describes array elements. Shape describes nested objects and
	// object array elements.
	Elem  Type
	Shape *Shape

	Description string
}

// Shape is an ordered set of fields.
type Shape struct {
	Name   string
	Fields []Field
}

// Violation is a single field-level problem.
type Violation struct {
	Path    string
	Message string
}

func (v Violation) String() string {
	return v.Path + ": " + v.Message
}

// Float returns a pointer for use as a Field bound.
func Float(v float64) *float64 { return &v }

// Validate checks data against the shape and returns every violation found,
// ordered by path. An empty result means the data is acceptable.
func (s Shape) Validate(data map[string]any) []Violation {
	var out []Violation
	s.validate("", data, &out)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s Shape) validate(prefix string, data map[string]any, out *[]Violation) {
	for _, f := range s.Fields {
		path := join(prefix, f.Name)
		val, ok := data[f.Name]
		if !ok || val == nil {
			if f.Required {
				*out = append(*out, Violation{path, "required field missing"})
			}
			continue
		}
		f.check(path, val, out)
	}
}

func (f Field) check(path string, val any, out *[]Violation) {
	switch f.Type {
	case String:
		s, ok := val.(string)
		if !ok {
			*out = append(*out, Violation{path, fmt.Sprintf("expected string, got %s", typeName(val))})
			return
		}
		if f.NonEmpty && strings.TrimSpace(s) == "" {
			*out = append(*out, Violation{path, "must not be empty"})
		}
	case Number, Integer:
		n, ok := val.(float64)
		if !ok {
			*out = append(*out, Violation{path, fmt.Sprintf("expected %s, got %s", f.Type, typeName(val))})
			return
		}
		if f.Type == Integer && n != math.Trunc(n) {
			*out = append(*out, Violation{path, fmt.Sprintf("expected integer, got %v", n)})
		}
		if f.Min != nil && n < *f.Min {
			*out = append(*out, Violation{path, fmt.Sprintf("%v is below minimum %v", n, *f.Min)})
		}
		if f.Max != nil && n > *f.Max {
			*out = append(*out, Violation{path, fmt.Sprintf("%v is above maximum %v", n, *f.Max)})
		}
	case Bool:
		if _, ok := val.(bool); !ok {
			*out = append(*out, Violation{path, fmt.Sprintf("expected boolean, got %s", typeName(val))})
		}
	case Array:
		items, ok := val.([]any)
		if !ok {
			*out = append(*out, Violation{path, fmt.Sprintf("expected array, got %s", typeName(val))})
			return
		}
		if f.MinItems > 0 && len(items) < f.MinItems {
			*out = append(*out, Violation{path, fmt.Sprintf("expected at least %d items, got %d", f.MinItems, len(items))})
		}
		if f.MaxItems > 0 && len(items) > f.MaxItems {
			*out = append(*out, Violation{path, fmt.Sprintf("expected at most %d items, got %d", f.MaxItems, len(items))})
		}
		for i, item := range items {
			elemPath := fmt.Sprintf("%s[%d]", path, i)
			if f.Shape != nil {
				Field{Type: Object, Shape: f.Shape}.check(elemPath, item, out)
			} else if f.Elem != "" {
				Field{Type: f.Elem, NonEmpty: f.NonEmpty}.check(elemPath, item, out)
			}
		}
	case Object:
		obj, ok := val.(map[string]any)
		if !ok {
			*out = append(*out, Violation{path, fmt.Sprintf("expected object, got %s", typeName(val))})
			return
		}
		if f.Shape != nil {
			f.Shape.validate(path, obj, out)
		}
	}
}

// Decode converts validated data into a typed value via its JSON tags.
func Decode(data map[string]any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encoding validated output: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decoding validated output: %w", err)
	}
	return nil
}

// Strings renders violations for inclusion in a repair prompt.
func Strings(vs []Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.String()
	}
	return out
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

func typeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%T", v)
	}
}
