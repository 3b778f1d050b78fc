package schema

import (
	"fmt"
	"strings"
)

// Describe renders the shape as an annotated JSON skeleton suitable for
// telling a model what to return.
func (s Shape) Describe() string {
	var b strings.Builder
	s.describe(&b, 0)
	return b.String()
}

func (s Shape) describe(b *strings.Builder, indent int) {
	pad := strings.Repeat("    ", indent)
	b.WriteString("{\n")
	for i, f := range s.Fields {
		fmt.Fprintf(b, "%s    %q: ", pad, f.Name)
		f.describeValue(b, indent+1)
		if i < len(s.Fields)-1 {
			b.WriteString(",")
		}
		if note := f.note(); note != "" {
			b.WriteString("  // " + note)
		}
		b.WriteString("\n")
	}
	b.WriteString(pad + "}")
}

func (f Field) describeValue(b *strings.Builder, indent int) {
	switch f.Type {
	case Object:
		if f.Shape != nil {
			f.Shape.describe(b, indent)
			return
		}
		b.WriteString("{}")
	case Array:
		b.WriteString("[")
		switch {
		case f.Shape != nil:
			f.Shape.describe(b, indent)
			b.WriteString(", ...")
		case f.Elem != "":
			fmt.Fprintf(b, "<%s>, ...", f.Elem)
		}
		b.WriteString("]")
	default:
		fmt.Fprintf(b, "<%s>", f.Type)
	}
}

func (f Field) note() string {
	var parts []string
	if f.Required {
		parts = append(parts, "required")
	} else {
		parts = append(parts, "optional")
	}
	if f.Min != nil && f.Max != nil {
		parts = append(parts, fmt.Sprintf("between %v and %v", *f.Min, *f.Max))
	} else if f.Min != nil {
		parts = append(parts, fmt.Sprintf("at least %v", *f.Min))
	} else if f.Max != nil {
		parts = append(parts, fmt.Sprintf("at most %v", *f.Max))
	}
	if f.MinItems > 0 {
		parts = append(parts, fmt.Sprintf("min %d items", f.MinItems))
	}
	if f.MaxItems > 0 {
		parts = append(parts, fmt.Sprintf("max %d items", f.MaxItems))
	}
	if f.Description != "" {
		parts = append(parts, f.Description)
	}
	return strings.Join(parts, ", ")
}
