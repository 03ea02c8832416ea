// Package schema builds the JSON Schemas declared to the model for each tool and validates
// tool arguments against them before dispatch.
//
//	raw := schema.Object(map[string]*schema.Property{
//	    "sql":         schema.String("Read-only SQL with a LIMIT clause").MinLength(1),
//	    "description": schema.String("What the query is for"),
//	}, "sql")
//	compiled := schema.MustCompile(raw)
//
//	if err := compiled.Validate(args); err != nil {
//	    // err is a *schema.ValidationError
//	}
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema pairs the raw map (what the model sees) with its compiled validator.
type Schema struct {
	raw      map[string]any
	compiled *jsonschema.Schema
}

// Raw returns the map declared to the model.
func (s *Schema) Raw() map[string]any {
	if s == nil {
		return nil
	}
	return s.raw
}

// Validate checks args against the schema. A nil Schema accepts everything.
func (s *Schema) Validate(args map[string]any) error {
	if s == nil || s.compiled == nil {
		return nil
	}
	// The validator expects JSON-decoded values; a nil map is an empty object.
	var instance any = args
	if args == nil {
		instance = map[string]any{}
	}
	if err := s.compiled.Validate(instance); err != nil {
		return &ValidationError{Err: err}
	}
	return nil
}

// ValidationError is returned by Validate. Its message is a single line so it can be shown
// to the model as-is.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string {
	lines := strings.Split(strings.TrimSpace(e.Err.Error()), "\n")
	parts := make([]string, 0, len(lines))
	for _, l := range lines {
		l = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(l), "-"))
		if l == "" || strings.HasPrefix(l, "jsonschema validation failed") {
			continue
		}
		parts = append(parts, l)
	}
	if len(parts) == 0 {
		return "arguments do not match schema"
	}
	return "arguments do not match schema: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Compile compiles raw into a Schema. A nil raw compiles to a nil Schema.
func Compile(raw map[string]any) (*Schema, error) {
	if raw == nil {
		return nil, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("tool.json", doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	compiled, err := c.Compile("tool.json")
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Schema{raw: raw, compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error. Use it for schemas built at init time.
func MustCompile(raw map[string]any) *Schema {
	s, err := Compile(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// -----------------------------------------------------------------------------
// Builders
// -----------------------------------------------------------------------------

// Object creates an object schema. Names passed after properties are required. Extra
// properties are rejected so typos in argument names surface as validation errors.
func Object(properties map[string]*Property, required ...string) map[string]any {
	props := make(map[string]any, len(properties))
	for name, prop := range properties {
		props[name] = prop.build()
	}

	out := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		out["required"] = required
	}
	return out
}

// Property is one field of an object schema.
type Property struct {
	typ         string
	description string
	enum        []any
	minLength   *int
	maxLength   *int
	minimum     *float64
	maximum     *float64
	items       *Property
	def         any
}

func (p *Property) build() map[string]any {
	m := map[string]any{"type": p.typ}
	if p.description != "" {
		m["description"] = p.description
	}
	if len(p.enum) > 0 {
		m["enum"] = p.enum
	}
	if p.minLength != nil {
		m["minLength"] = *p.minLength
	}
	if p.maxLength != nil {
		m["maxLength"] = *p.maxLength
	}
	if p.minimum != nil {
		m["minimum"] = *p.minimum
	}
	if p.maximum != nil {
		m["maximum"] = *p.maximum
	}
	if p.items != nil {
		m["items"] = p.items.build()
	}
	if p.def != nil {
		m["default"] = p.def
	}
	return m
}

// String creates a string property.
func String(description string) *Property {
	return &Property{typ: "string", description: description}
}

// Integer creates an integer property.
func Integer(description string) *Property {
	return &Property{typ: "integer", description: description}
}

// Number creates a number property.
func Number(description string) *Property {
	return &Property{typ: "number", description: description}
}

// Array creates an array property whose elements match items.
//
//	schema.Array("Tables the analysis relied on", schema.String(""))
func Array(description string, items *Property) *Property {
	return &Property{typ: "array", description: description, items: items}
}

// Range bounds a number or integer property, inclusive on both ends.
func (p *Property) Range(minimum, maximum float64) *Property {
	p.minimum = &minimum
	p.maximum = &maximum
	return p
}

// Enum restricts the property to values.
//
//	schema.String("File format").Enum("csv", "json", "xlsx").Default("csv")
func (p *Property) Enum(values ...any) *Property {
	p.enum = values
	return p
}

// MinLength sets the minimum string length.
func (p *Property) MinLength(n int) *Property {
	p.minLength = &n
	return p
}

// MaxLength sets the maximum string length.
func (p *Property) MaxLength(n int) *Property {
	p.maxLength = &n
	return p
}

// Default documents the value used when the property is omitted.
func (p *Property) Default(value any) *Property {
	p.def = value
	return p
}
