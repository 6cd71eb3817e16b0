// Package schemadoc is the shared model for per-event-type schema
// documents: the stored JSON format, its parser, and structural
// validation. Both the validator and the registry depend on it so an
// uploaded document is checked with exactly the rules enforced at
// validation time.
package schemadoc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

const (
	TypeString  = "string"
	TypeNumber  = "number"
	TypeInteger = "integer"
	TypeBoolean = "boolean"
	TypeArray   = "array"
	TypeObject  = "object"
)

// Document is the parsed schema for one event type. Field order follows
// the declaration order of the "fields" object in the stored document.
type Document struct {
	Required         []string
	AdditionalFields bool
	Fields           []FieldSpec
}

type FieldSpec struct {
	Name        string
	Type        string
	Required    bool
	Enum        []any
	Pattern     string
	Min         *float64
	Max         *float64
	Description string

	pattern *regexp.Regexp
}

// MatchesPattern reports whether the value satisfies the field's
// compiled pattern. Fields without a pattern match everything.
func (s FieldSpec) MatchesPattern(value string) bool {
	if s.pattern == nil {
		return true
	}
	return s.pattern.MatchString(value)
}

type fieldSpecWire struct {
	Type        string   `json:"type,omitempty"`
	Required    *bool    `json:"required,omitempty"`
	Enum        []any    `json:"enum,omitempty"`
	Pattern     string   `json:"pattern,omitempty"`
	Min         *float64 `json:"min,omitempty"`
	Max         *float64 `json:"max,omitempty"`
	Description string   `json:"description,omitempty"`
}

type documentWire struct {
	Required         []string        `json:"required,omitempty"`
	AdditionalFields *bool           `json:"additional_fields,omitempty"`
	Fields           json.RawMessage `json:"fields"`
}

func Parse(raw []byte) (Document, error) {
	var wire documentWire
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&wire); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return Document{}, errors.New("decode document: multiple JSON values")
	}

	fields, err := parseFieldSpecs(wire.Fields)
	if err != nil {
		return Document{}, err
	}

	doc := Document{
		Required:         wire.Required,
		AdditionalFields: true,
		Fields:           fields,
	}
	if wire.AdditionalFields != nil {
		doc.AdditionalFields = *wire.AdditionalFields
	}

	doc.mergeRequired()
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// parseFieldSpecs walks the "fields" object token by token so that the
// document's declaration order survives into the slice. A plain map
// decode would lose it.
func parseFieldSpecs(raw json.RawMessage) ([]FieldSpec, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("fields is required")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.New("fields must be a JSON object")
	}

	var fields []FieldSpec
	for dec.More() {
		nameTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode fields: %w", err)
		}
		name, ok := nameTok.(string)
		if !ok {
			return nil, errors.New("fields keys must be strings")
		}

		var wire fieldSpecWire
		if err := dec.Decode(&wire); err != nil {
			return nil, fmt.Errorf("decode field %q: %w", name, err)
		}

		spec := FieldSpec{
			Name:        name,
			Type:        strings.ToLower(strings.TrimSpace(wire.Type)),
			Enum:        wire.Enum,
			Pattern:     wire.Pattern,
			Min:         wire.Min,
			Max:         wire.Max,
			Description: wire.Description,
		}
		if wire.Required != nil {
			spec.Required = *wire.Required
		}
		fields = append(fields, spec)
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}

	return fields, nil
}

// mergeRequired applies the top-level required list onto the field specs.
// A required name with no declared spec gets an implicit unconstrained one,
// appended after the declared fields.
func (d *Document) mergeRequired() {
	declared := make(map[string]int, len(d.Fields))
	for i, spec := range d.Fields {
		declared[spec.Name] = i
	}
	for _, name := range d.Required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if i, ok := declared[name]; ok {
			d.Fields[i].Required = true
			continue
		}
		declared[name] = len(d.Fields)
		d.Fields = append(d.Fields, FieldSpec{Name: name, Required: true})
	}
}

// Validate checks the document against the closed constraint-kind set and
// compiles patterns. Safe to call more than once.
func (d *Document) Validate() error {
	if len(d.Fields) == 0 {
		return errors.New("document declares no fields")
	}

	seen := make(map[string]struct{}, len(d.Fields))
	for i := range d.Fields {
		spec := &d.Fields[i]
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return fmt.Errorf("fields[%d]: name must be non-empty", i)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("field %q declared more than once", name)
		}
		seen[name] = struct{}{}

		switch spec.Type {
		case "", TypeString, TypeNumber, TypeInteger, TypeBoolean, TypeArray, TypeObject:
		default:
			return fmt.Errorf("field %q: unsupported type %q", name, spec.Type)
		}

		if spec.Pattern != "" {
			if spec.Type != "" && spec.Type != TypeString {
				return fmt.Errorf("field %q: pattern requires string type", name)
			}
			re, err := regexp.Compile(spec.Pattern)
			if err != nil {
				return fmt.Errorf("field %q: invalid pattern: %w", name, err)
			}
			spec.pattern = re
		}

		if spec.Min != nil || spec.Max != nil {
			if spec.Type != "" && spec.Type != TypeNumber && spec.Type != TypeInteger {
				return fmt.Errorf("field %q: min/max require a numeric type", name)
			}
			if spec.Min != nil && spec.Max != nil && *spec.Min > *spec.Max {
				return fmt.Errorf("field %q: min must be <= max", name)
			}
		}
	}
	return nil
}

// FieldNames is the declared field set, for membership checks.
func (d Document) FieldNames() map[string]struct{} {
	names := make(map[string]struct{}, len(d.Fields))
	for _, spec := range d.Fields {
		names[spec.Name] = struct{}{}
	}
	return names
}
