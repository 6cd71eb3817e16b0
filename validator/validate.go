package main

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"time"

	"github.com/sg-labs/events-validator-go/internal/platform/schemadoc"
)

const (
	statusValid   = "valid"
	statusInvalid = "invalid"
	statusMissing = "missing"
)

type FieldVerdict struct {
	Field  string `json:"field"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

type EventVerdict struct {
	EventType   string         `json:"event_type"`
	Status      string         `json:"status"`
	Fields      []FieldVerdict `json:"fields"`
	ValidatedAt time.Time      `json:"validated_at"`
}

// validateEvent compares one event against one schema document. Pure: no
// side effects, identical inputs give identical verdicts. Field verdict
// order follows the document's declaration order, never the event's key
// order. A malformed value is a verdict, not an error.
func validateEvent(eventType string, event map[string]any, doc schemadoc.Document, typeField string, now time.Time) EventVerdict {
	verdicts := make([]FieldVerdict, 0, len(doc.Fields))

	for _, spec := range doc.Fields {
		value, present := event[spec.Name]
		if !present {
			if spec.Required {
				verdicts = append(verdicts, FieldVerdict{
					Field:  spec.Name,
					Status: statusMissing,
					Reason: "required field absent",
				})
				continue
			}
			verdicts = append(verdicts, FieldVerdict{Field: spec.Name, Status: statusValid})
			continue
		}

		if reason := checkValue(spec, value); reason != "" {
			verdicts = append(verdicts, FieldVerdict{
				Field:  spec.Name,
				Status: statusInvalid,
				Reason: reason,
			})
			continue
		}
		verdicts = append(verdicts, FieldVerdict{Field: spec.Name, Status: statusValid})
	}

	if !doc.AdditionalFields {
		declared := doc.FieldNames()
		extras := make([]string, 0, len(event))
		for name := range event {
			if name == typeField {
				continue
			}
			if _, ok := declared[name]; ok {
				continue
			}
			extras = append(extras, name)
		}
		sort.Strings(extras)
		for _, name := range extras {
			verdicts = append(verdicts, FieldVerdict{
				Field:  name,
				Status: statusInvalid,
				Reason: "field not declared in schema",
			})
		}
	}

	overall := statusValid
	for _, v := range verdicts {
		if v.Status != statusValid {
			overall = statusInvalid
			break
		}
	}

	return EventVerdict{
		EventType:   eventType,
		Status:      overall,
		Fields:      verdicts,
		ValidatedAt: now.UTC(),
	}
}

func checkValue(spec schemadoc.FieldSpec, value any) string {
	if spec.Type != "" {
		if reason := checkType(spec.Type, value); reason != "" {
			return reason
		}
	}

	if len(spec.Enum) > 0 {
		found := false
		for _, allowed := range spec.Enum {
			if jsonEqual(value, allowed) {
				found = true
				break
			}
		}
		if !found {
			return "value not in allowed set"
		}
	}

	if spec.Pattern != "" {
		s, ok := value.(string)
		if !ok {
			return fmt.Sprintf("type mismatch: pattern requires string, got %s", jsonTypeName(value))
		}
		if !spec.MatchesPattern(s) {
			return fmt.Sprintf("value does not match pattern %s", spec.Pattern)
		}
	}

	if spec.Min != nil || spec.Max != nil {
		n, ok := value.(float64)
		if !ok {
			return fmt.Sprintf("type mismatch: range requires number, got %s", jsonTypeName(value))
		}
		if spec.Min != nil && n < *spec.Min {
			return fmt.Sprintf("value %v below minimum %v", n, *spec.Min)
		}
		if spec.Max != nil && n > *spec.Max {
			return fmt.Sprintf("value %v above maximum %v", n, *spec.Max)
		}
	}

	return ""
}

func checkType(expected string, value any) string {
	actual := jsonTypeName(value)
	switch expected {
	case schemadoc.TypeInteger:
		n, ok := value.(float64)
		if !ok {
			return fmt.Sprintf("type mismatch: expected integer, got %s", actual)
		}
		if n != math.Trunc(n) {
			return "type mismatch: expected integer, got fractional number"
		}
		return ""
	case actual:
		return ""
	default:
		return fmt.Sprintf("type mismatch: expected %s, got %s", expected, actual)
	}
}

// jsonTypeName names the JSON type of a value decoded by encoding/json
// into any.
func jsonTypeName(value any) string {
	switch value.(type) {
	case string:
		return schemadoc.TypeString
	case float64:
		return schemadoc.TypeNumber
	case bool:
		return schemadoc.TypeBoolean
	case []any:
		return schemadoc.TypeArray
	case map[string]any:
		return schemadoc.TypeObject
	case nil:
		return "null"
	default:
		return "unknown"
	}
}

// jsonEqual is exact equality over decoded JSON values. Both sides come
// from encoding/json, so numbers are float64 on both and DeepEqual is
// sufficient for the composite cases.
func jsonEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
