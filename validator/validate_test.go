package main

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/sg-labs/events-validator-go/internal/platform/schemadoc"
)

var testNow = time.Unix(1700000000, 0).UTC()

func mustParse(t *testing.T, raw string) schemadoc.Document {
	t.Helper()
	doc, err := schemadoc.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("schemadoc.Parse() err=%v", err)
	}
	return doc
}

func decodeEvent(t *testing.T, raw string) map[string]any {
	t.Helper()
	var event map[string]any
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	return event
}

const signupSchema = `{"required": ["user_id"], "fields": {"user_id": {"type": "string"}}}`

func TestValidateEvent_RequiredStringPresent(t *testing.T) {
	doc := mustParse(t, signupSchema)
	event := decodeEvent(t, `{"event_type":"signup","user_id":"abc"}`)

	verdict := validateEvent("signup", event, doc, "event_type", testNow)

	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}
	if len(verdict.Fields) != 1 {
		t.Fatalf("fields=%d, want 1", len(verdict.Fields))
	}
	if verdict.Fields[0].Field != "user_id" || verdict.Fields[0].Status != statusValid {
		t.Fatalf("field verdict=%+v, want user_id valid", verdict.Fields[0])
	}
}

func TestValidateEvent_RequiredFieldAbsent(t *testing.T) {
	doc := mustParse(t, signupSchema)
	event := decodeEvent(t, `{"event_type":"signup"}`)

	verdict := validateEvent("signup", event, doc, "event_type", testNow)

	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
	if verdict.Fields[0].Status != statusMissing {
		t.Fatalf("field status=%q, want missing", verdict.Fields[0].Status)
	}
	if verdict.Fields[0].Reason == "" {
		t.Fatalf("missing verdict should carry a reason")
	}
}

func TestValidateEvent_TypeMismatch(t *testing.T) {
	doc := mustParse(t, signupSchema)
	event := decodeEvent(t, `{"event_type":"signup","user_id":42}`)

	verdict := validateEvent("signup", event, doc, "event_type", testNow)

	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
	fv := verdict.Fields[0]
	if fv.Status != statusInvalid {
		t.Fatalf("field status=%q, want invalid", fv.Status)
	}
	if fv.Reason != "type mismatch: expected string, got number" {
		t.Fatalf("Reason=%q", fv.Reason)
	}
}

func TestValidateEvent_OptionalAbsentIsValid(t *testing.T) {
	doc := mustParse(t, `{"fields": {"note": {"type": "string"}}}`)
	event := decodeEvent(t, `{"event_type":"signup"}`)

	verdict := validateEvent("signup", event, doc, "event_type", testNow)

	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}
	if verdict.Fields[0].Status != statusValid {
		t.Fatalf("optional absent field should be valid, got %+v", verdict.Fields[0])
	}
}

func TestValidateEvent_OrderFollowsSchemaNotInput(t *testing.T) {
	doc := mustParse(t, `{"fields": {
		"zulu": {"type": "string"},
		"alpha": {"type": "string"},
		"mike": {"type": "string"}
	}}`)
	event := decodeEvent(t, `{"alpha":"1","mike":"2","zulu":"3","event_type":"x"}`)

	verdict := validateEvent("x", event, doc, "event_type", testNow)

	want := []string{"zulu", "alpha", "mike"}
	for i, name := range want {
		if verdict.Fields[i].Field != name {
			t.Fatalf("Fields[%d].Field=%q, want %q", i, verdict.Fields[i].Field, name)
		}
	}
}

func TestValidateEvent_Deterministic(t *testing.T) {
	doc := mustParse(t, `{"required":["a"],"fields":{"a":{"type":"string"},"b":{"type":"number","min":1}}}`)
	event := decodeEvent(t, `{"event_type":"x","a":"v","b":0.5}`)

	first := validateEvent("x", event, doc, "event_type", testNow)
	second := validateEvent("x", event, doc, "event_type", testNow)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("verdicts differ:\n%+v\n%+v", first, second)
	}
}

func TestValidateEvent_EnumMembership(t *testing.T) {
	doc := mustParse(t, `{"fields": {"plan": {"type": "string", "enum": ["free", "pro"]}}}`)

	verdict := validateEvent("x", decodeEvent(t, `{"event_type":"x","plan":"pro"}`), doc, "event_type", testNow)
	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}

	verdict = validateEvent("x", decodeEvent(t, `{"event_type":"x","plan":"trial"}`), doc, "event_type", testNow)
	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
	if verdict.Fields[0].Reason != "value not in allowed set" {
		t.Fatalf("Reason=%q", verdict.Fields[0].Reason)
	}
}

func TestValidateEvent_NumericEnumExactEquality(t *testing.T) {
	doc := mustParse(t, `{"fields": {"version": {"type": "number", "enum": [1, 2]}}}`)

	verdict := validateEvent("x", decodeEvent(t, `{"event_type":"x","version":2}`), doc, "event_type", testNow)
	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}

	verdict = validateEvent("x", decodeEvent(t, `{"event_type":"x","version":2.5}`), doc, "event_type", testNow)
	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
}

func TestValidateEvent_PatternAndRange(t *testing.T) {
	doc := mustParse(t, `{"fields": {
		"code": {"type": "string", "pattern": "^[A-Z]{3}$"},
		"qty": {"type": "integer", "min": 1, "max": 10}
	}}`)

	verdict := validateEvent("x", decodeEvent(t, `{"event_type":"x","code":"ABC","qty":5}`), doc, "event_type", testNow)
	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}

	verdict = validateEvent("x", decodeEvent(t, `{"event_type":"x","code":"abc","qty":11}`), doc, "event_type", testNow)
	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
	if verdict.Fields[0].Status != statusInvalid || verdict.Fields[1].Status != statusInvalid {
		t.Fatalf("both fields should be invalid: %+v", verdict.Fields)
	}
}

func TestValidateEvent_IntegerRejectsFraction(t *testing.T) {
	doc := mustParse(t, `{"fields": {"count": {"type": "integer"}}}`)

	verdict := validateEvent("x", decodeEvent(t, `{"event_type":"x","count":3.5}`), doc, "event_type", testNow)
	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}

	verdict = validateEvent("x", decodeEvent(t, `{"event_type":"x","count":3}`), doc, "event_type", testNow)
	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}
}

func TestValidateEvent_AdditionalFieldsForbidden(t *testing.T) {
	doc := mustParse(t, `{"additional_fields": false, "fields": {"a": {"type": "string"}}}`)
	event := decodeEvent(t, `{"event_type":"x","a":"v","stray":1,"extra":true}`)

	verdict := validateEvent("x", event, doc, "event_type", testNow)

	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
	if len(verdict.Fields) != 3 {
		t.Fatalf("fields=%d, want 3", len(verdict.Fields))
	}
	// declared field first, extras sorted after it
	if verdict.Fields[1].Field != "extra" || verdict.Fields[2].Field != "stray" {
		t.Fatalf("extra fields out of order: %+v", verdict.Fields)
	}
	for _, fv := range verdict.Fields[1:] {
		if fv.Status != statusInvalid || fv.Reason != "field not declared in schema" {
			t.Fatalf("extra field verdict=%+v", fv)
		}
	}
}

func TestValidateEvent_DiscriminatorNeverAdditional(t *testing.T) {
	doc := mustParse(t, `{"additional_fields": false, "fields": {"a": {"type": "string"}}}`)
	event := decodeEvent(t, `{"event_type":"x","a":"v"}`)

	verdict := validateEvent("x", event, doc, "event_type", testNow)

	if verdict.Status != statusValid {
		t.Fatalf("Status=%q, want valid", verdict.Status)
	}
	if len(verdict.Fields) != 1 {
		t.Fatalf("fields=%d, want 1", len(verdict.Fields))
	}
}

func TestValidateEvent_NullValueIsTypeMismatch(t *testing.T) {
	doc := mustParse(t, signupSchema)
	event := decodeEvent(t, `{"event_type":"signup","user_id":null}`)

	verdict := validateEvent("signup", event, doc, "event_type", testNow)

	if verdict.Status != statusInvalid {
		t.Fatalf("Status=%q, want invalid", verdict.Status)
	}
	if verdict.Fields[0].Reason != "type mismatch: expected string, got null" {
		t.Fatalf("Reason=%q", verdict.Fields[0].Reason)
	}
}
