package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type fakeStore struct {
	docs map[string][]byte
	err  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]byte)}
}

func (s *fakeStore) Put(_ context.Context, eventType string, doc []byte) error {
	if s.err != nil {
		return s.err
	}
	s.docs[eventType] = doc
	return nil
}

func (s *fakeStore) Get(_ context.Context, eventType string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	doc, ok := s.docs[eventType]
	if !ok {
		return nil, errSchemaNotFound
	}
	return doc, nil
}

func (s *fakeStore) Delete(_ context.Context, eventType string) error {
	if s.err != nil {
		return s.err
	}
	delete(s.docs, eventType)
	return nil
}

func (s *fakeStore) List(_ context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	var eventTypes []string
	for eventType := range s.docs {
		eventTypes = append(eventTypes, eventType)
	}
	return eventTypes, nil
}

func newTestAPI(store schemaStore) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newRegistryAPI(logger, store, nil, "event_logs")
	mux := http.NewServeMux()
	api.register(mux)
	return mux
}

func do(t *testing.T, mux *http.ServeMux, method, path, body, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	code, _ := resp["error"].(string)
	return code
}

func TestPutSchema_StoresCompactJSON(t *testing.T) {
	store := newFakeStore()
	mux := newTestAPI(store)

	rr := do(t, mux, http.MethodPut, "/schemas/signup", `{
		"required": ["user_id"],
		"fields": {"user_id": {"type": "string"}}
	}`, "application/json")

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rr.Code, rr.Body.String())
	}
	stored, ok := store.docs["signup"]
	if !ok {
		t.Fatalf("schema not stored")
	}
	want := `{"required":["user_id"],"fields":{"user_id":{"type":"string"}}}`
	if string(stored) != want {
		t.Fatalf("stored=%s, want %s", stored, want)
	}
}

func TestPutSchema_AcceptsYAML(t *testing.T) {
	store := newFakeStore()
	mux := newTestAPI(store)

	rr := do(t, mux, http.MethodPut, "/schemas/signup", `
required:
  - user_id
fields:
  user_id:
    type: string
`, "application/yaml")

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200: %s", rr.Code, rr.Body.String())
	}
	if _, err := json.Marshal(json.RawMessage(store.docs["signup"])); err != nil {
		t.Fatalf("stored document is not JSON: %v", err)
	}
}

func TestPutSchema_RejectsInvalidDocument(t *testing.T) {
	store := newFakeStore()
	mux := newTestAPI(store)

	cases := []struct {
		name        string
		body        string
		contentType string
		wantCode    string
	}{
		{name: "unknown type", body: `{"fields": {"a": {"type": "decimal"}}}`, contentType: "application/json", wantCode: "invalid_schema"},
		{name: "no fields", body: `{"required": ["a"]}`, contentType: "application/json", wantCode: "invalid_schema"},
		{name: "empty body", body: "", contentType: "application/json", wantCode: "document_required"},
		{name: "broken yaml", body: "fields: [unclosed", contentType: "text/yaml", wantCode: "invalid_yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(t, mux, http.MethodPut, "/schemas/signup", tc.body, tc.contentType)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status=%d, want 400", rr.Code)
			}
			if got := errorCode(t, rr); got != tc.wantCode {
				t.Fatalf("error=%q, want %q", got, tc.wantCode)
			}
		})
	}
	if len(store.docs) != 0 {
		t.Fatalf("rejected documents must not be stored")
	}
}

func TestPutSchema_RejectsBadEventType(t *testing.T) {
	mux := newTestAPI(newFakeStore())

	rr := do(t, mux, http.MethodPut, "/schemas/.hidden", `{"fields": {"a": {}}}`, "application/json")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	if got := errorCode(t, rr); got != "invalid_event_type" {
		t.Fatalf("error=%q", got)
	}
}

func TestGetSchema(t *testing.T) {
	store := newFakeStore()
	store.docs["signup"] = []byte(`{"fields":{"user_id":{"type":"string"}}}`)
	mux := newTestAPI(store)

	rr := do(t, mux, http.MethodGet, "/schemas/signup", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	if rr.Body.String() != string(store.docs["signup"]) {
		t.Fatalf("body=%s", rr.Body.String())
	}

	rr = do(t, mux, http.MethodGet, "/schemas/unknown", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d, want 404", rr.Code)
	}
	if got := errorCode(t, rr); got != "schema_not_found" {
		t.Fatalf("error=%q", got)
	}
}

func TestDeleteSchema(t *testing.T) {
	store := newFakeStore()
	store.docs["signup"] = []byte(`{}`)
	mux := newTestAPI(store)

	rr := do(t, mux, http.MethodDelete, "/schemas/signup", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	if _, ok := store.docs["signup"]; ok {
		t.Fatalf("schema should be removed")
	}

	rr = do(t, mux, http.MethodDelete, "/schemas/signup", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("delete of unknown type: status=%d, want 404", rr.Code)
	}
}

func TestListSchemas_Sorted(t *testing.T) {
	store := newFakeStore()
	store.docs["zulu"] = []byte(`{}`)
	store.docs["alpha"] = []byte(`{}`)
	mux := newTestAPI(store)

	rr := do(t, mux, http.MethodGet, "/schemas", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	var resp struct {
		Schemas []string `json:"schemas"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(resp.Schemas) != 2 || resp.Schemas[0] != "alpha" || resp.Schemas[1] != "zulu" {
		t.Fatalf("schemas=%v", resp.Schemas)
	}
}

func TestListSchemas_Empty(t *testing.T) {
	mux := newTestAPI(newFakeStore())

	rr := do(t, mux, http.MethodGet, "/schemas", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"schemas":[]`) {
		t.Fatalf("body=%s", rr.Body.String())
	}
}

func TestStoreFailureIs502(t *testing.T) {
	store := newFakeStore()
	store.err = errors.New("connection refused")
	mux := newTestAPI(store)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodPut, "/schemas/signup", `{"fields": {"a": {}}}`},
		{http.MethodGet, "/schemas/signup", ""},
		{http.MethodDelete, "/schemas/signup", ""},
		{http.MethodGet, "/schemas", ""},
	} {
		rr := do(t, mux, req.method, req.path, req.body, "application/json")
		if rr.Code != http.StatusBadGateway {
			t.Fatalf("%s %s: status=%d, want 502", req.method, req.path, rr.Code)
		}
		if got := errorCode(t, rr); got != "schema_store_unavailable" {
			t.Fatalf("%s %s: error=%q", req.method, req.path, got)
		}
	}
}

func TestListLogs_RejectsBadTimeFilters(t *testing.T) {
	mux := newTestAPI(newFakeStore())

	rr := do(t, mux, http.MethodGet, "/logs?start=yesterday", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	if got := errorCode(t, rr); got != "invalid_start" {
		t.Fatalf("error=%q", got)
	}

	rr = do(t, mux, http.MethodGet, "/logs?end=not-a-time", "", "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status=%d, want 400", rr.Code)
	}
	if got := errorCode(t, rr); got != "invalid_end" {
		t.Fatalf("error=%q", got)
	}
}

func TestServiceInfo(t *testing.T) {
	mux := newTestAPI(newFakeStore())

	rr := do(t, mux, http.MethodGet, "/", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rr.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if resp["service"] != "events-registry" {
		t.Fatalf("service=%v", resp["service"])
	}
}
