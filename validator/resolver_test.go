package main

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

type fakeSchemaStore struct {
	objects map[string][]byte
	err     error
	fetches int
}

func (s *fakeSchemaStore) Fetch(_ context.Context, key string) ([]byte, error) {
	s.fetches++
	if s.err != nil {
		return nil, s.err
	}
	data, ok := s.objects[key]
	if !ok {
		return nil, errSchemaNotFound
	}
	return data, nil
}

func testMetrics() *validatorMetrics {
	return newValidatorMetrics(prometheus.NewRegistry())
}

func TestResolve_CachesAfterFirstFetch(t *testing.T) {
	store := &fakeSchemaStore{objects: map[string][]byte{
		"signup.json": []byte(signupSchema),
	}}
	resolver := newSchemaResolver(store, newSchemaCache(), testMetrics())

	doc, err := resolver.resolve(context.Background(), "signup")
	if err != nil {
		t.Fatalf("resolve() err=%v", err)
	}
	if len(doc.Fields) != 1 || doc.Fields[0].Name != "user_id" {
		t.Fatalf("unexpected document: %+v", doc)
	}
	if store.fetches != 1 {
		t.Fatalf("fetches=%d, want 1", store.fetches)
	}

	if _, err := resolver.resolve(context.Background(), "signup"); err != nil {
		t.Fatalf("resolve() warm err=%v", err)
	}
	if store.fetches != 1 {
		t.Fatalf("warm resolve hit the store: fetches=%d", store.fetches)
	}
}

func TestResolve_NotFoundIsNotCached(t *testing.T) {
	store := &fakeSchemaStore{objects: map[string][]byte{}}
	resolver := newSchemaResolver(store, newSchemaCache(), testMetrics())

	if _, err := resolver.resolve(context.Background(), "signup"); !errors.Is(err, errSchemaNotFound) {
		t.Fatalf("err=%v, want errSchemaNotFound", err)
	}

	// schema uploaded later must be picked up
	store.objects["signup.json"] = []byte(signupSchema)
	if _, err := resolver.resolve(context.Background(), "signup"); err != nil {
		t.Fatalf("resolve() after upload err=%v", err)
	}
	if store.fetches != 2 {
		t.Fatalf("fetches=%d, want 2", store.fetches)
	}
}

func TestResolve_StoreFailure(t *testing.T) {
	store := &fakeSchemaStore{err: errors.New("connection refused")}
	resolver := newSchemaResolver(store, newSchemaCache(), testMetrics())

	_, err := resolver.resolve(context.Background(), "signup")
	if !errors.Is(err, errSchemaStoreUnavailable) {
		t.Fatalf("err=%v, want errSchemaStoreUnavailable", err)
	}
}

func TestResolve_MalformedSchemaIsNotCached(t *testing.T) {
	store := &fakeSchemaStore{objects: map[string][]byte{
		"signup.json": []byte(`{"fields": {"a": {"type": "decimal"}}}`),
	}}
	cache := newSchemaCache()
	resolver := newSchemaResolver(store, cache, testMetrics())

	_, err := resolver.resolve(context.Background(), "signup")
	if !errors.Is(err, errMalformedSchema) {
		t.Fatalf("err=%v, want errMalformedSchema", err)
	}
	if cache.size() != 0 {
		t.Fatalf("malformed document must not be cached")
	}

	// fixing the document in the store recovers without a restart
	store.objects["signup.json"] = []byte(signupSchema)
	if _, err := resolver.resolve(context.Background(), "signup"); err != nil {
		t.Fatalf("resolve() after fix err=%v", err)
	}
}
