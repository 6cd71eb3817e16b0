package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/sg-labs/events-validator-go/internal/platform/schemadoc"
)

var (
	errSchemaNotFound         = errors.New("schema not found")
	errSchemaStoreUnavailable = errors.New("schema store unavailable")
	errMalformedSchema        = errors.New("malformed schema document")
)

type schemaStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type minioSchemaStore struct {
	client *minio.Client
	bucket string
}

func newMinioSchemaStore(client *minio.Client, bucket string) *minioSchemaStore {
	return &minioSchemaStore{client: client, bucket: bucket}
}

func (s *minioSchemaStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer func() { _ = obj.Close() }()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errSchemaNotFound
		}
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

type cacheEntry struct {
	doc       schemadoc.Document
	fetchedAt time.Time
}

// schemaCache maps event type to parsed document. Entries never expire;
// the set of event types is assumed small. Concurrent puts for the same
// key are idempotent last-write-wins overwrites of identical documents.
type schemaCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func newSchemaCache() *schemaCache {
	return &schemaCache{entries: make(map[string]cacheEntry)}
}

func (c *schemaCache) get(eventType string) (schemadoc.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[eventType]
	return entry.doc, ok
}

func (c *schemaCache) put(eventType string, doc schemadoc.Document, fetchedAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[eventType] = cacheEntry{doc: doc, fetchedAt: fetchedAt}
}

func (c *schemaCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

type schemaResolver struct {
	store   schemaStore
	cache   *schemaCache
	metrics *validatorMetrics
}

func newSchemaResolver(store schemaStore, cache *schemaCache, metrics *validatorMetrics) *schemaResolver {
	return &schemaResolver{store: store, cache: cache, metrics: metrics}
}

// resolve returns the schema document for an event type, cache-then-store.
// A store miss is not cached, so a schema uploaded later is picked up on
// the next attempt. Fetch failures and unparseable documents are not
// cached either.
func (r *schemaResolver) resolve(ctx context.Context, eventType string) (schemadoc.Document, error) {
	if doc, ok := r.cache.get(eventType); ok {
		r.metrics.SchemaCacheHits.Inc()
		return doc, nil
	}
	r.metrics.SchemaCacheMisses.Inc()

	raw, err := r.store.Fetch(ctx, eventType+".json")
	if err != nil {
		if errors.Is(err, errSchemaNotFound) {
			return schemadoc.Document{}, errSchemaNotFound
		}
		r.metrics.SchemaFetchErrors.Inc()
		return schemadoc.Document{}, fmt.Errorf("%w: %v", errSchemaStoreUnavailable, err)
	}

	doc, err := schemadoc.Parse(raw)
	if err != nil {
		return schemadoc.Document{}, fmt.Errorf("%w: %v", errMalformedSchema, err)
	}

	r.cache.put(eventType, doc, time.Now().UTC())
	r.metrics.SchemaCacheSize.Set(float64(r.cache.size()))
	return doc, nil
}
