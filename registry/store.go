package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
)

var errSchemaNotFound = errors.New("schema not found")

const schemaKeySuffix = ".json"

// schemaStore is the registry's view of the schema bucket: one JSON
// document per event type under "<event_type>.json".
type schemaStore interface {
	Put(ctx context.Context, eventType string, doc []byte) error
	Get(ctx context.Context, eventType string) ([]byte, error)
	Delete(ctx context.Context, eventType string) error
	List(ctx context.Context) ([]string, error)
}

type minioSchemaStore struct {
	client *minio.Client
	bucket string
}

func newMinioSchemaStore(client *minio.Client, bucket string) *minioSchemaStore {
	return &minioSchemaStore{client: client, bucket: bucket}
}

func (s *minioSchemaStore) Put(ctx context.Context, eventType string, doc []byte) error {
	_, err := s.client.PutObject(
		ctx,
		s.bucket,
		eventType+schemaKeySuffix,
		bytes.NewReader(doc),
		int64(len(doc)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)
	if err != nil {
		return fmt.Errorf("put schema %s: %w", eventType, err)
	}
	return nil
}

func (s *minioSchemaStore) Get(ctx context.Context, eventType string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, eventType+schemaKeySuffix, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get schema %s: %w", eventType, err)
	}
	defer func() { _ = obj.Close() }()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errSchemaNotFound
		}
		return nil, fmt.Errorf("read schema %s: %w", eventType, err)
	}
	return data, nil
}

func (s *minioSchemaStore) Delete(ctx context.Context, eventType string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, eventType+schemaKeySuffix, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete schema %s: %w", eventType, err)
	}
	return nil
}

func (s *minioSchemaStore) List(ctx context.Context) ([]string, error) {
	var eventTypes []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list schemas: %w", obj.Err)
		}
		if !strings.HasSuffix(obj.Key, schemaKeySuffix) {
			continue
		}
		eventTypes = append(eventTypes, strings.TrimSuffix(obj.Key, schemaKeySuffix))
	}
	return eventTypes, nil
}
