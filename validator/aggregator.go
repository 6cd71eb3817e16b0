package main

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	granularityEvent = "event"
	granularityField = "field"
)

type logRecord struct {
	LogID     string
	EventType string
	Field     string
	Status    string
	Reason    string
	RawEvent  json.RawMessage
	LoggedAt  time.Time
}

// toLogRecords shapes one event verdict into log records. Event
// granularity yields exactly one record carrying the raw payload; field
// granularity yields one record per field verdict, valid ones included,
// for full auditability. Every record from one verdict shares the
// verdict's event type and timestamp.
func toLogRecords(verdict EventVerdict, rawEvent json.RawMessage, granularity string) []logRecord {
	if granularity == granularityField {
		records := make([]logRecord, 0, len(verdict.Fields))
		for _, fv := range verdict.Fields {
			records = append(records, logRecord{
				LogID:     uuid.NewString(),
				EventType: verdict.EventType,
				Field:     fv.Field,
				Status:    fv.Status,
				Reason:    fv.Reason,
				LoggedAt:  verdict.ValidatedAt,
			})
		}
		return records
	}

	return []logRecord{{
		LogID:     uuid.NewString(),
		EventType: verdict.EventType,
		Status:    verdict.Status,
		RawEvent:  rawEvent,
		LoggedAt:  verdict.ValidatedAt,
	}}
}
