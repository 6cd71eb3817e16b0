package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sg-labs/events-validator-go/internal/platform/env"
)

type serviceConfig struct {
	EventTypeField string
	Granularity    string
	LogTable       string
	QueueSize      int
}

func serviceConfigFromEnv() (serviceConfig, error) {
	queueSize, err := env.Int("VALIDATOR_LOG_QUEUE_SIZE", 256)
	if err != nil {
		return serviceConfig{}, err
	}
	cfg := serviceConfig{
		EventTypeField: env.String("VALIDATOR_EVENT_TYPE_FIELD", "event_type"),
		Granularity:    strings.ToLower(strings.TrimSpace(env.String("VALIDATOR_LOG_GRANULARITY", granularityEvent))),
		LogTable:       env.String("VALIDATOR_LOG_TABLE", "event_logs"),
		QueueSize:      queueSize,
	}
	if err := cfg.Validate(); err != nil {
		return serviceConfig{}, err
	}
	return cfg, nil
}

func (c serviceConfig) Validate() error {
	if strings.TrimSpace(c.EventTypeField) == "" {
		return errors.New("VALIDATOR_EVENT_TYPE_FIELD is required")
	}
	switch c.Granularity {
	case granularityEvent, granularityField:
	default:
		return fmt.Errorf("VALIDATOR_LOG_GRANULARITY must be event or field (got %q)", c.Granularity)
	}
	if strings.TrimSpace(c.LogTable) == "" {
		return errors.New("VALIDATOR_LOG_TABLE is required")
	}
	if c.QueueSize < 1 {
		return errors.New("VALIDATOR_LOG_QUEUE_SIZE must be >= 1")
	}
	return nil
}
