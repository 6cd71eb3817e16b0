package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "events_validator"

type validatorMetrics struct {
	ValidationsTotal  *prometheus.CounterVec
	SchemaCacheHits   prometheus.Counter
	SchemaCacheMisses prometheus.Counter
	SchemaFetchErrors prometheus.Counter
	SchemaCacheSize   prometheus.Gauge
	LogRecordsWritten prometheus.Counter
	LogSinkFailures   prometheus.Counter
	LogBatchesDropped prometheus.Counter
}

func newValidatorMetrics(reg prometheus.Registerer) *validatorMetrics {
	factory := promauto.With(reg)
	return &validatorMetrics{
		ValidationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "validations_total",
			Help:      "Validated events by verdict status",
		}, []string{"status"}),
		SchemaCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "schema_cache_hits_total",
			Help:      "Schema resolutions served from cache",
		}),
		SchemaCacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "schema_cache_misses_total",
			Help:      "Schema resolutions that went to the object store",
		}),
		SchemaFetchErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "schema_fetch_errors_total",
			Help:      "Object store fetch failures (not-found excluded)",
		}),
		SchemaCacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "schema_cache_entries",
			Help:      "Cached schema documents",
		}),
		LogRecordsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "log_records_written_total",
			Help:      "Log records persisted to the sink table",
		}),
		LogSinkFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "log_sink_failures_total",
			Help:      "Failed log batch writes",
		}),
		LogBatchesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "log_batches_dropped_total",
			Help:      "Log batches dropped because the queue was full",
		}),
	}
}
