package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

type logWriter interface {
	writeBatch(ctx context.Context, records []logRecord) error
}

type postgresLogWriter struct {
	db    *sql.DB
	table string
}

func newPostgresLogWriter(db *sql.DB, table string) *postgresLogWriter {
	return &postgresLogWriter{db: db, table: table}
}

// writeBatch inserts one batch in a single transaction: all-or-nothing
// per batch, the sink's contract.
func (w *postgresLogWriter) writeBatch(ctx context.Context, records []logRecord) error {
	if len(records) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(pgx.Identifier{w.table}.Sanitize())
	sb.WriteString(" (log_id, event_type, field, status, reason, payload, logged_at) VALUES ")

	args := make([]any, 0, len(records)*7)
	for i, rec := range records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := 0; j < 7; j++ {
			if j > 0 {
				sb.WriteString(",")
			}
			sb.WriteString("$")
			sb.WriteString(strconv.Itoa(i*7 + j + 1))
		}
		sb.WriteString(")")

		var payload any
		if len(rec.RawEvent) > 0 {
			payload = []byte(rec.RawEvent)
		}
		args = append(args,
			rec.LogID,
			rec.EventType,
			nullString(rec.Field),
			rec.Status,
			nullString(rec.Reason),
			payload,
			rec.LoggedAt.UTC(),
		)
	}

	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert %d log records: %w", len(records), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func nullString(value string) sql.NullString {
	if strings.TrimSpace(value) == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

// logSink decouples log persistence from the response path. Submit never
// blocks: when the queue is full the batch is dropped and counted. Writer
// failures are logged and counted, never retried, never surfaced to the
// caller.
type logSink struct {
	logger       *slog.Logger
	writer       logWriter
	metrics      *validatorMetrics
	queue        chan []logRecord
	done         chan struct{}
	writeTimeout time.Duration
}

func newLogSink(logger *slog.Logger, writer logWriter, metrics *validatorMetrics, queueSize int) *logSink {
	if queueSize < 1 {
		queueSize = 1
	}
	return &logSink{
		logger:       logger,
		writer:       writer,
		metrics:      metrics,
		queue:        make(chan []logRecord, queueSize),
		done:         make(chan struct{}),
		writeTimeout: 5 * time.Second,
	}
}

func (s *logSink) start() {
	go s.run()
}

func (s *logSink) run() {
	defer close(s.done)
	for batch := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
		err := s.writer.writeBatch(ctx, batch)
		cancel()
		if err != nil {
			s.metrics.LogSinkFailures.Inc()
			s.logger.Error("log sink write failed", "records", len(batch), "error", err)
			continue
		}
		s.metrics.LogRecordsWritten.Add(float64(len(batch)))
	}
}

func (s *logSink) submit(batch []logRecord) {
	if len(batch) == 0 {
		return
	}
	select {
	case s.queue <- batch:
	default:
		s.metrics.LogBatchesDropped.Inc()
		s.logger.Warn("log queue full, dropping batch", "records", len(batch))
	}
}

// close stops accepting batches and drains what is queued, bounded by
// the timeout.
func (s *logSink) close(timeout time.Duration) {
	close(s.queue)
	select {
	case <-s.done:
	case <-time.After(timeout):
		s.logger.Warn("log sink drain timed out")
	}
}
