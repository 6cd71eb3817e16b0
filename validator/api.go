package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

type validatorAPI struct {
	logger   *slog.Logger
	resolver *schemaResolver
	sink     *logSink
	metrics  *validatorMetrics
	cfg      serviceConfig
}

func newValidatorAPI(logger *slog.Logger, resolver *schemaResolver, sink *logSink, metrics *validatorMetrics, cfg serviceConfig) *validatorAPI {
	return &validatorAPI{
		logger:   logger,
		resolver: resolver,
		sink:     sink,
		metrics:  metrics,
		cfg:      cfg,
	}
}

func (api *validatorAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/validate", api.handleValidate)
	// legacy alias kept for existing producers
	mux.HandleFunc("POST /eventsValidator", api.handleValidate)
	mux.HandleFunc("GET /{$}", api.handleServiceInfo)
}

// handleValidate is the orchestrator: extract the event type, resolve the
// schema, validate, shape log records, hand them to the sink, respond. The
// response never waits on log persistence. Both valid and invalid verdicts
// are 200s; only the error classes below map to 4xx/5xx.
func (api *validatorAPI) handleValidate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}

	var event map[string]any
	if err := json.Unmarshal(raw, &event); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_json")
		return
	}

	eventType, ok := event[api.cfg.EventTypeField].(string)
	eventType = strings.TrimSpace(eventType)
	if !ok || eventType == "" {
		api.writeError(w, r, http.StatusBadRequest, "event_type_required")
		return
	}

	doc, err := api.resolver.resolve(r.Context(), eventType)
	if err != nil {
		switch {
		case errors.Is(err, errSchemaNotFound):
			// Policy: an event type with no registered schema is rejected,
			// and nothing is logged for it.
			api.writeError(w, r, http.StatusNotFound, "schema_not_found")
		case errors.Is(err, errMalformedSchema):
			api.logger.Error("malformed schema document", "event_type", eventType, "error", err)
			api.writeError(w, r, http.StatusBadGateway, "malformed_schema")
		default:
			api.logger.Error("schema store unavailable", "event_type", eventType, "error", err)
			api.writeError(w, r, http.StatusBadGateway, "schema_store_unavailable")
		}
		return
	}

	verdict := validateEvent(eventType, event, doc, api.cfg.EventTypeField, time.Now().UTC())
	api.metrics.ValidationsTotal.WithLabelValues(verdict.Status).Inc()

	api.sink.submit(toLogRecords(verdict, raw, api.cfg.Granularity))

	api.writeJSON(w, http.StatusOK, verdict)
}

func (api *validatorAPI) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{
		"service": "events-validator",
		"endpoints": map[string]any{
			"health":   "GET /health",
			"validate": "POST /api/validate",
			"metrics":  "GET /metrics",
		},
	})
}

func (api *validatorAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *validatorAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}
