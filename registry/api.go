package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sg-labs/events-validator-go/internal/platform/schemadoc"
)

var eventTypePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type registryAPI struct {
	logger   *slog.Logger
	store    schemaStore
	db       *sql.DB
	logTable string
}

func newRegistryAPI(logger *slog.Logger, store schemaStore, db *sql.DB, logTable string) *registryAPI {
	return &registryAPI{
		logger:   logger,
		store:    store,
		db:       db,
		logTable: logTable,
	}
}

func (api *registryAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /schemas", api.handleListSchemas)
	mux.HandleFunc("PUT /schemas/{event_type}", api.handlePutSchema)
	mux.HandleFunc("GET /schemas/{event_type}", api.handleGetSchema)
	mux.HandleFunc("DELETE /schemas/{event_type}", api.handleDeleteSchema)
	mux.HandleFunc("GET /logs", api.handleListLogs)
	mux.HandleFunc("GET /{$}", api.handleServiceInfo)
}

// handlePutSchema validates and upserts one schema document. YAML
// uploads are converted to JSON before validation; what the bucket
// stores is always compact JSON with the author's field order intact.
func (api *registryAPI) handlePutSchema(w http.ResponseWriter, r *http.Request) {
	eventType, ok := api.eventTypeFromPath(w, r)
	if !ok {
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_body")
		return
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		api.writeError(w, r, http.StatusBadRequest, "document_required")
		return
	}

	if isYAMLContentType(r.Header.Get("Content-Type")) {
		raw, err = yamlToJSON(raw)
		if err != nil {
			api.logger.Info("schema upload rejected", "event_type", eventType, "error", err)
			api.writeError(w, r, http.StatusBadRequest, "invalid_yaml")
			return
		}
	}

	doc, err := schemadoc.Parse(raw)
	if err != nil {
		api.logger.Info("schema upload rejected", "event_type", eventType, "error", err)
		api.writeError(w, r, http.StatusBadRequest, "invalid_schema")
		return
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_schema")
		return
	}

	if err := api.store.Put(r.Context(), eventType, compact.Bytes()); err != nil {
		api.logger.Error("schema store write failed", "event_type", eventType, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "schema_store_unavailable")
		return
	}

	api.logger.Info("schema stored", "event_type", eventType, "fields", len(doc.Fields))
	api.writeJSON(w, http.StatusOK, map[string]any{
		"event_type": eventType,
		"fields":     len(doc.Fields),
	})
}

func (api *registryAPI) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	eventType, ok := api.eventTypeFromPath(w, r)
	if !ok {
		return
	}

	raw, err := api.store.Get(r.Context(), eventType)
	if err != nil {
		if errors.Is(err, errSchemaNotFound) {
			api.writeError(w, r, http.StatusNotFound, "schema_not_found")
			return
		}
		api.logger.Error("schema store read failed", "event_type", eventType, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "schema_store_unavailable")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}

func (api *registryAPI) handleDeleteSchema(w http.ResponseWriter, r *http.Request) {
	eventType, ok := api.eventTypeFromPath(w, r)
	if !ok {
		return
	}

	// existence check so a delete of an unknown type is a 404, not a
	// silent no-op
	if _, err := api.store.Get(r.Context(), eventType); err != nil {
		if errors.Is(err, errSchemaNotFound) {
			api.writeError(w, r, http.StatusNotFound, "schema_not_found")
			return
		}
		api.logger.Error("schema store read failed", "event_type", eventType, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "schema_store_unavailable")
		return
	}

	if err := api.store.Delete(r.Context(), eventType); err != nil {
		api.logger.Error("schema store delete failed", "event_type", eventType, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "schema_store_unavailable")
		return
	}

	api.logger.Info("schema deleted", "event_type", eventType)
	api.writeJSON(w, http.StatusOK, map[string]any{"deleted": eventType})
}

func (api *registryAPI) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	eventTypes, err := api.store.List(r.Context())
	if err != nil {
		api.logger.Error("schema store list failed", "error", err)
		api.writeError(w, r, http.StatusBadGateway, "schema_store_unavailable")
		return
	}
	sort.Strings(eventTypes)
	if eventTypes == nil {
		eventTypes = []string{}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{"schemas": eventTypes})
}

type logEntry struct {
	LogID     string          `json:"log_id"`
	EventType string          `json:"event_type"`
	Field     string          `json:"field,omitempty"`
	Status    string          `json:"status"`
	Reason    string          `json:"reason,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	LoggedAt  time.Time       `json:"logged_at"`
}

// handleListLogs reads the validation log table the validator writes
// into, newest first, with optional event type, status and time-window
// filters.
func (api *registryAPI) handleListLogs(w http.ResponseWriter, r *http.Request) {
	limit := clampInt(parseIntQuery(r, "limit", 100), 1, 500)

	eventType := strings.TrimSpace(r.URL.Query().Get("event_type"))
	status := strings.TrimSpace(r.URL.Query().Get("status"))

	start, ok := parseTimeQuery(w, r, api, "start")
	if !ok {
		return
	}
	end, ok := parseTimeQuery(w, r, api, "end")
	if !ok {
		return
	}

	where := make([]string, 0, 4)
	args := make([]any, 0, 5)

	if eventType != "" {
		args = append(args, eventType)
		where = append(where, "event_type = $"+strconv.Itoa(len(args)))
	}
	if status != "" {
		args = append(args, status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if !start.IsZero() {
		args = append(args, start)
		where = append(where, "logged_at >= $"+strconv.Itoa(len(args)))
	}
	if !end.IsZero() {
		args = append(args, end)
		where = append(where, "logged_at < $"+strconv.Itoa(len(args)))
	}

	args = append(args, limit)
	query := "SELECT log_id, event_type, field, status, reason, payload, logged_at FROM " +
		pgx.Identifier{api.logTable}.Sanitize()
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY logged_at DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := api.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		api.logger.Error("log query failed", "error", err)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}
	defer rows.Close()

	entries := make([]logEntry, 0, limit)
	for rows.Next() {
		var (
			entry   logEntry
			field   sql.NullString
			reason  sql.NullString
			payload []byte
		)
		if err := rows.Scan(&entry.LogID, &entry.EventType, &field, &entry.Status, &reason, &payload, &entry.LoggedAt); err != nil {
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		entry.Field = field.String
		entry.Reason = reason.String
		entry.Payload = json.RawMessage(payload)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{"logs": entries})
}

func (api *registryAPI) handleServiceInfo(w http.ResponseWriter, r *http.Request) {
	api.writeJSON(w, http.StatusOK, map[string]any{
		"service": "events-registry",
		"endpoints": map[string]any{
			"health":  "GET /health",
			"schemas": "GET /schemas",
			"logs":    "GET /logs",
		},
	})
}

func (api *registryAPI) eventTypeFromPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	eventType := strings.TrimSpace(r.PathValue("event_type"))
	if eventType == "" {
		api.writeError(w, r, http.StatusBadRequest, "event_type_required")
		return "", false
	}
	if !eventTypePattern.MatchString(eventType) {
		api.writeError(w, r, http.StatusBadRequest, "invalid_event_type")
		return "", false
	}
	return eventType, true
}

func (api *registryAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *registryAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": r.Header.Get("X-Request-Id"),
	})
}

func isYAMLContentType(value string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(value, ";", 2)[0]))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml", "text/x-yaml":
		return true
	}
	return false
}

func parseTimeQuery(w http.ResponseWriter, r *http.Request, api *registryAPI, key string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		api.writeError(w, r, http.StatusBadRequest, "invalid_"+key)
		return time.Time{}, false
	}
	return parsed, true
}

func parseIntQuery(r *http.Request, key string, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return parsed
}

func clampInt(v int, min int, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
