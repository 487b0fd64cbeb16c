// Package api provides the HTTP API for webhook subscriptions, their
// delivery logs, the event stream and the legacy audit read path.
//
// Every route requires the caller's organization in the X-Organization-ID
// header. Authentication is left to the embedding application.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/growthbook/notify/audit"
	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/scope"
	"github.com/growthbook/notify/webhook"
)

// Request headers read by the API.
const (
	HeaderOrganization = "X-Organization-ID"
	HeaderUserID       = "X-User-ID"
	HeaderUserEmail    = "X-User-Email"
	HeaderUserName     = "X-User-Name"
)

// Handler is the root HTTP handler for the notify API.
type Handler struct {
	webhooks *webhook.Service
	events   *event.Service
	logs     *deliverylog.Service
	audit    *audit.Reader
	logger   *slog.Logger
	mux      *http.ServeMux
}

// NewHandler creates a new API handler.
func NewHandler(
	webhooks *webhook.Service,
	events *event.Service,
	logs *deliverylog.Service,
	reader *audit.Reader,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if reader == nil {
		reader = audit.NewReader(events, nil)
	}

	h := &Handler{
		webhooks: webhooks,
		events:   events,
		logs:     logs,
		audit:    reader,
		logger:   logger,
		mux:      http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	// Webhook subscriptions
	h.mux.HandleFunc("GET /event-webhooks", h.listWebhooks)
	h.mux.HandleFunc("POST /event-webhooks", h.createWebhook)
	h.mux.HandleFunc("POST /event-webhooks/test", h.testWebhook)
	h.mux.HandleFunc("GET /event-webhooks/logs/{id}", h.listDeliveryLogs)
	h.mux.HandleFunc("GET /event-webhooks/{id}", h.getWebhook)
	h.mux.HandleFunc("PUT /event-webhooks/{id}", h.updateWebhook)
	h.mux.HandleFunc("DELETE /event-webhooks/{id}", h.deleteWebhook)
	h.mux.HandleFunc("POST /event-webhooks/{id}/rotate-key", h.rotateKey)

	// Events
	h.mux.HandleFunc("GET /events", h.listEvents)
	h.mux.HandleFunc("GET /events/{id}", h.getEvent)

	// Legacy audit log
	h.mux.HandleFunc("GET /audit", h.listAudit)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(requireOrganization(next)))
}

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.InfoContext(r.Context(), "api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// requireOrganization rejects requests without an organization and puts
// it in the request context otherwise.
func requireOrganization(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		orgID := r.Header.Get(HeaderOrganization)
		if orgID == "" {
			writeError(w, http.StatusUnauthorized, "organization is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(scope.WithOrganization(r.Context(), orgID)))
	})
}

// organization returns the caller's organization. requireOrganization
// guarantees it is set.
func organization(r *http.Request) string {
	orgID, _ := scope.Organization(r.Context())
	return orgID
}

// caller is the user recorded on events created through the API.
func caller(r *http.Request) event.User {
	userID := r.Header.Get(HeaderUserID)
	if userID == "" {
		return event.SystemUser()
	}
	return event.DashboardUser(userID, r.Header.Get(HeaderUserEmail), r.Header.Get(HeaderUserName))
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// queryParam returns a query parameter value, or empty string if not present.
func queryParam(r *http.Request, key string) string {
	return r.URL.Query().Get(key)
}

// queryInt returns a non-negative query parameter as int or a default
// value. Malformed and out-of-range values fall back to the default.
func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// queryTime parses an RFC 3339 query parameter. A missing parameter is nil.
func queryTime(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
