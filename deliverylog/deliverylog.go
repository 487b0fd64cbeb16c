// Package deliverylog is the append-only history of webhook deliveries.
package deliverylog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/internal/entity"
)

// Listing limits.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Result is the outcome of one delivery attempt.
type Result string

// Results.
const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
)

// Entry records one delivery attempt. Entries are never updated.
type Entry struct {
	ID             id.ID     `json:"id"`
	WebhookID      id.ID     `json:"eventWebHookId"`
	OrganizationID string    `json:"organizationId"`
	EventID        id.ID     `json:"eventId"`
	DateCreated    time.Time `json:"dateCreated"`

	// ResponseCode is nil when no response was received.
	ResponseCode *int   `json:"responseCode,omitempty"`
	ResponseBody string `json:"responseBody,omitempty"`
	Result       Result `json:"result"`

	// Payload is the exact body that was sent.
	Payload json.RawMessage `json:"payload"`
}

// ListOpts pages a webhook's history.
type ListOpts struct {
	OrganizationID string
	Limit          int
	Offset         int
}

// Store persists delivery log entries.
type Store interface {
	// AppendDeliveryLog persists a new entry.
	AppendDeliveryLog(ctx context.Context, e *Entry) error

	// ListDeliveryLogs returns a webhook's entries, newest first.
	ListDeliveryLogs(ctx context.Context, webhookID id.ID, opts ListOpts) ([]*Entry, error)
}

// Service appends and reads delivery history.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a delivery log service.
func NewService(store Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger}
}

// Append stamps and persists e.
func (svc *Service) Append(ctx context.Context, e *Entry) error {
	if e.ID.IsNil() {
		e.ID = id.NewDeliveryLogID()
	}
	if e.DateCreated.IsZero() {
		e.DateCreated = entity.Now()
	}
	if err := svc.store.AppendDeliveryLog(ctx, e); err != nil {
		return fmt.Errorf("append delivery log: %w", err)
	}
	return nil
}

// ListForWebhook returns the most recent entries of an organization's
// webhook. limit <= 0 means DefaultLimit; it is capped at MaxLimit.
func (svc *Service) ListForWebhook(ctx context.Context, webhookID id.ID, orgID string, limit int) ([]*Entry, error) {
	return svc.store.ListDeliveryLogs(ctx, webhookID, ListOpts{
		OrganizationID: orgID,
		Limit:          ClampLimit(limit),
	})
}

// ClampLimit applies the listing defaults to a requested limit.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}
