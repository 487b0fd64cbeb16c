package audit

import (
	"context"
	"log/slog"

	"github.com/growthbook/notify/event"
)

// EventLister is the read side of the event service.
type EventLister interface {
	ListForOrganization(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error)
	CountForOrganization(ctx context.Context, orgID string, opts event.ListOpts) (int64, error)
}

// Reader serves legacy audit-log queries from the event store.
type Reader struct {
	events  EventLister
	adapter *Adapter
}

// NewReader creates a Reader. A nil adapter means Default().
func NewReader(events EventLister, adapter *Adapter) *Reader {
	if adapter == nil {
		adapter = Default()
	}
	return &Reader{events: events, adapter: adapter}
}

// List returns one page of legacy records and the total match count.
func (r *Reader) List(ctx context.Context, orgID string, q LegacyQuery) ([]Record, int64, error) {
	opts := r.adapter.WrapLegacyQuery(q)

	evts, err := r.events.ListForOrganization(ctx, orgID, opts)
	if err != nil {
		return nil, 0, err
	}
	total, err := r.events.CountForOrganization(ctx, orgID, opts)
	if err != nil {
		return nil, 0, err
	}

	records := make([]Record, 0, len(evts))
	for _, evt := range evts {
		records = append(records, r.adapter.ToLegacyRecord(evt))
	}
	return records, total, nil
}

// LogHandler writes one structured audit line per dispatched event.
type LogHandler struct {
	adapter *Adapter
	logger  *slog.Logger
}

// NewLogHandler creates the audit logging handler.
func NewLogHandler(logger *slog.Logger) *LogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogHandler{adapter: Default(), logger: logger}
}

// Name identifies the handler in logs and metrics.
func (h *LogHandler) Name() string { return "audit" }

// Handle logs evt in legacy form.
func (h *LogHandler) Handle(ctx context.Context, evt *event.Event) error {
	rec := h.adapter.ToLegacyRecord(evt)
	h.logger.InfoContext(ctx, "audit",
		"event_id", rec.ID,
		"organization_id", rec.Organization,
		"audit_event", rec.Event,
		"entity_object", rec.Entity.Object,
		"entity_id", rec.Entity.ID,
		"user_type", string(rec.User.Kind),
	)
	return nil
}
