package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/growthbook/notify/diff"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/taxonomy"
)

// ErrMissingOrganization is returned when an event has no organization.
var ErrMissingOrganization = errors.New("notify: organization id is required")

// CreateParams describes one event to record.
type CreateParams struct {
	OrganizationID string
	Resource       taxonomy.Resource
	Event          string

	// ObjectID is the id of the affected resource, if any.
	ObjectID string

	// Object is the current state of the resource. It must encode to a JSON
	// object.
	Object any

	// Previous is the state before an update. Only used by diff events.
	Previous any

	// Changes optionally classifies the keys of an update.
	Changes *Changes

	// Extra holds the additional data fields some event types carry.
	Extra map[string]any

	User            User
	Projects        []string
	Tags            []string
	Environments    []string
	ContainsSecrets bool
}

// Config configures a Service.
type Config struct {
	// APIVersion is stamped on every payload.
	APIVersion string

	// Notifier is told about every persisted event. Optional.
	Notifier Notifier

	Metrics *observability.Metrics
}

// Service validates, stamps and persists events.
type Service struct {
	store    Store
	registry *taxonomy.Registry
	config   Config
	logger   *slog.Logger
}

// NewService creates an event service.
func NewService(store Store, registry *taxonomy.Registry, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = taxonomy.Default()
	}
	return &Service{store: store, registry: registry, config: cfg, logger: logger}
}

// Create records an event. The payload is validated against the registry
// before anything is written; on any failure nothing is persisted and the
// error is logged and returned. A failure to notify after persisting is
// logged only.
func (svc *Service) Create(ctx context.Context, p CreateParams) (*Event, error) {
	evt, err := svc.create(ctx, p)
	if err != nil {
		svc.logger.ErrorContext(ctx, "create event failed",
			"resource", string(p.Resource),
			"event", p.Event,
			"organization_id", p.OrganizationID,
			"error", err,
		)
		return nil, err
	}

	if svc.config.Notifier != nil {
		if nerr := svc.config.Notifier.EventCreated(ctx, evt); nerr != nil {
			svc.logger.ErrorContext(ctx, "event created but dispatch not scheduled",
				"event_id", evt.ID.String(),
				"event", evt.EventName,
				"error", nerr,
			)
		}
	}
	return evt, nil
}

// Emit is Create for fire-and-forget callers: it never fails the caller.
// It returns the event, or nil if it was not recorded.
func (svc *Service) Emit(ctx context.Context, p CreateParams) *Event {
	evt, err := svc.Create(ctx, p)
	if err != nil {
		return nil
	}
	return evt
}

func (svc *Service) create(ctx context.Context, p CreateParams) (*Event, error) {
	if p.OrganizationID == "" {
		return nil, ErrMissingOrganization
	}
	entry, err := svc.registry.Lookup(p.Resource, p.Event)
	if err != nil {
		return nil, err
	}

	var previous any
	if entry.IsDiff {
		previous = p.Previous
	}
	result, err := diff.Compute(p.Object, previous)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", taxonomy.ErrSchemaValidation, err)
	}

	user := p.User
	if user.Kind == "" {
		user = SystemUser()
	}

	now := entity.Now()
	payload := Payload{
		Event:      entry.Name.String(),
		Object:     string(entry.Name.Resource),
		APIVersion: svc.config.APIVersion,
		Created:    now.UnixMilli(),
		Data: Data{
			Object: result.Object,
			Extra:  p.Extra,
		},
		User:            user,
		Projects:        orEmpty(p.Projects),
		Tags:            orEmpty(p.Tags),
		Environments:    orEmpty(p.Environments),
		ContainsSecrets: p.ContainsSecrets,
	}

	v, err := svc.registry.BuildPayloadValidator(p.Resource, p.Event, taxonomy.OnWrite)
	if err != nil {
		return nil, err
	}
	if err := v.Validate(payload); err != nil {
		return nil, err
	}

	if result.HasPrevious {
		payload.Data.PreviousAttributes = result.PreviousAttributes
		payload.Data.Changes = p.Changes
	}

	evt := &Event{
		ID:             id.NewEventID(),
		OrganizationID: p.OrganizationID,
		ObjectType:     string(entry.Name.Resource),
		ObjectID:       p.ObjectID,
		EventName:      entry.Name.String(),
		SchemaVersion:  SchemaVersion,
		DateCreated:    now,
		Data:           payload,
	}
	if err := svc.store.CreateEvent(ctx, evt); err != nil {
		return nil, fmt.Errorf("persist event: %w", err)
	}
	svc.config.Metrics.EventCreated()

	svc.logger.DebugContext(ctx, "event created",
		"event_id", evt.ID.String(),
		"event", evt.EventName,
		"organization_id", evt.OrganizationID,
	)
	return evt, nil
}

// Get returns an event by ID.
func (svc *Service) Get(ctx context.Context, evtID id.ID) (*Event, error) {
	return svc.store.GetEvent(ctx, evtID)
}

// GetForOrganization returns an event only if it belongs to orgID.
func (svc *Service) GetForOrganization(ctx context.Context, evtID id.ID, orgID string) (*Event, error) {
	evt, err := svc.store.GetEvent(ctx, evtID)
	if err != nil {
		return nil, err
	}
	if evt.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return evt, nil
}

// ListForOrganization returns one page of an organization's events.
func (svc *Service) ListForOrganization(ctx context.Context, orgID string, opts ListOpts) ([]*Event, error) {
	return svc.store.ListEvents(ctx, orgID, opts)
}

// CountForOrganization counts an organization's events matching opts.
func (svc *Service) CountForOrganization(ctx context.Context, orgID string, opts ListOpts) (int64, error) {
	return svc.store.CountEvents(ctx, orgID, opts)
}

// Verify re-validates a stored event in read mode.
func (svc *Service) Verify(evt *Event) error {
	return Verify(svc.registry, evt)
}

// Verify checks a stored event against the read-time schema of its type.
// An update recorded without a previous object carries no diff and is
// checked in its write-time shape.
func Verify(registry *taxonomy.Registry, evt *Event) error {
	name, err := taxonomy.ParseName(evt.EventName)
	if err != nil {
		return err
	}
	mode := taxonomy.OnRead
	if evt.Data.Data.PreviousAttributes == nil {
		mode = taxonomy.OnWrite
	}
	v, err := registry.BuildPayloadValidator(name.Resource, name.Event, mode)
	if err != nil {
		return err
	}
	return v.Validate(evt.Data)
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
