package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/signature"
)

// EventNameValidator checks that every name is a known event type.
// *taxonomy.Registry implements it.
type EventNameValidator interface {
	ValidateEventNames(names []string) error
}

// Service provides subscription management operations.
type Service struct {
	store  Store
	events EventNameValidator
	logger *slog.Logger
}

// NewService creates a new subscription service.
func NewService(store Store, events EventNameValidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		events: events,
		logger: logger,
	}
}

// Create registers a new subscription with a fresh signing key.
func (svc *Service) Create(ctx context.Context, orgID string, in Input) (*Subscription, error) {
	if orgID == "" {
		return nil, &ValidationError{Field: "organizationId", Message: "required"}
	}

	sub := &Subscription{
		Entity:         entity.New(),
		ID:             id.NewWebhookID(),
		OrganizationID: orgID,
		Name:           strings.TrimSpace(in.Name),
		URL:            in.URL,
		Method:         in.Method,
		PayloadType:    in.PayloadType,
		Headers:        in.Headers,
		Events:         in.Events,
		Projects:       in.Projects,
		Tags:           in.Tags,
		Environments:   in.Environments,
		Enabled:        in.Enabled,
		SigningKey:     signature.GenerateKey(),
		LastState:      StateNone,
	}
	sub.ApplyDefaults()

	if err := svc.validate(sub); err != nil {
		return nil, err
	}
	if err := svc.store.CreateWebhook(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "webhook created",
		"webhook_id", sub.ID.String(),
		"organization_id", orgID,
		"events", sub.Events,
	)
	return sub, nil
}

// Get returns a subscription by ID regardless of organization.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetWebhook(ctx, subID)
}

// GetByID returns an organization's subscription, or ErrNotFound.
func (svc *Service) GetByID(ctx context.Context, subID id.ID, orgID string) (*Subscription, error) {
	sub, err := svc.store.GetWebhook(ctx, subID)
	if err != nil {
		return nil, err
	}
	if sub.OrganizationID != orgID {
		return nil, ErrNotFound
	}
	return sub, nil
}

// Update merges p into the subscription. It reports false, with no error,
// when the subscription does not exist or nothing changed.
func (svc *Service) Update(ctx context.Context, subID id.ID, orgID string, p Patch) (bool, error) {
	sub, err := svc.GetByID(ctx, subID, orgID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	updated := *sub
	p.apply(&updated)
	updated.Name = strings.TrimSpace(updated.Name)
	if err := svc.validate(&updated); err != nil {
		return false, err
	}
	if cmp.Equal(settingsOf(sub), settingsOf(&updated), cmpopts.EquateEmpty()) {
		return false, nil
	}

	updated.Touch()
	if err := svc.store.UpdateWebhook(ctx, &updated); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Delete removes an organization's subscription. It reports false when
// there was nothing to delete.
func (svc *Service) Delete(ctx context.Context, subID id.ID, orgID string) (bool, error) {
	err := svc.store.DeleteWebhook(ctx, subID, orgID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListForOrganization returns every subscription of an organization.
func (svc *Service) ListForOrganization(ctx context.Context, orgID string) ([]*Subscription, error) {
	return svc.store.ListWebhooks(ctx, orgID)
}

// ListMatchingEvent returns the organization's subscriptions that Match o.
func (svc *Service) ListMatchingEvent(ctx context.Context, orgID string, o MatchOpts) ([]*Subscription, error) {
	candidates, err := svc.store.ListWebhooksForEvent(ctx, orgID, o.EventName)
	if err != nil {
		return nil, err
	}
	result := make([]*Subscription, 0, len(candidates))
	for _, sub := range candidates {
		if Match(sub, o) {
			result = append(result, sub)
		}
	}
	return result, nil
}

// RecordDeliveryStatus stores the outcome of a delivery. It never fails the
// caller: store errors are logged.
func (svc *Service) RecordDeliveryStatus(ctx context.Context, subID id.ID, status Status) {
	if err := svc.store.SetDeliveryStatus(ctx, subID, status, entity.Now()); err != nil {
		svc.logger.WarnContext(ctx, "record webhook delivery status failed",
			"webhook_id", subID.String(),
			"state", string(status.State),
			"error", err,
		)
	}
}

// RotateSigningKey replaces the subscription's signing key and returns the
// new one.
func (svc *Service) RotateSigningKey(ctx context.Context, subID id.ID, orgID string) (string, error) {
	sub, err := svc.GetByID(ctx, subID, orgID)
	if err != nil {
		return "", err
	}

	updated := *sub
	updated.SigningKey = signature.GenerateKey()
	updated.Touch()
	if err := svc.store.UpdateWebhook(ctx, &updated); err != nil {
		return "", err
	}
	return updated.SigningKey, nil
}

func (svc *Service) validate(sub *Subscription) error {
	if sub.Name == "" {
		return &ValidationError{Field: "name", Message: "required"}
	}
	u, err := url.ParseRequestURI(sub.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Message: "invalid URL"}
	}
	if !sub.Method.Valid() {
		return &ValidationError{Field: "method", Message: "must be one of POST, PUT, PATCH"}
	}
	if !sub.PayloadType.Valid() {
		return &ValidationError{Field: "payloadType", Message: "must be one of raw, slack, discord, ms-teams"}
	}
	if len(sub.Events) == 0 {
		return &ValidationError{Field: "events", Message: "at least one event required"}
	}
	if svc.events != nil {
		if err := svc.events.ValidateEventNames(sub.Events); err != nil {
			return &ValidationError{Field: "events", Message: err.Error()}
		}
	}
	for k := range sub.Headers {
		if strings.TrimSpace(k) == "" {
			return &ValidationError{Field: "headers", Message: "header names must not be empty"}
		}
	}
	return nil
}

// settings is the user-editable part of a subscription.
type settings struct {
	Name         string
	URL          string
	Method       Method
	PayloadType  PayloadType
	Headers      map[string]string
	Events       []string
	Projects     []string
	Tags         []string
	Environments []string
	Enabled      bool
}

func settingsOf(s *Subscription) settings {
	return settings{
		Name:         s.Name,
		URL:          s.URL,
		Method:       s.Method,
		PayloadType:  s.PayloadType,
		Headers:      s.Headers,
		Events:       s.Events,
		Projects:     s.Projects,
		Tags:         s.Tags,
		Environments: s.Environments,
		Enabled:      s.Enabled,
	}
}

// ValidationError indicates invalid input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return "webhook validation: " + e.Field + ": " + e.Message
}
