package webhook

import (
	"context"
	"time"

	"github.com/growthbook/notify/id"
)

// Store persists subscriptions.
type Store interface {
	// CreateWebhook persists a new subscription.
	CreateWebhook(ctx context.Context, sub *Subscription) error

	// GetWebhook returns a subscription by ID, or ErrNotFound.
	GetWebhook(ctx context.Context, subID id.ID) (*Subscription, error)

	// UpdateWebhook replaces a stored subscription, or returns ErrNotFound.
	UpdateWebhook(ctx context.Context, sub *Subscription) error

	// DeleteWebhook removes an organization's subscription, or returns
	// ErrNotFound.
	DeleteWebhook(ctx context.Context, subID id.ID, orgID string) error

	// ListWebhooks returns all of an organization's subscriptions, oldest
	// first.
	ListWebhooks(ctx context.Context, orgID string) ([]*Subscription, error)

	// ListWebhooksForEvent returns the organization's subscriptions whose
	// events contain eventName. Other filters are applied by the caller.
	ListWebhooksForEvent(ctx context.Context, orgID, eventName string) ([]*Subscription, error)

	// SetDeliveryStatus records the outcome of the latest delivery.
	SetDeliveryStatus(ctx context.Context, subID id.ID, status Status, at time.Time) error
}
