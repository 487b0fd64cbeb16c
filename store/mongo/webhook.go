package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/webhook"
)

// CreateWebhook persists a new subscription.
func (s *Store) CreateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	if _, err := s.mdb.NewInsert(toWebhookModel(sub)).Exec(ctx); err != nil {
		return fmt.Errorf("notify/mongo: create webhook: %w", err)
	}
	return nil
}

// GetWebhook returns a subscription by ID.
func (s *Store) GetWebhook(ctx context.Context, subID id.ID) (*webhook.Subscription, error) {
	var m webhookModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": subID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, notify.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("notify/mongo: get webhook: %w", err)
	}

	return fromWebhookModel(&m)
}

// UpdateWebhook replaces a subscription document.
func (s *Store) UpdateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	m := toWebhookModel(sub)

	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/mongo: update webhook: %w", err)
	}
	if res.MatchedCount() == 0 {
		return notify.ErrWebhookNotFound
	}
	return nil
}

// DeleteWebhook removes a subscription owned by orgID.
func (s *Store) DeleteWebhook(ctx context.Context, subID id.ID, orgID string) error {
	res, err := s.mdb.NewDelete((*webhookModel)(nil)).
		Filter(bson.M{"_id": subID.String(), "organization_id": orgID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/mongo: delete webhook: %w", err)
	}
	if res.DeletedCount() == 0 {
		return notify.ErrWebhookNotFound
	}
	return nil
}

// ListWebhooks returns every subscription of an organization.
func (s *Store) ListWebhooks(ctx context.Context, orgID string) ([]*webhook.Subscription, error) {
	return s.findWebhooks(ctx, bson.M{"organization_id": orgID})
}

// ListWebhooksForEvent returns the subscriptions whose events include eventName.
func (s *Store) ListWebhooksForEvent(ctx context.Context, orgID, eventName string) ([]*webhook.Subscription, error) {
	return s.findWebhooks(ctx, bson.M{"organization_id": orgID, "events": eventName})
}

// SetDeliveryStatus records the outcome of the latest delivery attempt.
func (s *Store) SetDeliveryStatus(ctx context.Context, subID id.ID, status webhook.Status, at time.Time) error {
	res, err := s.mdb.NewUpdate((*webhookModel)(nil)).
		Filter(bson.M{"_id": subID.String()}).
		Set("last_run_at", at).
		Set("last_state", string(status.State)).
		Set("last_response_body", status.ResponseBody).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/mongo: set delivery status: %w", err)
	}
	if res.MatchedCount() == 0 {
		return notify.ErrWebhookNotFound
	}
	return nil
}

func (s *Store) findWebhooks(ctx context.Context, filter bson.M) ([]*webhook.Subscription, error) {
	var models []webhookModel

	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "date_created", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify/mongo: list webhooks: %w", err)
	}

	result := make([]*webhook.Subscription, len(models))
	for i := range models {
		sub, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}
