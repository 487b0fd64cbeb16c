package redis

import (
	"context"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/webhook"
)

// webhookModel is the JSON representation stored in Redis. The signing
// key is hidden from the subscription's own encoding, so it is carried
// alongside.
type webhookModel struct {
	*webhook.Subscription
	SigningKey string `json:"signingKey"`
}

func toWebhookModel(sub *webhook.Subscription) *webhookModel {
	return &webhookModel{Subscription: sub, SigningKey: sub.SigningKey}
}

func (s *Store) loadWebhook(ctx context.Context, subID string) (*webhook.Subscription, error) {
	m := webhookModel{Subscription: new(webhook.Subscription)}
	if err := s.getEntity(ctx, entityKey(prefixWebhook, subID), &m); err != nil {
		return nil, err
	}
	m.Subscription.SigningKey = m.SigningKey
	return m.Subscription, nil
}

func (s *Store) CreateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	key := entityKey(prefixWebhook, sub.ID.String())
	if err := s.setEntity(ctx, key, toWebhookModel(sub)); err != nil {
		return fmt.Errorf("notify/redis: create webhook: %w", err)
	}
	err := s.rdb.ZAdd(ctx, zWebhookOrg+sub.OrganizationID, goredis.Z{
		Score:  scoreFromTime(sub.DateCreated),
		Member: sub.ID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("notify/redis: create webhook index: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, subID id.ID) (*webhook.Subscription, error) {
	sub, err := s.loadWebhook(ctx, subID.String())
	if err != nil {
		if isNotFound(err) {
			return nil, notify.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("notify/redis: get webhook: %w", err)
	}
	return sub, nil
}

func (s *Store) UpdateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	if _, err := s.GetWebhook(ctx, sub.ID); err != nil {
		return err
	}
	if err := s.setEntity(ctx, entityKey(prefixWebhook, sub.ID.String()), toWebhookModel(sub)); err != nil {
		return fmt.Errorf("notify/redis: update webhook: %w", err)
	}
	return nil
}

func (s *Store) DeleteWebhook(ctx context.Context, subID id.ID, orgID string) error {
	existing, err := s.GetWebhook(ctx, subID)
	if err != nil {
		return err
	}
	if existing.OrganizationID != orgID {
		return notify.ErrWebhookNotFound
	}

	if err := s.kv.Delete(ctx, entityKey(prefixWebhook, subID.String())); err != nil {
		return fmt.Errorf("notify/redis: delete webhook: %w", err)
	}
	if err := s.rdb.ZRem(ctx, zWebhookOrg+orgID, subID.String()).Err(); err != nil {
		return fmt.Errorf("notify/redis: delete webhook index: %w", err)
	}
	return nil
}

func (s *Store) ListWebhooks(ctx context.Context, orgID string) ([]*webhook.Subscription, error) {
	ids, err := s.rdb.ZRange(ctx, zWebhookOrg+orgID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("notify/redis: list webhooks: %w", err)
	}

	result := make([]*webhook.Subscription, 0, len(ids))
	for _, entryID := range ids {
		sub, err := s.loadWebhook(ctx, entryID)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("notify/redis: list webhooks: %w", err)
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *Store) ListWebhooksForEvent(ctx context.Context, orgID, eventName string) ([]*webhook.Subscription, error) {
	all, err := s.ListWebhooks(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return slices.DeleteFunc(all, func(sub *webhook.Subscription) bool {
		return !slices.Contains(sub.Events, eventName)
	}), nil
}

func (s *Store) SetDeliveryStatus(ctx context.Context, subID id.ID, status webhook.Status, at time.Time) error {
	sub, err := s.GetWebhook(ctx, subID)
	if err != nil {
		return err
	}
	sub.LastRunAt = &at
	sub.LastState = status.State
	sub.LastResponseBody = status.ResponseBody
	if err := s.setEntity(ctx, entityKey(prefixWebhook, subID.String()), toWebhookModel(sub)); err != nil {
		return fmt.Errorf("notify/redis: set delivery status: %w", err)
	}
	return nil
}

// backfillWebhooks walks every stored webhook and writes back the ones
// missing defaults.
func (s *Store) backfillWebhooks(ctx context.Context) error {
	iter := s.rdb.Scan(ctx, 0, prefixWebhook+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		sub, err := s.loadWebhook(ctx, key[len(prefixWebhook):])
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return fmt.Errorf("%w: notify/redis: backfill %s: %w", notify.ErrMigrationFailed, key, err)
		}
		if !sub.ApplyDefaults() {
			continue
		}
		if err := s.setEntity(ctx, key, toWebhookModel(sub)); err != nil {
			return fmt.Errorf("%w: notify/redis: backfill %s: %w", notify.ErrMigrationFailed, key, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("%w: notify/redis: scan webhooks: %w", notify.ErrMigrationFailed, err)
	}
	return nil
}
