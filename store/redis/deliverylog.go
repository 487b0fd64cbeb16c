package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/id"
)

func (s *Store) AppendDeliveryLog(ctx context.Context, e *deliverylog.Entry) error {
	if err := s.setEntity(ctx, entityKey(prefixDeliveryLog, e.ID.String()), e); err != nil {
		return fmt.Errorf("notify/redis: append delivery log: %w", err)
	}
	err := s.rdb.ZAdd(ctx, zDeliveryLogWH+e.WebhookID.String(), goredis.Z{
		Score:  scoreFromTime(e.DateCreated),
		Member: e.ID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("notify/redis: append delivery log index: %w", err)
	}
	return nil
}

func (s *Store) ListDeliveryLogs(ctx context.Context, webhookID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	ids, err := s.rdb.ZRevRange(ctx, zDeliveryLogWH+webhookID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("notify/redis: list delivery logs: %w", err)
	}

	result := make([]*deliverylog.Entry, 0, len(ids))
	for _, entryID := range ids {
		var e deliverylog.Entry
		if err := s.getEntity(ctx, entityKey(prefixDeliveryLog, entryID), &e); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("notify/redis: list delivery logs: %w", err)
		}
		if opts.OrganizationID != "" && e.OrganizationID != opts.OrganizationID {
			continue
		}
		result = append(result, &e)
	}
	return applyPagination(result, opts.Offset, opts.Limit), nil
}
