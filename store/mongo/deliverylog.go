package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/id"
)

// AppendDeliveryLog persists one delivery attempt.
func (s *Store) AppendDeliveryLog(ctx context.Context, e *deliverylog.Entry) error {
	if _, err := s.mdb.NewInsert(toDeliveryLogModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("notify/mongo: append delivery log: %w", err)
	}
	return nil
}

// ListDeliveryLogs returns a webhook's attempts, newest first.
func (s *Store) ListDeliveryLogs(ctx context.Context, webhookID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	var models []deliveryLogModel

	filter := bson.M{"webhook_id": webhookID.String()}
	if opts.OrganizationID != "" {
		filter["organization_id"] = opts.OrganizationID
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "date_created", Value: -1}})
	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/mongo: list delivery logs: %w", err)
	}

	result := make([]*deliverylog.Entry, len(models))
	for i := range models {
		e, err := fromDeliveryLogModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = e
	}
	return result, nil
}
