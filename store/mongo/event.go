package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
)

// CreateEvent persists an event.
func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m, err := toEventModel(evt)
	if err != nil {
		return err
	}
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("notify/mongo: create event: %w", err)
	}
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var m eventModel

	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": evtID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, notify.ErrEventNotFound
		}
		return nil, fmt.Errorf("notify/mongo: get event: %w", err)
	}

	return fromEventModel(&m)
}

// ListEvents returns one page of an organization's events.
func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel

	dir := -1
	if opts.Ascending() {
		dir = 1
	}

	err := s.mdb.NewFind(&models).
		Filter(eventFilter(orgID, opts)).
		Sort(bson.D{{Key: "date_created", Value: dir}, {Key: "_id", Value: dir}}).
		Limit(int64(opts.Limit())).
		Skip(int64(opts.Offset())).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("notify/mongo: list events: %w", err)
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

// CountEvents counts an organization's events matching opts' filters.
func (s *Store) CountEvents(ctx context.Context, orgID string, opts event.ListOpts) (int64, error) {
	count, err := s.mdb.NewFind((*eventModel)(nil)).
		Filter(eventFilter(orgID, opts)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify/mongo: count events: %w", err)
	}
	return count, nil
}

func eventFilter(orgID string, opts event.ListOpts) bson.M {
	filter := bson.M{"organization_id": orgID}
	if len(opts.EventTypes) > 0 {
		filter["event_name"] = bson.M{"$in": opts.EventTypes}
	}
	if opts.ObjectType != "" {
		filter["object_type"] = opts.ObjectType
	}
	if opts.ObjectID != "" {
		filter["object_id"] = opts.ObjectID
	}
	if opts.From != nil || opts.To != nil {
		dateFilter := bson.M{}
		if opts.From != nil {
			dateFilter["$gte"] = *opts.From
		}
		if opts.To != nil {
			dateFilter["$lt"] = *opts.To
		}
		filter["date_created"] = dateFilter
	}
	return filter
}
