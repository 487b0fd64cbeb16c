package redis

import (
	"context"
	"fmt"
	"slices"

	goredis "github.com/redis/go-redis/v9"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
)

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	if err := s.setEntity(ctx, entityKey(prefixEvent, evt.ID.String()), evt); err != nil {
		return fmt.Errorf("notify/redis: create event: %w", err)
	}
	err := s.rdb.ZAdd(ctx, zEventOrg+evt.OrganizationID, goredis.Z{
		Score:  scoreFromTime(evt.DateCreated),
		Member: evt.ID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("notify/redis: create event index: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	var evt event.Event
	if err := s.getEntity(ctx, entityKey(prefixEvent, evtID.String()), &evt); err != nil {
		if isNotFound(err) {
			return nil, notify.ErrEventNotFound
		}
		return nil, fmt.Errorf("notify/redis: get event: %w", err)
	}
	return &evt, nil
}

func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	result, err := s.matchingEvents(ctx, orgID, opts)
	if err != nil {
		return nil, err
	}
	if !opts.Ascending() {
		slices.Reverse(result)
	}
	return applyPagination(result, opts.Offset(), opts.Limit()), nil
}

func (s *Store) CountEvents(ctx context.Context, orgID string, opts event.ListOpts) (int64, error) {
	result, err := s.matchingEvents(ctx, orgID, opts)
	if err != nil {
		return 0, err
	}
	return int64(len(result)), nil
}

// matchingEvents returns the organization's events passing opts' filters,
// oldest first. Redis orders equal scores by member, so ties fall back to
// the event id.
func (s *Store) matchingEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	ids, err := s.rdb.ZRange(ctx, zEventOrg+orgID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("notify/redis: list events: %w", err)
	}

	result := make([]*event.Event, 0, len(ids))
	for _, entryID := range ids {
		var evt event.Event
		if err := s.getEntity(ctx, entityKey(prefixEvent, entryID), &evt); err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("notify/redis: list events: %w", err)
		}
		if opts.Matches(&evt) {
			result = append(result, &evt)
		}
	}
	return result, nil
}
