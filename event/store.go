package event

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/growthbook/notify/id"
)

// Pagination defaults for ListOpts.
const (
	DefaultPerPage = 50
	MaxPerPage     = 200
)

// SortOrder orders listings by creation time.
type SortOrder string

// Sort orders.
const (
	SortDesc SortOrder = "desc"
	SortAsc  SortOrder = "asc"
)

// ListOpts filters and pages organization event listings.
type ListOpts struct {
	Page    int
	PerPage int

	// EventTypes keeps events whose name is one of these.
	EventTypes []string

	ObjectType string
	ObjectID   string

	// From is inclusive, To is exclusive.
	From *time.Time
	To   *time.Time

	SortOrder SortOrder
}

// Limit returns the page size, clamped to [1, MaxPerPage].
func (o ListOpts) Limit() int {
	switch {
	case o.PerPage <= 0:
		return DefaultPerPage
	case o.PerPage > MaxPerPage:
		return MaxPerPage
	default:
		return o.PerPage
	}
}

// Offset returns the number of events before the requested page. It
// saturates at math.MaxInt instead of overflowing.
func (o ListOpts) Offset() int {
	if o.Page <= 1 {
		return 0
	}
	limit := o.Limit()
	if o.Page-1 > math.MaxInt/limit {
		return math.MaxInt
	}
	return (o.Page - 1) * limit
}

// Ascending reports whether the listing is oldest first.
func (o ListOpts) Ascending() bool {
	return o.SortOrder == SortAsc
}

// Matches reports whether evt passes every filter of o. Pagination and
// organization are not considered.
func (o ListOpts) Matches(evt *Event) bool {
	if len(o.EventTypes) > 0 && !slices.Contains(o.EventTypes, evt.EventName) {
		return false
	}
	if o.ObjectType != "" && evt.ObjectType != o.ObjectType {
		return false
	}
	if o.ObjectID != "" && evt.ObjectID != o.ObjectID {
		return false
	}
	if o.From != nil && evt.DateCreated.Before(*o.From) {
		return false
	}
	if o.To != nil && !evt.DateCreated.Before(*o.To) {
		return false
	}
	return true
}

// Store persists events.
type Store interface {
	// CreateEvent persists a new event.
	CreateEvent(ctx context.Context, evt *Event) error

	// GetEvent returns an event by ID, or ErrNotFound.
	GetEvent(ctx context.Context, evtID id.ID) (*Event, error)

	// ListEvents returns one page of an organization's events.
	ListEvents(ctx context.Context, orgID string, opts ListOpts) ([]*Event, error)

	// CountEvents counts an organization's events matching opts' filters.
	CountEvents(ctx context.Context, orgID string, opts ListOpts) (int64, error)
}

// Notifier is told about every event after it is persisted.
type Notifier interface {
	EventCreated(ctx context.Context, evt *Event) error
}
