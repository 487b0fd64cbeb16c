// Package entity defines the timestamp base embedded by persisted notify records.
package entity

import "time"

// Entity carries the creation and last-update timestamps of a record.
type Entity struct {
	DateCreated time.Time `json:"dateCreated"`
	DateUpdated time.Time `json:"dateUpdated"`
}

// New returns an Entity with both timestamps set to the current UTC time,
// truncated to milliseconds so every backend round-trips it unchanged.
func New() Entity {
	now := Now()
	return Entity{DateCreated: now, DateUpdated: now}
}

// Now returns the current UTC time at millisecond precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Touch bumps DateUpdated.
func (e *Entity) Touch() {
	e.DateUpdated = Now()
}
