// Package store defines the composite Store interface for all notify persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them, so one backend serves the whole pipeline.
package store

import (
	"context"

	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/webhook"
)

// Store is the aggregate persistence interface.
type Store interface {
	event.Store
	webhook.Store
	deliverylog.Store
	jobs.Store

	// Migrate creates the schema and backfills defaults on subscriptions
	// written by older versions.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
