package notify

import (
	"errors"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

// Sentinel errors returned by notify operations. Errors owned by a
// subpackage are re-exported here so callers need one import.
var (
	// ErrNoStore is returned when a Notifier is created without a store.
	ErrNoStore = errors.New("notify: store is required")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("notify: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("notify: migration failed")

	// ErrEventNotFound is returned when an event cannot be found.
	ErrEventNotFound = event.ErrNotFound

	// ErrWebhookNotFound is returned when a webhook subscription cannot be found.
	ErrWebhookNotFound = webhook.ErrNotFound

	// ErrDuplicateJob is returned when a job with the same name and key exists.
	ErrDuplicateJob = jobs.ErrDuplicateJob

	// ErrUnknownEvent is returned for event names missing from the taxonomy.
	ErrUnknownEvent = taxonomy.ErrUnknownEvent

	// ErrSchemaValidation is returned when a payload fails its JSON Schema.
	ErrSchemaValidation = taxonomy.ErrSchemaValidation
)
