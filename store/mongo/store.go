// Package mongo implements the notify store on MongoDB via grove.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/signature"
	"github.com/growthbook/notify/store"
	"github.com/growthbook/notify/webhook"
)

// Collection name constants.
const (
	colEvents       = "notify_events"
	colWebhooks     = "notify_webhooks"
	colDeliveryLogs = "notify_webhook_delivery_logs"
	colJobs         = "notify_jobs"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all notify collections and fills in
// defaults on webhook documents written by older versions.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: notify/mongo: %s indexes: %w", notify.ErrMigrationFailed, col, err)
		}
	}
	if err := s.backfillWebhooks(ctx); err != nil {
		return fmt.Errorf("%w: notify/mongo: %w", notify.ErrMigrationFailed, err)
	}
	return nil
}

// backfillWebhooks sets the fields later versions made mandatory.
func (s *Store) backfillWebhooks(ctx context.Context) error {
	col := s.mdb.Collection(colWebhooks)
	defaults := []struct {
		field string
		value any
	}{
		{"method", string(webhook.MethodPost)},
		{"payload_type", string(webhook.PayloadRaw)},
		{"headers", bson.M{}},
		{"environments", bson.A{}},
		{"last_state", string(webhook.StateNone)},
	}
	for _, d := range defaults {
		filter := bson.M{"$or": bson.A{
			bson.M{d.field: bson.M{"$exists": false}},
			bson.M{d.field: nil},
		}}
		if _, err := col.UpdateMany(ctx, filter, bson.M{"$set": bson.M{d.field: d.value}}); err != nil {
			return fmt.Errorf("backfill %s: %w", d.field, err)
		}
	}

	var missing []webhookModel
	if err := s.mdb.NewFind(&missing).
		Filter(bson.M{"$or": bson.A{
			bson.M{"signing_key": bson.M{"$exists": false}},
			bson.M{"signing_key": ""},
		}}).
		Scan(ctx); err != nil {
		return fmt.Errorf("find webhooks without signing key: %w", err)
	}
	for i := range missing {
		if _, err := s.mdb.NewUpdate((*webhookModel)(nil)).
			Filter(bson.M{"_id": missing[i].ID}).
			Set("signing_key", signature.GenerateKey()).
			Exec(ctx); err != nil {
			return fmt.Errorf("backfill signing key %s: %w", missing[i].ID, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all notify collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colEvents: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "date_created", Value: -1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "event_name", Value: 1}}},
			{Keys: bson.D{{Key: "object_type", Value: 1}, {Key: "object_id", Value: 1}}},
		},
		colWebhooks: {
			{Keys: bson.D{{Key: "organization_id", Value: 1}, {Key: "events", Value: 1}}},
		},
		colDeliveryLogs: {
			{Keys: bson.D{{Key: "webhook_id", Value: 1}, {Key: "date_created", Value: -1}}},
		},
		colJobs: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}, {Key: "key", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "state", Value: 1}, {Key: "run_at", Value: 1}}},
		},
	}
}
