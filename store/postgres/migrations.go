package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the notify store.
// It can be registered with a grove orchestrator for locking, version
// tracking and rollback.
var Migrations = migrate.NewGroup("notify")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_notify_events",
			Version: "20240801000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS notify_events (
    id              TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    object_type     TEXT NOT NULL DEFAULT '',
    object_id       TEXT NOT NULL DEFAULT '',
    event_name      TEXT NOT NULL,
    schema_version  INT NOT NULL DEFAULT 1,
    data            JSONB NOT NULL,
    date_created    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notify_events_org_created ON notify_events (organization_id, date_created DESC);
CREATE INDEX IF NOT EXISTS idx_notify_events_org_name ON notify_events (organization_id, event_name);
CREATE INDEX IF NOT EXISTS idx_notify_events_object ON notify_events (organization_id, object_type, object_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS notify_events`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_notify_webhooks",
			Version: "20240801000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS notify_webhooks (
    id                 TEXT PRIMARY KEY,
    organization_id    TEXT NOT NULL,
    name               TEXT NOT NULL DEFAULT '',
    url                TEXT NOT NULL,
    method             TEXT,
    payload_type       TEXT,
    headers            JSONB,
    events             TEXT[] NOT NULL DEFAULT '{}',
    projects           TEXT[] NOT NULL DEFAULT '{}',
    tags               TEXT[] NOT NULL DEFAULT '{}',
    environments       TEXT[] NOT NULL DEFAULT '{}',
    enabled            BOOLEAN NOT NULL DEFAULT TRUE,
    signing_key        TEXT NOT NULL DEFAULT '',
    last_run_at        TIMESTAMPTZ,
    last_state         TEXT,
    last_response_body TEXT NOT NULL DEFAULT '',
    date_created       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    date_updated       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notify_webhooks_org ON notify_webhooks (organization_id, date_created);
CREATE INDEX IF NOT EXISTS idx_notify_webhooks_events ON notify_webhooks USING GIN (events);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS notify_webhooks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_notify_webhook_delivery_logs",
			Version: "20240801000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS notify_webhook_delivery_logs (
    id              TEXT PRIMARY KEY,
    webhook_id      TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    event_id        TEXT NOT NULL,
    response_code   INT,
    response_body   TEXT NOT NULL DEFAULT '',
    result          TEXT NOT NULL,
    payload         JSONB,
    date_created    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_notify_delivery_logs_webhook ON notify_webhook_delivery_logs (webhook_id, date_created DESC);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS notify_webhook_delivery_logs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_notify_jobs",
			Version: "20240801000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS notify_jobs (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    key          TEXT NOT NULL,
    payload      JSONB,
    state        TEXT NOT NULL DEFAULT 'pending',
    attempts     INT NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    run_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    date_created TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_notify_jobs_name_key ON notify_jobs (name, key);
CREATE INDEX IF NOT EXISTS idx_notify_jobs_pending ON notify_jobs (run_at) WHERE state = 'pending';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS notify_jobs`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "backfill_notify_webhook_defaults",
			Version: "20240801000005",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
UPDATE notify_webhooks SET method = 'POST' WHERE method IS NULL OR method = '';
UPDATE notify_webhooks SET payload_type = 'raw' WHERE payload_type IS NULL OR payload_type = '';
UPDATE notify_webhooks SET headers = '{}' WHERE headers IS NULL;
UPDATE notify_webhooks SET last_state = 'none' WHERE last_state IS NULL OR last_state = '';

ALTER TABLE notify_webhooks ALTER COLUMN method SET DEFAULT 'POST';
ALTER TABLE notify_webhooks ALTER COLUMN payload_type SET DEFAULT 'raw';
ALTER TABLE notify_webhooks ALTER COLUMN headers SET DEFAULT '{}';
ALTER TABLE notify_webhooks ALTER COLUMN last_state SET DEFAULT 'none';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
ALTER TABLE notify_webhooks ALTER COLUMN method DROP DEFAULT;
ALTER TABLE notify_webhooks ALTER COLUMN payload_type DROP DEFAULT;
ALTER TABLE notify_webhooks ALTER COLUMN headers DROP DEFAULT;
ALTER TABLE notify_webhooks ALTER COLUMN last_state DROP DEFAULT;
`)
				return err
			},
		},
	)
}
