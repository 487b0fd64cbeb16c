package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the notify store (SQLite).
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
    schema_version  INTEGER NOT NULL DEFAULT 1,
    data            TEXT NOT NULL,
    date_created    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_notify_events_org_created ON notify_events (organization_id, date_created);
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
    method             TEXT NOT NULL DEFAULT '',
    payload_type       TEXT NOT NULL DEFAULT '',
    headers            TEXT NOT NULL DEFAULT '',
    events             TEXT NOT NULL DEFAULT '[]',
    projects           TEXT NOT NULL DEFAULT '[]',
    tags               TEXT NOT NULL DEFAULT '[]',
    environments       TEXT NOT NULL DEFAULT '[]',
    enabled            INTEGER NOT NULL DEFAULT 1,
    signing_key        TEXT NOT NULL DEFAULT '',
    last_run_at        TEXT,
    last_state         TEXT NOT NULL DEFAULT '',
    last_response_body TEXT NOT NULL DEFAULT '',
    date_created       TEXT NOT NULL DEFAULT (datetime('now')),
    date_updated       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_notify_webhooks_org ON notify_webhooks (organization_id, date_created);
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
    response_code   INTEGER,
    response_body   TEXT NOT NULL DEFAULT '',
    result          TEXT NOT NULL,
    payload         TEXT NOT NULL DEFAULT '',
    date_created    TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_notify_delivery_logs_webhook ON notify_webhook_delivery_logs (webhook_id, date_created);
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
    payload      TEXT NOT NULL DEFAULT '',
    state        TEXT NOT NULL DEFAULT 'pending',
    attempts     INTEGER NOT NULL DEFAULT 0,
    error        TEXT NOT NULL DEFAULT '',
    run_at       TEXT NOT NULL DEFAULT (datetime('now')),
    date_created TEXT NOT NULL DEFAULT (datetime('now')),
    completed_at TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_notify_jobs_name_key ON notify_jobs (name, key);
CREATE INDEX IF NOT EXISTS idx_notify_jobs_state_run ON notify_jobs (state, run_at);
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
UPDATE notify_webhooks SET method = 'POST' WHERE method = '';
UPDATE notify_webhooks SET payload_type = 'raw' WHERE payload_type = '';
UPDATE notify_webhooks SET headers = '{}' WHERE headers = '' OR headers = 'null';
UPDATE notify_webhooks SET last_state = 'none' WHERE last_state = '';
`)
				return err
			},
			Down: func(_ context.Context, _ migrate.Executor) error {
				return nil
			},
		},
	)
}
