// Package sqlite implements the notify store on SQLite via grove, for
// single-node deployments and tests.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/signature"
	notifystore "github.com/growthbook/notify/store"
	"github.com/growthbook/notify/webhook"
)

// compile-time interface check
var _ notifystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate runs the migration group and backfills missing signing keys.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("notify/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: notify/sqlite: %w", notify.ErrMigrationFailed, err)
	}

	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		Where("signing_key = ''").
		Scan(ctx); err != nil {
		return fmt.Errorf("notify/sqlite: backfill signing keys: %w", err)
	}
	for i := range models {
		if _, err := s.sdb.NewUpdate((*webhookModel)(nil)).
			Set("signing_key = ?", signature.GenerateKey()).
			Where("id = ?", models[i].ID).
			Exec(ctx); err != nil {
			return fmt.Errorf("notify/sqlite: backfill signing key %s: %w", models[i].ID, err)
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

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m, err := toEventModel(evt)
	if err != nil {
		return err
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("notify/sqlite: create event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notify.ErrEventNotFound
		}
		return nil, fmt.Errorf("notify/sqlite: get event: %w", err)
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.sdb.NewSelect(&models)
	for _, c := range eventFilters(orgID, opts) {
		q = q.Where(c.expr, c.arg)
	}

	order := "date_created DESC, id DESC"
	if opts.Ascending() {
		order = "date_created ASC, id ASC"
	}
	q = q.OrderExpr(order).
		Limit(opts.Limit()).
		Offset(opts.Offset())

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/sqlite: list events: %w", err)
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

func (s *Store) CountEvents(ctx context.Context, orgID string, opts event.ListOpts) (int64, error) {
	q := s.sdb.NewSelect((*eventModel)(nil))
	for _, c := range eventFilters(orgID, opts) {
		q = q.Where(c.expr, c.arg)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify/sqlite: count events: %w", err)
	}
	return count, nil
}

type clause struct {
	expr string
	arg  any
}

func eventFilters(orgID string, opts event.ListOpts) []clause {
	clauses := []clause{{"organization_id = ?", orgID}}
	if len(opts.EventTypes) > 0 {
		clauses = append(clauses, clause{"event_name IN (SELECT value FROM json_each(?))", jsonText(opts.EventTypes)})
	}
	if opts.ObjectType != "" {
		clauses = append(clauses, clause{"object_type = ?", opts.ObjectType})
	}
	if opts.ObjectID != "" {
		clauses = append(clauses, clause{"object_id = ?", opts.ObjectID})
	}
	if opts.From != nil {
		clauses = append(clauses, clause{"date_created >= ?", *opts.From})
	}
	if opts.To != nil {
		clauses = append(clauses, clause{"date_created < ?", *opts.To})
	}
	return clauses
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	if _, err := s.sdb.NewInsert(toWebhookModel(sub)).Exec(ctx); err != nil {
		return fmt.Errorf("notify/sqlite: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, subID id.ID) (*webhook.Subscription, error) {
	m := new(webhookModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notify.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("notify/sqlite: get webhook: %w", err)
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	res, err := s.sdb.NewUpdate(toWebhookModel(sub)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/sqlite: update webhook: %w", err)
	}
	return requireRow(res, notify.ErrWebhookNotFound)
}

func (s *Store) DeleteWebhook(ctx context.Context, subID id.ID, orgID string) error {
	res, err := s.sdb.NewDelete((*webhookModel)(nil)).
		Where("id = ?", subID.String()).
		Where("organization_id = ?", orgID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/sqlite: delete webhook: %w", err)
	}
	return requireRow(res, notify.ErrWebhookNotFound)
}

func (s *Store) ListWebhooks(ctx context.Context, orgID string) ([]*webhook.Subscription, error) {
	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		Where("organization_id = ?", orgID).
		OrderExpr("date_created ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/sqlite: list webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) ListWebhooksForEvent(ctx context.Context, orgID, eventName string) ([]*webhook.Subscription, error) {
	var models []webhookModel
	if err := s.sdb.NewSelect(&models).
		Where("organization_id = ?", orgID).
		Where("EXISTS (SELECT 1 FROM json_each(events) WHERE value = ?)", eventName).
		OrderExpr("date_created ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/sqlite: list webhooks for event: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) SetDeliveryStatus(ctx context.Context, subID id.ID, status webhook.Status, at time.Time) error {
	res, err := s.sdb.NewUpdate((*webhookModel)(nil)).
		Set("last_run_at = ?", at).
		Set("last_state = ?", string(status.State)).
		Set("last_response_body = ?", status.ResponseBody).
		Where("id = ?", subID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/sqlite: set delivery status: %w", err)
	}
	return requireRow(res, notify.ErrWebhookNotFound)
}

func fromWebhookModels(models []webhookModel) ([]*webhook.Subscription, error) {
	result := make([]*webhook.Subscription, len(models))
	for i := range models {
		sub, err := fromWebhookModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Delivery Log Store ====================

func (s *Store) AppendDeliveryLog(ctx context.Context, e *deliverylog.Entry) error {
	if _, err := s.sdb.NewInsert(toDeliveryLogModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("notify/sqlite: append delivery log: %w", err)
	}
	return nil
}

func (s *Store) ListDeliveryLogs(ctx context.Context, webhookID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	var models []deliveryLogModel
	q := s.sdb.NewSelect(&models).Where("webhook_id = ?", webhookID.String())
	if opts.OrganizationID != "" {
		q = q.Where("organization_id = ?", opts.OrganizationID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("date_created DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/sqlite: list delivery logs: %w", err)
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

// ==================== Job Store ====================

func (s *Store) EnqueueJob(ctx context.Context, job *jobs.Job) error {
	res, err := s.sdb.NewInsert(toJobModel(job)).
		OnConflict("(name, key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/sqlite: enqueue job: %w", err)
	}
	return requireRow(res, notify.ErrDuplicateJob)
}

func (s *Store) DequeueJobs(ctx context.Context, limit int) ([]*jobs.Job, error) {
	// SQLite serializes writes, so no FOR UPDATE SKIP LOCKED needed.
	var models []jobModel
	err := s.sdb.NewRaw(`
		UPDATE notify_jobs
		SET state = 'running', attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM notify_jobs
			WHERE state = 'pending' AND run_at <= ?
			ORDER BY run_at ASC
			LIMIT ?
		)
		RETURNING *
	`, time.Now().UTC(), limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("notify/sqlite: dequeue jobs: %w", err)
	}

	result := make([]*jobs.Job, len(models))
	for i := range models {
		j, err := fromJobModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = j
	}
	return result, nil
}

func (s *Store) CompleteJob(ctx context.Context, job *jobs.Job) error {
	if _, err := s.sdb.NewUpdate(toJobModel(job)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("notify/sqlite: complete job: %w", err)
	}
	return nil
}

func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	return s.sdb.NewSelect((*jobModel)(nil)).
		Where("state = ?", string(jobs.StatePending)).
		Count(ctx)
}

type rowsAffecter interface {
	RowsAffected() (int64, error)
}

// requireRow returns notFound when res touched no rows.
func requireRow(res rowsAffecter, notFound error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
