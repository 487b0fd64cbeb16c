// Package postgres implements the notify store on PostgreSQL via grove.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate runs the migration group, then gives subscriptions written
// before signing existed a key of their own.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("notify/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: notify/postgres: %w", notify.ErrMigrationFailed, err)
	}
	return s.backfillSigningKeys(ctx)
}

func (s *Store) backfillSigningKeys(ctx context.Context) error {
	var models []webhookModel
	if err := s.pg.NewSelect(&models).
		Where("signing_key = ''").
		Scan(ctx); err != nil {
		return fmt.Errorf("notify/postgres: backfill signing keys: %w", err)
	}
	for i := range models {
		if _, err := s.pg.NewUpdate((*webhookModel)(nil)).
			Set("signing_key = $1", signature.GenerateKey()).
			Where("id = $2", models[i].ID).
			Where("signing_key = ''").
			Exec(ctx); err != nil {
			return fmt.Errorf("notify/postgres: backfill signing key %s: %w", models[i].ID, err)
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
	if _, err := s.pg.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("notify/postgres: create event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notify.ErrEventNotFound
		}
		return nil, fmt.Errorf("notify/postgres: get event: %w", err)
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)
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
		return nil, fmt.Errorf("notify/postgres: list events: %w", err)
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
	q := s.pg.NewSelect((*eventModel)(nil))
	for _, c := range eventFilters(orgID, opts) {
		q = q.Where(c.expr, c.arg)
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify/postgres: count events: %w", err)
	}
	return count, nil
}

type clause struct {
	expr string
	arg  any
}

func eventFilters(orgID string, opts event.ListOpts) []clause {
	clauses := []clause{{"organization_id = $1", orgID}}
	add := func(format string, arg any) {
		clauses = append(clauses, clause{fmt.Sprintf(format, len(clauses)+1), arg})
	}
	if len(opts.EventTypes) > 0 {
		add("event_name = ANY($%d)", opts.EventTypes)
	}
	if opts.ObjectType != "" {
		add("object_type = $%d", opts.ObjectType)
	}
	if opts.ObjectID != "" {
		add("object_id = $%d", opts.ObjectID)
	}
	if opts.From != nil {
		add("date_created >= $%d", *opts.From)
	}
	if opts.To != nil {
		add("date_created < $%d", *opts.To)
	}
	return clauses
}

// ==================== Webhook Store ====================

func (s *Store) CreateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	if _, err := s.pg.NewInsert(toWebhookModel(sub)).Exec(ctx); err != nil {
		return fmt.Errorf("notify/postgres: create webhook: %w", err)
	}
	return nil
}

func (s *Store) GetWebhook(ctx context.Context, subID id.ID) (*webhook.Subscription, error) {
	m := new(webhookModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, notify.ErrWebhookNotFound
		}
		return nil, fmt.Errorf("notify/postgres: get webhook: %w", err)
	}
	return fromWebhookModel(m)
}

func (s *Store) UpdateWebhook(ctx context.Context, sub *webhook.Subscription) error {
	res, err := s.pg.NewUpdate(toWebhookModel(sub)).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/postgres: update webhook: %w", err)
	}
	return requireRow(res, notify.ErrWebhookNotFound)
}

func (s *Store) DeleteWebhook(ctx context.Context, subID id.ID, orgID string) error {
	res, err := s.pg.NewDelete((*webhookModel)(nil)).
		Where("id = $1", subID.String()).
		Where("organization_id = $2", orgID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/postgres: delete webhook: %w", err)
	}
	return requireRow(res, notify.ErrWebhookNotFound)
}

func (s *Store) ListWebhooks(ctx context.Context, orgID string) ([]*webhook.Subscription, error) {
	var models []webhookModel
	if err := s.pg.NewSelect(&models).
		Where("organization_id = $1", orgID).
		OrderExpr("date_created ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/postgres: list webhooks: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) ListWebhooksForEvent(ctx context.Context, orgID, eventName string) ([]*webhook.Subscription, error) {
	var models []webhookModel
	if err := s.pg.NewSelect(&models).
		Where("organization_id = $1", orgID).
		Where("$2 = ANY(events)", eventName).
		OrderExpr("date_created ASC").
		Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/postgres: list webhooks for event: %w", err)
	}
	return fromWebhookModels(models)
}

func (s *Store) SetDeliveryStatus(ctx context.Context, subID id.ID, status webhook.Status, at time.Time) error {
	res, err := s.pg.NewUpdate((*webhookModel)(nil)).
		Set("last_run_at = $1", at).
		Set("last_state = $2", string(status.State)).
		Set("last_response_body = $3", status.ResponseBody).
		Where("id = $4", subID.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/postgres: set delivery status: %w", err)
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
	if _, err := s.pg.NewInsert(toDeliveryLogModel(e)).Exec(ctx); err != nil {
		return fmt.Errorf("notify/postgres: append delivery log: %w", err)
	}
	return nil
}

func (s *Store) ListDeliveryLogs(ctx context.Context, webhookID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	var models []deliveryLogModel
	q := s.pg.NewSelect(&models).Where("webhook_id = $1", webhookID.String())
	if opts.OrganizationID != "" {
		q = q.Where("organization_id = $2", opts.OrganizationID)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("date_created DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("notify/postgres: list delivery logs: %w", err)
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
	res, err := s.pg.NewInsert(toJobModel(job)).
		OnConflict("(name, key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("notify/postgres: enqueue job: %w", err)
	}
	return requireRow(res, notify.ErrDuplicateJob)
}

func (s *Store) DequeueJobs(ctx context.Context, limit int) ([]*jobs.Job, error) {
	// FOR UPDATE SKIP LOCKED lets several workers claim disjoint batches.
	var models []jobModel
	err := s.pg.NewRaw(`
		UPDATE notify_jobs
		SET state = 'running', attempts = attempts + 1
		WHERE id IN (
			SELECT id FROM notify_jobs
			WHERE state = 'pending' AND run_at <= NOW()
			ORDER BY run_at ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING *
	`, limit).Scan(ctx, &models)
	if err != nil {
		return nil, fmt.Errorf("notify/postgres: dequeue jobs: %w", err)
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
	if _, err := s.pg.NewUpdate(toJobModel(job)).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("notify/postgres: complete job: %w", err)
	}
	return nil
}

func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	return s.pg.NewSelect((*jobModel)(nil)).
		Where("state = $1", string(jobs.StatePending)).
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
