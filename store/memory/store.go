// Package memory provides an in-memory Store implementation for tests and
// single-process use.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/jobs"
	notifystore "github.com/growthbook/notify/store"
	"github.com/growthbook/notify/webhook"
)

// compile-time interface check.
var _ notifystore.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store. Records are copied
// on the way in and out, so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	events   map[string]*event.Event          // keyed by ID string
	webhooks map[string]*webhook.Subscription // keyed by ID string
	logs     []*deliverylog.Entry             // append order
	jobs     map[string]*jobs.Job             // keyed by ID string
	jobKeys  map[string]string                // name + "\x00" + key -> job ID
	locked   map[string]bool                  // claimed jobs, simulates SKIP LOCKED

	closed bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		events:   make(map[string]*event.Event),
		webhooks: make(map[string]*webhook.Subscription),
		jobs:     make(map[string]*jobs.Job),
		jobKeys:  make(map[string]string),
		locked:   make(map[string]bool),
	}
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate backfills defaults on stored subscriptions.
func (s *Store) Migrate(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.webhooks {
		sub.ApplyDefaults()
	}
	return nil
}

// Ping reports whether the store is open.
func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return notify.ErrStoreClosed
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// ──────────────────────────────────────────────────
// event.Store
// ──────────────────────────────────────────────────

// CreateEvent persists an event.
func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[evt.ID.String()] = evt.Clone()
	return nil
}

// GetEvent returns an event by ID.
func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, notify.ErrEventNotFound
	}
	return evt.Clone(), nil
}

// ListEvents returns one page of an organization's events.
func (s *Store) ListEvents(_ context.Context, orgID string, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := s.filterEvents(orgID, opts)
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if opts.Ascending() {
			a, b = b, a
		}
		if !a.DateCreated.Equal(b.DateCreated) {
			return a.DateCreated.After(b.DateCreated)
		}
		return a.ID.String() > b.ID.String()
	})

	result = applyPagination(result, opts.Offset(), opts.Limit())
	out := make([]*event.Event, len(result))
	for i, evt := range result {
		out[i] = evt.Clone()
	}
	return out, nil
}

// CountEvents counts an organization's events matching opts.
func (s *Store) CountEvents(_ context.Context, orgID string, opts event.ListOpts) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.filterEvents(orgID, opts))), nil
}

func (s *Store) filterEvents(orgID string, opts event.ListOpts) []*event.Event {
	result := make([]*event.Event, 0)
	for _, evt := range s.events {
		if evt.OrganizationID != orgID || !opts.Matches(evt) {
			continue
		}
		result = append(result, evt)
	}
	return result
}

// ──────────────────────────────────────────────────
// webhook.Store
// ──────────────────────────────────────────────────

func copyWebhook(sub *webhook.Subscription) *webhook.Subscription {
	cp := *sub
	return &cp
}

// CreateWebhook persists a new subscription.
func (s *Store) CreateWebhook(_ context.Context, sub *webhook.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.webhooks[sub.ID.String()] = copyWebhook(sub)
	return nil
}

// GetWebhook returns a subscription by ID.
func (s *Store) GetWebhook(_ context.Context, subID id.ID) (*webhook.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.webhooks[subID.String()]
	if !ok {
		return nil, notify.ErrWebhookNotFound
	}
	return copyWebhook(sub), nil
}

// UpdateWebhook replaces a subscription.
func (s *Store) UpdateWebhook(_ context.Context, sub *webhook.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.webhooks[sub.ID.String()]; !ok {
		return notify.ErrWebhookNotFound
	}
	s.webhooks[sub.ID.String()] = copyWebhook(sub)
	return nil
}

// DeleteWebhook removes an organization's subscription.
func (s *Store) DeleteWebhook(_ context.Context, subID id.ID, orgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.webhooks[subID.String()]
	if !ok || sub.OrganizationID != orgID {
		return notify.ErrWebhookNotFound
	}
	delete(s.webhooks, subID.String())
	return nil
}

// ListWebhooks returns an organization's subscriptions, oldest first.
func (s *Store) ListWebhooks(_ context.Context, orgID string) ([]*webhook.Subscription, error) {
	return s.listWebhooks(orgID, ""), nil
}

// ListWebhooksForEvent returns subscriptions whose events contain eventName.
func (s *Store) ListWebhooksForEvent(_ context.Context, orgID, eventName string) ([]*webhook.Subscription, error) {
	return s.listWebhooks(orgID, eventName), nil
}

func (s *Store) listWebhooks(orgID, eventName string) []*webhook.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*webhook.Subscription, 0)
	for _, sub := range s.webhooks {
		if sub.OrganizationID != orgID {
			continue
		}
		if eventName != "" && !contains(sub.Events, eventName) {
			continue
		}
		result = append(result, copyWebhook(sub))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DateCreated.Before(result[j].DateCreated)
	})
	return result
}

// SetDeliveryStatus records the latest delivery outcome.
func (s *Store) SetDeliveryStatus(_ context.Context, subID id.ID, status webhook.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.webhooks[subID.String()]
	if !ok {
		return notify.ErrWebhookNotFound
	}
	sub.LastRunAt = &at
	sub.LastState = status.State
	sub.LastResponseBody = status.ResponseBody
	return nil
}

// ──────────────────────────────────────────────────
// deliverylog.Store
// ──────────────────────────────────────────────────

// AppendDeliveryLog persists a delivery log entry.
func (s *Store) AppendDeliveryLog(_ context.Context, e *deliverylog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *e
	s.logs = append(s.logs, &cp)
	return nil
}

// ListDeliveryLogs returns a webhook's entries, newest first.
func (s *Store) ListDeliveryLogs(_ context.Context, webhookID id.ID, opts deliverylog.ListOpts) ([]*deliverylog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*deliverylog.Entry, 0)
	for i := len(s.logs) - 1; i >= 0; i-- {
		e := s.logs[i]
		if e.WebhookID.String() != webhookID.String() {
			continue
		}
		if opts.OrganizationID != "" && e.OrganizationID != opts.OrganizationID {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].DateCreated.After(result[j].DateCreated)
	})

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

// ──────────────────────────────────────────────────
// jobs.Store
// ──────────────────────────────────────────────────

func copyJob(j *jobs.Job) *jobs.Job {
	cp := *j
	return &cp
}

// EnqueueJob persists a pending job unless (name, key) was seen before.
func (s *Store) EnqueueJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := job.Name + "\x00" + job.Key
	if _, ok := s.jobKeys[k]; ok {
		return notify.ErrDuplicateJob
	}
	s.jobKeys[k] = job.ID.String()
	s.jobs[job.ID.String()] = copyJob(job)
	return nil
}

// DequeueJobs claims due pending jobs, oldest run time first.
func (s *Store) DequeueJobs(_ context.Context, limit int) ([]*jobs.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	candidates := make([]*jobs.Job, 0)
	for _, j := range s.jobs {
		if j.State != jobs.StatePending || j.RunAt.After(now) {
			continue
		}
		if s.locked[j.ID.String()] {
			continue
		}
		candidates = append(candidates, j)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].RunAt.Before(candidates[j].RunAt)
	})
	if limit > 0 && limit < len(candidates) {
		candidates = candidates[:limit]
	}

	result := make([]*jobs.Job, 0, len(candidates))
	for _, j := range candidates {
		s.locked[j.ID.String()] = true
		j.State = jobs.StateRunning
		j.Attempts++
		result = append(result, copyJob(j))
	}
	return result, nil
}

// CompleteJob stores a job's final state and releases its claim.
func (s *Store) CompleteJob(_ context.Context, job *jobs.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[job.ID.String()] = copyJob(job)
	delete(s.locked, job.ID.String())
	return nil
}

// CountPendingJobs returns the number of jobs waiting to run.
func (s *Store) CountPendingJobs(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, j := range s.jobs {
		if j.State == jobs.StatePending {
			count++
		}
	}
	return count, nil
}

// Jobs returns a snapshot of every job, for inspection in tests.
func (s *Store) Jobs() []*jobs.Job {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*jobs.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		result = append(result, copyJob(j))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].DateCreated.Before(result[j].DateCreated)
	})
	return result
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func applyPagination[T any](items []*T, offset, limit int) []*T {
	if offset > 0 && offset < len(items) {
		items = items[offset:]
	} else if offset >= len(items) {
		return []*T{}
	}

	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}

	return items
}
