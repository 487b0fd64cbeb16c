// Package delivery fans dispatched events out to webhook subscriptions and
// performs the signed HTTP calls.
//
// The worker is a dispatch handler. For every matching subscription it
// schedules one job keyed by (event, subscription); the job formats the
// body, signs it, sends it, and records the outcome on the subscription
// and in the delivery log. Delivery failures are recorded, never returned.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/signature"
	"github.com/growthbook/notify/webhook"
)

// HandlerName is the dispatch handler name of the worker.
const HandlerName = "webhooks"

// JobName is the queue name of delivery jobs.
const JobName = "webhooks.deliver"

// TestEventName is delivered only to the subscription named in its object,
// whatever that subscription's filters say.
const TestEventName = "webhook.test"

// DefaultRequestTimeout bounds a single outbound call.
const DefaultRequestTimeout = 30 * time.Second

// Subscriptions resolves and updates webhook subscriptions.
// *webhook.Service implements it.
type Subscriptions interface {
	ListMatchingEvent(ctx context.Context, orgID string, o webhook.MatchOpts) ([]*webhook.Subscription, error)
	Get(ctx context.Context, subID id.ID) (*webhook.Subscription, error)
	RecordDeliveryStatus(ctx context.Context, subID id.ID, status webhook.Status)
}

// Logs appends delivery history. *deliverylog.Service implements it.
type Logs interface {
	Append(ctx context.Context, e *deliverylog.Entry) error
}

// EventLoader loads events by id.
type EventLoader interface {
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
}

// Scheduler enqueues unique jobs. *jobs.Queue implements it.
type Scheduler interface {
	Schedule(ctx context.Context, name, key string, payload any) (bool, error)
}

// Config holds worker configuration.
type Config struct {
	RequestTimeout time.Duration
	// HTTPClient overrides the default client. RequestTimeout is ignored
	// when set.
	HTTPClient *http.Client
	Metrics    *observability.Metrics
	Tracer     *observability.Tracer
}

// Worker delivers events to webhook subscriptions.
type Worker struct {
	subs      Subscriptions
	events    EventLoader
	logs      Logs
	scheduler Scheduler
	sender    *Sender
	config    Config
	logger    *slog.Logger
}

// NewWorker creates a delivery worker.
func NewWorker(subs Subscriptions, events EventLoader, logs Logs, scheduler Scheduler, cfg Config, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Worker{
		subs:      subs,
		events:    events,
		logs:      logs,
		scheduler: scheduler,
		sender:    NewSender(cfg.HTTPClient, cfg.RequestTimeout),
		config:    cfg,
		logger:    logger,
	}
}

// Name implements dispatch.Handler.
func (w *Worker) Name() string { return HandlerName }

// Attach registers the delivery job with q.
func (w *Worker) Attach(q *jobs.Queue) error {
	return q.Register(JobName, w.runJob)
}

type jobPayload struct {
	EventID   string `json:"eventId"`
	WebhookID string `json:"webhookId"`
}

// Handle schedules one delivery per subscription that wants evt. It
// implements dispatch.Handler.
func (w *Worker) Handle(ctx context.Context, evt *event.Event) error {
	subs, err := w.targets(ctx, evt)
	if err != nil {
		return err
	}

	var errs []error
	for _, sub := range subs {
		key := evt.ID.String() + ":" + sub.ID.String()
		scheduled, err := w.scheduler.Schedule(ctx, JobName, key, jobPayload{
			EventID:   evt.ID.String(),
			WebhookID: sub.ID.String(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("schedule delivery to %s: %w", sub.ID, err))
			continue
		}
		if !scheduled {
			w.logger.DebugContext(ctx, "delivery already scheduled",
				"event_id", evt.ID.String(),
				"webhook_id", sub.ID.String(),
			)
		}
	}
	return errors.Join(errs...)
}

func (w *Worker) targets(ctx context.Context, evt *event.Event) ([]*webhook.Subscription, error) {
	if evt.EventName == TestEventName {
		return w.testTarget(ctx, evt)
	}

	matches, err := w.subs.ListMatchingEvent(ctx, evt.OrganizationID, webhook.MatchOpts{
		EventName: evt.EventName,
		Enabled:   true,
		Tags:      evt.Data.Tags,
		Projects:  evt.Data.Projects,
	})
	if err != nil {
		return nil, fmt.Errorf("list matching webhooks: %w", err)
	}

	result := matches[:0]
	for _, sub := range matches {
		if webhook.MatchEnvironments(sub, evt.Data.Environments) {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (w *Worker) testTarget(ctx context.Context, evt *event.Event) ([]*webhook.Subscription, error) {
	raw, _ := evt.Data.Data.Object["webhookId"].(string)
	subID, err := id.ParseWebhookID(raw)
	if err != nil {
		return nil, fmt.Errorf("test event: %w", err)
	}
	sub, err := w.subs.Get(ctx, subID)
	if errors.Is(err, webhook.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sub.OrganizationID != evt.OrganizationID {
		return nil, nil
	}
	return []*webhook.Subscription{sub}, nil
}

func (w *Worker) runJob(ctx context.Context, job *jobs.Job) error {
	var p jobPayload
	if err := job.Decode(&p); err != nil {
		return fmt.Errorf("decode delivery payload: %w", err)
	}
	evtID, err := id.ParseEventID(p.EventID)
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	subID, err := id.ParseWebhookID(p.WebhookID)
	if err != nil {
		return fmt.Errorf("delivery: %w", err)
	}
	return w.Deliver(ctx, evtID, subID)
}

// Deliver sends one event to one subscription and records the outcome.
// Only lookup failures are returned; the call's own outcome never is.
func (w *Worker) Deliver(ctx context.Context, evtID, subID id.ID) error {
	sub, err := w.subs.Get(ctx, subID)
	if errors.Is(err, webhook.ErrNotFound) {
		w.logger.DebugContext(ctx, "webhook gone before delivery", "webhook_id", subID.String())
		return nil
	}
	if err != nil {
		return fmt.Errorf("load webhook %s: %w", subID, err)
	}

	evt, err := w.events.GetEvent(ctx, evtID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", evtID, err)
	}

	if !sub.Enabled && evt.EventName != TestEventName {
		w.logger.DebugContext(ctx, "webhook disabled before delivery", "webhook_id", subID.String())
		return nil
	}

	ctx, span := w.config.Tracer.StartDeliverySpan(ctx, evtID.String(), subID.String())

	body, err := Format(sub.PayloadType, evt)
	var res Result
	if err != nil {
		res = Result{Error: fmt.Sprintf("format payload: %v", err)}
	} else {
		res = w.send(ctx, sub, evt, body)
	}

	w.record(ctx, sub, evt, body, res)
	w.config.Tracer.EndDeliverySpan(span, res.StatusCode, res.LatencyMs, failureOf(res))
	return nil
}

func (w *Worker) send(ctx context.Context, sub *webhook.Subscription, evt *event.Event, body []byte) Result {
	msgID := evt.ID.String()
	return w.sender.Send(ctx, Request{
		Method:  string(sub.Method),
		URL:     sub.URL,
		Body:    body,
		Headers: sub.Headers,
		Signed:  signature.Headers(msgID, time.Now().Unix(), body, sub.SigningKey),
	})
}

func (w *Worker) record(ctx context.Context, sub *webhook.Subscription, evt *event.Event, body []byte, res Result) {
	entry := &deliverylog.Entry{
		WebhookID:      sub.ID,
		OrganizationID: sub.OrganizationID,
		EventID:        evt.ID,
		Payload:        body,
	}
	if res.StatusCode != 0 {
		code := res.StatusCode
		entry.ResponseCode = &code
	}

	latency := float64(res.LatencyMs) / 1000
	if res.Success() {
		entry.Result = deliverylog.ResultSuccess
		entry.ResponseBody = res.Response
		w.subs.RecordDeliveryStatus(ctx, sub.ID, webhook.Succeeded(res.Response))
		w.config.Metrics.RecordDelivery(observability.ResultSuccess, latency)
	} else {
		entry.Result = deliverylog.ResultError
		entry.ResponseBody = res.Response
		if entry.ResponseBody == "" {
			entry.ResponseBody = res.ErrorMessage()
		}
		w.subs.RecordDeliveryStatus(ctx, sub.ID, webhook.Failed(res.ErrorMessage()))
		w.config.Metrics.RecordDelivery(observability.ResultError, latency)
		w.logger.WarnContext(ctx, "webhook delivery failed",
			"event_id", evt.ID.String(),
			"webhook_id", sub.ID.String(),
			"status_code", res.StatusCode,
			"error", res.ErrorMessage(),
		)
	}

	if err := w.logs.Append(ctx, entry); err != nil {
		w.logger.ErrorContext(ctx, "append delivery log failed",
			"event_id", evt.ID.String(),
			"webhook_id", sub.ID.String(),
			"error", err,
		)
	}
}

func failureOf(res Result) string {
	if res.Success() {
		return ""
	}
	return res.ErrorMessage()
}
