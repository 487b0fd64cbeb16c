// Package dispatch fans persisted events out to notification handlers.
//
// Creating an event schedules one dispatch job keyed by the event id, so an
// event is dispatched at most once. The job runs every registered handler
// in order; a failing or panicking handler is logged and counted but never
// stops the others.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/id"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/taxonomy"
)

// JobName is the queue name of dispatch jobs.
const JobName = "notifications.dispatch"

// ErrEventMissing is returned by a dispatch job whose event does not exist.
// Jobs are only scheduled for persisted events, so this is a bug.
var ErrEventMissing = errors.New("notify: dispatched event does not exist")

// Handler reacts to dispatched events.
type Handler interface {
	Name() string
	Handle(ctx context.Context, evt *event.Event) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx context.Context, evt *event.Event) error
}

// Name implements Handler.
func (f HandlerFunc) Name() string { return f.HandlerName }

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt *event.Event) error { return f.Fn(ctx, evt) }

// EventLoader loads events by id.
type EventLoader interface {
	GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error)
}

// Scheduler enqueues unique jobs. *jobs.Queue implements it.
type Scheduler interface {
	Schedule(ctx context.Context, name, key string, payload any) (bool, error)
}

// Config holds dispatcher configuration.
type Config struct {
	// Registry enables the read-time consistency check. Optional.
	Registry *taxonomy.Registry
	Metrics  *observability.Metrics
	Tracer   *observability.Tracer
}

// Dispatcher schedules and runs dispatch jobs.
type Dispatcher struct {
	events    EventLoader
	scheduler Scheduler
	config    Config
	logger    *slog.Logger

	mu       sync.RWMutex
	handlers []Handler
}

// New creates a dispatcher.
func New(events EventLoader, scheduler Scheduler, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		events:    events,
		scheduler: scheduler,
		config:    cfg,
		logger:    logger,
	}
}

// Register appends h to the handler list. Handlers run in registration order.
func (d *Dispatcher) Register(h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, h)
}

// Handlers returns the registered handler names.
func (d *Dispatcher) Handlers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, len(d.handlers))
	for i, h := range d.handlers {
		names[i] = h.Name()
	}
	return names
}

// Attach registers the dispatch job with q. It can be attached once.
func (d *Dispatcher) Attach(q *jobs.Queue) error {
	return q.Register(JobName, d.runJob)
}

type jobPayload struct {
	EventID string `json:"eventId"`
}

// EventCreated schedules the dispatch job for evt. It implements
// event.Notifier.
func (d *Dispatcher) EventCreated(ctx context.Context, evt *event.Event) error {
	key := evt.ID.String()
	scheduled, err := d.scheduler.Schedule(ctx, JobName, key, jobPayload{EventID: key})
	if err != nil {
		return err
	}
	if !scheduled {
		d.logger.DebugContext(ctx, "dispatch already scheduled", "event_id", key)
	}
	return nil
}

func (d *Dispatcher) runJob(ctx context.Context, job *jobs.Job) error {
	var p jobPayload
	if err := job.Decode(&p); err != nil {
		return fmt.Errorf("decode dispatch payload: %w", err)
	}
	evtID, err := id.ParseEventID(p.EventID)
	if err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	return d.Dispatch(ctx, evtID)
}

// Dispatch loads an event and runs every handler on it. Handler failures
// are logged, never returned; only a missing event is an error.
func (d *Dispatcher) Dispatch(ctx context.Context, evtID id.ID) error {
	ctx, span := d.config.Tracer.StartDispatchSpan(ctx, evtID.String())

	evt, err := d.events.GetEvent(ctx, evtID)
	if err != nil {
		d.config.Metrics.RecordDispatch(observability.ResultError)
		d.config.Tracer.EndDispatchSpan(span, 0, 0)
		if errors.Is(err, event.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrEventMissing, evtID)
		}
		return fmt.Errorf("load event %s: %w", evtID, err)
	}

	if d.config.Registry != nil {
		if verr := event.Verify(d.config.Registry, evt); verr != nil {
			d.logger.WarnContext(ctx, "stored event does not match its schema",
				"event_id", evt.ID.String(),
				"event", evt.EventName,
				"error", verr,
			)
		}
	}

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.RUnlock()

	failures := 0
	for _, h := range handlers {
		if herr := d.invoke(ctx, h, evt); herr != nil {
			failures++
			d.config.Metrics.RecordHandlerFailure(h.Name())
			d.logger.ErrorContext(ctx, "notification handler failed",
				"handler", h.Name(),
				"event_id", evt.ID.String(),
				"event", evt.EventName,
				"error", herr,
			)
		}
	}

	d.config.Metrics.RecordDispatch(observability.ResultSuccess)
	d.config.Tracer.EndDispatchSpan(span, len(handlers), failures)
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.Handle(ctx, evt)
}
