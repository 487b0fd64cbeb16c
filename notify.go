package notify

import (
	"context"
	"fmt"
	"net/http"

	"github.com/growthbook/notify/api"
	"github.com/growthbook/notify/audit"
	"github.com/growthbook/notify/chat"
	"github.com/growthbook/notify/delivery"
	"github.com/growthbook/notify/deliverylog"
	"github.com/growthbook/notify/dispatch"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/jobs"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/store"
	"github.com/growthbook/notify/taxonomy"
	"github.com/growthbook/notify/webhook"
)

// wireServices initializes the internal services after options have been applied.
func (n *Notifier) wireServices() error {
	if n.registry == nil {
		n.registry = taxonomy.Default()
	}
	if n.jobStore == nil {
		n.jobStore = n.store
	}
	if n.tracer == nil {
		n.tracer = observability.NewTracer()
	}

	n.queue = jobs.NewQueue(n.jobStore, jobs.Config{
		Concurrency:  n.config.Concurrency,
		PollInterval: n.config.PollInterval,
		BatchSize:    n.config.BatchSize,
		Metrics:      n.metrics,
	}, n.logger)

	n.dispatcher = dispatch.New(n.store, n.queue, dispatch.Config{
		Registry: n.registry,
		Metrics:  n.metrics,
		Tracer:   n.tracer,
	}, n.logger)

	n.events = event.NewService(n.store, n.registry, event.Config{
		APIVersion: n.config.APIVersion,
		Notifier:   n.dispatcher,
		Metrics:    n.metrics,
	}, n.logger)

	n.webhooks = webhook.NewService(n.store, n.registry, n.logger)
	n.logs = deliverylog.NewService(n.store, n.logger)
	n.audit = audit.NewReader(n.events, nil)

	n.worker = delivery.NewWorker(n.webhooks, n.store, n.logs, n.queue, delivery.Config{
		RequestTimeout: n.config.RequestTimeout,
		HTTPClient:     n.httpClient,
		Metrics:        n.metrics,
		Tracer:         n.tracer,
	}, n.logger)

	n.dispatcher.Register(n.worker)
	n.dispatcher.Register(audit.NewLogHandler(n.logger))
	if n.chatSource != nil {
		n.dispatcher.Register(chat.NewHandler(n.chatSource, chat.Config{
			RequestTimeout: n.config.RequestTimeout,
			HTTPClient:     n.httpClient,
			Metrics:        n.metrics,
		}, n.logger))
	}
	for _, h := range n.extra {
		n.dispatcher.Register(h)
	}

	if err := n.dispatcher.Attach(n.queue); err != nil {
		return fmt.Errorf("notify: attach dispatcher: %w", err)
	}
	if err := n.worker.Attach(n.queue); err != nil {
		return fmt.Errorf("notify: attach delivery worker: %w", err)
	}
	return nil
}

// Start begins processing dispatch and delivery jobs in the background.
func (n *Notifier) Start(ctx context.Context) {
	n.queue.Start(ctx)
	n.logger.InfoContext(ctx, "notify started",
		"concurrency", n.config.Concurrency,
		"handlers", n.dispatcher.Handlers(),
	)
}

// Stop waits for running jobs, giving up after the shutdown timeout.
func (n *Notifier) Stop(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, n.config.ShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		n.queue.Stop(ctx)
		close(done)
	}()

	select {
	case <-done:
		n.logger.InfoContext(ctx, "notify stopped")
	case <-ctx.Done():
		n.logger.WarnContext(ctx, "notify stop timed out, jobs still running",
			"timeout", n.config.ShutdownTimeout,
		)
	}
}

// RunPending runs every due job in the calling goroutine, including the
// delivery jobs that dispatch schedules. It returns how many jobs ran.
func (n *Notifier) RunPending(ctx context.Context) (int, error) {
	return n.queue.RunPending(ctx)
}

// Emit records an event. Failures are logged and reported as a nil event;
// they never reach the caller as an error.
func (n *Notifier) Emit(ctx context.Context, p event.CreateParams) *event.Event {
	return n.events.Emit(ctx, p)
}

// Handler returns the HTTP API.
func (n *Notifier) Handler() http.Handler {
	return api.NewHandler(n.webhooks, n.events, n.logs, n.audit, n.logger)
}

// Events returns the event service.
func (n *Notifier) Events() *event.Service {
	return n.events
}

// Webhooks returns the subscription service.
func (n *Notifier) Webhooks() *webhook.Service {
	return n.webhooks
}

// DeliveryLogs returns the delivery history service.
func (n *Notifier) DeliveryLogs() *deliverylog.Service {
	return n.logs
}

// Audit returns the legacy audit-log reader.
func (n *Notifier) Audit() *audit.Reader {
	return n.audit
}

// Dispatcher returns the event dispatcher.
func (n *Notifier) Dispatcher() *dispatch.Dispatcher {
	return n.dispatcher
}

// Queue returns the job queue.
func (n *Notifier) Queue() *jobs.Queue {
	return n.queue
}

// Registry returns the event taxonomy.
func (n *Notifier) Registry() *taxonomy.Registry {
	return n.registry
}

// Store returns the underlying store.
func (n *Notifier) Store() store.Store {
	return n.store
}
