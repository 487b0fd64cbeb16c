package notify

import (
	"log/slog"
	"net/http"
	"time"

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

// Notifier is the root of the notification pipeline.
type Notifier struct {
	config     Config
	store      store.Store
	jobStore   jobs.Store
	registry   *taxonomy.Registry
	httpClient *http.Client
	chatSource chat.Source
	extra      []dispatch.Handler
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	logger     *slog.Logger

	events     *event.Service
	webhooks   *webhook.Service
	logs       *deliverylog.Service
	queue      *jobs.Queue
	dispatcher *dispatch.Dispatcher
	worker     *delivery.Worker
	audit      *audit.Reader
}

// Option configures a Notifier instance.
type Option func(*Notifier) error

// New creates a new Notifier with the given options.
func New(opts ...Option) (*Notifier, error) {
	n := &Notifier{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	if n.store == nil {
		return nil, ErrNoStore
	}
	if err := n.wireServices(); err != nil {
		return nil, err
	}
	return n, nil
}

// WithStore sets the persistence backend. It also stores jobs unless
// WithJobStore is given.
func WithStore(s store.Store) Option {
	return func(n *Notifier) error {
		n.store = s
		return nil
	}
}

// WithJobStore sets a separate backend for the job queue.
func WithJobStore(s jobs.Store) Option {
	return func(n *Notifier) error {
		n.jobStore = s
		return nil
	}
}

// WithRegistry replaces the default event taxonomy.
func WithRegistry(r *taxonomy.Registry) Option {
	return func(n *Notifier) error {
		n.registry = r
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Notifier) error {
		n.logger = logger
		return nil
	}
}

// WithConcurrency sets the number of job worker goroutines.
func WithConcurrency(c int) Option {
	return func(n *Notifier) error {
		n.config.Concurrency = c
		return nil
	}
}

// WithPollInterval sets how often the job queue checks for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of jobs claimed per poll cycle.
func WithBatchSize(size int) Option {
	return func(n *Notifier) error {
		n.config.BatchSize = size
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per outbound request.
func WithRequestTimeout(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.RequestTimeout = d
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for running jobs on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(n *Notifier) error {
		n.config.ShutdownTimeout = d
		return nil
	}
}

// WithAPIVersion sets the api_version stamped on payloads.
func WithAPIVersion(v string) Option {
	return func(n *Notifier) error {
		n.config.APIVersion = v
		return nil
	}
}

// WithHTTPClient sets the client used for webhook and chat requests.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) error {
		n.httpClient = c
		return nil
	}
}

// WithHandler registers an additional dispatch handler. Handlers run after
// the built-in ones, in the order given.
func WithHandler(h dispatch.Handler) Option {
	return func(n *Notifier) error {
		n.extra = append(n.extra, h)
		return nil
	}
}

// WithMetrics enables prometheus metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(n *Notifier) error {
		n.metrics = m
		return nil
	}
}

// WithTracer sets the OpenTelemetry tracer wrapper.
func WithTracer(t *observability.Tracer) Option {
	return func(n *Notifier) error {
		n.tracer = t
		return nil
	}
}

// WithChatSource enables the chat integration handler.
func WithChatSource(src chat.Source) Option {
	return func(n *Notifier) error {
		n.chatSource = src
		return nil
	}
}
