package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/growthbook/notify/delivery"
	"github.com/growthbook/notify/event"
	"github.com/growthbook/notify/observability"
	"github.com/growthbook/notify/ratelimit"
)

// HandlerName is the dispatch handler name of the chat sink.
const HandlerName = "chat"

// Defaults.
const (
	DefaultRatePerSecond   = 1
	DefaultMaxTries        = 4
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 10 * time.Second
	DefaultMaxElapsedTime  = time.Minute
	DefaultRequestTimeout  = 10 * time.Second
)

// Config holds chat handler configuration. Zero values take the defaults.
type Config struct {
	// RatePerSecond limits calls per integration URL.
	RatePerSecond   int
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	RequestTimeout  time.Duration
	HTTPClient      *http.Client
	Metrics         *observability.Metrics
}

func (c *Config) applyDefaults() {
	if c.RatePerSecond <= 0 {
		c.RatePerSecond = DefaultRatePerSecond
	}
	if c.MaxTries == 0 {
		c.MaxTries = DefaultMaxTries
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = DefaultInitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = DefaultMaxInterval
	}
	if c.MaxElapsedTime <= 0 {
		c.MaxElapsedTime = DefaultMaxElapsedTime
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
}

// Handler is the dispatch handler that posts events to chat integrations.
type Handler struct {
	source  Source
	sender  *delivery.Sender
	limiter *ratelimit.Limiter
	config  Config
	logger  *slog.Logger
}

// NewHandler creates a chat handler.
func NewHandler(source Source, cfg Config, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.applyDefaults()
	return &Handler{
		source:  source,
		sender:  delivery.NewSender(cfg.HTTPClient, cfg.RequestTimeout),
		limiter: ratelimit.New(),
		config:  cfg,
		logger:  logger,
	}
}

// Name implements dispatch.Handler.
func (h *Handler) Name() string { return HandlerName }

// Handle posts evt to every integration that wants it. Events that carry
// secrets are never sent to chat.
func (h *Handler) Handle(ctx context.Context, evt *event.Event) error {
	if evt.Data.ContainsSecrets {
		return nil
	}

	integrations, err := h.source.Integrations(ctx, evt.OrganizationID)
	if err != nil {
		return fmt.Errorf("list chat integrations: %w", err)
	}

	var errs []error
	for _, in := range integrations {
		if !in.Wants(evt) {
			continue
		}
		if err := h.post(ctx, in, evt); err != nil {
			h.config.Metrics.RecordChatMessage(string(in.Kind), observability.ResultError)
			h.logger.WarnContext(ctx, "chat message failed",
				"integration", in.Name,
				"kind", string(in.Kind),
				"event_id", evt.ID.String(),
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", in.Name, err))
			continue
		}
		h.config.Metrics.RecordChatMessage(string(in.Kind), observability.ResultSuccess)
	}
	return errors.Join(errs...)
}

func (h *Handler) post(ctx context.Context, in Integration, evt *event.Event) error {
	body, err := delivery.Format(in.Kind, evt)
	if err != nil {
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.config.InitialInterval
	b.MaxInterval = h.config.MaxInterval

	attempt := 0
	_, err = backoff.Retry(ctx, func() (delivery.Result, error) {
		attempt++
		if err := h.limiter.Wait(ctx, in.URL, h.config.RatePerSecond); err != nil {
			return delivery.Result{}, backoff.Permanent(err)
		}
		res := h.sender.Send(ctx, delivery.Request{URL: in.URL, Body: body})
		if res.Success() {
			return res, nil
		}
		err := errors.New(res.ErrorMessage())
		if permanent(res.StatusCode) {
			return res, backoff.Permanent(err)
		}
		return res, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(h.config.MaxTries),
		backoff.WithMaxElapsedTime(h.config.MaxElapsedTime),
		backoff.WithNotify(func(err error, next time.Duration) {
			h.logger.DebugContext(ctx, "retrying chat message",
				"integration", in.Name,
				"attempt", attempt,
				"delay", next.String(),
				"error", err,
			)
		}),
	)
	return err
}

// permanent reports whether a status will not change on retry. 429 is
// retried.
func permanent(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}
