package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/observability"
)

// Config holds queue configuration.
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	BatchSize    int
	Metrics      *observability.Metrics
}

// Queue schedules jobs into a Store and runs them with registered handlers.
type Queue struct {
	store  Store
	config Config
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewQueue creates a job queue.
func NewQueue(store Store, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Queue{
		store:    store,
		config:   cfg,
		logger:   logger,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job name. Each name can be bound once.
func (q *Queue) Register(name string, h Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.handlers[name]; ok {
		return fmt.Errorf("%w: %s", ErrHandlerExists, name)
	}
	q.handlers[name] = h
	return nil
}

// Schedule enqueues a job under (name, key). It reports false, with no
// error, when that pair was already scheduled.
func (q *Queue) Schedule(ctx context.Context, name, key string, payload any) (bool, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("encode %s payload: %w", name, err)
	}

	now := entity.Now()
	job := &Job{
		ID:          uuid.New(),
		Name:        name,
		Key:         key,
		Payload:     raw,
		State:       StatePending,
		RunAt:       now,
		DateCreated: now,
	}

	err = q.store.EnqueueJob(ctx, job)
	if errors.Is(err, ErrDuplicateJob) {
		q.logger.DebugContext(ctx, "job already scheduled", "job", name, "key", key)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("schedule %s: %w", name, err)
	}
	return true, nil
}

// Start begins the poll loop and workers.
func (q *Queue) Start(ctx context.Context) {
	ctx, q.cancel = context.WithCancel(ctx)

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		q.pollLoop(ctx)
	}()
}

// Stop cancels the poll loop and waits for running jobs to finish.
func (q *Queue) Stop(_ context.Context) {
	if q.cancel != nil {
		q.cancel()
	}
	q.wg.Wait()
}

// RunPending runs due jobs in the calling goroutine until none are left,
// including jobs scheduled by the jobs it runs. It returns how many ran.
func (q *Queue) RunPending(ctx context.Context) (int, error) {
	n := 0
	for {
		batch, err := q.store.DequeueJobs(ctx, q.config.BatchSize)
		if err != nil {
			return n, err
		}
		if len(batch) == 0 {
			return n, nil
		}
		for _, job := range batch {
			q.run(ctx, job)
			n++
		}
	}
}

func (q *Queue) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(q.config.PollInterval)
	defer ticker.Stop()

	sem := make(chan struct{}, q.config.Concurrency)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pending, err := q.store.CountPendingJobs(ctx); err == nil {
				q.config.Metrics.SetPendingJobs(pending)
			}

			batch, err := q.store.DequeueJobs(ctx, q.config.BatchSize)
			if err != nil {
				q.logger.ErrorContext(ctx, "dequeue jobs failed", "error", err)
				continue
			}

			for _, job := range batch {
				select {
				case <-ctx.Done():
					// Claimed but never started.
					q.finish(context.WithoutCancel(ctx), job, ctx.Err())
					continue
				case sem <- struct{}{}:
				}

				q.wg.Add(1)
				go func(j *Job) {
					defer q.wg.Done()
					defer func() { <-sem }()
					q.run(ctx, j)
				}(job)
			}
		}
	}
}

// run executes one claimed job and records its outcome.
func (q *Queue) run(ctx context.Context, job *Job) {
	q.mu.RLock()
	h, ok := q.handlers[job.Name]
	q.mu.RUnlock()

	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrNoHandler, job.Name)
	} else {
		err = q.invoke(ctx, h, job)
	}
	q.finish(context.WithoutCancel(ctx), job, err)
}

func (q *Queue) invoke(ctx context.Context, h Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h(ctx, job)
}

func (q *Queue) finish(ctx context.Context, job *Job, err error) {
	now := entity.Now()
	job.CompletedAt = &now
	if err != nil {
		job.State = StateFailed
		job.Error = err.Error()
		q.logger.ErrorContext(ctx, "job failed",
			"job", job.Name,
			"job_id", job.ID.String(),
			"key", job.Key,
			"error", err,
		)
	} else {
		job.State = StateDone
		job.Error = ""
	}

	if cerr := q.store.CompleteJob(ctx, job); cerr != nil {
		q.logger.ErrorContext(ctx, "complete job failed",
			"job", job.Name,
			"job_id", job.ID.String(),
			"error", cerr,
		)
	}
}
