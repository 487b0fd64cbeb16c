// Package jobs is a small persistent job queue with per-name uniqueness keys.
//
// A job is scheduled under a (name, key) pair. The pair is unique for the
// lifetime of the store: scheduling it again is a no-op, so a job runs at
// most once even if the code that schedules it is retried.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateJob is returned by Store.EnqueueJob when (name, key) exists.
	ErrDuplicateJob = errors.New("notify: duplicate job")

	// ErrHandlerExists is returned when a job name is registered twice.
	ErrHandlerExists = errors.New("notify: job handler already registered")

	// ErrNoHandler is recorded on jobs whose name has no handler.
	ErrNoHandler = errors.New("notify: no handler for job")
)

// State is the lifecycle state of a job.
type State string

// Job states.
const (
	StatePending State = "pending"
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

// Job is one unit of scheduled work.
type Job struct {
	ID      uuid.UUID       `json:"id"`
	Name    string          `json:"name"`
	Key     string          `json:"key"`
	Payload json.RawMessage `json:"payload"`

	State    State  `json:"state"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`

	RunAt       time.Time  `json:"runAt"`
	DateCreated time.Time  `json:"dateCreated"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Decode unmarshals the job payload into v.
func (j *Job) Decode(v any) error {
	return json.Unmarshal(j.Payload, v)
}

// Store persists jobs.
type Store interface {
	// EnqueueJob persists a pending job. It returns ErrDuplicateJob when a
	// job with the same name and key was ever enqueued.
	EnqueueJob(ctx context.Context, job *Job) error

	// DequeueJobs atomically claims up to limit pending jobs that are due,
	// marking them running and counting the attempt.
	DequeueJobs(ctx context.Context, limit int) ([]*Job, error)

	// CompleteJob records the final state of a claimed job.
	CompleteJob(ctx context.Context, job *Job) error

	// CountPendingJobs returns the number of jobs waiting to run.
	CountPendingJobs(ctx context.Context) (int64, error)
}

// Handler runs one job.
type Handler func(ctx context.Context, job *Job) error
