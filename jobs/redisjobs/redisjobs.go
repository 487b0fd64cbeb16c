// Package redisjobs is a jobs.Store on Redis.
//
// Each job is a JSON string key. Uniqueness is a SETNX key per (name, key)
// that is never deleted; due jobs live in a sorted set scored by run time
// and are claimed with a Lua script so two workers never claim the same job.
package redisjobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/growthbook/notify/internal/entity"
	"github.com/growthbook/notify/jobs"
)

const (
	prefixJob    = "notify:job:"
	prefixUnique = "notify:jobs:unique:"
	keyPending   = "notify:jobs:pending"
)

// claimScript pops up to ARGV[2] members of KEYS[1] scored <= ARGV[1].
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[1], id)
end
return ids
`)

// compile-time interface check.
var _ jobs.Store = (*Store)(nil)

// Store implements jobs.Store on a go-redis client.
type Store struct {
	rdb goredis.UniversalClient
}

// New creates a Redis job store.
func New(rdb goredis.UniversalClient) *Store {
	return &Store{rdb: rdb}
}

func jobKey(id string) string { return prefixJob + id }

func uniqueKey(name, key string) string { return prefixUnique + name + ":" + key }

// EnqueueJob stores a pending job unless (name, key) was seen before.
func (s *Store) EnqueueJob(ctx context.Context, job *jobs.Job) error {
	ok, err := s.rdb.SetNX(ctx, uniqueKey(job.Name, job.Key), job.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("notify/redisjobs: enqueue: %w", err)
	}
	if !ok {
		return jobs.ErrDuplicateJob
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("notify/redisjobs: marshal job: %w", err)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID.String()), data, 0)
	pipe.ZAdd(ctx, keyPending, goredis.Z{
		Score:  float64(job.RunAt.UnixMilli()),
		Member: job.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("notify/redisjobs: enqueue: %w", err)
	}
	return nil
}

// DequeueJobs claims due jobs and marks them running.
func (s *Store) DequeueJobs(ctx context.Context, limit int) ([]*jobs.Job, error) {
	if limit <= 0 {
		limit = 1
	}
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := claimScript.Run(ctx, s.rdb, []string{keyPending}, now, limit).StringSlice()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("notify/redisjobs: claim: %w", err)
	}

	result := make([]*jobs.Job, 0, len(ids))
	for _, jobID := range ids {
		job, err := s.get(ctx, jobID)
		if err != nil {
			return result, err
		}
		if job == nil {
			continue
		}
		job.State = jobs.StateRunning
		job.Attempts++
		if err := s.put(ctx, job); err != nil {
			return result, err
		}
		result = append(result, job)
	}
	return result, nil
}

// CompleteJob stores the job's final state.
func (s *Store) CompleteJob(ctx context.Context, job *jobs.Job) error {
	if job.CompletedAt == nil {
		now := entity.Now()
		job.CompletedAt = &now
	}
	return s.put(ctx, job)
}

// CountPendingJobs returns the size of the pending set.
func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	n, err := s.rdb.ZCard(ctx, keyPending).Result()
	if err != nil {
		return 0, fmt.Errorf("notify/redisjobs: count pending: %w", err)
	}
	return n, nil
}

// GetJob returns a job by ID, or nil when it does not exist.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.Job, error) {
	return s.get(ctx, jobID)
}

func (s *Store) get(ctx context.Context, jobID string) (*jobs.Job, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("notify/redisjobs: get job: %w", err)
	}
	var job jobs.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("notify/redisjobs: unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *Store) put(ctx context.Context, job *jobs.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("notify/redisjobs: marshal job: %w", err)
	}
	if err := s.rdb.Set(ctx, jobKey(job.ID.String()), data, 0).Err(); err != nil {
		return fmt.Errorf("notify/redisjobs: save job: %w", err)
	}
	return nil
}
