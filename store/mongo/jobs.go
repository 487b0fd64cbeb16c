package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/growthbook/notify"
	"github.com/growthbook/notify/jobs"
)

// EnqueueJob inserts a pending job. The unique (name, key) index turns a
// second insert into ErrDuplicateJob.
func (s *Store) EnqueueJob(ctx context.Context, job *jobs.Job) error {
	if _, err := s.mdb.NewInsert(toJobModel(job)).Exec(ctx); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return notify.ErrDuplicateJob
		}
		return fmt.Errorf("notify/mongo: enqueue job: %w", err)
	}
	return nil
}

// DequeueJobs claims due jobs one at a time with FindOneAndUpdate, so
// concurrent workers never receive the same job.
func (s *Store) DequeueJobs(ctx context.Context, limit int) ([]*jobs.Job, error) {
	col := s.mdb.Collection(colJobs)
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetSort(bson.D{{Key: "run_at", Value: 1}})

	result := make([]*jobs.Job, 0, limit)
	for len(result) < limit {
		filter := bson.M{
			"state":  string(jobs.StatePending),
			"run_at": bson.M{"$lte": now()},
		}
		update := bson.M{
			"$set": bson.M{"state": string(jobs.StateRunning)},
			"$inc": bson.M{"attempts": 1},
		}

		var m jobModel
		err := col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m)
		if errors.Is(err, mongod.ErrNoDocuments) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("notify/mongo: dequeue jobs: %w", err)
		}

		j, err := fromJobModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, j)
	}
	return result, nil
}

// CompleteJob writes the job's final state.
func (s *Store) CompleteJob(ctx context.Context, job *jobs.Job) error {
	m := toJobModel(job)
	if _, err := s.mdb.NewUpdate(m).Filter(bson.M{"_id": m.ID}).Exec(ctx); err != nil {
		return fmt.Errorf("notify/mongo: complete job: %w", err)
	}
	return nil
}

// CountPendingJobs returns the number of jobs waiting to run.
func (s *Store) CountPendingJobs(ctx context.Context) (int64, error) {
	count, err := s.mdb.NewFind((*jobModel)(nil)).
		Filter(bson.M{"state": string(jobs.StatePending)}).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("notify/mongo: count pending jobs: %w", err)
	}
	return count, nil
}
