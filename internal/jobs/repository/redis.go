package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "job:"

type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, TTL: ttl, now: time.Now}
}

func (s *RedisStore) Start(ctx context.Context, kind string, total int) (*model.JobStatus, error) {
	now := s.now().UTC()
	job := &model.JobStatus{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     model.JobQueued,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
	if err := s.save(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *RedisStore) Progress(ctx context.Context, id string, processed int) error {
	return s.update(ctx, id, func(job *model.JobStatus) {
		job.State = model.JobRunning
		job.Processed = processed
	})
}

func (s *RedisStore) Finish(ctx context.Context, id, message string, result any) error {
	return s.update(ctx, id, func(job *model.JobStatus) {
		job.State = model.JobDone
		job.Processed = job.Total
		job.Message = message
		job.Result = result
	})
}

func (s *RedisStore) Fail(ctx context.Context, id string, cause error) error {
	return s.update(ctx, id, func(job *model.JobStatus) {
		job.State = model.JobFailed
		job.Message = cause.Error()
	})
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.JobStatus, error) {
	data, err := s.Client.Get(ctx, keyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	var job model.JobStatus
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", id, err)
	}
	return &job, nil
}

// update is a read-modify-write; each job has a single writer, the goroutine
// running it.
func (s *RedisStore) update(ctx context.Context, id string, fn func(*model.JobStatus)) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s expired or unknown", id)
	}
	fn(job)
	job.UpdatedAt = s.now().UTC()
	return s.save(ctx, job)
}

func (s *RedisStore) save(ctx context.Context, job *model.JobStatus) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.Client.Set(ctx, keyPrefix+job.ID, data, s.TTL).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}
