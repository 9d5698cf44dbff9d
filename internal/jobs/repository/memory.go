package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/google/uuid"
)

type memoryEntry struct {
	job       model.JobStatus
	expiresAt time.Time
}

// MemoryStore keeps job statuses in process. Expired entries are swept on
// every write.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]memoryEntry
	ttl  time.Duration
	now  func() time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{jobs: map[string]memoryEntry{}, ttl: ttl, now: time.Now}
}

func (s *MemoryStore) Start(_ context.Context, kind string, total int) (*model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.sweep(now)
	job := model.JobStatus{
		ID:        uuid.NewString(),
		Kind:      kind,
		State:     model.JobQueued,
		Total:     total,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.jobs[job.ID] = memoryEntry{job: job, expiresAt: now.Add(s.ttl)}
	return &job, nil
}

func (s *MemoryStore) Progress(_ context.Context, id string, processed int) error {
	return s.update(id, func(job *model.JobStatus) {
		job.State = model.JobRunning
		job.Processed = processed
	})
}

func (s *MemoryStore) Finish(_ context.Context, id, message string, result any) error {
	return s.update(id, func(job *model.JobStatus) {
		job.State = model.JobDone
		job.Processed = job.Total
		job.Message = message
		job.Result = result
	})
}

func (s *MemoryStore) Fail(_ context.Context, id string, cause error) error {
	return s.update(id, func(job *model.JobStatus) {
		job.State = model.JobFailed
		job.Message = cause.Error()
	})
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.jobs[id]
	if !ok || !s.now().Before(e.expiresAt) {
		return nil, nil
	}
	job := e.job
	return &job, nil
}

func (s *MemoryStore) update(id string, fn func(*model.JobStatus)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	s.sweep(now)
	e, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s expired or unknown", id)
	}
	fn(&e.job)
	e.job.UpdatedAt = now
	e.expiresAt = now.Add(s.ttl)
	s.jobs[id] = e
	return nil
}

func (s *MemoryStore) sweep(now time.Time) {
	for id, e := range s.jobs {
		if !now.Before(e.expiresAt) {
			delete(s.jobs, id)
		}
	}
}

// MemoryLocker is the single-instance stand-in for the Redis lock.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]memoryLock
	now  func() time.Time
}

type memoryLock struct {
	value     string
	expiresAt time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: map[string]memoryLock{}, now: time.Now}
}

func (l *MemoryLocker) AcquireLock(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if cur, ok := l.held[key]; ok && now.Before(cur.expiresAt) {
		return false, nil
	}
	l.held[key] = memoryLock{value: value, expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) ReleaseLock(_ context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.held[key]; ok && cur.value == value {
		delete(l.held, key)
	}
	return nil
}
