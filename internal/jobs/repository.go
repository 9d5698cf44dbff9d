package jobs

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Store keeps the progress of long-running jobs so any instance can answer a
// status poll. Get returns (nil, nil) for unknown or expired ids.
type Store interface {
	Start(ctx context.Context, kind string, total int) (*model.JobStatus, error)
	Progress(ctx context.Context, id string, processed int) error
	Finish(ctx context.Context, id, message string, result any) error
	Fail(ctx context.Context, id string, cause error) error
	Get(ctx context.Context, id string) (*model.JobStatus, error)
}

// Locker is a best-effort mutual exclusion keyed by name. value identifies the
// holder so only it can release the lock.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}
