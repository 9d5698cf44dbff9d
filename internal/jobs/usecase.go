package jobs

import (
	"context"
	"io"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

const (
	KindReconciliation = "reconciliation"
	KindStockCount     = "stock_count"
)

type UseCase interface {
	StartReconciliation(ctx context.Context) (*model.JobStatus, error)
	StartStockCount(ctx context.Context, workbook io.Reader) (*model.JobStatus, error)
	GetJob(ctx context.Context, id string) (*model.JobStatus, error)
	// Drain waits for running jobs to finish or ctx to expire.
	Drain(ctx context.Context) error
}
