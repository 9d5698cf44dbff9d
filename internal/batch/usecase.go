package batch

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/batch/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	ReceiveBatch(ctx context.Context, input *dto.ReceiveBatchInput) (*model.Batch, error)
	DisposeBatch(ctx context.Context, input *dto.DisposeBatchInput) (*model.Batch, error)
	ArchiveBatch(ctx context.Context, batchID string) (*model.Batch, error)
	RestoreBatch(ctx context.Context, batchID string) (*model.Batch, error)
	MarkForReturn(ctx context.Context, batchID string) (*model.Batch, error)
	GetBatch(ctx context.Context, batchID string) (*model.Batch, error)
	ListBatches(ctx context.Context, productID string) ([]model.Batch, error)
	ListExpiring(ctx context.Context, withinDays int) ([]dto.ExpiringBatch, error)
	Reconcile(ctx context.Context, productID string) ([]dto.Drift, error)
}
