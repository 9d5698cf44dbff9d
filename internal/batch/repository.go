package batch

import (
	"context"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type Repository interface {
	Create(ctx context.Context, b *model.Batch) error
	FindByID(ctx context.Context, id string) (*model.Batch, error)
	// LockByID and LockActiveByProduct must run inside a transaction.
	LockByID(ctx context.Context, id string) (*model.Batch, error)
	LockActiveByProduct(ctx context.Context, productID string) ([]model.Batch, error)
	Update(ctx context.Context, b *model.Batch) error

	ListByProduct(ctx context.Context, productID string) ([]model.Batch, error)
	ListExpiring(ctx context.Context, before time.Time) ([]model.Batch, error)
	// SumByProduct totals batch quantities per product, for products that have
	// at least one batch. An empty productID means every product.
	SumByProduct(ctx context.Context, productID string) (map[string]int, error)
}
