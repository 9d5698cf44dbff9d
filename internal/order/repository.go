package order

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
)

type Repository interface {
	// Create inserts the header and its items.
	Create(ctx context.Context, order *model.Order) error
	FindByID(ctx context.Context, id string) (*model.Order, error)
	// LockByID must run inside a transaction; items are loaded too.
	LockByID(ctx context.Context, id string) (*model.Order, error)
	UpdateStatus(ctx context.Context, order *model.Order) error
	FindAll(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error)
}
