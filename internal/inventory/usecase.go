package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type UseCase interface {
	GetAvailableStock(ctx context.Context, productID string) (int, error)
	GetProductInventory(ctx context.Context, productID string) (*model.Inventory, error)
	AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.Inventory, error)
	SetCountedStock(ctx context.Context, input *dto.CountStockInput) (*model.Inventory, *model.StockMovement, error)
	SetReorderLevel(ctx context.Context, productID string, level int) (*model.Inventory, error)
	ListLowStock(ctx context.Context, page, pageSize int) ([]model.Inventory, int, error)
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}
