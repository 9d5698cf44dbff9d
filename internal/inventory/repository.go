package inventory

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

type Repository interface {
	// Inventory records
	GetByProduct(ctx context.Context, productID string) (*model.Inventory, error)
	// LockByProducts must run inside a transaction. Rows are locked in ascending
	// product id order; missing products are absent from the result.
	LockByProducts(ctx context.Context, productIDs []string) (map[string]*model.Inventory, error)
	FindAll(ctx context.Context, filters *dto.InventoryFilters) ([]model.Inventory, int, error)
	Create(ctx context.Context, inv *model.Inventory) error
	UpdateStock(ctx context.Context, inv *model.Inventory) error
	UpdateReorderLevel(ctx context.Context, productID string, level int) error

	// Movements / Audit
	LogMovement(ctx context.Context, movement *model.StockMovement) error
	ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error)
}
