package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
)

// MemoryRepository backs local runs and tests. Locking is implied by memdb
// serialising whole transactions.
type MemoryRepository struct {
	DB *memdb.DB
}

func NewMemoryRepository(store *memdb.DB) *MemoryRepository {
	return &MemoryRepository{DB: store}
}

func (r *MemoryRepository) GetByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	var out *model.Inventory
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if inv, ok := tbl.Inventories[productID]; ok {
			out = &inv
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) LockByProducts(ctx context.Context, productIDs []string) (map[string]*model.Inventory, error) {
	if !r.DB.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	result := make(map[string]*model.Inventory, len(productIDs))
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, id := range productIDs {
			if inv, ok := tbl.Inventories[id]; ok {
				result[id] = &inv
			}
		}
		return nil
	})
	return result, err
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.Inventory, int, error) {
	var items []model.Inventory
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, inv := range tbl.Inventories {
			if f.ProductID != "" && inv.ProductID != f.ProductID {
				continue
			}
			if f.LowStock && !inv.IsLowStock() {
				continue
			}
			items = append(items, inv)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(items, func(i, j int) bool {
		ai := items[i].CurrentStock - items[i].AllocatedStock
		aj := items[j].CurrentStock - items[j].AllocatedStock
		if ai != aj {
			return ai < aj
		}
		return items[i].ProductID < items[j].ProductID
	})
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func (r *MemoryRepository) Create(ctx context.Context, inv *model.Inventory) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if _, ok := tbl.Inventories[inv.ProductID]; ok {
			return fmt.Errorf("inventory for product %s already exists", inv.ProductID)
		}
		tbl.Inventories[inv.ProductID] = *inv
		return nil
	})
}

func (r *MemoryRepository) UpdateStock(ctx context.Context, inv *model.Inventory) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		stored, ok := tbl.Inventories[inv.ProductID]
		if !ok {
			return fmt.Errorf("inventory for product %s: %w", inv.ProductID, sql.ErrNoRows)
		}
		if inv.CurrentStock < 0 || inv.AllocatedStock < 0 {
			return fmt.Errorf("inventory for product %s: negative stock rejected", inv.ProductID)
		}
		stored.CurrentStock = inv.CurrentStock
		stored.AllocatedStock = inv.AllocatedStock
		stored.UpdatedAt = inv.UpdatedAt
		tbl.Inventories[inv.ProductID] = stored
		return nil
	})
}

func (r *MemoryRepository) UpdateReorderLevel(ctx context.Context, productID string, level int) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		stored, ok := tbl.Inventories[productID]
		if !ok {
			return fmt.Errorf("inventory for product %s: %w", productID, sql.ErrNoRows)
		}
		stored.ReorderLevel = level
		tbl.Inventories[productID] = stored
		return nil
	})
}

func (r *MemoryRepository) LogMovement(ctx context.Context, m *model.StockMovement) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		tbl.Movements = append(tbl.Movements, *m)
		return nil
	})
}

func (r *MemoryRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	var items []model.StockMovement
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		// newest first, matching the Postgres ordering
		for i := len(tbl.Movements) - 1; i >= 0; i-- {
			m := tbl.Movements[i]
			if f.ProductID != "" && m.ProductID != f.ProductID {
				continue
			}
			if f.MovementType != "" && string(m.MovementType) != f.MovementType {
				continue
			}
			if f.Reference != "" && (m.Reference == nil || *m.Reference != f.Reference) {
				continue
			}
			if f.StartDate != nil && m.CreatedAt.Before(*f.StartDate) {
				continue
			}
			if f.EndDate != nil && !m.CreatedAt.Before(*f.EndDate) {
				continue
			}
			items = append(items, m)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return paginate(items, f.Page, f.PageSize), len(items), nil
}

func paginate[T any](items []T, page, pageSize int) []T {
	if pageSize <= 0 {
		return items
	}
	if page < 1 {
		page = 1
	}
	start := (page - 1) * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
