package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
)

type MemoryRepository struct {
	DB *memdb.DB
}

func NewMemoryRepository(store *memdb.DB) *MemoryRepository {
	return &MemoryRepository{DB: store}
}

func (r *MemoryRepository) Create(ctx context.Context, o *model.Order) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if _, ok := tbl.Orders[o.ID]; ok {
			return fmt.Errorf("order %s already exists", o.ID)
		}
		stored := *o
		stored.Items = slices.Clone(o.Items)
		tbl.Orders[o.ID] = stored
		return nil
	})
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	var out *model.Order
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if o, ok := tbl.Orders[id]; ok {
			o.Items = slices.Clone(o.Items)
			out = &o
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) LockByID(ctx context.Context, id string) (*model.Order, error) {
	if !r.DB.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	return r.FindByID(ctx, id)
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, o *model.Order) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		stored, ok := tbl.Orders[o.ID]
		if !ok {
			return fmt.Errorf("order %s: %w", o.ID, sql.ErrNoRows)
		}
		stored.Status = o.Status
		stored.CompletedAt = o.CompletedAt
		stored.CancelledAt = o.CancelledAt
		stored.UpdatedAt = o.UpdatedAt
		tbl.Orders[o.ID] = stored
		return nil
	})
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.OrderFilters) ([]model.Order, int, error) {
	var items []model.Order
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, o := range tbl.Orders {
			if f.CustomerID != "" && o.CustomerID != f.CustomerID {
				continue
			}
			if f.Status != "" && string(o.Status) != f.Status {
				continue
			}
			o.Items = slices.Clone(o.Items)
			items = append(items, o)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})

	total := len(items)
	if f.PageSize > 0 {
		page := max(f.Page, 1)
		start := min((page-1)*f.PageSize, total)
		end := min(start+f.PageSize, total)
		items = items[start:end]
	}
	return items, total, nil
}
