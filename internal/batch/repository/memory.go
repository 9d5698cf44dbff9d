package repository

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
)

type MemoryRepository struct {
	DB *memdb.DB
}

func NewMemoryRepository(store *memdb.DB) *MemoryRepository {
	return &MemoryRepository{DB: store}
}

func sortFEFO(items []model.Batch) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].ExpiresBefore(&items[j]) {
			return true
		}
		if items[j].ExpiresBefore(&items[i]) {
			return false
		}
		return items[i].ID < items[j].ID
	})
}

func (r *MemoryRepository) Create(ctx context.Context, b *model.Batch) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if _, ok := tbl.Batches[b.ID]; ok {
			return fmt.Errorf("batch %s already exists", b.ID)
		}
		tbl.Batches[b.ID] = *b
		return nil
	})
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.Batch, error) {
	var out *model.Batch
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if b, ok := tbl.Batches[id]; ok {
			out = &b
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) LockByID(ctx context.Context, id string) (*model.Batch, error) {
	if !r.DB.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	return r.FindByID(ctx, id)
}

func (r *MemoryRepository) LockActiveByProduct(ctx context.Context, productID string) ([]model.Batch, error) {
	if !r.DB.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	items, err := r.filter(ctx, func(b model.Batch) bool {
		return b.ProductID == productID && b.Status == model.BatchActive
	})
	return items, err
}

func (r *MemoryRepository) Update(ctx context.Context, b *model.Batch) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		stored, ok := tbl.Batches[b.ID]
		if !ok {
			return fmt.Errorf("batch %s not found", b.ID)
		}
		if b.Quantity < 0 {
			return fmt.Errorf("batch %s: negative quantity rejected", b.ID)
		}
		if b.Status == model.BatchArchived && b.Quantity != 0 {
			return fmt.Errorf("batch %s: archived batch must be empty", b.ID)
		}
		stored.Quantity = b.Quantity
		stored.Status = b.Status
		stored.UpdatedAt = b.UpdatedAt
		tbl.Batches[b.ID] = stored
		return nil
	})
}

func (r *MemoryRepository) ListByProduct(ctx context.Context, productID string) ([]model.Batch, error) {
	return r.filter(ctx, func(b model.Batch) bool { return b.ProductID == productID })
}

func (r *MemoryRepository) ListExpiring(ctx context.Context, before time.Time) ([]model.Batch, error) {
	return r.filter(ctx, func(b model.Batch) bool {
		return b.Status != model.BatchArchived && b.Quantity > 0 &&
			b.ExpiryDate != nil && !b.ExpiryDate.After(before)
	})
}

func (r *MemoryRepository) SumByProduct(ctx context.Context, productID string) (map[string]int, error) {
	out := map[string]int{}
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, b := range tbl.Batches {
			if productID != "" && b.ProductID != productID {
				continue
			}
			out[b.ProductID] += b.Quantity
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) filter(ctx context.Context, keep func(model.Batch) bool) ([]model.Batch, error) {
	var items []model.Batch
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, b := range tbl.Batches {
			if keep(b) {
				items = append(items, b)
			}
		}
		return nil
	})
	sortFEFO(items)
	return items, err
}
