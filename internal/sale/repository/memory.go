package repository

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"sort"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
)

type MemoryRepository struct {
	DB *memdb.DB
}

func NewMemoryRepository(store *memdb.DB) *MemoryRepository {
	return &MemoryRepository{DB: store}
}

func (r *MemoryRepository) Create(ctx context.Context, t *model.Transaction) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if _, ok := tbl.Transactions[t.ReceiptNo]; ok {
			return fmt.Errorf("receipt %s already exists", t.ReceiptNo)
		}
		tbl.Transactions[t.ReceiptNo] = copyTransaction(*t)
		return nil
	})
}

func (r *MemoryRepository) FindByReceipt(ctx context.Context, receiptNo string) (*model.Transaction, error) {
	var out *model.Transaction
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if t, ok := tbl.Transactions[receiptNo]; ok {
			c := copyTransaction(t)
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) LockByReceipt(ctx context.Context, receiptNo string) (*model.Transaction, error) {
	if !r.DB.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	return r.FindByReceipt(ctx, receiptNo)
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, t *model.Transaction) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		stored, ok := tbl.Transactions[t.ReceiptNo]
		if !ok {
			return fmt.Errorf("transaction %s: %w", t.ReceiptNo, sql.ErrNoRows)
		}
		stored.Status = t.Status
		stored.VoidReason = t.VoidReason
		stored.VoidedBy = t.VoidedBy
		stored.VoidedAt = t.VoidedAt
		stored.UpdatedAt = t.UpdatedAt
		tbl.Transactions[t.ReceiptNo] = stored
		return nil
	})
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.TransactionFilters) ([]model.Transaction, int, error) {
	var items []model.Transaction
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, t := range tbl.Transactions {
			if f.CashierID != "" && t.CashierID != f.CashierID {
				continue
			}
			if f.Status != "" && string(t.Status) != f.Status {
				continue
			}
			if f.StartDate != nil && t.CreatedAt.Before(*f.StartDate) {
				continue
			}
			if f.EndDate != nil && !t.CreatedAt.Before(*f.EndDate) {
				continue
			}
			t.Items = nil
			t.Payment = nil
			items = append(items, t)
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

func copyTransaction(t model.Transaction) model.Transaction {
	t.Items = slices.Clone(t.Items)
	if t.Payment != nil {
		p := *t.Payment
		t.Payment = &p
	}
	return t
}
