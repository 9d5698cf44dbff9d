package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/jmoiron/sqlx"
)

const fefoOrder = ` ORDER BY expiry_date ASC NULLS LAST, received_date ASC, id`

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, b *model.Batch) error {
	query := `
        INSERT INTO inventory_batches (
            id, product_id, batch_number, quantity, expiry_date, received_date,
            supplier_name, supplier_ref, cost_price, status, created_at, updated_at
        )
        VALUES (
            :id, :product_id, :batch_number, :quantity, :expiry_date, :received_date,
            :supplier_name, :supplier_ref, :cost_price, :status, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, b)
	return err
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Batch, error) {
	return r.get(ctx, `SELECT * FROM inventory_batches WHERE id = $1`, id)
}

func (r *PGRepository) LockByID(ctx context.Context, id string) (*model.Batch, error) {
	if !db.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	return r.get(ctx, `SELECT * FROM inventory_batches WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) get(ctx context.Context, query string, args ...interface{}) (*model.Batch, error) {
	var b model.Batch
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.DB), &b, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

func (r *PGRepository) LockActiveByProduct(ctx context.Context, productID string) ([]model.Batch, error) {
	if !db.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	var items []model.Batch
	query := `SELECT * FROM inventory_batches WHERE product_id = $1 AND status = 'ACTIVE'` + fefoOrder + ` FOR UPDATE`
	err := sqlx.SelectContext(ctx, db.Executor(ctx, r.DB), &items, query, productID)
	return items, err
}

func (r *PGRepository) Update(ctx context.Context, b *model.Batch) error {
	query := `
        UPDATE inventory_batches
        SET quantity = :quantity,
            status = :status,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, b)
	return err
}

func (r *PGRepository) ListByProduct(ctx context.Context, productID string) ([]model.Batch, error) {
	var items []model.Batch
	query := `SELECT * FROM inventory_batches WHERE product_id = $1` + fefoOrder
	err := sqlx.SelectContext(ctx, db.Executor(ctx, r.DB), &items, query, productID)
	return items, err
}

func (r *PGRepository) ListExpiring(ctx context.Context, before time.Time) ([]model.Batch, error) {
	var items []model.Batch
	query := `
        SELECT * FROM inventory_batches
        WHERE status <> 'ARCHIVED' AND quantity > 0
          AND expiry_date IS NOT NULL AND expiry_date <= $1` + fefoOrder
	err := sqlx.SelectContext(ctx, db.Executor(ctx, r.DB), &items, query, before)
	return items, err
}

func (r *PGRepository) SumByProduct(ctx context.Context, productID string) (map[string]int, error) {
	var rows []struct {
		ProductID string `db:"product_id"`
		Total     int    `db:"total"`
	}
	query := `SELECT product_id, COALESCE(SUM(quantity), 0) AS total FROM inventory_batches`
	args := []interface{}{}
	if productID != "" {
		query += ` WHERE product_id = $1`
		args = append(args, productID)
	}
	query += ` GROUP BY product_id ORDER BY product_id`

	if err := sqlx.SelectContext(ctx, db.Executor(ctx, r.DB), &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, row := range rows {
		out[row.ProductID] = row.Total
	}
	return out, nil
}
