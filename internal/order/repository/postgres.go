package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, o *model.Order) error {
	ext := db.Executor(ctx, r.DB)
	query := `
        INSERT INTO orders (id, customer_id, status, total_amount, created_at, updated_at)
        VALUES (:id, :customer_id, :status, :total_amount, :created_at, :updated_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, ext, query, o); err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
        INSERT INTO order_items (id, order_id, product_id, quantity, price)
        VALUES (:id, :order_id, :product_id, :quantity, :price)
    `
	for i := range o.Items {
		if _, err := sqlx.NamedExecContext(ctx, ext, itemQuery, &o.Items[i]); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Order, error) {
	return r.find(ctx, `SELECT * FROM orders WHERE id = $1`, id)
}

func (r *PGRepository) LockByID(ctx context.Context, id string) (*model.Order, error) {
	if !db.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	return r.find(ctx, `SELECT * FROM orders WHERE id = $1 FOR UPDATE`, id)
}

func (r *PGRepository) find(ctx context.Context, query, id string) (*model.Order, error) {
	ext := db.Executor(ctx, r.DB)

	var o model.Order
	if err := sqlx.GetContext(ctx, ext, &o, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := sqlx.SelectContext(ctx, ext, &o.Items,
		`SELECT * FROM order_items WHERE order_id = $1 ORDER BY product_id`, id); err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	return &o, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, o *model.Order) error {
	query := `
        UPDATE orders
        SET status = :status,
            completed_at = :completed_at,
            cancelled_at = :cancelled_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, o)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("order %s: %w", o.ID, sql.ErrNoRows)
	}
	return nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.OrderFilters) ([]model.Order, int, error) {
	ext := db.Executor(ctx, r.DB)
	conditions := []string{}
	args := map[string]interface{}{}

	if f.CustomerID != "" {
		conditions = append(conditions, "customer_id = :customer_id")
		args["customer_id"] = f.CustomerID
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM orders"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM orders" + whereClause + " ORDER BY created_at DESC, id"
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", f.PageSize, (page-1)*f.PageSize)
	}
	q, qArgs, err := sqlx.Named(query, args)
	if err != nil {
		return nil, 0, err
	}
	var orders []model.Order
	if err := sqlx.SelectContext(ctx, ext, &orders, ext.Rebind(q), qArgs...); err != nil {
		return nil, 0, err
	}
	if err := r.attachItems(ctx, ext, orders); err != nil {
		return nil, 0, err
	}
	return orders, count, nil
}

func (r *PGRepository) attachItems(ctx context.Context, ext sqlx.ExtContext, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	byID := make(map[string]*model.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		byID[orders[i].ID] = &orders[i]
	}

	query, args, err := sqlx.In(`SELECT * FROM order_items WHERE order_id IN (?) ORDER BY product_id`, ids)
	if err != nil {
		return err
	}
	var items []model.OrderItem
	if err := sqlx.SelectContext(ctx, ext, &items, ext.Rebind(query), args...); err != nil {
		return fmt.Errorf("load order items: %w", err)
	}
	for _, it := range items {
		o := byID[it.OrderID]
		o.Items = append(o.Items, it)
	}
	return nil
}
