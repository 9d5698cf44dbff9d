package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, t *model.Transaction) error {
	ext := db.Executor(ctx, r.DB)

	query := `
        INSERT INTO transactions (id, receipt_no, cashier_id, status, subtotal, total_amount, created_at, updated_at)
        VALUES (:id, :receipt_no, :cashier_id, :status, :subtotal, :total_amount, :created_at, :updated_at)
    `
	if _, err := sqlx.NamedExecContext(ctx, ext, query, t); err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	itemQuery := `
        INSERT INTO transaction_items (id, transaction_id, product_id, quantity, price_at_sale, cost_at_sale, line_total)
        VALUES (:id, :transaction_id, :product_id, :quantity, :price_at_sale, :cost_at_sale, :line_total)
    `
	for i := range t.Items {
		if _, err := sqlx.NamedExecContext(ctx, ext, itemQuery, &t.Items[i]); err != nil {
			return fmt.Errorf("insert transaction item: %w", err)
		}
	}

	if t.Payment != nil {
		paymentQuery := `
            INSERT INTO payments (id, transaction_id, method, amount, amount_tendered, change_due, created_at)
            VALUES (:id, :transaction_id, :method, :amount, :amount_tendered, :change_due, :created_at)
        `
		if _, err := sqlx.NamedExecContext(ctx, ext, paymentQuery, t.Payment); err != nil {
			return fmt.Errorf("insert payment: %w", err)
		}
	}
	return nil
}

func (r *PGRepository) FindByReceipt(ctx context.Context, receiptNo string) (*model.Transaction, error) {
	return r.find(ctx, `SELECT * FROM transactions WHERE receipt_no = $1`, receiptNo)
}

func (r *PGRepository) LockByReceipt(ctx context.Context, receiptNo string) (*model.Transaction, error) {
	if !db.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	return r.find(ctx, `SELECT * FROM transactions WHERE receipt_no = $1 FOR UPDATE`, receiptNo)
}

func (r *PGRepository) find(ctx context.Context, query, receiptNo string) (*model.Transaction, error) {
	ext := db.Executor(ctx, r.DB)

	var t model.Transaction
	if err := sqlx.GetContext(ctx, ext, &t, query, receiptNo); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := sqlx.SelectContext(ctx, ext, &t.Items,
		`SELECT * FROM transaction_items WHERE transaction_id = $1 ORDER BY product_id`, t.ID); err != nil {
		return nil, fmt.Errorf("load transaction items: %w", err)
	}

	var p model.Payment
	err := sqlx.GetContext(ctx, ext, &p, `SELECT * FROM payments WHERE transaction_id = $1`, t.ID)
	switch {
	case err == nil:
		t.Payment = &p
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("load payment: %w", err)
	}
	return &t, nil
}

func (r *PGRepository) UpdateStatus(ctx context.Context, t *model.Transaction) error {
	query := `
        UPDATE transactions
        SET status = :status,
            void_reason = :void_reason,
            voided_by = :voided_by,
            voided_at = :voided_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	res, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, t)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("transaction %s: %w", t.ReceiptNo, sql.ErrNoRows)
	}
	return nil
}

// FindAll returns headers only; items and payment are loaded by FindByReceipt.
func (r *PGRepository) FindAll(ctx context.Context, f *dto.TransactionFilters) ([]model.Transaction, int, error) {
	ext := db.Executor(ctx, r.DB)
	conditions := []string{}
	args := map[string]interface{}{}

	if f.CashierID != "" {
		conditions = append(conditions, "cashier_id = :cashier_id")
		args["cashier_id"] = f.CashierID
	}
	if f.Status != "" {
		conditions = append(conditions, "status = :status")
		args["status"] = f.Status
	}
	if f.StartDate != nil {
		conditions = append(conditions, "created_at >= :start_date")
		args["start_date"] = *f.StartDate
	}
	if f.EndDate != nil {
		conditions = append(conditions, "created_at < :end_date")
		args["end_date"] = *f.EndDate
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM transactions"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	query := "SELECT * FROM transactions" + whereClause + " ORDER BY created_at DESC, id"
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
	var items []model.Transaction
	if err := sqlx.SelectContext(ctx, ext, &items, ext.Rebind(q), qArgs...); err != nil {
		return nil, 0, err
	}
	return items, count, nil
}
