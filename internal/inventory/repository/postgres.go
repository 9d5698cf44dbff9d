package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/jmoiron/sqlx"
)

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) GetByProduct(ctx context.Context, productID string) (*model.Inventory, error) {
	var inv model.Inventory
	query := `SELECT * FROM inventory WHERE product_id = $1`

	err := sqlx.GetContext(ctx, db.Executor(ctx, r.DB), &inv, query, productID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

func (r *PGRepository) LockByProducts(ctx context.Context, productIDs []string) (map[string]*model.Inventory, error) {
	if !db.InTransaction(ctx) {
		return nil, db.ErrNoTransaction
	}
	result := make(map[string]*model.Inventory, len(productIDs))
	if len(productIDs) == 0 {
		return result, nil
	}

	ids := append([]string(nil), productIDs...)
	sort.Strings(ids)

	query, args, err := sqlx.In(`
        SELECT * FROM inventory
        WHERE product_id IN (?)
        ORDER BY product_id
        FOR UPDATE
    `, ids)
	if err != nil {
		return nil, err
	}

	ext := db.Executor(ctx, r.DB)
	var items []model.Inventory
	if err := sqlx.SelectContext(ctx, ext, &items, ext.Rebind(query), args...); err != nil {
		return nil, err
	}
	for i := range items {
		result[items[i].ProductID] = &items[i]
	}
	return result, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.InventoryFilters) ([]model.Inventory, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.LowStock {
		conditions = append(conditions, "current_stock - allocated_stock <= reorder_level AND reorder_level > 0")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	query := "SELECT * FROM inventory" + whereClause + " ORDER BY (current_stock - allocated_stock) ASC, product_id"
	var items []model.Inventory
	count, err := namedPage(ctx, db.Executor(ctx, r.DB), "inventory"+whereClause, query, args, f.Page, f.PageSize, &items)
	return items, count, err
}

func (r *PGRepository) Create(ctx context.Context, inv *model.Inventory) error {
	query := `
        INSERT INTO inventory (id, product_id, current_stock, allocated_stock, reorder_level, updated_at)
        VALUES (:id, :product_id, :current_stock, :allocated_stock, :reorder_level, :updated_at)
    `
	_, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, inv)
	return err
}

func (r *PGRepository) UpdateStock(ctx context.Context, inv *model.Inventory) error {
	query := `
        UPDATE inventory
        SET current_stock = :current_stock,
            allocated_stock = :allocated_stock,
            updated_at = :updated_at
        WHERE product_id = :product_id
    `
	res, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, inv)
	if err != nil {
		return err
	}
	return expectOneRow(res, inv.ProductID)
}

func (r *PGRepository) UpdateReorderLevel(ctx context.Context, productID string, level int) error {
	res, err := db.Executor(ctx, r.DB).ExecContext(ctx,
		`UPDATE inventory SET reorder_level = $1, updated_at = NOW() WHERE product_id = $2`,
		level, productID,
	)
	if err != nil {
		return err
	}
	return expectOneRow(res, productID)
}

func (r *PGRepository) LogMovement(ctx context.Context, m *model.StockMovement) error {
	query := `
        INSERT INTO stock_movements (
            id, inventory_id, product_id, movement_type, quantity_change,
            previous_stock, new_stock, reason, reference, supplier_name,
            cost_price, created_by, created_at
        )
        VALUES (
            :id, :inventory_id, :product_id, :movement_type, :quantity_change,
            :previous_stock, :new_stock, :reason, :reference, :supplier_name,
            :cost_price, :created_by, :created_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, m)
	return err
}

func (r *PGRepository) ListMovements(ctx context.Context, f *dto.MovementFilters) ([]model.StockMovement, int, error) {
	conditions := []string{}
	args := map[string]interface{}{}

	if f.ProductID != "" {
		conditions = append(conditions, "product_id = :product_id")
		args["product_id"] = f.ProductID
	}
	if f.MovementType != "" {
		conditions = append(conditions, "movement_type = :movement_type")
		args["movement_type"] = f.MovementType
	}
	if f.Reference != "" {
		conditions = append(conditions, "reference = :reference")
		args["reference"] = f.Reference
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

	query := "SELECT * FROM stock_movements" + whereClause + " ORDER BY created_at DESC, id"
	var items []model.StockMovement
	count, err := namedPage(ctx, db.Executor(ctx, r.DB), "stock_movements"+whereClause, query, args, f.Page, f.PageSize, &items)
	return items, count, err
}

// namedPage counts rows of from (a table plus WHERE clause), then selects one
// page of query into dest. Both statements use :named arguments.
func namedPage(ctx context.Context, ext sqlx.ExtContext, from, query string, args map[string]interface{}, page, pageSize int, dest interface{}) (int, error) {
	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM "+from, args)
	if err != nil {
		return 0, err
	}
	var count int
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(countQuery), countArgs...); err != nil {
		return 0, err
	}

	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", pageSize, (page-1)*pageSize)
	}
	q, qArgs, err := sqlx.Named(query, args)
	if err != nil {
		return 0, err
	}
	if err := sqlx.SelectContext(ctx, ext, dest, ext.Rebind(q), qArgs...); err != nil {
		return 0, err
	}
	return count, nil
}

func expectOneRow(res sql.Result, productID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("inventory for product %s: %w", productID, sql.ErrNoRows)
	}
	return nil
}
