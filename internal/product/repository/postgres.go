package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/product/dto"
	"github.com/jmoiron/sqlx"
)

// uniqueColumns whitelists the columns FindByUnique may query, keyed by the
// Postgres constraint guarding each.
var uniqueColumns = map[string]string{
	"products_sku_key":     "sku",
	"products_barcode_key": "barcode",
	"products_name_key":    "name",
}

type PGRepository struct {
	DB *sqlx.DB
}

func NewPGRepository(db *sqlx.DB) *PGRepository {
	return &PGRepository{DB: db}
}

func (r *PGRepository) Create(ctx context.Context, p *model.Product) error {
	query := `
        INSERT INTO products (
            id, sku, barcode, name, category,
            retail_price, wholesale_price, cost_price,
            is_archived, archived_at, created_at, updated_at
        )
        VALUES (
            :id, :sku, :barcode, :name, :category,
            :retail_price, :wholesale_price, :cost_price,
            :is_archived, :archived_at, :created_at, :updated_at
        )
    `
	_, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, p)
	return mapUniqueViolation(err, p)
}

func (r *PGRepository) FindByID(ctx context.Context, id string) (*model.Product, error) {
	var product model.Product
	query := `SELECT * FROM products WHERE id = $1 LIMIT 1`
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.DB), &product, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

func (r *PGRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error) {
	result := make(map[string]*model.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`SELECT * FROM products WHERE id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	ext := db.Executor(ctx, r.DB)
	var products []model.Product
	if err := sqlx.SelectContext(ctx, ext, &products, ext.Rebind(query), args...); err != nil {
		return nil, err
	}
	for i := range products {
		result[products[i].ID] = &products[i]
	}
	return result, nil
}

func (r *PGRepository) FindAll(ctx context.Context, f *dto.ProductFilters) ([]model.Product, int, error) {
	var products []model.Product
	var count int

	conditions := []string{}
	args := map[string]interface{}{}

	if f.Category != "" {
		conditions = append(conditions, "category = :category")
		args["category"] = f.Category
	}
	if !f.IncludeArchived {
		conditions = append(conditions, "is_archived = FALSE")
	}
	if f.SearchQuery != "" {
		conditions = append(conditions, "(name ILIKE :search OR sku ILIKE :search OR barcode ILIKE :search)")
		args["search"] = "%" + f.SearchQuery + "%"
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	ext := db.Executor(ctx, r.DB)

	// Count
	countQuery, countArgs, err := sqlx.Named("SELECT count(*) FROM products"+whereClause, args)
	if err != nil {
		return nil, 0, err
	}
	if err := sqlx.GetContext(ctx, ext, &count, ext.Rebind(countQuery), countArgs...); err != nil {
		return nil, 0, err
	}

	// List
	orderBy := "created_at DESC"
	if f.SortBy != "" {
		switch f.SortBy {
		case "name":
			orderBy = "name"
		case "price":
			orderBy = "retail_price"
		default:
			orderBy = "created_at"
		}
		if strings.ToLower(f.SortOrder) == "asc" {
			orderBy += " ASC"
		} else {
			orderBy += " DESC"
		}
	}

	query := fmt.Sprintf("SELECT * FROM products%s ORDER BY %s, id", whereClause, orderBy)
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
	if err := sqlx.SelectContext(ctx, ext, &products, ext.Rebind(q), qArgs...); err != nil {
		return nil, 0, err
	}
	return products, count, nil
}

func (r *PGRepository) Update(ctx context.Context, p *model.Product) error {
	query := `
        UPDATE products
        SET sku = :sku,
            barcode = :barcode,
            name = :name,
            category = :category,
            retail_price = :retail_price,
            wholesale_price = :wholesale_price,
            cost_price = :cost_price,
            is_archived = :is_archived,
            archived_at = :archived_at,
            updated_at = :updated_at
        WHERE id = :id
    `
	_, err := sqlx.NamedExecContext(ctx, db.Executor(ctx, r.DB), query, p)
	return mapUniqueViolation(err, p)
}

func (r *PGRepository) FindByUnique(ctx context.Context, field, value, excludeID string) (*model.Product, error) {
	column := ""
	for _, c := range uniqueColumns {
		if c == field {
			column = c
		}
	}
	if column == "" {
		return nil, fmt.Errorf("unknown unique field %q", field)
	}

	var product model.Product
	query := fmt.Sprintf(`SELECT * FROM products WHERE %s = $1 AND id <> $2 LIMIT 1`, column)
	err := sqlx.GetContext(ctx, db.Executor(ctx, r.DB), &product, query, value, excludeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &product, nil
}

// mapUniqueViolation turns a lost uniqueness race into the same ConflictError
// the usecase pre-check returns. The conflicting id is unknown at this point.
func mapUniqueViolation(err error, p *model.Product) error {
	if err == nil {
		return nil
	}
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	field := uniqueColumns[constraint]
	value := ""
	switch field {
	case "sku":
		value = p.SKU
	case "barcode":
		if p.Barcode != nil {
			value = *p.Barcode
		}
	case "name":
		value = p.Name
	}
	return &apperror.ConflictError{Field: field, Value: value}
}
