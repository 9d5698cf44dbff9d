package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	"github.com/fekuna/omnipos-stock-service/internal/product/dto"
)

type MemoryRepository struct {
	DB *memdb.DB
}

func NewMemoryRepository(store *memdb.DB) *MemoryRepository {
	return &MemoryRepository{DB: store}
}

func uniqueValue(p *model.Product, field string) string {
	switch field {
	case "sku":
		return p.SKU
	case "barcode":
		if p.Barcode != nil {
			return *p.Barcode
		}
	case "name":
		return p.Name
	}
	return ""
}

// checkUnique mirrors the UNIQUE constraints of the products table.
func checkUnique(tbl *memdb.Tables, p *model.Product) error {
	for _, existing := range tbl.Products {
		if existing.ID == p.ID {
			continue
		}
		for _, field := range []string{"sku", "barcode", "name"} {
			v := uniqueValue(p, field)
			if v != "" && v == uniqueValue(&existing, field) {
				return &apperror.ConflictError{Field: field, Value: v, ConflictingID: existing.ID}
			}
		}
	}
	return nil
}

func (r *MemoryRepository) Create(ctx context.Context, p *model.Product) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if _, ok := tbl.Products[p.ID]; ok {
			return fmt.Errorf("product %s already exists", p.ID)
		}
		if err := checkUnique(tbl, p); err != nil {
			return err
		}
		tbl.Products[p.ID] = *p
		return nil
	})
}

func (r *MemoryRepository) FindByID(ctx context.Context, id string) (*model.Product, error) {
	var out *model.Product
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if p, ok := tbl.Products[id]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r *MemoryRepository) FindByIDs(ctx context.Context, ids []string) (map[string]*model.Product, error) {
	result := make(map[string]*model.Product, len(ids))
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, id := range ids {
			if p, ok := tbl.Products[id]; ok {
				result[id] = &p
			}
		}
		return nil
	})
	return result, err
}

func (r *MemoryRepository) FindAll(ctx context.Context, f *dto.ProductFilters) ([]model.Product, int, error) {
	var items []model.Product
	search := strings.ToLower(f.SearchQuery)
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, p := range tbl.Products {
			if f.Category != "" && p.Category != f.Category {
				continue
			}
			if !f.IncludeArchived && p.IsArchived {
				continue
			}
			if search != "" && !strings.Contains(strings.ToLower(p.Name), search) &&
				!strings.Contains(strings.ToLower(p.SKU), search) &&
				!strings.Contains(strings.ToLower(uniqueValue(&p, "barcode")), search) {
				continue
			}
			items = append(items, p)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	asc := strings.ToLower(f.SortOrder) == "asc"
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		var less, equal bool
		switch f.SortBy {
		case "name":
			less, equal = a.Name < b.Name, a.Name == b.Name
		case "price":
			less, equal = a.RetailPrice.LessThan(b.RetailPrice), a.RetailPrice.Equal(b.RetailPrice)
		default:
			less, equal = a.CreatedAt.Before(b.CreatedAt), a.CreatedAt.Equal(b.CreatedAt)
			if f.SortBy == "" {
				asc = false
			}
		}
		if equal {
			return a.ID < b.ID
		}
		if asc {
			return less
		}
		return !less
	})

	total := len(items)
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		start := (page - 1) * f.PageSize
		if start > total {
			start = total
		}
		end := start + f.PageSize
		if end > total {
			end = total
		}
		items = items[start:end]
	}
	return items, total, nil
}

func (r *MemoryRepository) Update(ctx context.Context, p *model.Product) error {
	return r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		if _, ok := tbl.Products[p.ID]; !ok {
			return apperror.NewNotFound("product", p.ID)
		}
		if err := checkUnique(tbl, p); err != nil {
			return err
		}
		tbl.Products[p.ID] = *p
		return nil
	})
}

func (r *MemoryRepository) FindByUnique(ctx context.Context, field, value, excludeID string) (*model.Product, error) {
	var out *model.Product
	err := r.DB.Do(ctx, func(tbl *memdb.Tables) error {
		for _, p := range tbl.Products {
			if p.ID != excludeID && value != "" && uniqueValue(&p, field) == value {
				out = &p
				return nil
			}
		}
		return nil
	})
	return out, err
}
