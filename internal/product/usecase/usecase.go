package usecase

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/cache"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/fekuna/omnipos-stock-service/internal/product/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const listCachePrefix = "products:list:"

type productUseCase struct {
	repo      product.Repository
	invRepo   inventory.Repository
	batchRepo batch.Repository
	tx        db.Transactor
	cache     *cache.RedisClient
	logger    logger.ZapLogger
	tracer    trace.Tracer
	now       func() time.Time
}

// NewProductUseCase accepts a nil cache; list results are then always read from the repository.
func NewProductUseCase(repo product.Repository, invRepo inventory.Repository, batchRepo batch.Repository, tx db.Transactor, cache *cache.RedisClient, log logger.ZapLogger) product.UseCase {
	return &productUseCase{
		repo:      repo,
		invRepo:   invRepo,
		batchRepo: batchRepo,
		tx:        tx,
		cache:     cache,
		logger:    log,
		tracer:    telemetry.Tracer("product"),
		now:       time.Now,
	}
}

func (uc *productUseCase) CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error) {
	ctx, span := uc.tracer.Start(ctx, "product.CreateProduct", trace.WithAttributes(
		attribute.String("product.sku", input.SKU),
	))
	defer span.End()

	if err := validateCreate(input); err != nil {
		return nil, err
	}

	now := uc.now()
	p := &model.Product{
		BaseModel:      model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		SKU:            strings.TrimSpace(input.SKU),
		Name:           strings.TrimSpace(input.Name),
		Category:       strings.TrimSpace(input.Category),
		RetailPrice:    input.RetailPrice,
		WholesalePrice: input.WholesalePrice,
		CostPrice:      input.CostPrice,
	}
	if bc := strings.TrimSpace(input.Barcode); bc != "" {
		p.Barcode = &bc
	}

	actor := input.UserID
	if actor == "" {
		actor = auth.GetUserID(ctx)
	}

	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.ensureUnique(ctx, p, ""); err != nil {
			return err
		}
		if err := uc.repo.Create(ctx, p); err != nil {
			return err
		}

		inv := &model.Inventory{
			ID:           uuid.New().String(),
			ProductID:    p.ID,
			ReorderLevel: input.ReorderLevel,
			UpdatedAt:    now,
		}
		if err := uc.invRepo.Create(ctx, inv); err != nil {
			return fmt.Errorf("create inventory: %w", err)
		}
		if input.InitialStock == 0 {
			return nil
		}
		_, err := inventory.ApplyMovement(ctx, uc.invRepo, inv, model.MovementInput{
			Type:  model.MovementInitialStock,
			Delta: input.InitialStock,
			Actor: actor,
		}, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.logger.Info("Product created",
		zap.String("product_id", p.ID),
		zap.String("sku", p.SKU),
		zap.Int("initial_stock", input.InitialStock),
	)
	go uc.invalidateProductCache(context.Background())
	return p, nil
}

func validateCreate(input *dto.CreateProductInput) error {
	if strings.TrimSpace(input.SKU) == "" {
		return apperror.NewValidation("sku", "required")
	}
	if strings.TrimSpace(input.Name) == "" {
		return apperror.NewValidation("name", "required")
	}
	if input.InitialStock < 0 {
		return apperror.NewValidation("initial_stock", "must not be negative")
	}
	if input.ReorderLevel < 0 {
		return apperror.NewValidation("reorder_level", "must not be negative")
	}
	return validatePrices(&input.RetailPrice, &input.WholesalePrice, &input.CostPrice)
}

func validatePrices(retail, wholesale, cost *decimal.Decimal) error {
	for field, v := range map[string]*decimal.Decimal{
		"retail_price":    retail,
		"wholesale_price": wholesale,
		"cost_price":      cost,
	} {
		if v != nil && v.IsNegative() {
			return apperror.NewValidation(field, "must not be negative")
		}
	}
	return nil
}

// ensureUnique reports the record already holding sku, barcode or name.
func (uc *productUseCase) ensureUnique(ctx context.Context, p *model.Product, excludeID string) error {
	values := []struct{ field, value string }{
		{"sku", p.SKU},
		{"name", p.Name},
	}
	if p.Barcode != nil {
		values = append(values, struct{ field, value string }{"barcode", *p.Barcode})
	}
	for _, v := range values {
		holder, err := uc.repo.FindByUnique(ctx, v.field, v.value, excludeID)
		if err != nil {
			return err
		}
		if holder != nil {
			return &apperror.ConflictError{Field: v.field, Value: v.value, ConflictingID: holder.ID}
		}
	}
	return nil
}

func (uc *productUseCase) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	p, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, apperror.NewNotFound("product", id)
	}
	return p, nil
}

type cachedList struct {
	Products []model.Product
	Count    int
}

func (uc *productUseCase) ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error) {
	cacheKey, err := uc.generateCacheKey(filters)
	if err == nil && uc.cache != nil {
		val, err := uc.cache.Client.Get(ctx, cacheKey).Result()
		if err == nil {
			var result cachedList
			if err := json.Unmarshal([]byte(val), &result); err == nil {
				return result.Products, result.Count, nil
			}
		}
	}

	products, count, err := uc.repo.FindAll(ctx, filters)
	if err != nil {
		return nil, 0, err
	}

	if cacheKey != "" && uc.cache != nil {
		if data, err := json.Marshal(cachedList{Products: products, Count: count}); err == nil {
			if err := uc.cache.Client.Set(ctx, cacheKey, data, 5*time.Minute).Err(); err != nil {
				uc.logger.Warn("failed to cache product list", zap.Error(err))
			}
		}
	}
	return products, count, nil
}

func (uc *productUseCase) generateCacheKey(filters *dto.ProductFilters) (string, error) {
	data, err := json.Marshal(filters)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%x", listCachePrefix, md5.Sum(data)), nil
}

func (uc *productUseCase) invalidateProductCache(ctx context.Context) {
	if uc.cache == nil {
		return
	}
	iter := uc.cache.Client.Scan(ctx, 0, listCachePrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		uc.logger.Warn("failed to scan product cache", zap.Error(err))
		return
	}
	if len(keys) > 0 {
		uc.cache.Client.Del(ctx, keys...)
	}
}

func (uc *productUseCase) UpdatePrices(ctx context.Context, input *dto.UpdatePricesInput) (*model.Product, error) {
	if err := validatePrices(input.RetailPrice, input.WholesalePrice, input.CostPrice); err != nil {
		return nil, err
	}

	p, err := uc.GetProduct(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if p.IsArchived {
		return nil, apperror.NewValidation("id", "product %s is archived", p.ID)
	}

	if input.RetailPrice != nil {
		p.RetailPrice = *input.RetailPrice
	}
	if input.WholesalePrice != nil {
		p.WholesalePrice = *input.WholesalePrice
	}
	if input.CostPrice != nil {
		p.CostPrice = *input.CostPrice
	}
	p.UpdatedAt = uc.now()

	if err := uc.repo.Update(ctx, p); err != nil {
		return nil, err
	}
	go uc.invalidateProductCache(context.Background())
	return p, nil
}

// ArchiveProduct suffixes the unique fields so they can be reused by new
// products. Archiving twice is a no-op. A product whose active batches still
// hold units is refused with NonEmptyBatchError.
func (uc *productUseCase) ArchiveProduct(ctx context.Context, id string) (*model.Product, error) {
	var p *model.Product
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if p, err = uc.GetProduct(ctx, id); err != nil {
			return err
		}
		if p.IsArchived {
			return nil
		}

		batches, err := uc.batchRepo.LockActiveByProduct(ctx, id)
		if err != nil {
			return err
		}
		for _, b := range batches {
			if b.Quantity > 0 {
				return &apperror.NonEmptyBatchError{BatchID: b.ID, Quantity: b.Quantity}
			}
		}

		now := uc.now()
		p.SKU = model.ArchivedValue(p.SKU, now)
		p.Name = model.ArchivedValue(p.Name, now)
		if p.Barcode != nil {
			bc := model.ArchivedValue(*p.Barcode, now)
			p.Barcode = &bc
		}
		p.IsArchived = true
		p.ArchivedAt = &now
		p.UpdatedAt = now
		return uc.repo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	go uc.invalidateProductCache(context.Background())
	return p, nil
}

// RestoreProduct strips the archive suffixes. When another product has taken
// one of the original values meanwhile, the ConflictError names it.
func (uc *productUseCase) RestoreProduct(ctx context.Context, id string) (*model.Product, error) {
	var p *model.Product
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if p, err = uc.GetProduct(ctx, id); err != nil {
			return err
		}
		if !p.IsArchived {
			return nil
		}

		p.SKU = model.OriginalValue(p.SKU)
		p.Name = model.OriginalValue(p.Name)
		if p.Barcode != nil {
			bc := model.OriginalValue(*p.Barcode)
			p.Barcode = &bc
		}
		if err := uc.ensureUnique(ctx, p, p.ID); err != nil {
			return err
		}

		p.IsArchived = false
		p.ArchivedAt = nil
		p.UpdatedAt = uc.now()
		return uc.repo.Update(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	go uc.invalidateProductCache(context.Background())
	return p, nil
}
