package product

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/product/dto"
)

type UseCase interface {
	CreateProduct(ctx context.Context, input *dto.CreateProductInput) (*model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filters *dto.ProductFilters) ([]model.Product, int, error)
	UpdatePrices(ctx context.Context, input *dto.UpdatePricesInput) (*model.Product, error)
	ArchiveProduct(ctx context.Context, id string) (*model.Product, error)
	RestoreProduct(ctx context.Context, id string) (*model.Product, error)
}
