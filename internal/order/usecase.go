package order

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
)

type UseCase interface {
	PlaceVendorOrder(ctx context.Context, input *dto.PlaceOrderInput) (*model.Order, error)
	CancelVendorOrder(ctx context.Context, orderID, customerID string) (*model.Order, error)
	CancelOrderAsAdmin(ctx context.Context, orderID string) (*model.Order, error)
	CompleteVendorOrder(ctx context.Context, orderID string) (*model.Order, error)
	AdvanceOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error)
	GetOrder(ctx context.Context, orderID string) (*model.Order, error)
	ListOrders(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error)
}
