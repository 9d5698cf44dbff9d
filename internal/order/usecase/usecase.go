package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const systemActor = "system"

type orderUseCase struct {
	repo         order.Repository
	invRepo      inventory.Repository
	productRepo  product.Repository
	batchRepo    batch.Repository
	tx           db.Transactor
	publisher    events.Publisher
	logger       logger.ZapLogger
	tracer       trace.Tracer
	now          func() time.Time
	vendorWindow time.Duration
	adminWindow  time.Duration
}

func NewOrderUseCase(
	repo order.Repository,
	invRepo inventory.Repository,
	productRepo product.Repository,
	batchRepo batch.Repository,
	tx db.Transactor,
	publisher events.Publisher,
	log logger.ZapLogger,
	cfg config.OrderConfig,
) order.UseCase {
	return &orderUseCase{
		repo:         repo,
		invRepo:      invRepo,
		productRepo:  productRepo,
		batchRepo:    batchRepo,
		tx:           tx,
		publisher:    publisher,
		logger:       log,
		tracer:       telemetry.Tracer("order"),
		now:          time.Now,
		vendorWindow: cfg.VendorCancelWindow,
		adminWindow:  cfg.AdminCancelWindow,
	}
}

// PlaceVendorOrder reserves every line or nothing: allocated_stock grows by the
// requested quantities and the PENDING order is written in one transaction.
func (uc *orderUseCase) PlaceVendorOrder(ctx context.Context, input *dto.PlaceOrderInput) (*model.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "order.PlaceVendorOrder", trace.WithAttributes(
		attribute.String("customer.id", input.CustomerID),
		attribute.Int("order.lines", len(input.Items)),
	))
	defer span.End()

	if err := validatePlaceOrder(input); err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	now := uc.now()
	o := &model.Order{
		BaseModel:  model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		CustomerID: strings.TrimSpace(input.CustomerID),
		Status:     model.OrderPending,
	}
	total := decimal.Zero
	lines := make([]inventory.Line, 0, len(input.Items))
	for _, it := range input.Items {
		item := model.OrderItem{
			ID:        uuid.New().String(),
			OrderID:   o.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		}
		o.Items = append(o.Items, item)
		total = total.Add(item.LineTotal())
		lines = append(lines, inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	o.TotalAmount = total
	lines = inventory.MergeLines(lines)

	var touched []*model.Inventory
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		names, err := uc.productNames(ctx, lines)
		if err != nil {
			return err
		}

		locked, err := uc.invRepo.LockByProducts(ctx, inventory.ProductIDs(lines))
		if err != nil {
			return err
		}
		issues, err := inventory.CheckAvailability(locked, lines, names)
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			return &apperror.InsufficientStockError{Issues: issues}
		}

		for _, l := range lines {
			inv := locked[l.ProductID]
			inv.AllocatedStock += l.Quantity
			inv.UpdatedAt = now
			if err := uc.invRepo.UpdateStock(ctx, inv); err != nil {
				return fmt.Errorf("reserve %s: %w", l.ProductID, err)
			}
			touched = append(touched, inv)
		}
		return uc.repo.Create(ctx, o)
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	uc.logger.Info("Vendor order placed",
		zap.String("order_id", o.ID),
		zap.String("customer_id", o.CustomerID),
		zap.Int("lines", len(o.Items)),
	)
	evts := []events.Event{events.New(events.TypeOrderPlaced, o.ID, orderPayload(o))}
	for _, inv := range touched {
		evts = append(evts, inventory.StockEvents(inv, nil)...)
	}
	uc.publish(ctx, evts...)
	return o, nil
}

// CancelVendorOrder is the vendor's self-service cancel: own orders only, within
// the short vendor window.
func (uc *orderUseCase) CancelVendorOrder(ctx context.Context, orderID, customerID string) (*model.Order, error) {
	return uc.cancel(ctx, orderID, customerID, uc.vendorWindow)
}

func (uc *orderUseCase) CancelOrderAsAdmin(ctx context.Context, orderID string) (*model.Order, error) {
	return uc.cancel(ctx, orderID, "", uc.adminWindow)
}

// cancel releases the reservation. current_stock is untouched, so no movement is written.
func (uc *orderUseCase) cancel(ctx context.Context, orderID, customerID string, window time.Duration) (*model.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "order.Cancel", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.Bool("order.vendor", customerID != ""),
	))
	defer span.End()

	var (
		o       *model.Order
		touched []*model.Inventory
	)
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if o, err = uc.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if customerID != "" && o.CustomerID != customerID {
			return &apperror.ForbiddenError{Message: "order " + orderID + " belongs to another customer"}
		}
		if o.Status != model.OrderPending {
			return &apperror.OrderNotCancellableError{OrderID: o.ID, Reason: "status is " + string(o.Status)}
		}
		now := uc.now()
		if now.After(o.CancelDeadline(window)) {
			return &apperror.OrderNotCancellableError{
				OrderID: o.ID,
				Reason:  fmt.Sprintf("cancellation window of %s has elapsed", window),
			}
		}

		if touched, err = uc.release(ctx, o, now); err != nil {
			return err
		}

		o.Status = model.OrderCancelled
		o.CancelledAt = &now
		o.UpdatedAt = now
		return uc.repo.UpdateStatus(ctx, o)
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	uc.logger.Info("Vendor order cancelled", zap.String("order_id", o.ID))
	evts := []events.Event{events.New(events.TypeOrderCancelled, o.ID, orderPayload(o))}
	for _, inv := range touched {
		evts = append(evts, inventory.StockEvents(inv, nil)...)
	}
	uc.publish(ctx, evts...)
	return o, nil
}

// CompleteVendorOrder turns the reservation into a physical sale: allocated and
// current both drop by the ordered quantity and a SALE movement is logged per line.
func (uc *orderUseCase) CompleteVendorOrder(ctx context.Context, orderID string) (*model.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "order.CompleteVendorOrder", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	var (
		o    *model.Order
		evts []events.Event
	)
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if o, err = uc.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(model.OrderCompleted) {
			return &apperror.InvalidTransitionError{
				Entity: "order", ID: o.ID, From: string(o.Status), To: string(model.OrderCompleted),
			}
		}

		now := uc.now()
		lines := orderLines(o)
		locked, err := uc.lockInventory(ctx, lines)
		if err != nil {
			return err
		}
		actor := auth.GetUserID(ctx)
		if actor == "" {
			actor = systemActor
		}
		for _, l := range lines {
			inv := locked[l.ProductID]
			if inv.AllocatedStock < l.Quantity {
				return &apperror.DataIntegrityFault{
					ProductID: inv.ProductID, Current: inv.CurrentStock, Allocated: inv.AllocatedStock,
				}
			}
			inv.AllocatedStock -= l.Quantity

			movement, err := inventory.ApplyMovement(ctx, uc.invRepo, inv, model.MovementInput{
				Type:      model.MovementSale,
				Delta:     -l.Quantity,
				Actor:     actor,
				Reason:    "vendor order fulfilled",
				Reference: o.ID,
			}, now)
			if err != nil {
				return err
			}
			evts = append(evts, inventory.StockEvents(inv, movement)...)

			if _, shortfall, err := batch.ConsumeFEFO(ctx, uc.batchRepo, l.ProductID, l.Quantity, now); err != nil {
				return err
			} else if shortfall > 0 {
				uc.logger.Warn("Batches do not cover fulfilled quantity",
					zap.String("order_id", o.ID),
					zap.String("product_id", l.ProductID),
					zap.Int("shortfall", shortfall),
				)
			}
		}

		o.Status = model.OrderCompleted
		o.CompletedAt = &now
		o.UpdatedAt = now
		return uc.repo.UpdateStatus(ctx, o)
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	uc.logger.Info("Vendor order completed", zap.String("order_id", o.ID))
	evts = append([]events.Event{events.New(events.TypeOrderCompleted, o.ID, orderPayload(o))}, evts...)
	uc.publish(ctx, evts...)
	return o, nil
}

// AdvanceOrderStatus moves PENDING -> PREPARING -> READY. Terminal states have
// their own operations. Re-sending the current status is a no-op.
func (uc *orderUseCase) AdvanceOrderStatus(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	ctx, span := uc.tracer.Start(ctx, "order.AdvanceOrderStatus", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.status", string(status)),
	))
	defer span.End()

	if status != model.OrderPreparing && status != model.OrderReady {
		err := apperror.NewValidation("status", "only PREPARING or READY can be set directly")
		uc.recordError(span, err)
		return nil, err
	}

	var o *model.Order
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if o, err = uc.lockOrder(ctx, orderID); err != nil {
			return err
		}
		if o.Status == status {
			return nil
		}
		if !o.Status.CanTransitionTo(status) {
			return &apperror.InvalidTransitionError{
				Entity: "order", ID: o.ID, From: string(o.Status), To: string(status),
			}
		}
		o.Status = status
		o.UpdatedAt = uc.now()
		return uc.repo.UpdateStatus(ctx, o)
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}
	return o, nil
}

func (uc *orderUseCase) GetOrder(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := uc.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperror.NewNotFound("order", orderID)
	}
	return o, nil
}

func (uc *orderUseCase) ListOrders(ctx context.Context, filters *dto.OrderFilters) ([]model.Order, int, error) {
	if filters.Status != "" {
		status, ok := model.ParseOrderStatus(filters.Status)
		if !ok {
			return nil, 0, apperror.NewValidation("status", "unknown order status %q", filters.Status)
		}
		filters.Status = string(status)
	}
	return uc.repo.FindAll(ctx, filters)
}

// release gives back every reserved unit of o.
func (uc *orderUseCase) release(ctx context.Context, o *model.Order, now time.Time) ([]*model.Inventory, error) {
	lines := orderLines(o)
	locked, err := uc.lockInventory(ctx, lines)
	if err != nil {
		return nil, err
	}
	touched := make([]*model.Inventory, 0, len(lines))
	for _, l := range lines {
		inv := locked[l.ProductID]
		if inv.AllocatedStock < l.Quantity {
			return nil, &apperror.DataIntegrityFault{
				ProductID: inv.ProductID, Current: inv.CurrentStock, Allocated: inv.AllocatedStock,
			}
		}
		inv.AllocatedStock -= l.Quantity
		inv.UpdatedAt = now
		if err := uc.invRepo.UpdateStock(ctx, inv); err != nil {
			return nil, fmt.Errorf("release %s: %w", l.ProductID, err)
		}
		touched = append(touched, inv)
	}
	return touched, nil
}

func (uc *orderUseCase) lockOrder(ctx context.Context, orderID string) (*model.Order, error) {
	o, err := uc.repo.LockByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, apperror.NewNotFound("order", orderID)
	}
	return o, nil
}

func (uc *orderUseCase) lockInventory(ctx context.Context, lines []inventory.Line) (map[string]*model.Inventory, error) {
	locked, err := uc.invRepo.LockByProducts(ctx, inventory.ProductIDs(lines))
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		if _, ok := locked[l.ProductID]; !ok {
			return nil, apperror.NewNotFound("inventory", l.ProductID)
		}
	}
	return locked, nil
}

// productNames rejects unknown and archived products and returns display names.
func (uc *orderUseCase) productNames(ctx context.Context, lines []inventory.Line) (map[string]string, error) {
	products, err := uc.productRepo.FindByIDs(ctx, inventory.ProductIDs(lines))
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(products))
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, apperror.NewNotFound("product", l.ProductID)
		}
		if p.IsArchived {
			return nil, apperror.NewValidation("items", "product %s is archived", p.Name)
		}
		names[p.ID] = p.Name
	}
	return names, nil
}

func (uc *orderUseCase) publish(ctx context.Context, evts ...events.Event) {
	if err := uc.publisher.Publish(ctx, evts...); err != nil {
		uc.logger.Warn("Order events not delivered", zap.Error(err))
	}
}

func (uc *orderUseCase) recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.Code(err))

	var fault *apperror.DataIntegrityFault
	if errors.As(err, &fault) {
		uc.logger.Error("Inventory row violates current >= allocated",
			zap.String("product_id", fault.ProductID),
			zap.Int("current_stock", fault.Current),
			zap.Int("allocated_stock", fault.Allocated),
		)
	}
}

func validatePlaceOrder(input *dto.PlaceOrderInput) error {
	if strings.TrimSpace(input.CustomerID) == "" {
		return apperror.NewValidation("customer_id", "required")
	}
	if len(input.Items) == 0 {
		return apperror.NewValidation("items", "order has no lines")
	}
	for i, it := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.ProductID) == "" {
			return apperror.NewValidation(field+".product_id", "required")
		}
		if it.Quantity <= 0 {
			return apperror.NewValidation(field+".quantity", "must be positive")
		}
		if !it.Price.IsPositive() {
			return apperror.NewValidation(field+".price", "must be positive")
		}
	}
	return nil
}

func orderLines(o *model.Order) []inventory.Line {
	lines := make([]inventory.Line, len(o.Items))
	for i, it := range o.Items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	return inventory.MergeLines(lines)
}

func orderPayload(o *model.Order) events.OrderPayload {
	p := events.OrderPayload{OrderID: o.ID, CustomerID: o.CustomerID, Status: string(o.Status)}
	for _, it := range o.Items {
		p.Items = append(p.Items, events.OrderItemPayload{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return p
}
