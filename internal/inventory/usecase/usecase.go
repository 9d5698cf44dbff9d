package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Movement types owned by the order, sale and product protocols.
var protocolMovements = map[model.MovementType]bool{
	model.MovementInitialStock: true,
	model.MovementSale:         true,
	model.MovementSaleVoid:     true,
}

type inventoryUseCase struct {
	repo      inventory.Repository
	tx        db.Transactor
	publisher events.Publisher
	logger    logger.ZapLogger
	tracer    trace.Tracer
	now       func() time.Time
}

func NewInventoryUseCase(repo inventory.Repository, tx db.Transactor, publisher events.Publisher, log logger.ZapLogger) inventory.UseCase {
	return &inventoryUseCase{
		repo:      repo,
		tx:        tx,
		publisher: publisher,
		logger:    log,
		tracer:    telemetry.Tracer("inventory"),
		now:       time.Now,
	}
}

func (uc *inventoryUseCase) GetAvailableStock(ctx context.Context, productID string) (int, error) {
	inv, err := uc.GetProductInventory(ctx, productID)
	if err != nil {
		return 0, err
	}
	available, err := inv.Available()
	if err != nil {
		uc.logger.Error("Inventory row violates current >= allocated",
			zap.String("product_id", inv.ProductID),
			zap.Int("current_stock", inv.CurrentStock),
			zap.Int("allocated_stock", inv.AllocatedStock),
		)
		return 0, err
	}
	return available, nil
}

func (uc *inventoryUseCase) GetProductInventory(ctx context.Context, productID string) (*model.Inventory, error) {
	inv, err := uc.repo.GetByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, apperror.NewNotFound("inventory", productID)
	}
	return inv, nil
}

func (uc *inventoryUseCase) AdjustStock(ctx context.Context, input *dto.AdjustStockInput) (*model.Inventory, error) {
	ctx, span := uc.tracer.Start(ctx, "inventory.AdjustStock", trace.WithAttributes(
		attribute.String("product.id", input.ProductID),
		attribute.String("movement.type", input.MovementType),
		attribute.Int("movement.quantity_change", input.QuantityChange),
	))
	defer span.End()

	if strings.TrimSpace(input.ProductID) == "" {
		return nil, apperror.NewValidation("product_id", "required")
	}
	movementType, err := model.ParseMovementType(input.MovementType)
	if err != nil {
		return nil, err
	}
	if protocolMovements[movementType] {
		return nil, apperror.NewValidation("movement_type", "%s is recorded by its own workflow", movementType)
	}

	userID := input.UserID
	if userID == "" {
		userID = auth.GetUserID(ctx)
	}

	inv, movement, err := uc.lockAndApply(ctx, input.ProductID, func(*model.Inventory) *model.MovementInput {
		return &model.MovementInput{
			Type:         movementType,
			Delta:        input.QuantityChange,
			Actor:        userID,
			Reason:       input.Reason,
			Reference:    input.Reference,
			SupplierName: input.SupplierName,
			CostPrice:    input.CostPrice,
		}
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	uc.logger.Info("Stock adjusted",
		zap.String("product_id", inv.ProductID),
		zap.String("movement_type", string(movementType)),
		zap.Int("quantity_change", movement.QuantityChange),
		zap.Int("new_stock", movement.NewStock),
	)
	uc.publish(ctx, inventory.StockEvents(inv, movement)...)
	return inv, nil
}

// SetCountedStock books the ADJUSTMENT that brings current_stock to the
// physically counted quantity. The difference is taken from the locked row, so
// writes committed before the lock are absorbed by the count. A nil movement
// means the row already matched.
func (uc *inventoryUseCase) SetCountedStock(ctx context.Context, input *dto.CountStockInput) (*model.Inventory, *model.StockMovement, error) {
	ctx, span := uc.tracer.Start(ctx, "inventory.SetCountedStock", trace.WithAttributes(
		attribute.String("product.id", input.ProductID),
		attribute.Int("stock.counted", input.Counted),
	))
	defer span.End()

	if strings.TrimSpace(input.ProductID) == "" {
		return nil, nil, apperror.NewValidation("product_id", "required")
	}
	if input.Counted < 0 {
		return nil, nil, apperror.NewValidation("counted", "must not be negative")
	}

	userID := input.UserID
	if userID == "" {
		userID = auth.GetUserID(ctx)
	}

	inv, movement, err := uc.lockAndApply(ctx, input.ProductID, func(inv *model.Inventory) *model.MovementInput {
		diff := input.Counted - inv.CurrentStock
		if diff == 0 {
			return nil
		}
		return &model.MovementInput{
			Type:      model.MovementAdjustment,
			Delta:     diff,
			Actor:     userID,
			Reason:    input.Reason,
			Reference: input.Reference,
		}
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, nil, err
	}
	if movement == nil {
		return inv, nil, nil
	}

	uc.logger.Info("Stock counted",
		zap.String("product_id", inv.ProductID),
		zap.Int("counted", input.Counted),
		zap.Int("quantity_change", movement.QuantityChange),
	)
	uc.publish(ctx, inventory.StockEvents(inv, movement)...)
	return inv, movement, nil
}

// lockAndApply locks the product's row and books the movement build derives
// from it, all in one transaction. build returning nil books nothing.
func (uc *inventoryUseCase) lockAndApply(ctx context.Context, productID string, build func(*model.Inventory) *model.MovementInput) (*model.Inventory, *model.StockMovement, error) {
	var (
		inv      *model.Inventory
		movement *model.StockMovement
	)
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		locked, err := uc.repo.LockByProducts(ctx, []string{productID})
		if err != nil {
			return err
		}
		var ok bool
		if inv, ok = locked[productID]; !ok {
			return apperror.NewNotFound("inventory", productID)
		}

		in := build(inv)
		if in == nil {
			return nil
		}
		movement, err = inventory.ApplyMovement(ctx, uc.repo, inv, *in, uc.now())
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return inv, movement, nil
}

func (uc *inventoryUseCase) SetReorderLevel(ctx context.Context, productID string, level int) (*model.Inventory, error) {
	if level < 0 {
		return nil, apperror.NewValidation("reorder_level", "must not be negative")
	}
	if _, err := uc.GetProductInventory(ctx, productID); err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateReorderLevel(ctx, productID, level); err != nil {
		return nil, err
	}
	inv, err := uc.GetProductInventory(ctx, productID)
	if err != nil {
		return nil, err
	}
	uc.publish(ctx, inventory.StockEvents(inv, nil)...)
	return inv, nil
}

func (uc *inventoryUseCase) ListLowStock(ctx context.Context, page, pageSize int) ([]model.Inventory, int, error) {
	return uc.repo.FindAll(ctx, &dto.InventoryFilters{
		LowStock: true,
		Page:     page,
		PageSize: pageSize,
	})
}

func (uc *inventoryUseCase) ListMovements(ctx context.Context, filters *dto.MovementFilters) ([]model.StockMovement, int, error) {
	if filters.MovementType != "" {
		mt, err := model.ParseMovementType(filters.MovementType)
		if err != nil {
			return nil, 0, err
		}
		filters.MovementType = string(mt)
	}
	if filters.StartDate != nil && filters.EndDate != nil && filters.EndDate.Before(*filters.StartDate) {
		return nil, 0, apperror.NewValidation("end_date", "must not be before start_date")
	}
	return uc.repo.ListMovements(ctx, filters)
}

func (uc *inventoryUseCase) publish(ctx context.Context, evts ...events.Event) {
	if len(evts) == 0 {
		return
	}
	if err := uc.publisher.Publish(ctx, evts...); err != nil {
		uc.logger.Warn("Stock events not delivered", zap.Error(err))
	}
}

func (uc *inventoryUseCase) recordError(span trace.Span, err error) {
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
