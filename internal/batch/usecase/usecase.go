package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/batch/dto"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var disposalTypes = map[model.MovementType]bool{
	model.MovementDamage:         true,
	model.MovementExpired:        true,
	model.MovementSupplierReturn: true,
}

type batchUseCase struct {
	repo        batch.Repository
	invRepo     inventory.Repository
	productRepo product.Repository
	tx          db.Transactor
	publisher   events.Publisher
	logger      logger.ZapLogger
	tracer      trace.Tracer
	now         func() time.Time
}

func NewBatchUseCase(
	repo batch.Repository,
	invRepo inventory.Repository,
	productRepo product.Repository,
	tx db.Transactor,
	publisher events.Publisher,
	log logger.ZapLogger,
) batch.UseCase {
	return &batchUseCase{
		repo:        repo,
		invRepo:     invRepo,
		productRepo: productRepo,
		tx:          tx,
		publisher:   publisher,
		logger:      log,
		tracer:      telemetry.Tracer("batch"),
		now:         time.Now,
	}
}

// ReceiveBatch books a delivery: the batch and its RESTOCK movement commit together.
func (uc *batchUseCase) ReceiveBatch(ctx context.Context, input *dto.ReceiveBatchInput) (*model.Batch, error) {
	ctx, span := uc.tracer.Start(ctx, "batch.ReceiveBatch", trace.WithAttributes(
		attribute.String("product.id", input.ProductID),
		attribute.Int("batch.quantity", input.Quantity),
	))
	defer span.End()

	if input.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity", "must be positive")
	}
	if strings.TrimSpace(input.BatchNumber) == "" {
		return nil, apperror.NewValidation("batch_number", "required")
	}
	if input.CostPrice.IsNegative() {
		return nil, apperror.NewValidation("cost_price", "must not be negative")
	}

	now := uc.now()
	received := now
	if input.ReceivedDate != nil {
		received = *input.ReceivedDate
	}
	b := &model.Batch{
		ID:           uuid.New().String(),
		ProductID:    input.ProductID,
		BatchNumber:  strings.TrimSpace(input.BatchNumber),
		Quantity:     input.Quantity,
		ExpiryDate:   input.ExpiryDate,
		ReceivedDate: received,
		SupplierName: optional(input.SupplierName),
		SupplierRef:  optional(input.SupplierRef),
		CostPrice:    input.CostPrice,
		Status:       model.BatchActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	var (
		inv      *model.Inventory
		movement *model.StockMovement
	)
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := uc.productRepo.FindByID(ctx, input.ProductID)
		if err != nil {
			return err
		}
		if p == nil {
			return apperror.NewNotFound("product", input.ProductID)
		}
		if p.IsArchived {
			return &apperror.ParentArchivedError{ChildID: b.BatchNumber, ParentID: p.ID}
		}

		if inv, err = uc.lockInventory(ctx, input.ProductID); err != nil {
			return err
		}
		if err := uc.repo.Create(ctx, b); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}

		cost := input.CostPrice
		movement, err = inventory.ApplyMovement(ctx, uc.invRepo, inv, model.MovementInput{
			Type:         model.MovementRestock,
			Delta:        input.Quantity,
			Actor:        uc.actor(ctx, input.UserID),
			Reference:    b.BatchNumber,
			SupplierName: input.SupplierName,
			CostPrice:    &cost,
		}, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	uc.logger.Info("Batch received",
		zap.String("batch_id", b.ID),
		zap.String("product_id", b.ProductID),
		zap.Int("quantity", b.Quantity),
	)
	evts := append(inventory.StockEvents(inv, movement),
		events.New(events.TypeBatchReceived, b.ProductID, events.BatchPayload{
			BatchID: b.ID, ProductID: b.ProductID, Quantity: b.Quantity,
		}))
	uc.publish(ctx, evts)
	return b, nil
}

// DisposeBatch writes off units of one batch and the matching aggregate stock.
func (uc *batchUseCase) DisposeBatch(ctx context.Context, input *dto.DisposeBatchInput) (*model.Batch, error) {
	ctx, span := uc.tracer.Start(ctx, "batch.DisposeBatch", trace.WithAttributes(
		attribute.String("batch.id", input.BatchID),
		attribute.Int("batch.quantity", input.Quantity),
	))
	defer span.End()

	if input.Quantity <= 0 {
		return nil, apperror.NewValidation("quantity", "must be positive")
	}
	movementType, err := model.ParseMovementType(input.MovementType)
	if err != nil {
		return nil, err
	}
	if !disposalTypes[movementType] {
		return nil, apperror.NewValidation("movement_type", "%s is not a disposal", movementType)
	}

	// Read the batch unlocked only to learn its product; locks are then taken
	// inventory first, batch second, the same order the sale paths use.
	peek, err := uc.GetBatch(ctx, input.BatchID)
	if err != nil {
		return nil, err
	}

	var (
		b        *model.Batch
		inv      *model.Inventory
		movement *model.StockMovement
	)
	err = uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		if inv, err = uc.lockInventory(ctx, peek.ProductID); err != nil {
			return err
		}
		if b, err = uc.lockBatch(ctx, input.BatchID); err != nil {
			return err
		}
		if b.Status == model.BatchArchived {
			return &apperror.InvalidTransitionError{Entity: "batch", ID: b.ID, From: string(b.Status), To: "DISPOSED"}
		}
		if input.Quantity > b.Quantity {
			return apperror.NewValidation("quantity", "batch %s holds only %d units", b.BatchNumber, b.Quantity)
		}

		now := uc.now()
		b.Quantity -= input.Quantity
		b.UpdatedAt = now
		if err := uc.repo.Update(ctx, b); err != nil {
			return fmt.Errorf("update batch: %w", err)
		}

		supplier := input.SupplierName
		if supplier == "" && b.SupplierName != nil {
			supplier = *b.SupplierName
		}
		reason := input.Reason
		if reason == "" && movementType == model.MovementExpired {
			reason = "batch " + b.BatchNumber + " expired"
		}
		movement, err = inventory.ApplyMovement(ctx, uc.invRepo, inv, model.MovementInput{
			Type:         movementType,
			Delta:        -input.Quantity,
			Actor:        uc.actor(ctx, input.UserID),
			Reason:       reason,
			Reference:    b.ID,
			SupplierName: supplier,
			CostPrice:    &b.CostPrice,
		}, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	evts := append(inventory.StockEvents(inv, movement),
		events.New(events.TypeBatchDisposed, b.ProductID, events.BatchPayload{
			BatchID: b.ID, ProductID: b.ProductID, Quantity: input.Quantity, Reason: string(movementType),
		}))
	uc.publish(ctx, evts)
	return b, nil
}

func (uc *batchUseCase) ArchiveBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	return uc.transition(ctx, batchID, func(ctx context.Context, b *model.Batch) (bool, error) {
		if b.Status == model.BatchArchived {
			return false, nil
		}
		if b.Quantity > 0 {
			return false, &apperror.NonEmptyBatchError{BatchID: b.ID, Quantity: b.Quantity}
		}
		b.Status = model.BatchArchived
		return true, nil
	})
}

func (uc *batchUseCase) RestoreBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	return uc.transition(ctx, batchID, func(ctx context.Context, b *model.Batch) (bool, error) {
		if b.Status != model.BatchArchived {
			return false, nil
		}
		p, err := uc.productRepo.FindByID(ctx, b.ProductID)
		if err != nil {
			return false, err
		}
		if p == nil || p.IsArchived {
			return false, &apperror.ParentArchivedError{ChildID: b.ID, ParentID: b.ProductID}
		}
		b.Status = model.BatchActive
		return true, nil
	})
}

func (uc *batchUseCase) MarkForReturn(ctx context.Context, batchID string) (*model.Batch, error) {
	return uc.transition(ctx, batchID, func(_ context.Context, b *model.Batch) (bool, error) {
		switch b.Status {
		case model.BatchMarkedForReturn:
			return false, nil
		case model.BatchArchived:
			return false, &apperror.InvalidTransitionError{
				Entity: "batch", ID: b.ID, From: string(b.Status), To: string(model.BatchMarkedForReturn),
			}
		}
		b.Status = model.BatchMarkedForReturn
		return true, nil
	})
}

// transition locks the batch and applies change; unchanged batches are not written.
func (uc *batchUseCase) transition(ctx context.Context, batchID string, change func(context.Context, *model.Batch) (bool, error)) (*model.Batch, error) {
	var b *model.Batch
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if b, err = uc.lockBatch(ctx, batchID); err != nil {
			return err
		}
		changed, err := change(ctx, b)
		if err != nil || !changed {
			return err
		}
		b.UpdatedAt = uc.now()
		return uc.repo.Update(ctx, b)
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (uc *batchUseCase) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	b, err := uc.repo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	return b, nil
}

func (uc *batchUseCase) ListBatches(ctx context.Context, productID string) ([]model.Batch, error) {
	return uc.repo.ListByProduct(ctx, productID)
}

func (uc *batchUseCase) ListExpiring(ctx context.Context, withinDays int) ([]dto.ExpiringBatch, error) {
	if withinDays < 0 {
		return nil, apperror.NewValidation("within_days", "must not be negative")
	}
	now := uc.now()
	batches, err := uc.repo.ListExpiring(ctx, now.AddDate(0, 0, withinDays))
	if err != nil {
		return nil, err
	}

	out := make([]dto.ExpiringBatch, 0, len(batches))
	for _, b := range batches {
		out = append(out, dto.ExpiringBatch{
			Batch:           b,
			DaysUntilExpiry: model.DaysUntil(*b.ExpiryDate, now),
			ExpiryClass:     b.ExpiryClass(now),
		})
	}
	return out, nil
}

// Reconcile compares current_stock with the batch total of every product that
// has batches. Only drifting products are returned.
func (uc *batchUseCase) Reconcile(ctx context.Context, productID string) ([]dto.Drift, error) {
	totals, err := uc.repo.SumByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	var drifts []dto.Drift
	for pid, total := range totals {
		inv, err := uc.invRepo.GetByProduct(ctx, pid)
		if err != nil {
			return nil, err
		}
		current := 0
		if inv != nil {
			current = inv.CurrentStock
		}
		if current != total {
			drifts = append(drifts, dto.Drift{
				ProductID:    pid,
				CurrentStock: current,
				BatchTotal:   total,
				Difference:   current - total,
			})
		}
	}
	sort.Slice(drifts, func(i, j int) bool { return drifts[i].ProductID < drifts[j].ProductID })
	if len(drifts) > 0 {
		uc.logger.Warn("Batch totals drift from current stock", zap.Int("products", len(drifts)))
	}
	return drifts, nil
}

func (uc *batchUseCase) lockInventory(ctx context.Context, productID string) (*model.Inventory, error) {
	locked, err := uc.invRepo.LockByProducts(ctx, []string{productID})
	if err != nil {
		return nil, err
	}
	inv, ok := locked[productID]
	if !ok {
		return nil, apperror.NewNotFound("inventory", productID)
	}
	return inv, nil
}

func (uc *batchUseCase) lockBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	b, err := uc.repo.LockByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apperror.NewNotFound("batch", batchID)
	}
	return b, nil
}

func (uc *batchUseCase) actor(ctx context.Context, userID string) string {
	if userID != "" {
		return userID
	}
	return auth.GetUserID(ctx)
}

func (uc *batchUseCase) publish(ctx context.Context, evts []events.Event) {
	if err := uc.publisher.Publish(ctx, evts...); err != nil {
		uc.logger.Warn("Batch events not delivered", zap.Error(err))
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
