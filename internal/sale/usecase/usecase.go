package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/db"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type saleUseCase struct {
	repo        sale.Repository
	invRepo     inventory.Repository
	productRepo product.Repository
	batchRepo   batch.Repository
	tx          db.Transactor
	publisher   events.Publisher
	logger      logger.ZapLogger
	tracer      trace.Tracer
	now         func() time.Time
}

func NewSaleUseCase(
	repo sale.Repository,
	invRepo inventory.Repository,
	productRepo product.Repository,
	batchRepo batch.Repository,
	tx db.Transactor,
	publisher events.Publisher,
	log logger.ZapLogger,
) sale.UseCase {
	return &saleUseCase{
		repo:        repo,
		invRepo:     invRepo,
		productRepo: productRepo,
		batchRepo:   batchRepo,
		tx:          tx,
		publisher:   publisher,
		logger:      log,
		tracer:      telemetry.Tracer("sale"),
		now:         time.Now,
	}
}

// RecordPosSale is the single-step counter sale: availability is checked and
// current_stock is decremented in the transaction that writes the receipt.
// Nothing is allocated because there is no pending interval.
func (uc *saleUseCase) RecordPosSale(ctx context.Context, input *dto.RecordSaleInput) (*model.Transaction, error) {
	ctx, span := uc.tracer.Start(ctx, "sale.RecordPosSale", trace.WithAttributes(
		attribute.String("cashier.id", input.CashierID),
		attribute.Int("sale.lines", len(input.Items)),
	))
	defer span.End()

	method, err := validateSale(input)
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	lines := make([]inventory.Line, len(input.Items))
	for i, it := range input.Items {
		lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
	}
	lines = inventory.MergeLines(lines)

	now := uc.now()
	t := &model.Transaction{
		BaseModel: model.BaseModel{ID: uuid.New().String(), CreatedAt: now, UpdatedAt: now},
		ReceiptNo: model.NewReceiptNo(now),
		CashierID: strings.TrimSpace(input.CashierID),
		Status:    model.TransactionCompleted,
	}
	span.SetAttributes(attribute.String("sale.receipt_no", t.ReceiptNo))

	var evts []events.Event
	err = uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		products, err := uc.sellableProducts(ctx, lines)
		if err != nil {
			return err
		}

		locked, err := uc.invRepo.LockByProducts(ctx, inventory.ProductIDs(lines))
		if err != nil {
			return err
		}
		names := make(map[string]string, len(products))
		for id, p := range products {
			names[id] = p.Name
		}
		issues, err := inventory.CheckAvailability(locked, lines, names)
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			return &apperror.InsufficientStockError{Issues: issues}
		}

		subtotal := decimal.Zero
		for _, l := range lines {
			p := products[l.ProductID]
			item := model.TransactionItem{
				ID:            uuid.New().String(),
				TransactionID: t.ID,
				ProductID:     l.ProductID,
				Quantity:      l.Quantity,
				PriceAtSale:   p.RetailPrice,
				CostAtSale:    p.CostPrice,
				LineTotal:     p.RetailPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			}
			t.Items = append(t.Items, item)
			subtotal = subtotal.Add(item.LineTotal)
		}
		t.Subtotal = subtotal
		t.TotalAmount = subtotal

		if t.Payment, err = newPayment(t, method, input.Payment.AmountTendered, now); err != nil {
			return err
		}
		if err := uc.repo.Create(ctx, t); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}

		for _, l := range lines {
			inv := locked[l.ProductID]
			movement, err := inventory.ApplyMovement(ctx, uc.invRepo, inv, model.MovementInput{
				Type:      model.MovementSale,
				Delta:     -l.Quantity,
				Actor:     t.CashierID,
				Reason:    "POS sale",
				Reference: t.ReceiptNo,
				CostPrice: &products[l.ProductID].CostPrice,
			}, now)
			if err != nil {
				return err
			}
			evts = append(evts, inventory.StockEvents(inv, movement)...)

			_, shortfall, err := batch.ConsumeFEFO(ctx, uc.batchRepo, l.ProductID, l.Quantity, now)
			if err != nil {
				return err
			}
			if shortfall > 0 {
				uc.logger.Warn("Batches do not cover sold quantity",
					zap.String("receipt_no", t.ReceiptNo),
					zap.String("product_id", l.ProductID),
					zap.Int("shortfall", shortfall),
				)
			}
		}
		return nil
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	uc.logger.Info("POS sale recorded",
		zap.String("receipt_no", t.ReceiptNo),
		zap.String("cashier_id", t.CashierID),
		zap.String("total", t.TotalAmount.StringFixed(2)),
	)
	evts = append([]events.Event{events.New(events.TypeSaleRecorded, t.ID, salePayload(t))}, evts...)
	uc.publish(ctx, evts...)
	return t, nil
}

// VoidTransaction reverses a completed sale. Every line goes back to
// current_stock through a SALE_VOID movement in the same transaction that flips
// the status, so a void can never leave stock unaccounted for.
func (uc *saleUseCase) VoidTransaction(ctx context.Context, input *dto.VoidInput) (*model.Transaction, error) {
	ctx, span := uc.tracer.Start(ctx, "sale.VoidTransaction", trace.WithAttributes(
		attribute.String("sale.receipt_no", input.ReceiptNo),
	))
	defer span.End()

	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		err := apperror.NewValidation("reason", "required to void a sale")
		uc.recordError(span, err)
		return nil, err
	}

	var (
		t    *model.Transaction
		evts []events.Event
	)
	err := uc.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if t, err = uc.repo.LockByReceipt(ctx, input.ReceiptNo); err != nil {
			return err
		}
		if t == nil {
			return apperror.NewNotFound("transaction", input.ReceiptNo)
		}
		if t.Status != model.TransactionCompleted {
			return &apperror.InvalidTransitionError{
				Entity: "transaction", ID: t.ReceiptNo, From: string(t.Status), To: string(model.TransactionVoid),
			}
		}

		lines := make([]inventory.Line, len(t.Items))
		for i, it := range t.Items {
			lines[i] = inventory.Line{ProductID: it.ProductID, Quantity: it.Quantity}
		}
		lines = inventory.MergeLines(lines)

		locked, err := uc.invRepo.LockByProducts(ctx, inventory.ProductIDs(lines))
		if err != nil {
			return err
		}
		now := uc.now()
		for _, l := range lines {
			inv, ok := locked[l.ProductID]
			if !ok {
				return apperror.NewNotFound("inventory", l.ProductID)
			}
			movement, err := inventory.ApplyMovement(ctx, uc.invRepo, inv, model.MovementInput{
				Type:      model.MovementSaleVoid,
				Delta:     l.Quantity,
				Actor:     input.UserID,
				Reason:    reason,
				Reference: t.ReceiptNo,
			}, now)
			if err != nil {
				return err
			}
			evts = append(evts, inventory.StockEvents(inv, movement)...)

			if _, ok, err := batch.ReturnFEFO(ctx, uc.batchRepo, l.ProductID, l.Quantity, now); err != nil {
				return err
			} else if !ok {
				uc.logger.Debug("Voided units not assigned to a batch",
					zap.String("receipt_no", t.ReceiptNo),
					zap.String("product_id", l.ProductID),
				)
			}
		}

		t.Status = model.TransactionVoid
		t.VoidReason = &reason
		if input.UserID != "" {
			t.VoidedBy = &input.UserID
		}
		t.VoidedAt = &now
		t.UpdatedAt = now
		return uc.repo.UpdateStatus(ctx, t)
	})
	if err != nil {
		uc.recordError(span, err)
		return nil, err
	}

	uc.logger.Info("POS sale voided",
		zap.String("receipt_no", t.ReceiptNo),
		zap.String("reason", reason),
	)
	evts = append([]events.Event{events.New(events.TypeSaleVoided, t.ID, salePayload(t))}, evts...)
	uc.publish(ctx, evts...)
	return t, nil
}

func (uc *saleUseCase) GetTransaction(ctx context.Context, receiptNo string) (*model.Transaction, error) {
	t, err := uc.repo.FindByReceipt(ctx, receiptNo)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apperror.NewNotFound("transaction", receiptNo)
	}
	return t, nil
}

func (uc *saleUseCase) ListTransactions(ctx context.Context, filters *dto.TransactionFilters) ([]model.Transaction, int, error) {
	if filters.Status != "" {
		st := model.TransactionStatus(strings.ToUpper(filters.Status))
		switch st {
		case model.TransactionCompleted, model.TransactionVoid, model.TransactionCancelled:
			filters.Status = string(st)
		default:
			return nil, 0, apperror.NewValidation("status", "unknown transaction status %q", filters.Status)
		}
	}
	return uc.repo.FindAll(ctx, filters)
}

// sellableProducts loads the catalog rows whose prices are snapshotted.
func (uc *saleUseCase) sellableProducts(ctx context.Context, lines []inventory.Line) (map[string]*model.Product, error) {
	products, err := uc.productRepo.FindByIDs(ctx, inventory.ProductIDs(lines))
	if err != nil {
		return nil, err
	}
	for _, l := range lines {
		p, ok := products[l.ProductID]
		if !ok {
			return nil, apperror.NewNotFound("product", l.ProductID)
		}
		if p.IsArchived {
			return nil, apperror.NewValidation("items", "product %s is archived", p.Name)
		}
		if !p.RetailPrice.IsPositive() {
			return nil, apperror.NewValidation("items", "product %s has no retail price", p.Name)
		}
	}
	return products, nil
}

func newPayment(t *model.Transaction, method model.PaymentMethod, tendered decimal.Decimal, now time.Time) (*model.Payment, error) {
	p := &model.Payment{
		ID:             uuid.New().String(),
		TransactionID:  t.ID,
		Method:         method,
		Amount:         t.TotalAmount,
		AmountTendered: t.TotalAmount,
		ChangeDue:      decimal.Zero,
		CreatedAt:      now,
	}
	if method == model.PaymentCash {
		if tendered.LessThan(t.TotalAmount) {
			return nil, apperror.NewValidation("payment.amount_tendered",
				"%s tendered, %s due", tendered.StringFixed(2), t.TotalAmount.StringFixed(2))
		}
		p.AmountTendered = tendered
		p.ChangeDue = tendered.Sub(t.TotalAmount)
	}
	return p, nil
}

func (uc *saleUseCase) publish(ctx context.Context, evts ...events.Event) {
	if err := uc.publisher.Publish(ctx, evts...); err != nil {
		uc.logger.Warn("Sale events not delivered", zap.Error(err))
	}
}

func (uc *saleUseCase) recordError(span trace.Span, err error) {
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

func validateSale(input *dto.RecordSaleInput) (model.PaymentMethod, error) {
	if strings.TrimSpace(input.CashierID) == "" {
		return "", apperror.NewValidation("cashier_id", "required")
	}
	if len(input.Items) == 0 {
		return "", apperror.NewValidation("items", "cart is empty")
	}
	for i, it := range input.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.ProductID) == "" {
			return "", apperror.NewValidation(field+".product_id", "required")
		}
		if it.Quantity <= 0 {
			return "", apperror.NewValidation(field+".quantity", "must be positive")
		}
	}
	method, ok := model.ParsePaymentMethod(input.Payment.Method)
	if !ok {
		return "", apperror.NewValidation("payment.method", "unknown payment method %q", input.Payment.Method)
	}
	if input.Payment.AmountTendered.IsNegative() {
		return "", apperror.NewValidation("payment.amount_tendered", "must not be negative")
	}
	return method, nil
}

func salePayload(t *model.Transaction) events.SalePayload {
	p := events.SalePayload{
		TransactionID: t.ID,
		ReceiptNo:     t.ReceiptNo,
		Status:        string(t.Status),
		TotalAmount:   t.TotalAmount.StringFixed(2),
	}
	for _, it := range t.Items {
		p.Items = append(p.Items, events.OrderItemPayload{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return p
}
