package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	batchrepo "github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	prodrepo "github.com/fekuna/omnipos-stock-service/internal/product/repository"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/fekuna/omnipos-stock-service/internal/sale/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var soldAt = time.Date(2026, 4, 18, 15, 30, 0, 0, time.UTC)

func setup(t *testing.T) (*saleUseCase, *memdb.DB) {
	t.Helper()
	store := memdb.New()
	require.NoError(t, store.Do(context.Background(), func(tbl *memdb.Tables) error {
		tbl.Products["p1"] = model.Product{
			BaseModel: model.BaseModel{ID: "p1"}, SKU: "CF-1", Name: "Coffee",
			RetailPrice: decimal.RequireFromString("4.00"), CostPrice: decimal.RequireFromString("2.50"),
		}
		tbl.Products["p2"] = model.Product{
			BaseModel: model.BaseModel{ID: "p2"}, SKU: "TE-1", Name: "Tea",
			RetailPrice: decimal.RequireFromString("1.25"), CostPrice: decimal.RequireFromString("0.40"),
		}
		tbl.Inventories["p1"] = model.Inventory{ID: "inv-1", ProductID: "p1", CurrentStock: 10, AllocatedStock: 2}
		tbl.Inventories["p2"] = model.Inventory{ID: "inv-2", ProductID: "p2", CurrentStock: 1}
		return nil
	}))
	uc := NewSaleUseCase(
		repository.NewMemoryRepository(store),
		invrepo.NewMemoryRepository(store),
		prodrepo.NewMemoryRepository(store),
		batchrepo.NewMemoryRepository(store),
		store,
		events.NoopPublisher{},
		logger.NewNop(),
	).(*saleUseCase)
	uc.now = func() time.Time { return soldAt }
	return uc, store
}

func inventoryOf(t *testing.T, store *memdb.DB, productID string) model.Inventory {
	t.Helper()
	var inv model.Inventory
	_ = store.Do(context.Background(), func(tbl *memdb.Tables) error {
		inv = tbl.Inventories[productID]
		return nil
	})
	return inv
}

func cash(amount string, lines ...dto.SaleLineInput) *dto.RecordSaleInput {
	return &dto.RecordSaleInput{
		CashierID: "cashier-1",
		Items:     lines,
		Payment:   dto.PaymentInput{Method: "cash", AmountTendered: decimal.RequireFromString(amount)},
	}
}

func TestRecordPosSale_DecrementsCurrentOnly(t *testing.T) {
	uc, store := setup(t)

	tx, err := uc.RecordPosSale(context.Background(), cash("20", dto.SaleLineInput{ProductID: "p1", Quantity: 3}))
	require.NoError(t, err)

	inv := inventoryOf(t, store, "p1")
	assert.Equal(t, 7, inv.CurrentStock)
	assert.Equal(t, 2, inv.AllocatedStock)

	assert.Regexp(t, `^RCP-20260418-[0-9A-F]{8}$`, tx.ReceiptNo)
	assert.Equal(t, model.TransactionCompleted, tx.Status)
	require.Len(t, tx.Items, 1)
	assert.True(t, tx.Items[0].PriceAtSale.Equal(decimal.RequireFromString("4.00")))
	assert.True(t, tx.Items[0].CostAtSale.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, tx.TotalAmount.Equal(decimal.RequireFromString("12")))
	require.NotNil(t, tx.Payment)
	assert.True(t, tx.Payment.ChangeDue.Equal(decimal.RequireFromString("8")))

	_ = store.Do(context.Background(), func(tbl *memdb.Tables) error {
		require.Len(t, tbl.Movements, 1)
		m := tbl.Movements[0]
		assert.Equal(t, model.MovementSale, m.MovementType)
		assert.Equal(t, 10, m.PreviousStock)
		assert.Equal(t, 7, m.NewStock)
		assert.Equal(t, tx.ReceiptNo, *m.Reference)
		return nil
	})
}

func TestRecordPosSale_SnapshotSurvivesPriceChange(t *testing.T) {
	uc, store := setup(t)
	ctx := context.Background()

	tx, err := uc.RecordPosSale(ctx, cash("4", dto.SaleLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		p := tbl.Products["p1"]
		p.RetailPrice = decimal.RequireFromString("9.99")
		p.CostPrice = decimal.RequireFromString("7.00")
		tbl.Products["p1"] = p
		return nil
	}))

	got, err := uc.GetTransaction(ctx, tx.ReceiptNo)
	require.NoError(t, err)
	assert.True(t, got.Items[0].PriceAtSale.Equal(decimal.RequireFromString("4.00")))
	assert.True(t, got.Items[0].Profit().Equal(decimal.RequireFromString("1.50")))
}

func TestRecordPosSale_CannotSellAllocatedStock(t *testing.T) {
	uc, store := setup(t)

	_, err := uc.RecordPosSale(context.Background(), cash("100",
		dto.SaleLineInput{ProductID: "p1", Quantity: 9},
		dto.SaleLineInput{ProductID: "p2", Quantity: 1},
	))
	var stockErr *apperror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Issues, 1)
	assert.Equal(t, "p1", stockErr.Issues[0].ProductID)
	assert.Equal(t, 8, stockErr.Issues[0].Available)

	assert.Equal(t, 10, inventoryOf(t, store, "p1").CurrentStock)
	assert.Equal(t, 1, inventoryOf(t, store, "p2").CurrentStock)
	_ = store.Do(context.Background(), func(tbl *memdb.Tables) error {
		assert.Empty(t, tbl.Transactions)
		assert.Empty(t, tbl.Movements)
		return nil
	})
}

func TestRecordPosSale_Validation(t *testing.T) {
	uc, _ := setup(t)

	tests := []struct {
		name  string
		input *dto.RecordSaleInput
		field string
	}{
		{"empty cart", cash("10"), "items"},
		{"zero quantity", cash("10", dto.SaleLineInput{ProductID: "p1"}), "items[0].quantity"},
		{"unknown method", &dto.RecordSaleInput{
			CashierID: "c1",
			Items:     []dto.SaleLineInput{{ProductID: "p1", Quantity: 1}},
			Payment:   dto.PaymentInput{Method: "cheque"},
		}, "payment.method"},
		{"cash short", cash("3.99", dto.SaleLineInput{ProductID: "p1", Quantity: 1}), "payment.amount_tendered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := uc.RecordPosSale(context.Background(), tt.input)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestRecordPosSale_CardChargesExactTotal(t *testing.T) {
	uc, _ := setup(t)

	tx, err := uc.RecordPosSale(context.Background(), &dto.RecordSaleInput{
		CashierID: "cashier-1",
		Items:     []dto.SaleLineInput{{ProductID: "p2", Quantity: 1}},
		Payment:   dto.PaymentInput{Method: "CARD"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.PaymentCard, tx.Payment.Method)
	assert.True(t, tx.Payment.AmountTendered.Equal(decimal.RequireFromString("1.25")))
	assert.True(t, tx.Payment.ChangeDue.IsZero())
}

func TestRecordPosSale_ConcurrentLastUnit(t *testing.T) {
	uc, store := setup(t)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		sold int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.RecordPosSale(context.Background(), cash("5", dto.SaleLineInput{ProductID: "p2", Quantity: 1}))
			if err == nil {
				mu.Lock()
				sold++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, sold)
	assert.Equal(t, 0, inventoryOf(t, store, "p2").CurrentStock)
}

func TestVoidTransaction_RestocksOnce(t *testing.T) {
	uc, store := setup(t)
	ctx := context.Background()

	tx, err := uc.RecordPosSale(ctx, cash("20", dto.SaleLineInput{ProductID: "p1", Quantity: 3}))
	require.NoError(t, err)

	voided, err := uc.VoidTransaction(ctx, &dto.VoidInput{ReceiptNo: tx.ReceiptNo, Reason: "wrong item", UserID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, model.TransactionVoid, voided.Status)
	assert.Equal(t, "wrong item", *voided.VoidReason)
	assert.Equal(t, 10, inventoryOf(t, store, "p1").CurrentStock)

	_, err = uc.VoidTransaction(ctx, &dto.VoidInput{ReceiptNo: tx.ReceiptNo, Reason: "again"})
	var transition *apperror.InvalidTransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, 10, inventoryOf(t, store, "p1").CurrentStock)

	_ = store.Do(ctx, func(tbl *memdb.Tables) error {
		require.Len(t, tbl.Movements, 2)
		assert.Equal(t, model.MovementSaleVoid, tbl.Movements[1].MovementType)
		assert.Equal(t, 3, tbl.Movements[1].QuantityChange)
		return nil
	})
}

func TestVoidTransaction_Validation(t *testing.T) {
	uc, _ := setup(t)
	ctx := context.Background()

	_, err := uc.VoidTransaction(ctx, &dto.VoidInput{ReceiptNo: "RCP-x"})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))

	_, err = uc.VoidTransaction(ctx, &dto.VoidInput{ReceiptNo: "RCP-x", Reason: "typo"})
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}

func TestSaleAndVoid_KeepBatchesInStep(t *testing.T) {
	uc, store := setup(t)
	ctx := context.Background()

	soon := soldAt.AddDate(0, 0, 2)
	later := soldAt.AddDate(0, 1, 0)
	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		tbl.Batches["b1"] = model.Batch{ID: "b1", ProductID: "p1", Quantity: 2, ExpiryDate: &soon, Status: model.BatchActive}
		tbl.Batches["b2"] = model.Batch{ID: "b2", ProductID: "p1", Quantity: 8, ExpiryDate: &later, Status: model.BatchActive}
		return nil
	}))

	tx, err := uc.RecordPosSale(ctx, cash("20", dto.SaleLineInput{ProductID: "p1", Quantity: 3}))
	require.NoError(t, err)
	_ = store.Do(ctx, func(tbl *memdb.Tables) error {
		assert.Equal(t, 0, tbl.Batches["b1"].Quantity)
		assert.Equal(t, 7, tbl.Batches["b2"].Quantity)
		return nil
	})

	_, err = uc.VoidTransaction(ctx, &dto.VoidInput{ReceiptNo: tx.ReceiptNo, Reason: "customer changed mind"})
	require.NoError(t, err)
	_ = store.Do(ctx, func(tbl *memdb.Tables) error {
		assert.Equal(t, 10, tbl.Batches["b1"].Quantity+tbl.Batches["b2"].Quantity)
		return nil
	})
}

func TestListTransactions(t *testing.T) {
	uc, _ := setup(t)
	ctx := context.Background()

	tx, err := uc.RecordPosSale(ctx, cash("4", dto.SaleLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	_, err = uc.RecordPosSale(ctx, cash("4", dto.SaleLineInput{ProductID: "p1", Quantity: 1}))
	require.NoError(t, err)
	_, err = uc.VoidTransaction(ctx, &dto.VoidInput{ReceiptNo: tx.ReceiptNo, Reason: "test"})
	require.NoError(t, err)

	items, total, err := uc.ListTransactions(ctx, &dto.TransactionFilters{Status: "void"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, tx.ReceiptNo, items[0].ReceiptNo)

	_, _, err = uc.ListTransactions(ctx, &dto.TransactionFilters{Status: "LOST"})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}
