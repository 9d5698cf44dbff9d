package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/batch/dto"
	"github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	prodrepo "github.com/fekuna/omnipos-stock-service/internal/product/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2026, 5, 10, 10, 0, 0, 0, time.UTC)

func setup(t *testing.T, current, allocated int) (*batchUseCase, *memdb.DB) {
	t.Helper()
	store := memdb.New()
	require.NoError(t, store.Do(context.Background(), func(tbl *memdb.Tables) error {
		tbl.Products["p1"] = model.Product{BaseModel: model.BaseModel{ID: "p1"}, SKU: "YG-1", Name: "Yogurt"}
		tbl.Inventories["p1"] = model.Inventory{ID: "inv-1", ProductID: "p1", CurrentStock: current, AllocatedStock: allocated}
		return nil
	}))
	uc := NewBatchUseCase(
		repository.NewMemoryRepository(store),
		invrepo.NewMemoryRepository(store),
		prodrepo.NewMemoryRepository(store),
		store,
		events.NoopPublisher{},
		logger.NewNop(),
	).(*batchUseCase)
	uc.now = func() time.Time { return today }
	return uc, store
}

func inventoryOf(t *testing.T, store *memdb.DB) model.Inventory {
	t.Helper()
	var inv model.Inventory
	_ = store.Do(context.Background(), func(tbl *memdb.Tables) error {
		inv = tbl.Inventories["p1"]
		return nil
	})
	return inv
}

func days(n int) *time.Time {
	d := today.AddDate(0, 0, n)
	return &d
}

func receive(t *testing.T, uc *batchUseCase, number string, qty int, expiry *time.Time) *model.Batch {
	t.Helper()
	b, err := uc.ReceiveBatch(context.Background(), &dto.ReceiveBatchInput{
		ProductID:    "p1",
		BatchNumber:  number,
		Quantity:     qty,
		ExpiryDate:   expiry,
		SupplierName: "Dairy Co",
		CostPrice:    decimal.RequireFromString("3.10"),
	})
	require.NoError(t, err)
	return b
}

func TestReceiveBatch_RestocksAggregate(t *testing.T) {
	uc, store := setup(t, 0, 0)

	b := receive(t, uc, "LOT-1", 12, days(20))
	assert.Equal(t, model.BatchActive, b.Status)
	assert.Equal(t, 12, inventoryOf(t, store).CurrentStock)

	_ = store.Do(context.Background(), func(tbl *memdb.Tables) error {
		require.Len(t, tbl.Movements, 1)
		m := tbl.Movements[0]
		assert.Equal(t, model.MovementRestock, m.MovementType)
		assert.Equal(t, "LOT-1", *m.Reference)
		assert.Equal(t, "Dairy Co", *m.SupplierName)
		assert.True(t, m.CostPrice.Decimal.Equal(decimal.RequireFromString("3.10")))
		return nil
	})

	_, err := uc.ReceiveBatch(context.Background(), &dto.ReceiveBatchInput{ProductID: "p1", BatchNumber: "X", Quantity: 0})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}

func TestBatchGuard_ArchiveOnlyWhenEmpty(t *testing.T) {
	uc, store := setup(t, 0, 0)
	ctx := context.Background()
	b := receive(t, uc, "LOT-1", 5, days(-1))

	_, err := uc.ArchiveBatch(ctx, b.ID)
	var nonEmpty *apperror.NonEmptyBatchError
	require.ErrorAs(t, err, &nonEmpty)
	assert.Equal(t, 5, nonEmpty.Quantity)

	disposed, err := uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 5, MovementType: "EXPIRED"})
	require.NoError(t, err)
	assert.Equal(t, 0, disposed.Quantity)
	assert.Equal(t, 0, inventoryOf(t, store).CurrentStock)

	archived, err := uc.ArchiveBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchArchived, archived.Status)

	again, err := uc.ArchiveBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchArchived, again.Status)
}

func TestDisposeBatch_RejectsCuttingIntoAllocated(t *testing.T) {
	uc, store := setup(t, 0, 0)
	ctx := context.Background()
	b := receive(t, uc, "LOT-1", 10, days(3))

	// Eight units are promised to pending orders.
	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		inv := tbl.Inventories["p1"]
		inv.AllocatedStock = 8
		tbl.Inventories["p1"] = inv
		return nil
	}))

	_, err := uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 4, MovementType: "DAMAGE", Reason: "crushed"})
	assert.Equal(t, apperror.CodeInsufficientStock, apperror.Code(err))

	got, err := uc.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Quantity, "batch change rolled back with the stock change")
	assert.Equal(t, 10, inventoryOf(t, store).CurrentStock)
}

func TestDisposeBatch_Validation(t *testing.T) {
	uc, _ := setup(t, 0, 0)
	ctx := context.Background()
	b := receive(t, uc, "LOT-1", 3, nil)

	_, err := uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 4, MovementType: "DAMAGE", Reason: "x"})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))

	_, err = uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 1, MovementType: "RESTOCK"})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))

	_, err = uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 1, MovementType: "DAMAGE"})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err), "damage needs a reason")

	returned, err := uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 1, MovementType: "SUPPLIER_RETURN"})
	require.NoError(t, err, "supplier defaults to the batch supplier")
	assert.Equal(t, 2, returned.Quantity)

	_, err = uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: "missing", Quantity: 1, MovementType: "EXPIRED"})
	assert.Equal(t, apperror.CodeNotFound, apperror.Code(err))
}

func TestRestoreBatch_BlockedByArchivedProduct(t *testing.T) {
	uc, store := setup(t, 0, 0)
	ctx := context.Background()
	b := receive(t, uc, "LOT-1", 1, nil)
	_, err := uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: b.ID, Quantity: 1, MovementType: "DAMAGE", Reason: "leak"})
	require.NoError(t, err)
	_, err = uc.ArchiveBatch(ctx, b.ID)
	require.NoError(t, err)

	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		p := tbl.Products["p1"]
		p.IsArchived = true
		tbl.Products["p1"] = p
		return nil
	}))

	_, err = uc.RestoreBatch(ctx, b.ID)
	var parentErr *apperror.ParentArchivedError
	require.ErrorAs(t, err, &parentErr)
	assert.Equal(t, "p1", parentErr.ParentID)

	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		p := tbl.Products["p1"]
		p.IsArchived = false
		tbl.Products["p1"] = p
		return nil
	}))
	restored, err := uc.RestoreBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchActive, restored.Status)
}

func TestMarkForReturn(t *testing.T) {
	uc, _ := setup(t, 0, 0)
	ctx := context.Background()
	b := receive(t, uc, "LOT-1", 2, days(40))

	marked, err := uc.MarkForReturn(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BatchMarkedForReturn, marked.Status)

	empty := receive(t, uc, "LOT-2", 1, nil)
	_, err = uc.DisposeBatch(ctx, &dto.DisposeBatchInput{BatchID: empty.ID, Quantity: 1, MovementType: "EXPIRED"})
	require.NoError(t, err)
	_, err = uc.ArchiveBatch(ctx, empty.ID)
	require.NoError(t, err)

	_, err = uc.MarkForReturn(ctx, empty.ID)
	assert.Equal(t, apperror.CodeInvalidTransition, apperror.Code(err))
}

func TestListExpiring_Classifies(t *testing.T) {
	uc, _ := setup(t, 0, 0)
	receive(t, uc, "OLD", 1, days(-2))
	receive(t, uc, "SOON", 1, days(5))
	receive(t, uc, "MONTH", 1, days(25))
	receive(t, uc, "FAR", 1, days(90))
	receive(t, uc, "NONE", 1, nil)

	items, err := uc.ListExpiring(context.Background(), 45)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "OLD", items[0].BatchNumber)
	assert.Equal(t, model.ExpiryExpired, items[0].ExpiryClass)
	assert.Equal(t, model.ExpiryCritical, items[1].ExpiryClass)
	assert.Equal(t, 5, items[1].DaysUntilExpiry)
	assert.Equal(t, model.ExpiryCaution, items[2].ExpiryClass)
}

func TestConsumeFEFO(t *testing.T) {
	uc, store := setup(t, 0, 0)
	late := receive(t, uc, "LATE", 5, days(30))
	untracked := receive(t, uc, "NONE", 5, nil)
	soon := receive(t, uc, "SOON", 5, days(2))

	var consumed []dto.Consumption
	var shortfall int
	err := store.WithinTransaction(context.Background(), func(ctx context.Context) error {
		var err error
		consumed, shortfall, err = batch.ConsumeFEFO(ctx, uc.repo, "p1", 12, today)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 0, shortfall)
	assert.Equal(t, []dto.Consumption{
		{BatchID: soon.ID, Quantity: 5},
		{BatchID: late.ID, Quantity: 5},
		{BatchID: untracked.ID, Quantity: 2},
	}, consumed)

	err = store.WithinTransaction(context.Background(), func(ctx context.Context) error {
		var err error
		_, shortfall, err = batch.ConsumeFEFO(ctx, uc.repo, "p1", 10, today)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 7, shortfall)
}

func TestReconcile_ReportsDrift(t *testing.T) {
	uc, store := setup(t, 0, 0)
	ctx := context.Background()
	receive(t, uc, "LOT-1", 6, days(10))

	drifts, err := uc.Reconcile(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, drifts)

	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		inv := tbl.Inventories["p1"]
		inv.CurrentStock = 9
		tbl.Inventories["p1"] = inv
		return nil
	}))

	drifts, err = uc.Reconcile(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, drifts, 1)
	assert.Equal(t, dto.Drift{ProductID: "p1", CurrentStock: 9, BatchTotal: 6, Difference: 3}, drifts[0])
}
