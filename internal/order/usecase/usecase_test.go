package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	batchrepo "github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
	"github.com/fekuna/omnipos-stock-service/internal/order/repository"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	prodrepo "github.com/fekuna/omnipos-stock-service/internal/product/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var placedAt = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(_ context.Context, evts ...events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evts...)
	return nil
}

func (p *capturePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

type stock struct {
	id        string
	name      string
	current   int
	allocated int
}

func setup(t *testing.T, rows ...stock) (*orderUseCase, *memdb.DB, *capturePublisher) {
	t.Helper()
	store := memdb.New()
	require.NoError(t, store.Do(context.Background(), func(tbl *memdb.Tables) error {
		for _, r := range rows {
			tbl.Products[r.id] = model.Product{BaseModel: model.BaseModel{ID: r.id}, SKU: "SKU-" + r.id, Name: r.name}
			tbl.Inventories[r.id] = model.Inventory{
				ID: "inv-" + r.id, ProductID: r.id, CurrentStock: r.current, AllocatedStock: r.allocated,
			}
		}
		return nil
	}))
	pub := &capturePublisher{}
	uc := NewOrderUseCase(
		repository.NewMemoryRepository(store),
		invrepo.NewMemoryRepository(store),
		prodrepo.NewMemoryRepository(store),
		batchrepo.NewMemoryRepository(store),
		store,
		pub,
		logger.NewNop(),
		config.OrderConfig{VendorCancelWindow: 10 * time.Minute, AdminCancelWindow: 6 * time.Hour},
	).(*orderUseCase)
	uc.now = func() time.Time { return placedAt }
	return uc, store, pub
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

func place(uc *orderUseCase, customer string, lines ...dto.OrderLineInput) (*model.Order, error) {
	return uc.PlaceVendorOrder(context.Background(), &dto.PlaceOrderInput{CustomerID: customer, Items: lines})
}

func line(productID string, qty int) dto.OrderLineInput {
	return dto.OrderLineInput{ProductID: productID, Quantity: qty, Price: decimal.RequireFromString("2.50")}
}

func TestReserveCancelRetryScenario(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	orderA, err := place(uc, "vendor-a", line("p1", 7))
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, orderA.Status)
	assert.True(t, orderA.TotalAmount.Equal(decimal.RequireFromString("17.50")))
	inv := inventoryOf(t, store, "p1")
	assert.Equal(t, 7, inv.AllocatedStock)
	assert.Equal(t, 10, inv.CurrentStock)

	_, err = place(uc, "vendor-b", line("p1", 5))
	var stockErr *apperror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Issues, 1)
	assert.Equal(t, apperror.IssueInsufficient, stockErr.Issues[0].Kind)
	assert.Equal(t, 3, stockErr.Issues[0].Available)
	assert.Equal(t, "Rice: only 3 available, 5 requested", stockErr.Issues[0].Message())

	_, err = uc.CancelVendorOrder(ctx, orderA.ID, "vendor-a")
	require.NoError(t, err)
	assert.Equal(t, 0, inventoryOf(t, store, "p1").AllocatedStock)

	_, err = place(uc, "vendor-b", line("p1", 5))
	require.NoError(t, err)
	inv = inventoryOf(t, store, "p1")
	assert.Equal(t, 5, inv.AllocatedStock)
	assert.Equal(t, 10, inv.CurrentStock)
}

func TestPlaceVendorOrder_AllOrNothing(t *testing.T) {
	uc, store, _ := setup(t,
		stock{id: "p1", name: "Rice", current: 10},
		stock{id: "p2", name: "Sugar", current: 1},
		stock{id: "p3", name: "Salt", current: 0},
	)

	_, err := place(uc, "vendor-a", line("p1", 4), line("p2", 2), line("p3", 1))
	var stockErr *apperror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Issues, 2)
	assert.Equal(t, "p2", stockErr.Issues[0].ProductID)
	assert.Equal(t, apperror.IssueInsufficient, stockErr.Issues[0].Kind)
	assert.Equal(t, "p3", stockErr.Issues[1].ProductID)
	assert.Equal(t, apperror.IssueOutOfStock, stockErr.Issues[1].Kind)

	for _, id := range []string{"p1", "p2", "p3"} {
		assert.Zero(t, inventoryOf(t, store, id).AllocatedStock, id)
	}
	_ = store.Do(context.Background(), func(tbl *memdb.Tables) error {
		assert.Empty(t, tbl.Orders)
		return nil
	})
}

func TestPlaceVendorOrder_MergesRepeatedProducts(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 5})

	_, err := place(uc, "vendor-a", line("p1", 3), line("p1", 3))
	var stockErr *apperror.InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 6, stockErr.Issues[0].Requested)

	o, err := place(uc, "vendor-a", line("p1", 2), line("p1", 3))
	require.NoError(t, err)
	assert.Len(t, o.Items, 2)
	assert.Equal(t, 5, inventoryOf(t, store, "p1").AllocatedStock)
}

func TestPlaceVendorOrder_Validation(t *testing.T) {
	uc, _, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})

	tests := []struct {
		name     string
		customer string
		lines    []dto.OrderLineInput
		field    string
	}{
		{"no customer", "", []dto.OrderLineInput{line("p1", 1)}, "customer_id"},
		{"empty cart", "vendor-a", nil, "items"},
		{"zero quantity", "vendor-a", []dto.OrderLineInput{line("p1", 0)}, "items[0].quantity"},
		{"zero price", "vendor-a", []dto.OrderLineInput{{ProductID: "p1", Quantity: 1, Price: decimal.Zero}}, "items[0].price"},
		{"negative price", "vendor-a", []dto.OrderLineInput{line("p1", 1), {ProductID: "p1", Quantity: 1, Price: decimal.NewFromInt(-1)}}, "items[1].price"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := place(uc, tt.customer, tt.lines...)
			var verr *apperror.ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestPlaceVendorOrder_UnknownOrArchivedProduct(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})

	_, err := place(uc, "vendor-a", line("nope", 1))
	var nf *apperror.NotFoundError
	require.ErrorAs(t, err, &nf)

	require.NoError(t, store.Do(context.Background(), func(tbl *memdb.Tables) error {
		p := tbl.Products["p1"]
		p.IsArchived = true
		tbl.Products["p1"] = p
		return nil
	}))
	_, err = place(uc, "vendor-a", line("p1", 1))
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}

func TestPlaceVendorOrder_ConcurrentLastUnit(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 1})

	const attempts = 2
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, fail int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := place(uc, "vendor-a", line("p1", 1))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
				return
			}
			var stockErr *apperror.InsufficientStockError
			if assert.ErrorAs(t, err, &stockErr) {
				fail++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, fail)
	inv := inventoryOf(t, store, "p1")
	assert.Equal(t, 1, inv.AllocatedStock)
	assert.GreaterOrEqual(t, inv.CurrentStock-inv.AllocatedStock, 0)
}

func TestPlaceVendorOrder_OverlappingMultiLineOrders(t *testing.T) {
	uc, store, _ := setup(t,
		stock{id: "p1", name: "Rice", current: 20},
		stock{id: "p2", name: "Sugar", current: 20},
	)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = place(uc, "vendor-a", line("p1", 3), line("p2", 3))
				return
			}
			_, _ = place(uc, "vendor-b", line("p2", 3), line("p1", 3))
		}(i)
	}
	wg.Wait()

	for _, id := range []string{"p1", "p2"} {
		inv := inventoryOf(t, store, id)
		assert.Equal(t, 18, inv.AllocatedStock, id)
		assert.GreaterOrEqual(t, inv.CurrentStock-inv.AllocatedStock, 0, id)
	}
}

func TestCancel_IsNotRepeatable(t *testing.T) {
	uc, store, pub := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	o, err := place(uc, "vendor-a", line("p1", 4))
	require.NoError(t, err)

	cancelled, err := uc.CancelVendorOrder(ctx, o.ID, "vendor-a")
	require.NoError(t, err)
	assert.Equal(t, model.OrderCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = uc.CancelVendorOrder(ctx, o.ID, "vendor-a")
	var notCancellable *apperror.OrderNotCancellableError
	require.ErrorAs(t, err, &notCancellable)

	_, err = uc.CancelOrderAsAdmin(ctx, o.ID)
	require.ErrorAs(t, err, &notCancellable)

	inv := inventoryOf(t, store, "p1")
	assert.Equal(t, 0, inv.AllocatedStock)
	assert.Equal(t, 10, inv.CurrentStock)
	assert.Contains(t, pub.types(), events.TypeOrderCancelled)

	_ = store.Do(ctx, func(tbl *memdb.Tables) error {
		assert.Empty(t, tbl.Movements)
		return nil
	})
}

func TestCancel_Windows(t *testing.T) {
	tests := []struct {
		name    string
		elapsed time.Duration
		admin   bool
		wantErr bool
	}{
		{"vendor inside window", 9 * time.Minute, false, false},
		{"vendor at deadline", 10 * time.Minute, false, false},
		{"vendor after window", 11 * time.Minute, false, true},
		{"admin after vendor window", 2 * time.Hour, true, false},
		{"admin after six hours", 6*time.Hour + time.Second, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
			o, err := place(uc, "vendor-a", line("p1", 2))
			require.NoError(t, err)

			uc.now = func() time.Time { return placedAt.Add(tt.elapsed) }
			if tt.admin {
				_, err = uc.CancelOrderAsAdmin(context.Background(), o.ID)
			} else {
				_, err = uc.CancelVendorOrder(context.Background(), o.ID, "vendor-a")
			}

			if tt.wantErr {
				var notCancellable *apperror.OrderNotCancellableError
				require.ErrorAs(t, err, &notCancellable)
				assert.Equal(t, 2, inventoryOf(t, store, "p1").AllocatedStock)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 0, inventoryOf(t, store, "p1").AllocatedStock)
		})
	}
}

func TestCancelVendorOrder_OwnershipAndStatus(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	o, err := place(uc, "vendor-a", line("p1", 2))
	require.NoError(t, err)

	_, err = uc.CancelVendorOrder(ctx, o.ID, "vendor-b")
	var forbidden *apperror.ForbiddenError
	require.ErrorAs(t, err, &forbidden)

	_, err = uc.AdvanceOrderStatus(ctx, o.ID, model.OrderPreparing)
	require.NoError(t, err)

	_, err = uc.CancelVendorOrder(ctx, o.ID, "vendor-a")
	var notCancellable *apperror.OrderNotCancellableError
	require.ErrorAs(t, err, &notCancellable)
	assert.Equal(t, 2, inventoryOf(t, store, "p1").AllocatedStock)

	_, err = uc.CancelVendorOrder(ctx, "missing", "vendor-a")
	var nf *apperror.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestCompleteVendorOrder_ConsumesReservation(t *testing.T) {
	uc, store, pub := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	o, err := place(uc, "vendor-a", line("p1", 7))
	require.NoError(t, err)

	done, err := uc.CompleteVendorOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)

	inv := inventoryOf(t, store, "p1")
	assert.Equal(t, 3, inv.CurrentStock)
	assert.Equal(t, 0, inv.AllocatedStock)

	_ = store.Do(ctx, func(tbl *memdb.Tables) error {
		require.Len(t, tbl.Movements, 1)
		m := tbl.Movements[0]
		assert.Equal(t, model.MovementSale, m.MovementType)
		assert.Equal(t, -7, m.QuantityChange)
		assert.Equal(t, 10, m.PreviousStock)
		assert.Equal(t, 3, m.NewStock)
		assert.Equal(t, o.ID, *m.Reference)
		return nil
	})
	assert.Contains(t, pub.types(), events.TypeOrderCompleted)
	assert.Contains(t, pub.types(), events.TypeStockAdjusted)

	_, err = uc.CompleteVendorOrder(ctx, o.ID)
	var transition *apperror.InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	_, err = uc.CancelOrderAsAdmin(ctx, o.ID)
	var notCancellable *apperror.OrderNotCancellableError
	require.ErrorAs(t, err, &notCancellable)

	inv = inventoryOf(t, store, "p1")
	assert.Equal(t, 3, inv.CurrentStock)
	assert.Equal(t, 0, inv.AllocatedStock)
}

func TestCompleteVendorOrder_DepletesBatchesFEFO(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	soon := placedAt.AddDate(0, 0, 3)
	later := placedAt.AddDate(0, 0, 30)
	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		tbl.Batches["b-late"] = model.Batch{ID: "b-late", ProductID: "p1", Quantity: 6, ExpiryDate: &later, Status: model.BatchActive}
		tbl.Batches["b-soon"] = model.Batch{ID: "b-soon", ProductID: "p1", Quantity: 4, ExpiryDate: &soon, Status: model.BatchActive}
		return nil
	}))

	o, err := place(uc, "vendor-a", line("p1", 5))
	require.NoError(t, err)
	_, err = uc.CompleteVendorOrder(ctx, o.ID)
	require.NoError(t, err)

	_ = store.Do(ctx, func(tbl *memdb.Tables) error {
		assert.Equal(t, 0, tbl.Batches["b-soon"].Quantity)
		assert.Equal(t, 5, tbl.Batches["b-late"].Quantity)
		return nil
	})
}

func TestCompleteVendorOrder_FromAnyOpenStatus(t *testing.T) {
	for _, path := range [][]model.OrderStatus{
		nil,
		{model.OrderPreparing},
		{model.OrderPreparing, model.OrderReady},
	} {
		uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
		ctx := context.Background()

		o, err := place(uc, "vendor-a", line("p1", 2))
		require.NoError(t, err)
		for _, st := range path {
			_, err = uc.AdvanceOrderStatus(ctx, o.ID, st)
			require.NoError(t, err)
		}
		_, err = uc.CompleteVendorOrder(ctx, o.ID)
		require.NoError(t, err)
		assert.Equal(t, 8, inventoryOf(t, store, "p1").CurrentStock)
	}
}

func TestAdvanceOrderStatus(t *testing.T) {
	uc, _, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	o, err := place(uc, "vendor-a", line("p1", 1))
	require.NoError(t, err)

	_, err = uc.AdvanceOrderStatus(ctx, o.ID, model.OrderReady)
	var transition *apperror.InvalidTransitionError
	require.ErrorAs(t, err, &transition)

	got, err := uc.AdvanceOrderStatus(ctx, o.ID, model.OrderPreparing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPreparing, got.Status)

	got, err = uc.AdvanceOrderStatus(ctx, o.ID, model.OrderPreparing)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPreparing, got.Status)

	_, err = uc.AdvanceOrderStatus(ctx, o.ID, model.OrderCompleted)
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}

func TestCompleteVendorOrder_SurfacesIntegrityFault(t *testing.T) {
	uc, store, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	o, err := place(uc, "vendor-a", line("p1", 4))
	require.NoError(t, err)

	// allocation lost behind the protocol's back
	require.NoError(t, store.Do(ctx, func(tbl *memdb.Tables) error {
		inv := tbl.Inventories["p1"]
		inv.AllocatedStock = 1
		tbl.Inventories["p1"] = inv
		return nil
	}))

	_, err = uc.CompleteVendorOrder(ctx, o.ID)
	var fault *apperror.DataIntegrityFault
	require.ErrorAs(t, err, &fault)

	got, err := uc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderPending, got.Status)
}

func TestListOrders(t *testing.T) {
	uc, _, _ := setup(t, stock{id: "p1", name: "Rice", current: 10})
	ctx := context.Background()

	_, err := place(uc, "vendor-a", line("p1", 1))
	require.NoError(t, err)
	b, err := place(uc, "vendor-b", line("p1", 1))
	require.NoError(t, err)
	_, err = uc.CancelOrderAsAdmin(ctx, b.ID)
	require.NoError(t, err)

	items, total, err := uc.ListOrders(ctx, &dto.OrderFilters{CustomerID: "vendor-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Len(t, items[0].Items, 1)

	_, total, err = uc.ListOrders(ctx, &dto.OrderFilters{Status: "pending"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	_, _, err = uc.ListOrders(ctx, &dto.OrderFilters{Status: "LOST"})
	assert.Equal(t, apperror.CodeValidation, apperror.Code(err))
}
