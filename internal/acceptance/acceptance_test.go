package acceptance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cucumber/godog"
	"github.com/fekuna/omnipos-stock-service/config"
	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	batchdto "github.com/fekuna/omnipos-stock-service/internal/batch/dto"
	batchrepo "github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	batchuc "github.com/fekuna/omnipos-stock-service/internal/batch/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order"
	orderdto "github.com/fekuna/omnipos-stock-service/internal/order/dto"
	orderrepo "github.com/fekuna/omnipos-stock-service/internal/order/repository"
	orderuc "github.com/fekuna/omnipos-stock-service/internal/order/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	prodrepo "github.com/fekuna/omnipos-stock-service/internal/product/repository"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	saledto "github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	salerepo "github.com/fekuna/omnipos-stock-service/internal/sale/repository"
	saleuc "github.com/fekuna/omnipos-stock-service/internal/sale/usecase"
	"github.com/shopspring/decimal"
)

type stockTestContext struct {
	store   *memdb.DB
	orders  order.UseCase
	sales   sale.UseCase
	batches batch.UseCase

	// last order placed per vendor, batch ids by number
	orderOf   map[string]string
	batchByNo map[string]string
	err       error
}

func (c *stockTestContext) reset() {
	c.store = memdb.New()
	log := logger.NewNop()
	invRepo := invrepo.NewMemoryRepository(c.store)
	productRepo := prodrepo.NewMemoryRepository(c.store)
	batchRepo := batchrepo.NewMemoryRepository(c.store)

	c.orders = orderuc.NewOrderUseCase(orderrepo.NewMemoryRepository(c.store), invRepo, productRepo, batchRepo,
		c.store, events.NoopPublisher{}, log, config.LoadEnv().Order)
	c.sales = saleuc.NewSaleUseCase(salerepo.NewMemoryRepository(c.store), invRepo, productRepo, batchRepo,
		c.store, events.NoopPublisher{}, log)
	c.batches = batchuc.NewBatchUseCase(batchRepo, invRepo, productRepo, c.store, events.NoopPublisher{}, log)

	c.orderOf = map[string]string{}
	c.batchByNo = map[string]string{}
	c.err = nil
}

func productID(name string) string { return strings.ToLower(name) }

func staff() context.Context {
	return auth.WithActor(context.Background(), model.Actor{UserID: "staff-1", Role: model.RoleStaff})
}

func (c *stockTestContext) aProductWithStock(name string, current, allocated int) error {
	id := productID(name)
	return c.store.Do(context.Background(), func(tbl *memdb.Tables) error {
		tbl.Products[id] = model.Product{
			BaseModel:   model.BaseModel{ID: id},
			SKU:         strings.ToUpper(id) + "-1",
			Name:        name,
			RetailPrice: decimal.RequireFromString("2.00"),
			CostPrice:   decimal.RequireFromString("1.00"),
		}
		tbl.Inventories[id] = model.Inventory{
			ID: "inv-" + id, ProductID: id, CurrentStock: current, AllocatedStock: allocated,
		}
		return nil
	})
}

func (c *stockTestContext) placeOrder(vendor string, lines ...orderdto.OrderLineInput) {
	o, err := c.orders.PlaceVendorOrder(context.Background(), &orderdto.PlaceOrderInput{
		CustomerID: vendor,
		Items:      lines,
	})
	c.err = err
	if err == nil {
		c.orderOf[vendor] = o.ID
	}
}

func line(qty int, name string) orderdto.OrderLineInput {
	return orderdto.OrderLineInput{ProductID: productID(name), Quantity: qty, Price: decimal.RequireFromString("2.50")}
}

func (c *stockTestContext) vendorOrders(vendor string, qty int, name string) error {
	c.placeOrder(vendor, line(qty, name))
	return nil
}

func (c *stockTestContext) vendorOrdersTwo(vendor string, q1 int, n1 string, q2 int, n2 string) error {
	c.placeOrder(vendor, line(q1, n1), line(q2, n2))
	return nil
}

func (c *stockTestContext) vendorCancels(vendor string) error {
	id, ok := c.orderOf[vendor]
	if !ok {
		return fmt.Errorf("vendor %s has no order", vendor)
	}
	_, c.err = c.orders.CancelVendorOrder(context.Background(), id, vendor)
	return nil
}

func (c *stockTestContext) staffCompletes(vendor string) error {
	id, ok := c.orderOf[vendor]
	if !ok {
		return fmt.Errorf("vendor %s has no order", vendor)
	}
	_, c.err = c.orders.CompleteVendorOrder(staff(), id)
	return nil
}

func (c *stockTestContext) cashierSells(qty int, name string) error {
	ctx := auth.WithActor(context.Background(), model.Actor{UserID: "cashier-1", Role: model.RoleCashier})
	_, c.err = c.sales.RecordPosSale(ctx, &saledto.RecordSaleInput{
		CashierID: "cashier-1",
		Items:     []saledto.SaleLineInput{{ProductID: productID(name), Quantity: qty}},
		Payment:   saledto.PaymentInput{Method: "CARD"},
	})
	return nil
}

func (c *stockTestContext) receivedBatch(name, number string, qty int) error {
	b, err := c.batches.ReceiveBatch(staff(), &batchdto.ReceiveBatchInput{
		ProductID:    productID(name),
		BatchNumber:  number,
		Quantity:     qty,
		SupplierName: "Mill Co",
		CostPrice:    decimal.RequireFromString("1.00"),
	})
	if err != nil {
		return err
	}
	c.batchByNo[number] = b.ID
	return nil
}

func (c *stockTestContext) staffArchivesBatch(number string) error {
	_, c.err = c.batches.ArchiveBatch(staff(), c.batchByNo[number])
	return nil
}

func (c *stockTestContext) staffDisposes(qty int, number, movementType string) error {
	_, c.err = c.batches.DisposeBatch(staff(), &batchdto.DisposeBatchInput{
		BatchID:      c.batchByNo[number],
		Quantity:     qty,
		MovementType: movementType,
		Reason:       "damaged in storage",
	})
	return nil
}

func (c *stockTestContext) theRequestSucceeds() error {
	if c.err != nil {
		return fmt.Errorf("expected success, got %v", c.err)
	}
	return nil
}

func (c *stockTestContext) theRequestFailsWith(code string) error {
	if c.err == nil {
		return fmt.Errorf("expected %s, got success", code)
	}
	if got := apperror.Code(c.err); got != code {
		return fmt.Errorf("expected %s, got %s (%v)", code, got, c.err)
	}
	return nil
}

func (c *stockTestContext) theStockIssueReads(msg string) error {
	var stockErr *apperror.InsufficientStockError
	if !errors.As(c.err, &stockErr) {
		return fmt.Errorf("expected an insufficient stock error, got %v", c.err)
	}
	for _, issue := range stockErr.Issues {
		if issue.Message() == msg {
			return nil
		}
	}
	return fmt.Errorf("no issue reads %q in %v", msg, stockErr)
}

func (c *stockTestContext) inventory(name string) (model.Inventory, error) {
	var inv model.Inventory
	err := c.store.Do(context.Background(), func(tbl *memdb.Tables) error {
		var ok bool
		if inv, ok = tbl.Inventories[productID(name)]; !ok {
			return fmt.Errorf("no inventory for %s", name)
		}
		return nil
	})
	return inv, err
}

func (c *stockTestContext) hasAllocatedAndAvailable(name string, allocated, available int) error {
	inv, err := c.inventory(name)
	if err != nil {
		return err
	}
	if inv.AllocatedStock != allocated || inv.CurrentStock-inv.AllocatedStock != available {
		return fmt.Errorf("%s: allocated=%d available=%d, want allocated=%d available=%d",
			name, inv.AllocatedStock, inv.CurrentStock-inv.AllocatedStock, allocated, available)
	}
	return nil
}

func (c *stockTestContext) hasCurrentAndAllocated(name string, current, allocated int) error {
	inv, err := c.inventory(name)
	if err != nil {
		return err
	}
	if inv.CurrentStock != current || inv.AllocatedStock != allocated {
		return fmt.Errorf("%s: current=%d allocated=%d, want current=%d allocated=%d",
			name, inv.CurrentStock, inv.AllocatedStock, current, allocated)
	}
	return nil
}

func (c *stockTestContext) lastSaleMovement(name string, previous, next int) error {
	var last *model.StockMovement
	err := c.store.Do(context.Background(), func(tbl *memdb.Tables) error {
		for i := range tbl.Movements {
			m := tbl.Movements[i]
			if m.ProductID == productID(name) && m.MovementType == model.MovementSale {
				last = &m
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if last == nil {
		return fmt.Errorf("no SALE movement for %s", name)
	}
	if last.PreviousStock != previous || last.NewStock != next {
		return fmt.Errorf("SALE movement went from %d to %d", last.PreviousStock, last.NewStock)
	}
	return nil
}

func InitializeScenario(ctx *godog.ScenarioContext) {
	tc := &stockTestContext{}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		tc.reset()
		return ctx, nil
	})

	// Given steps
	ctx.Step(`^a product "([^"]*)" with current stock (\d+) and allocated stock (\d+)$`, tc.aProductWithStock)
	ctx.Step(`^"([^"]*)" received batch "([^"]*)" of (\d+) units$`, tc.receivedBatch)

	// When steps
	ctx.Step(`^vendor "([^"]*)" orders (\d+) "([^"]*)"$`, tc.vendorOrders)
	ctx.Step(`^vendor "([^"]*)" orders (\d+) "([^"]*)" and (\d+) "([^"]*)"$`, tc.vendorOrdersTwo)
	ctx.Step(`^vendor "([^"]*)" cancels their order$`, tc.vendorCancels)
	ctx.Step(`^staff completes the order of vendor "([^"]*)"$`, tc.staffCompletes)
	ctx.Step(`^the cashier sells (\d+) "([^"]*)"$`, tc.cashierSells)
	ctx.Step(`^staff archives batch "([^"]*)"$`, tc.staffArchivesBatch)
	ctx.Step(`^staff disposes (\d+) units of batch "([^"]*)" as "([^"]*)"$`, tc.staffDisposes)

	// Then steps
	ctx.Step(`^the request succeeds$`, tc.theRequestSucceeds)
	ctx.Step(`^the request fails with "([^"]*)"$`, tc.theRequestFailsWith)
	ctx.Step(`^the stock issue reads "([^"]*)"$`, tc.theStockIssueReads)
	ctx.Step(`^"([^"]*)" has allocated stock (\d+) and available stock (\d+)$`, tc.hasAllocatedAndAvailable)
	ctx.Step(`^"([^"]*)" has current stock (\d+) and allocated stock (\d+)$`, tc.hasCurrentAndAllocated)
	ctx.Step(`^the last SALE movement of "([^"]*)" went from (\d+) to (\d+)$`, tc.lastSaleMovement)
}

func TestFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
		},
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
