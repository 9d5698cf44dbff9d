package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	"github.com/fekuna/omnipos-stock-service/internal/model"
)

// Line is one requested product quantity, used by the reservation and sale paths.
type Line struct {
	ProductID string
	Quantity  int
}

// MergeLines sums quantities of repeated products and returns lines sorted by
// product id, which is also the row lock order.
func MergeLines(lines []Line) []Line {
	totals := make(map[string]int, len(lines))
	for _, l := range lines {
		totals[l.ProductID] += l.Quantity
	}
	merged := make([]Line, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, Line{ProductID: id, Quantity: qty})
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].ProductID < merged[j].ProductID })
	return merged
}

func ProductIDs(lines []Line) []string {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ProductID
	}
	return ids
}

// CheckAvailability collects one issue per line that cannot be served from the
// locked rows. names supplies display names for the issue messages. A stored
// negative availability is returned as a DataIntegrityFault instead of an issue.
func CheckAvailability(locked map[string]*model.Inventory, lines []Line, names map[string]string) ([]apperror.StockIssue, error) {
	var issues []apperror.StockIssue
	for _, l := range lines {
		inv, ok := locked[l.ProductID]
		if !ok {
			issues = append(issues, apperror.NewStockIssue(l.ProductID, names[l.ProductID], l.Quantity, 0))
			continue
		}
		available, err := inv.Available()
		if err != nil {
			return nil, err
		}
		if available < l.Quantity {
			issues = append(issues, apperror.NewStockIssue(l.ProductID, names[l.ProductID], l.Quantity, available))
		}
	}
	return issues, nil
}

// ApplyMovement changes inv.CurrentStock by in.Delta, persists the row and
// appends the audit entry. The row must already be locked by the caller's
// transaction. The result must keep current >= 0 and current >= allocated.
func ApplyMovement(ctx context.Context, repo Repository, inv *model.Inventory, in model.MovementInput, now time.Time) (*model.StockMovement, error) {
	movement, err := model.NewStockMovement(inv, in, now)
	if err != nil {
		return nil, err
	}

	if movement.NewStock < 0 || movement.NewStock < inv.AllocatedStock {
		available, err := inv.Available()
		if err != nil {
			return nil, err
		}
		return nil, &apperror.InsufficientStockError{Issues: []apperror.StockIssue{
			apperror.NewStockIssue(inv.ProductID, "", -in.Delta, available),
		}}
	}

	inv.CurrentStock = movement.NewStock
	inv.UpdatedAt = now

	if err := repo.UpdateStock(ctx, inv); err != nil {
		return nil, fmt.Errorf("update stock: %w", err)
	}
	if err := repo.LogMovement(ctx, movement); err != nil {
		return nil, fmt.Errorf("log movement: %w", err)
	}
	return movement, nil
}

// StockEvents describes a committed stock change, adding a LowStock alert when
// the row crossed its reorder level.
func StockEvents(inv *model.Inventory, movement *model.StockMovement) []events.Event {
	payload := events.StockLevelPayload{
		ProductID:      inv.ProductID,
		CurrentStock:   inv.CurrentStock,
		AllocatedStock: inv.AllocatedStock,
		ReorderLevel:   inv.ReorderLevel,
	}
	var out []events.Event
	if movement != nil {
		p := payload
		p.MovementType = string(movement.MovementType)
		p.QuantityChange = movement.QuantityChange
		out = append(out, events.New(events.TypeStockAdjusted, inv.ProductID, p))
	}
	if inv.IsLowStock() {
		out = append(out, events.New(events.TypeLowStock, inv.ProductID, payload))
	}
	return out
}
