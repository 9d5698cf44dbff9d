package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/batch/dto"
)

// ConsumeFEFO takes qty units from the product's ACTIVE batches, earliest
// expiry first. Products without batches are untracked and consume nothing.
// The returned shortfall is the part of qty no batch could cover, which the
// reconciliation job later reports as drift.
func ConsumeFEFO(ctx context.Context, repo Repository, productID string, qty int, now time.Time) ([]dto.Consumption, int, error) {
	batches, err := repo.LockActiveByProduct(ctx, productID)
	if err != nil {
		return nil, 0, fmt.Errorf("lock batches: %w", err)
	}
	if len(batches) == 0 {
		return nil, 0, nil
	}

	remaining := qty
	var consumed []dto.Consumption
	for i := range batches {
		if remaining == 0 {
			break
		}
		b := &batches[i]
		if b.Quantity == 0 {
			continue
		}
		take := min(b.Quantity, remaining)
		b.Quantity -= take
		b.UpdatedAt = now
		if err := repo.Update(ctx, b); err != nil {
			return nil, 0, fmt.Errorf("update batch %s: %w", b.ID, err)
		}
		consumed = append(consumed, dto.Consumption{BatchID: b.ID, Quantity: take})
		remaining -= take
	}
	return consumed, remaining, nil
}

// ReturnFEFO puts qty units back into the product's first ACTIVE batch in FEFO
// order, the one a sale would have drawn from. It reports false when the
// product has no active batch to hold them.
func ReturnFEFO(ctx context.Context, repo Repository, productID string, qty int, now time.Time) (string, bool, error) {
	batches, err := repo.LockActiveByProduct(ctx, productID)
	if err != nil {
		return "", false, fmt.Errorf("lock batches: %w", err)
	}
	if len(batches) == 0 {
		return "", false, nil
	}
	b := &batches[0]
	b.Quantity += qty
	b.UpdatedAt = now
	if err := repo.Update(ctx, b); err != nil {
		return "", false, fmt.Errorf("update batch %s: %w", b.ID, err)
	}
	return b.ID, true, nil
}
