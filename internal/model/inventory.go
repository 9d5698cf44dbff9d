package model

import (
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
)

// Inventory is the per-product stock ledger. Allocated units are reserved by
// pending vendor orders and are still physically on the shelf.
type Inventory struct {
	ID             string    `db:"id" json:"id"`
	ProductID      string    `db:"product_id" json:"product_id"`
	CurrentStock   int       `db:"current_stock" json:"current_stock"`
	AllocatedStock int       `db:"allocated_stock" json:"allocated_stock"`
	ReorderLevel   int       `db:"reorder_level" json:"reorder_level"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// Available returns current - allocated. Negative or inconsistent stored values
// are reported as a DataIntegrityFault instead of being clamped.
func (i *Inventory) Available() (int, error) {
	available := i.CurrentStock - i.AllocatedStock
	if available < 0 || i.CurrentStock < 0 || i.AllocatedStock < 0 {
		return available, &apperror.DataIntegrityFault{
			ProductID: i.ProductID,
			Current:   i.CurrentStock,
			Allocated: i.AllocatedStock,
		}
	}
	return available, nil
}

// IsLowStock reports available <= reorder_level. A zero reorder level disables the alert.
func (i *Inventory) IsLowStock() bool {
	return i.ReorderLevel > 0 && i.CurrentStock-i.AllocatedStock <= i.ReorderLevel
}
