package dto

import "time"

type InventoryFilters struct {
	ProductID string
	LowStock  bool // available <= reorder_level, reorder_level > 0
	Page      int
	PageSize  int
}

type MovementFilters struct {
	ProductID    string
	MovementType string
	Reference    string
	StartDate    *time.Time
	EndDate      *time.Time
	Page         int
	PageSize     int
}
