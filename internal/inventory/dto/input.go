package dto

import "github.com/shopspring/decimal"

type AdjustStockInput struct {
	ProductID      string
	MovementType   string
	QuantityChange int
	Reason         string
	Reference      string
	SupplierName   string
	CostPrice      *decimal.Decimal
	UserID         string
}

// CountStockInput carries one physically counted quantity.
type CountStockInput struct {
	ProductID string
	Counted   int
	Reason    string
	Reference string
	UserID    string
}
