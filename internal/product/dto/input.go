package dto

import "github.com/shopspring/decimal"

type CreateProductInput struct {
	SKU            string
	Barcode        string
	Name           string
	Category       string
	RetailPrice    decimal.Decimal
	WholesalePrice decimal.Decimal
	CostPrice      decimal.Decimal
	InitialStock   int
	ReorderLevel   int
	UserID         string
}

// UpdatePricesInput leaves nil prices unchanged.
type UpdatePricesInput struct {
	ID             string
	RetailPrice    *decimal.Decimal
	WholesalePrice *decimal.Decimal
	CostPrice      *decimal.Decimal
}
