package dto

import "github.com/shopspring/decimal"

type PlaceOrderInput struct {
	CustomerID string
	Items      []OrderLineInput
}

// OrderLineInput carries the price agreed with the vendor; it must be positive.
type OrderLineInput struct {
	ProductID string
	Quantity  int
	Price     decimal.Decimal
}
