package dto

import "github.com/shopspring/decimal"

type RecordSaleInput struct {
	CashierID string
	Items     []SaleLineInput
	Payment   PaymentInput
}

// SaleLineInput carries no price: the catalog's retail price is snapshotted
// when the sale is recorded.
type SaleLineInput struct {
	ProductID string
	Quantity  int
}

type PaymentInput struct {
	Method string
	// AmountTendered is required for CASH; other methods are charged the exact total.
	AmountTendered decimal.Decimal
}

type VoidInput struct {
	ReceiptNo string
	Reason    string
	UserID    string
}
