package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReceiveBatchInput struct {
	ProductID    string
	BatchNumber  string
	Quantity     int
	ExpiryDate   *time.Time
	ReceivedDate *time.Time
	SupplierName string
	SupplierRef  string
	CostPrice    decimal.Decimal
	UserID       string
}

type DisposeBatchInput struct {
	BatchID      string
	Quantity     int
	MovementType string // DAMAGE, EXPIRED or SUPPLIER_RETURN
	Reason       string
	SupplierName string // defaults to the batch supplier for SUPPLIER_RETURN
	UserID       string
}
