package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionVoid      TransactionStatus = "VOID"
	TransactionCancelled TransactionStatus = "CANCELLED"
)

type PaymentMethod string

const (
	PaymentCash    PaymentMethod = "CASH"
	PaymentCard    PaymentMethod = "CARD"
	PaymentEWallet PaymentMethod = "EWALLET"
)

func ParsePaymentMethod(s string) (PaymentMethod, bool) {
	switch m := PaymentMethod(strings.ToUpper(strings.TrimSpace(s))); m {
	case PaymentCash, PaymentCard, PaymentEWallet:
		return m, true
	}
	return "", false
}

// Transaction is a completed point-of-sale sale.
type Transaction struct {
	BaseModel
	ReceiptNo   string            `db:"receipt_no" json:"receipt_no"`
	CashierID   string            `db:"cashier_id" json:"cashier_id"`
	Status      TransactionStatus `db:"status" json:"status"`
	Subtotal    decimal.Decimal   `db:"subtotal" json:"subtotal"`
	TotalAmount decimal.Decimal   `db:"total_amount" json:"total_amount"`
	VoidReason  *string           `db:"void_reason" json:"void_reason,omitempty"`
	VoidedBy    *string           `db:"voided_by" json:"voided_by,omitempty"`
	VoidedAt    *time.Time        `db:"voided_at" json:"voided_at,omitempty"`
	Items       []TransactionItem `db:"-" json:"items"`
	Payment     *Payment          `db:"-" json:"payment,omitempty"`
}

// TransactionItem snapshots price and cost at the moment of sale so later
// catalog edits never change historical margins.
type TransactionItem struct {
	ID            string          `db:"id" json:"id"`
	TransactionID string          `db:"transaction_id" json:"transaction_id"`
	ProductID     string          `db:"product_id" json:"product_id"`
	Quantity      int             `db:"quantity" json:"quantity"`
	PriceAtSale   decimal.Decimal `db:"price_at_sale" json:"price_at_sale"`
	CostAtSale    decimal.Decimal `db:"cost_at_sale" json:"cost_at_sale"`
	LineTotal     decimal.Decimal `db:"line_total" json:"line_total"`
}

func (i TransactionItem) Profit() decimal.Decimal {
	return i.PriceAtSale.Sub(i.CostAtSale).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Payment struct {
	ID             string          `db:"id" json:"id"`
	TransactionID  string          `db:"transaction_id" json:"transaction_id"`
	Method         PaymentMethod   `db:"method" json:"method"`
	Amount         decimal.Decimal `db:"amount" json:"amount"`
	AmountTendered decimal.Decimal `db:"amount_tendered" json:"amount_tendered"`
	ChangeDue      decimal.Decimal `db:"change_due" json:"change_due"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

// NewReceiptNo returns RCP-YYYYMMDD-XXXXXXXX.
func NewReceiptNo(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:8])
	return fmt.Sprintf("RCP-%s-%s", now.UTC().Format("20060102"), suffix)
}
