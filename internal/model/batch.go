package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BatchStatus string

const (
	BatchActive          BatchStatus = "ACTIVE"
	BatchArchived        BatchStatus = "ARCHIVED"
	BatchMarkedForReturn BatchStatus = "MARKED_FOR_RETURN"
)

// Batch is a FEFO-tracked lot of one product's physical stock.
type Batch struct {
	ID           string          `db:"id" json:"id"`
	ProductID    string          `db:"product_id" json:"product_id"`
	BatchNumber  string          `db:"batch_number" json:"batch_number"`
	Quantity     int             `db:"quantity" json:"quantity"`
	ExpiryDate   *time.Time      `db:"expiry_date" json:"expiry_date,omitempty"`
	ReceivedDate time.Time       `db:"received_date" json:"received_date"`
	SupplierName *string         `db:"supplier_name" json:"supplier_name,omitempty"`
	SupplierRef  *string         `db:"supplier_ref" json:"supplier_ref,omitempty"`
	CostPrice    decimal.Decimal `db:"cost_price" json:"cost_price"`
	Status       BatchStatus     `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

type ExpiryClass string

const (
	ExpiryExpired      ExpiryClass = "EXPIRED"
	ExpiryCritical     ExpiryClass = "CRITICAL"
	ExpiryWarning      ExpiryClass = "WARNING"
	ExpiryCaution      ExpiryClass = "CAUTION"
	ExpiryAdviseReturn ExpiryClass = "ADVISE_RETURN"
	ExpiryNone         ExpiryClass = "NONE"
)

// ClassifyExpiry is used for reporting only; nothing is blocked on it.
func ClassifyExpiry(daysUntilExpiry int) ExpiryClass {
	switch {
	case daysUntilExpiry <= 0:
		return ExpiryExpired
	case daysUntilExpiry <= 7:
		return ExpiryCritical
	case daysUntilExpiry <= 14:
		return ExpiryWarning
	case daysUntilExpiry <= 30:
		return ExpiryCaution
	case daysUntilExpiry <= 45:
		return ExpiryAdviseReturn
	default:
		return ExpiryNone
	}
}

// DaysUntil counts calendar days from now to expiry, both taken in UTC.
func DaysUntil(expiry, now time.Time) int {
	e := truncateDay(expiry)
	n := truncateDay(now)
	return int(e.Sub(n).Hours() / 24)
}

func (b *Batch) ExpiryClass(now time.Time) ExpiryClass {
	if b.ExpiryDate == nil {
		return ExpiryNone
	}
	return ClassifyExpiry(DaysUntil(*b.ExpiryDate, now))
}

// ExpiresBefore orders batches FEFO: earliest expiry first, batches without an
// expiry last, ties broken by receipt date.
func (b *Batch) ExpiresBefore(other *Batch) bool {
	switch {
	case b.ExpiryDate != nil && other.ExpiryDate == nil:
		return true
	case b.ExpiryDate == nil && other.ExpiryDate != nil:
		return false
	case b.ExpiryDate != nil && other.ExpiryDate != nil && !b.ExpiryDate.Equal(*other.ExpiryDate):
		return b.ExpiryDate.Before(*other.ExpiryDate)
	}
	return b.ReceivedDate.Before(other.ReceivedDate)
}

func truncateDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
