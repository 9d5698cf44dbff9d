package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const archivedMarker = "__ARCHIVED_"

type Product struct {
	BaseModel
	SKU            string          `db:"sku" json:"sku"`
	Barcode        *string         `db:"barcode" json:"barcode"`
	Name           string          `db:"name" json:"name"`
	Category       string          `db:"category" json:"category"`
	RetailPrice    decimal.Decimal `db:"retail_price" json:"retail_price"`
	WholesalePrice decimal.Decimal `db:"wholesale_price" json:"wholesale_price"`
	CostPrice      decimal.Decimal `db:"cost_price" json:"cost_price"`
	IsArchived     bool            `db:"is_archived" json:"is_archived"`
	ArchivedAt     *time.Time      `db:"archived_at" json:"archived_at,omitempty"`
}

// ArchivedValue frees a unique value for reuse by suffixing it with the archive time.
func ArchivedValue(value string, at time.Time) string {
	return fmt.Sprintf("%s%s%d", value, archivedMarker, at.Unix())
}

// OriginalValue strips the archive suffix added by ArchivedValue.
func OriginalValue(value string) string {
	if idx := strings.LastIndex(value, archivedMarker); idx >= 0 {
		return value[:idx]
	}
	return value
}
