package model

import (
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type MovementType string

const (
	MovementInitialStock   MovementType = "INITIAL_STOCK"
	MovementRestock        MovementType = "RESTOCK"
	MovementSale           MovementType = "SALE"
	MovementDamage         MovementType = "DAMAGE"
	MovementExpired        MovementType = "EXPIRED"
	MovementSupplierReturn MovementType = "SUPPLIER_RETURN"
	MovementCustomerReturn MovementType = "CUSTOMER_RETURN"
	MovementSaleVoid       MovementType = "SALE_VOID"
	MovementAdjustment     MovementType = "ADJUSTMENT"
)

type deltaSign int

const (
	signPositive deltaSign = iota + 1
	signNegative
	signEither
)

type movementRule struct {
	sign              deltaSign
	requiresReason    bool
	requiresSupplier  bool
	requiresReference bool
}

var movementRules = map[MovementType]movementRule{
	MovementInitialStock:   {sign: signPositive},
	MovementRestock:        {sign: signPositive},
	MovementSale:           {sign: signNegative, requiresReference: true},
	MovementDamage:         {sign: signNegative, requiresReason: true},
	MovementExpired:        {sign: signNegative, requiresReason: true},
	MovementSupplierReturn: {sign: signNegative, requiresSupplier: true},
	MovementCustomerReturn: {sign: signPositive},
	MovementSaleVoid:       {sign: signPositive, requiresReference: true},
	MovementAdjustment:     {sign: signEither, requiresReason: true},
}

func ParseMovementType(s string) (MovementType, error) {
	t := MovementType(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := movementRules[t]; !ok {
		return "", apperror.NewValidation("movement_type", "unknown movement type %q", s)
	}
	return t, nil
}

func (t MovementType) Valid() bool {
	_, ok := movementRules[t]
	return ok
}

// StockMovement is an immutable audit entry for one change of current_stock.
type StockMovement struct {
	ID             string              `db:"id" json:"id"`
	InventoryID    string              `db:"inventory_id" json:"inventory_id"`
	ProductID      string              `db:"product_id" json:"product_id"`
	MovementType   MovementType        `db:"movement_type" json:"movement_type"`
	QuantityChange int                 `db:"quantity_change" json:"quantity_change"`
	PreviousStock  int                 `db:"previous_stock" json:"previous_stock"`
	NewStock       int                 `db:"new_stock" json:"new_stock"`
	Reason         *string             `db:"reason" json:"reason,omitempty"`
	Reference      *string             `db:"reference" json:"reference,omitempty"`
	SupplierName   *string             `db:"supplier_name" json:"supplier_name,omitempty"`
	CostPrice      decimal.NullDecimal `db:"cost_price" json:"cost_price"`
	CreatedBy      *string             `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"created_at"`
}

type MovementInput struct {
	Type         MovementType
	Delta        int
	Actor        string
	Reason       string
	Reference    string
	SupplierName string
	CostPrice    *decimal.Decimal
}

// NewStockMovement builds the audit entry for applying in.Delta to inv. Sign and
// required metadata of the movement type are checked here, so an invalid
// movement can never be persisted.
func NewStockMovement(inv *Inventory, in MovementInput, now time.Time) (*StockMovement, error) {
	rule, ok := movementRules[in.Type]
	if !ok {
		return nil, apperror.NewValidation("movement_type", "unknown movement type %q", in.Type)
	}
	if in.Delta == 0 {
		return nil, apperror.NewValidation("quantity_change", "must not be zero")
	}
	switch rule.sign {
	case signPositive:
		if in.Delta < 0 {
			return nil, apperror.NewValidation("quantity_change", "%s only adds stock", in.Type)
		}
	case signNegative:
		if in.Delta > 0 {
			return nil, apperror.NewValidation("quantity_change", "%s only removes stock", in.Type)
		}
	}
	if rule.requiresReason && strings.TrimSpace(in.Reason) == "" {
		return nil, apperror.NewValidation("reason", "required for %s", in.Type)
	}
	if rule.requiresSupplier && strings.TrimSpace(in.SupplierName) == "" {
		return nil, apperror.NewValidation("supplier_name", "required for %s", in.Type)
	}
	if rule.requiresReference && strings.TrimSpace(in.Reference) == "" {
		return nil, apperror.NewValidation("reference", "required for %s", in.Type)
	}

	m := &StockMovement{
		ID:             uuid.New().String(),
		InventoryID:    inv.ID,
		ProductID:      inv.ProductID,
		MovementType:   in.Type,
		QuantityChange: in.Delta,
		PreviousStock:  inv.CurrentStock,
		NewStock:       inv.CurrentStock + in.Delta,
		Reason:         optional(in.Reason),
		Reference:      optional(in.Reference),
		SupplierName:   optional(in.SupplierName),
		CreatedBy:      optional(in.Actor),
		CreatedAt:      now,
	}
	if in.CostPrice != nil {
		m.CostPrice = decimal.NewNullDecimal(*in.CostPrice)
	}
	return m, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
