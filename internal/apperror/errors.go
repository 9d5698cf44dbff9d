package apperror

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeValidation         = "VALIDATION_ERROR"
	CodeNotFound           = "NOT_FOUND"
	CodeForbidden          = "FORBIDDEN"
	CodeInsufficientStock  = "INSUFFICIENT_STOCK"
	CodeOrderNotCancelable = "ORDER_NOT_CANCELLABLE"
	CodeInvalidTransition  = "INVALID_STATUS_TRANSITION"
	CodeNonEmptyBatch      = "BATCH_NOT_EMPTY"
	CodeParentArchived     = "PARENT_ARCHIVED"
	CodeConflict           = "CONFLICT"
	CodeDataIntegrity      = "DATA_INTEGRITY_FAULT"
	CodeBusy               = "BUSY"
	CodeInternal           = "INTERNAL_ERROR"
)

// Coded is implemented by every error in this package.
type Coded interface {
	error
	Code() string
}

// Code returns the machine code of err, or CodeInternal for foreign errors.
func Code(err error) string {
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

type ValidationError struct {
	Field   string
	Message string
}

func NewValidation(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Code() string { return CodeValidation }

type NotFoundError struct {
	Entity string
	ID     string
}

func NewNotFound(entity, id string) *NotFoundError {
	return &NotFoundError{Entity: entity, ID: id}
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.ID) }
func (e *NotFoundError) Code() string  { return CodeNotFound }

type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }
func (e *ForbiddenError) Code() string  { return CodeForbidden }

type StockIssueKind string

const (
	IssueOutOfStock   StockIssueKind = "OUT_OF_STOCK"
	IssueInsufficient StockIssueKind = "INSUFFICIENT"
)

// StockIssue explains why one line could not be served.
type StockIssue struct {
	ProductID   string         `json:"product_id"`
	ProductName string         `json:"product_name"`
	Requested   int            `json:"requested"`
	Available   int            `json:"available"`
	Kind        StockIssueKind `json:"kind"`
}

// NewStockIssue classifies a shortfall: nothing left is OUT_OF_STOCK, anything
// else is INSUFFICIENT ("only N available").
func NewStockIssue(productID, productName string, requested, available int) StockIssue {
	kind := IssueInsufficient
	if available <= 0 {
		kind = IssueOutOfStock
		available = 0
	}
	return StockIssue{
		ProductID:   productID,
		ProductName: productName,
		Requested:   requested,
		Available:   available,
		Kind:        kind,
	}
}

func (i StockIssue) Message() string {
	name := i.ProductName
	if name == "" {
		name = i.ProductID
	}
	if i.Kind == IssueOutOfStock {
		return fmt.Sprintf("%s is out of stock", name)
	}
	return fmt.Sprintf("%s: only %d available, %d requested", name, i.Available, i.Requested)
}

type InsufficientStockError struct {
	Issues []StockIssue
}

func (e *InsufficientStockError) Error() string {
	msgs := make([]string, len(e.Issues))
	for i, issue := range e.Issues {
		msgs[i] = issue.Message()
	}
	return "insufficient stock: " + strings.Join(msgs, "; ")
}

func (e *InsufficientStockError) Code() string { return CodeInsufficientStock }

type OrderNotCancellableError struct {
	OrderID string
	Reason  string
}

func (e *OrderNotCancellableError) Error() string {
	return fmt.Sprintf("order %s cannot be cancelled: %s", e.OrderID, e.Reason)
}

func (e *OrderNotCancellableError) Code() string { return CodeOrderNotCancelable }

type InvalidTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s %s cannot move from %s to %s", e.Entity, e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Code() string { return CodeInvalidTransition }

type NonEmptyBatchError struct {
	BatchID  string
	Quantity int
}

func (e *NonEmptyBatchError) Error() string {
	return fmt.Sprintf("batch %s still holds %d units; dispose or adjust them before archiving", e.BatchID, e.Quantity)
}

func (e *NonEmptyBatchError) Code() string { return CodeNonEmptyBatch }

type ParentArchivedError struct {
	ChildID  string
	ParentID string
}

func (e *ParentArchivedError) Error() string {
	return fmt.Sprintf("cannot restore %s: parent product %s is archived", e.ChildID, e.ParentID)
}

func (e *ParentArchivedError) Code() string { return CodeParentArchived }

// ConflictError names the record currently holding a unique value.
type ConflictError struct {
	Field         string
	Value         string
	ConflictingID string
}

func (e *ConflictError) Error() string {
	if e.ConflictingID == "" {
		return fmt.Sprintf("%s %q is already in use", e.Field, e.Value)
	}
	return fmt.Sprintf("%s %q is already in use by %s", e.Field, e.Value, e.ConflictingID)
}

func (e *ConflictError) Code() string { return CodeConflict }

// DataIntegrityFault means stored stock values violate current - allocated >= 0.
// It is never expected while every writer goes through the stock protocols.
type DataIntegrityFault struct {
	ProductID string
	Current   int
	Allocated int
}

func (e *DataIntegrityFault) Error() string {
	return fmt.Sprintf("data integrity fault on product %s: current_stock=%d allocated_stock=%d",
		e.ProductID, e.Current, e.Allocated)
}

func (e *DataIntegrityFault) Code() string { return CodeDataIntegrity }

type BusyError struct {
	Resource string
}

func (e *BusyError) Error() string { return fmt.Sprintf("%s is busy, try again later", e.Resource) }
func (e *BusyError) Code() string  { return CodeBusy }
