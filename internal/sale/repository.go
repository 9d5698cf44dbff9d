package sale

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
)

type Repository interface {
	// Create inserts the header, its items and the payment.
	Create(ctx context.Context, tx *model.Transaction) error
	FindByReceipt(ctx context.Context, receiptNo string) (*model.Transaction, error)
	// LockByReceipt must run inside a transaction.
	LockByReceipt(ctx context.Context, receiptNo string) (*model.Transaction, error)
	UpdateStatus(ctx context.Context, tx *model.Transaction) error
	FindAll(ctx context.Context, filters *dto.TransactionFilters) ([]model.Transaction, int, error)
}
