package sale

import (
	"context"

	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
)

type UseCase interface {
	RecordPosSale(ctx context.Context, input *dto.RecordSaleInput) (*model.Transaction, error)
	VoidTransaction(ctx context.Context, input *dto.VoidInput) (*model.Transaction, error)
	GetTransaction(ctx context.Context, receiptNo string) (*model.Transaction, error)
	ListTransactions(ctx context.Context, filters *dto.TransactionFilters) ([]model.Transaction, int, error)
}
