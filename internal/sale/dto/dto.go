package dto

import "time"

type TransactionFilters struct {
	CashierID string
	Status    string
	StartDate *time.Time
	EndDate   *time.Time
	Page      int
	PageSize  int
}
