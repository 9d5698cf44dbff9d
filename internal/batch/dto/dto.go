package dto

import "github.com/fekuna/omnipos-stock-service/internal/model"

type ExpiringBatch struct {
	model.Batch
	DaysUntilExpiry int               `json:"days_until_expiry"`
	ExpiryClass     model.ExpiryClass `json:"expiry_class"`
}

// Drift is a product whose current_stock differs from the sum of its batches.
type Drift struct {
	ProductID    string `json:"product_id"`
	CurrentStock int    `json:"current_stock"`
	BatchTotal   int    `json:"batch_total"`
	Difference   int    `json:"difference"`
}

// Consumption records units taken from one batch by a sale or order completion.
type Consumption struct {
	BatchID  string `json:"batch_id"`
	Quantity int    `json:"quantity"`
}
