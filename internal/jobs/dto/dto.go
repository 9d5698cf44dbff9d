package dto

import batchdto "github.com/fekuna/omnipos-stock-service/internal/batch/dto"

type ReconciliationResult struct {
	Checked int              `json:"checked"`
	Drifts  []batchdto.Drift `json:"drifts"`
}

type StockCountResult struct {
	Adjusted  int          `json:"adjusted"`
	Unchanged int          `json:"unchanged"`
	Failures  []RowFailure `json:"failures"`
}

// RowFailure is a sheet row the count could not be applied to; the rest of
// the sheet is still processed.
type RowFailure struct {
	Row   int    `json:"row"`
	SKU   string `json:"sku"`
	Code  string `json:"code"`
	Error string `json:"error"`
}
