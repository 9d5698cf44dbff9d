package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	"github.com/fekuna/omnipos-stock-service/internal/batch/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type BatchHandler struct {
	uc     batch.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewBatchHandler(uc batch.UseCase, resp *httpx.Responder, log logger.ZapLogger) *BatchHandler {
	return &BatchHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *BatchHandler) Routes(r chi.Router) {
	r.Get("/batches/expiring", h.ListExpiring)
	r.Get("/batches/reconcile", h.Reconcile)
	r.Get("/products/{id}/batches", h.ListBatches)
	r.Post("/batches", h.ReceiveBatch)
	r.Get("/batches/{id}", h.GetBatch)
	r.Post("/batches/{id}/dispose", h.DisposeBatch)
	r.Post("/batches/{id}/archive", h.ArchiveBatch)
	r.Post("/batches/{id}/restore", h.RestoreBatch)
	r.Post("/batches/{id}/mark-for-return", h.MarkForReturn)
}

type receiveBatchRequest struct {
	ProductID    string          `json:"product_id"`
	BatchNumber  string          `json:"batch_number"`
	Quantity     int             `json:"quantity"`
	ExpiryDate   string          `json:"expiry_date"`
	ReceivedDate *time.Time      `json:"received_date"`
	SupplierName string          `json:"supplier_name"`
	SupplierRef  string          `json:"supplier_ref"`
	CostPrice    decimal.Decimal `json:"cost_price"`
}

func (h *BatchHandler) ReceiveBatch(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req receiveBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	expiry, err := httpx.ParseOptionalTime(req.ExpiryDate)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	b, err := h.uc.ReceiveBatch(r.Context(), &dto.ReceiveBatchInput{
		ProductID:    req.ProductID,
		BatchNumber:  req.BatchNumber,
		Quantity:     req.Quantity,
		ExpiryDate:   expiry,
		ReceivedDate: req.ReceivedDate,
		SupplierName: req.SupplierName,
		SupplierRef:  req.SupplierRef,
		CostPrice:    req.CostPrice,
		UserID:       actor.UserID,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, b)
}

type disposeBatchRequest struct {
	Quantity     int    `json:"quantity"`
	MovementType string `json:"movement_type"`
	Reason       string `json:"reason"`
	SupplierName string `json:"supplier_name"`
}

func (h *BatchHandler) DisposeBatch(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req disposeBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	b, err := h.uc.DisposeBatch(r.Context(), &dto.DisposeBatchInput{
		BatchID:      chi.URLParam(r, "id"),
		Quantity:     req.Quantity,
		MovementType: req.MovementType,
		Reason:       req.Reason,
		SupplierName: req.SupplierName,
		UserID:       actor.UserID,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, b)
}

func (h *BatchHandler) ArchiveBatch(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.uc.ArchiveBatch)
}

func (h *BatchHandler) RestoreBatch(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.uc.RestoreBatch)
}

func (h *BatchHandler) MarkForReturn(w http.ResponseWriter, r *http.Request) {
	h.statusChange(w, r, h.uc.MarkForReturn)
}

func (h *BatchHandler) statusChange(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, id string) (*model.Batch, error)) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	b, err := fn(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, b)
}

func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := h.uc.GetBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, b)
}

func (h *BatchHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	items, err := h.uc.ListBatches(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if items == nil {
		items = []model.Batch{}
	}
	h.resp.JSON(w, http.StatusOK, items)
}

func (h *BatchHandler) ListExpiring(w http.ResponseWriter, r *http.Request) {
	within, err := httpx.ParseOptionalInt(r.URL.Query().Get("within_days"), 45)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	items, err := h.uc.ListExpiring(r.Context(), within)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, items)
}

func (h *BatchHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	drifts, err := h.uc.Reconcile(r.Context(), r.URL.Query().Get("product_id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if drifts == nil {
		drifts = []dto.Drift{}
	}
	h.resp.JSON(w, http.StatusOK, drifts)
}
