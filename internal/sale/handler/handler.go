package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/sale"
	"github.com/fekuna/omnipos-stock-service/internal/sale/dto"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type SaleHandler struct {
	uc     sale.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewSaleHandler(uc sale.UseCase, resp *httpx.Responder, log logger.ZapLogger) *SaleHandler {
	return &SaleHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *SaleHandler) Routes(r chi.Router) {
	r.Get("/transactions", h.ListTransactions)
	r.Post("/transactions", h.RecordSale)
	r.Get("/transactions/{receiptNo}", h.GetTransaction)
	r.Post("/transactions/{receiptNo}/void", h.VoidTransaction)
}

type recordSaleRequest struct {
	Items []struct {
		ProductID string `json:"product_id"`
		Quantity  int    `json:"quantity"`
	} `json:"items"`
	Payment struct {
		Method         string          `json:"method"`
		AmountTendered decimal.Decimal `json:"amount_tendered"`
	} `json:"payment"`
}

var counterRoles = []model.Role{model.RoleCashier, model.RoleAdmin, model.RoleStaff}

func (h *SaleHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), counterRoles...)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req recordSaleRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	input := &dto.RecordSaleInput{
		CashierID: actor.UserID,
		Payment: dto.PaymentInput{
			Method:         req.Payment.Method,
			AmountTendered: req.Payment.AmountTendered,
		},
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, dto.SaleLineInput{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	tx, err := h.uc.RecordPosSale(r.Context(), input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, tx)
}

type voidRequest struct {
	Reason string `json:"reason"`
}

func (h *SaleHandler) VoidTransaction(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleAdmin)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	tx, err := h.uc.VoidTransaction(r.Context(), &dto.VoidInput{
		ReceiptNo: chi.URLParam(r, "receiptNo"),
		Reason:    req.Reason,
		UserID:    actor.UserID,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, tx)
}

func (h *SaleHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), counterRoles...); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	tx, err := h.uc.GetTransaction(r.Context(), chi.URLParam(r, "receiptNo"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, tx)
}

func (h *SaleHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), counterRoles...)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	q := r.URL.Query()
	start, err := httpx.ParseOptionalTime(q.Get("start_date"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	end, err := httpx.ParseOptionalTime(q.Get("end_date"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	filters := &dto.TransactionFilters{
		CashierID: q.Get("cashier_id"),
		Status:    q.Get("status"),
		StartDate: start,
		EndDate:   end,
		Page:      page,
		PageSize:  pageSize,
	}
	// cashiers only see their own receipts
	if actor.Role == model.RoleCashier {
		filters.CashierID = actor.UserID
	}

	items, total, err := h.uc.ListTransactions(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if items == nil {
		items = []model.Transaction{}
	}
	h.resp.JSON(w, http.StatusOK, httpx.Page{Items: items, Total: total, Page: page, PageSize: pageSize})
}
