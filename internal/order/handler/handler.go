package handler

import (
	"net/http"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/order"
	"github.com/fekuna/omnipos-stock-service/internal/order/dto"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type OrderHandler struct {
	uc     order.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewOrderHandler(uc order.UseCase, resp *httpx.Responder, log logger.ZapLogger) *OrderHandler {
	return &OrderHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *OrderHandler) Routes(r chi.Router) {
	r.Get("/orders", h.ListOrders)
	r.Post("/orders", h.PlaceOrder)
	r.Get("/orders/{id}", h.GetOrder)
	r.Post("/orders/{id}/cancel", h.CancelOrder)
	r.Post("/orders/{id}/complete", h.CompleteOrder)
	r.Patch("/orders/{id}/status", h.AdvanceStatus)
}

type placeOrderRequest struct {
	// CustomerID is only honoured for staff placing an order on a vendor's behalf.
	CustomerID string             `json:"customer_id"`
	Items      []orderLineRequest `json:"items"`
}

type orderLineRequest struct {
	ProductID string          `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleVendor, model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req placeOrderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	input := &dto.PlaceOrderInput{CustomerID: actor.UserID}
	if actor.IsStaff() && req.CustomerID != "" {
		input.CustomerID = req.CustomerID
	}
	for _, it := range req.Items {
		input.Items = append(input.Items, dto.OrderLineInput{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	o, err := h.uc.PlaceVendorOrder(r.Context(), input)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, o)
}

// CancelOrder applies the vendor rules to vendors and the admin window to staff.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleVendor, model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	var o *model.Order
	if actor.IsStaff() {
		o, err = h.uc.CancelOrderAsAdmin(r.Context(), id)
	} else {
		o, err = h.uc.CancelVendorOrder(r.Context(), id, actor.UserID)
	}
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, o)
}

func (h *OrderHandler) CompleteOrder(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	o, err := h.uc.CompleteVendorOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, o)
}

type advanceStatusRequest struct {
	Status string `json:"status"`
}

func (h *OrderHandler) AdvanceStatus(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req advanceStatusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	status, ok := model.ParseOrderStatus(req.Status)
	if !ok {
		h.resp.Error(w, r, apperror.NewValidation("status", "unknown order status %q", req.Status))
		return
	}

	o, err := h.uc.AdvanceOrderStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, o)
}

func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleVendor, model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	o, err := h.uc.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	// vendors never learn about other customers' orders
	if !actor.IsStaff() && o.CustomerID != actor.UserID {
		h.resp.Error(w, r, apperror.NewNotFound("order", o.ID))
		return
	}
	h.resp.JSON(w, http.StatusOK, o)
}

func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleVendor, model.RoleAdmin, model.RoleStaff)
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
	filters := &dto.OrderFilters{
		CustomerID: q.Get("customer_id"),
		Status:     q.Get("status"),
		Page:       page,
		PageSize:   pageSize,
	}
	if !actor.IsStaff() {
		filters.CustomerID = actor.UserID
	}

	items, total, err := h.uc.ListOrders(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if items == nil {
		items = []model.Order{}
	}
	h.resp.JSON(w, http.StatusOK, httpx.Page{Items: items, Total: total, Page: page, PageSize: pageSize})
}
