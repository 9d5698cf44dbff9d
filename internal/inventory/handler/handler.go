package handler

import (
	"bytes"
	"net/http"
	"strconv"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/excel"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	"github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type InventoryHandler struct {
	uc     inventory.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewInventoryHandler(uc inventory.UseCase, resp *httpx.Responder, log logger.ZapLogger) *InventoryHandler {
	return &InventoryHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *InventoryHandler) Routes(r chi.Router) {
	r.Get("/inventory/low-stock", h.ListLowStock)
	r.Get("/inventory/movements", h.ListMovements)
	r.Get("/inventory/movements/export", h.ExportMovements)
	r.Get("/inventory/{productID}", h.GetProductInventory)
	r.Post("/inventory/{productID}/adjust", h.AdjustStock)
	r.Put("/inventory/{productID}/reorder-level", h.SetReorderLevel)
}

type inventoryResponse struct {
	model.Inventory
	AvailableStock int  `json:"available_stock"`
	LowStock       bool `json:"low_stock"`
}

func toResponse(inv *model.Inventory) inventoryResponse {
	// Available is only reported here; faulty rows surface through GetAvailableStock.
	return inventoryResponse{
		Inventory:      *inv,
		AvailableStock: inv.CurrentStock - inv.AllocatedStock,
		LowStock:       inv.IsLowStock(),
	}
}

func (h *InventoryHandler) GetProductInventory(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	if _, err := h.uc.GetAvailableStock(r.Context(), productID); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	inv, err := h.uc.GetProductInventory(r.Context(), productID)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, toResponse(inv))
}

type adjustStockRequest struct {
	MovementType   string           `json:"movement_type"`
	QuantityChange int              `json:"quantity_change"`
	Reason         string           `json:"reason"`
	Reference      string           `json:"reference"`
	SupplierName   string           `json:"supplier_name"`
	CostPrice      *decimal.Decimal `json:"cost_price"`
}

func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req adjustStockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	inv, err := h.uc.AdjustStock(r.Context(), &dto.AdjustStockInput{
		ProductID:      chi.URLParam(r, "productID"),
		MovementType:   req.MovementType,
		QuantityChange: req.QuantityChange,
		Reason:         req.Reason,
		Reference:      req.Reference,
		SupplierName:   req.SupplierName,
		CostPrice:      req.CostPrice,
		UserID:         actor.UserID,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, toResponse(inv))
}

type reorderLevelRequest struct {
	ReorderLevel int `json:"reorder_level"`
}

func (h *InventoryHandler) SetReorderLevel(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req reorderLevelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	inv, err := h.uc.SetReorderLevel(r.Context(), chi.URLParam(r, "productID"), req.ReorderLevel)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, toResponse(inv))
}

func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	items, total, err := h.uc.ListLowStock(r.Context(), page, pageSize)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	views := make([]inventoryResponse, len(items))
	for i := range items {
		views[i] = toResponse(&items[i])
	}
	h.resp.JSON(w, http.StatusOK, httpx.Page{Items: views, Total: total, Page: page, PageSize: pageSize})
}

func (h *InventoryHandler) ListMovements(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	filters, err := movementFilters(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	filters.Page = page
	filters.PageSize = pageSize

	mvs, total, err := h.uc.ListMovements(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if mvs == nil {
		mvs = []model.StockMovement{}
	}
	h.resp.JSON(w, http.StatusOK, httpx.Page{Items: mvs, Total: total, Page: page, PageSize: pageSize})
}

// exportLimit caps one workbook; narrower date ranges page through the rest.
const exportLimit = 10000

func (h *InventoryHandler) ExportMovements(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	filters, err := movementFilters(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	filters.Page = 1
	filters.PageSize = exportLimit

	mvs, total, err := h.uc.ListMovements(r.Context(), filters)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if total > len(mvs) {
		h.logger.Warn("Movement export truncated",
			zap.Int("total", total),
			zap.Int("exported", len(mvs)),
		)
	}

	var buf bytes.Buffer
	if err := excel.WriteMovements(&buf, mvs); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="stock-movements.xlsx"`)
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func movementFilters(r *http.Request) (*dto.MovementFilters, error) {
	q := r.URL.Query()
	start, err := httpx.ParseOptionalTime(q.Get("start_date"))
	if err != nil {
		return nil, err
	}
	end, err := httpx.ParseOptionalTime(q.Get("end_date"))
	if err != nil {
		return nil, err
	}
	return &dto.MovementFilters{
		ProductID:    strings.TrimSpace(q.Get("product_id")),
		MovementType: strings.TrimSpace(q.Get("movement_type")),
		Reference:    strings.TrimSpace(q.Get("reference")),
		StartDate:    start,
		EndDate:      end,
	}, nil
}
