package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/fekuna/omnipos-stock-service/internal/product/dto"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type ProductHandler struct {
	uc     product.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewProductHandler(uc product.UseCase, resp *httpx.Responder, log logger.ZapLogger) *ProductHandler {
	return &ProductHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *ProductHandler) Routes(r chi.Router) {
	r.Get("/products", h.ListProducts)
	r.Post("/products", h.CreateProduct)
	r.Get("/products/{id}", h.GetProduct)
	r.Patch("/products/{id}/prices", h.UpdatePrices)
	r.Post("/products/{id}/archive", h.ArchiveProduct)
	r.Post("/products/{id}/restore", h.RestoreProduct)
}

type createProductRequest struct {
	SKU            string          `json:"sku"`
	Barcode        string          `json:"barcode"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	RetailPrice    decimal.Decimal `json:"retail_price"`
	WholesalePrice decimal.Decimal `json:"wholesale_price"`
	CostPrice      decimal.Decimal `json:"cost_price"`
	InitialStock   int             `json:"initial_stock"`
	ReorderLevel   int             `json:"reorder_level"`
}

func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	actor, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req createProductRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	p, err := h.uc.CreateProduct(r.Context(), &dto.CreateProductInput{
		SKU:            req.SKU,
		Barcode:        req.Barcode,
		Name:           req.Name,
		Category:       req.Category,
		RetailPrice:    req.RetailPrice,
		WholesalePrice: req.WholesalePrice,
		CostPrice:      req.CostPrice,
		InitialStock:   req.InitialStock,
		ReorderLevel:   req.ReorderLevel,
		UserID:         actor.UserID,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.uc.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, p)
}

func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := httpx.Pagination(r)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	q := r.URL.Query()
	includeArchived, _ := strconv.ParseBool(q.Get("include_archived"))

	products, total, err := h.uc.ListProducts(r.Context(), &dto.ProductFilters{
		Category:        strings.TrimSpace(q.Get("category")),
		IncludeArchived: includeArchived,
		SearchQuery:     strings.TrimSpace(q.Get("search")),
		SortBy:          q.Get("sort_by"),
		SortOrder:       q.Get("sort_order"),
		Page:            page,
		PageSize:        pageSize,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	if products == nil {
		products = []model.Product{}
	}
	h.resp.JSON(w, http.StatusOK, httpx.Page{Items: products, Total: total, Page: page, PageSize: pageSize})
}

type updatePricesRequest struct {
	RetailPrice    *decimal.Decimal `json:"retail_price"`
	WholesalePrice *decimal.Decimal `json:"wholesale_price"`
	CostPrice      *decimal.Decimal `json:"cost_price"`
}

func (h *ProductHandler) UpdatePrices(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	var req updatePricesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.resp.Error(w, r, err)
		return
	}

	p, err := h.uc.UpdatePrices(r.Context(), &dto.UpdatePricesInput{
		ID:             chi.URLParam(r, "id"),
		RetailPrice:    req.RetailPrice,
		WholesalePrice: req.WholesalePrice,
		CostPrice:      req.CostPrice,
	})
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, p)
}

func (h *ProductHandler) ArchiveProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	p, err := h.uc.ArchiveProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, p)
}

func (h *ProductHandler) RestoreProduct(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	p, err := h.uc.RestoreProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, p)
}
