package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	batchrepo "github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/i18n"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	"github.com/fekuna/omnipos-stock-service/internal/product/repository"
	"github.com/fekuna/omnipos-stock-service/internal/product/usecase"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := memdb.New()
	log := logger.NewNop()
	tr, err := i18n.New()
	require.NoError(t, err)

	uc := usecase.NewProductUseCase(repository.NewMemoryRepository(store), invrepo.NewMemoryRepository(store), batchrepo.NewMemoryRepository(store), store, nil, log)
	r := chi.NewRouter()
	NewProductHandler(uc, httpx.NewResponder(tr, log), log).Routes(r)
	return r
}

func do(t *testing.T, router http.Handler, role model.Role, method, path, payload string) (int, body) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(payload))
	if role != "" {
		req = req.WithContext(auth.WithActor(req.Context(), model.Actor{UserID: "u-" + string(role), Role: role}))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var b body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return rec.Code, b
}

const milk = `{"sku":"MLK-1","barcode":"899100","name":"Milk 1L","category":"dairy",
	"retail_price":"1.50","cost_price":"1.00","initial_stock":12}`

func TestProductLifecycle(t *testing.T) {
	router := newRouter(t)

	status, b := do(t, router, model.RoleStaff, http.MethodPost, "/products", milk)
	require.Equal(t, http.StatusCreated, status, b.Message)
	var p model.Product
	require.NoError(t, json.Unmarshal(b.Data, &p))

	status, b = do(t, router, model.RoleStaff, http.MethodPost, "/products", milk)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "CONFLICT", b.Code)

	status, _ = do(t, router, model.RoleStaff, http.MethodPost, "/products/"+p.ID+"/archive", "")
	assert.Equal(t, http.StatusForbidden, status)

	status, b = do(t, router, model.RoleAdmin, http.MethodPost, "/products/"+p.ID+"/archive", "")
	require.Equal(t, http.StatusOK, status, b.Message)
	assert.Contains(t, string(b.Data), "__ARCHIVED_")

	status, b = do(t, router, model.RoleVendor, http.MethodGet, "/products?category=dairy", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(b.Data), `"total":0`)

	status, b = do(t, router, model.RoleVendor, http.MethodGet, "/products?category=dairy&include_archived=true", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(b.Data), `"total":1`)

	status, b = do(t, router, model.RoleAdmin, http.MethodPost, "/products/"+p.ID+"/restore", "")
	require.Equal(t, http.StatusOK, status, b.Message)
	require.NoError(t, json.Unmarshal(b.Data, &p))
	assert.Equal(t, "Milk 1L", p.Name)
	assert.False(t, p.IsArchived)
}

func TestUpdatePrices_AdminOnly(t *testing.T) {
	router := newRouter(t)

	status, b := do(t, router, model.RoleAdmin, http.MethodPost, "/products", milk)
	require.Equal(t, http.StatusCreated, status, b.Message)
	var p model.Product
	require.NoError(t, json.Unmarshal(b.Data, &p))

	status, _ = do(t, router, model.RoleStaff, http.MethodPatch, "/products/"+p.ID+"/prices", `{"retail_price":"2.00"}`)
	assert.Equal(t, http.StatusForbidden, status)

	status, b = do(t, router, model.RoleAdmin, http.MethodPatch, "/products/"+p.ID+"/prices", `{"retail_price":"2.00"}`)
	require.Equal(t, http.StatusOK, status, b.Message)
	require.NoError(t, json.Unmarshal(b.Data, &p))
	assert.Equal(t, "2", p.RetailPrice.String())
	assert.Equal(t, "1", p.CostPrice.String())

	status, b = do(t, router, model.RoleAdmin, http.MethodPatch, "/products/"+p.ID+"/prices", `{"price":"2.00"}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", b.Code)
}

func TestGetProduct_NotFound(t *testing.T) {
	router := newRouter(t)
	status, b := do(t, router, model.RoleVendor, http.MethodGet, "/products/missing", "")
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", b.Code)
}
