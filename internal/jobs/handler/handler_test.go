package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/auth"
	batchrepo "github.com/fekuna/omnipos-stock-service/internal/batch/repository"
	batchuc "github.com/fekuna/omnipos-stock-service/internal/batch/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/events"
	invrepo "github.com/fekuna/omnipos-stock-service/internal/inventory/repository"
	invuc "github.com/fekuna/omnipos-stock-service/internal/inventory/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/jobs"
	"github.com/fekuna/omnipos-stock-service/internal/jobs/repository"
	"github.com/fekuna/omnipos-stock-service/internal/jobs/usecase"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/i18n"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/memdb"
	prodrepo "github.com/fekuna/omnipos-stock-service/internal/product/repository"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type body struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newRouter(t *testing.T) (http.Handler, jobs.UseCase) {
	t.Helper()
	store := memdb.New()
	require.NoError(t, store.Do(context.Background(), func(tbl *memdb.Tables) error {
		tbl.Products["p1"] = model.Product{BaseModel: model.BaseModel{ID: "p1"}, SKU: "RC-1", Name: "Rice"}
		tbl.Inventories["p1"] = model.Inventory{ID: "inv-1", ProductID: "p1", CurrentStock: 10}
		return nil
	}))
	log := logger.NewNop()
	tr, err := i18n.New()
	require.NoError(t, err)

	invRepo := invrepo.NewMemoryRepository(store)
	productRepo := prodrepo.NewMemoryRepository(store)
	batchRepo := batchrepo.NewMemoryRepository(store)
	uc := usecase.NewJobsUseCase(
		repository.NewMemoryStore(time.Hour),
		repository.NewMemoryLocker(),
		batchRepo,
		batchuc.NewBatchUseCase(batchRepo, invRepo, productRepo, store, events.NoopPublisher{}, log),
		productRepo,
		invuc.NewInventoryUseCase(invRepo, store, events.NoopPublisher{}, log),
		log,
	)
	r := chi.NewRouter()
	NewJobsHandler(uc, httpx.NewResponder(tr, log), log).Routes(r)
	return r, uc
}

func do(t *testing.T, router http.Handler, req *http.Request) (int, body) {
	t.Helper()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var b body
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	return rec.Code, b
}

func asStaff(req *http.Request) *http.Request {
	return req.WithContext(auth.WithActor(req.Context(), model.Actor{UserID: "s1", Role: model.RoleStaff}))
}

func sheet(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"sku", "qty"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"RC-1", 7}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func waitFor(t *testing.T, uc jobs.UseCase) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, uc.Drain(ctx))
}

func TestStockCountUpload(t *testing.T) {
	router, uc := newRouter(t)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	part, err := mw.CreateFormFile("file", "count.xlsx")
	require.NoError(t, err)
	_, err = part.Write(sheet(t))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := asStaff(httptest.NewRequest(http.MethodPost, "/jobs/stock-count", &form))
	req.Header.Set("Content-Type", mw.FormDataContentType())
	status, b := do(t, router, req)
	require.Equal(t, http.StatusAccepted, status, b.Message)

	var job model.JobStatus
	require.NoError(t, json.Unmarshal(b.Data, &job))
	assert.Equal(t, jobs.KindStockCount, job.Kind)
	waitFor(t, uc)

	status, b = do(t, router, asStaff(httptest.NewRequest(http.MethodGet, "/jobs/"+job.ID, nil)))
	assert.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(b.Data, &job))
	assert.Equal(t, model.JobDone, job.State)
	assert.Equal(t, "1 adjusted, 0 unchanged, 0 failed", job.Message)
}

func TestStockCountRawBody(t *testing.T) {
	router, uc := newRouter(t)

	req := asStaff(httptest.NewRequest(http.MethodPost, "/jobs/stock-count", bytes.NewReader(sheet(t))))
	status, _ := do(t, router, req)
	assert.Equal(t, http.StatusAccepted, status)
	waitFor(t, uc)

	req = asStaff(httptest.NewRequest(http.MethodPost, "/jobs/stock-count", bytes.NewBufferString("sku,qty")))
	status, b := do(t, router, req)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", b.Code)
}

func TestJobs_StaffOnly(t *testing.T) {
	router, _ := newRouter(t)

	status, _ := do(t, router, httptest.NewRequest(http.MethodPost, "/jobs/reconciliation", nil))
	assert.Equal(t, http.StatusForbidden, status)

	status, b := do(t, router, asStaff(httptest.NewRequest(http.MethodGet, "/jobs/missing", nil)))
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", b.Code)
}

func TestReconciliation(t *testing.T) {
	router, uc := newRouter(t)

	status, b := do(t, router, asStaff(httptest.NewRequest(http.MethodPost, "/jobs/reconciliation", nil)))
	require.Equal(t, http.StatusAccepted, status, b.Message)
	waitFor(t, uc)
	assert.Contains(t, string(b.Data), `"kind":"reconciliation"`)
}
