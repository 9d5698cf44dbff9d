package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/jobs"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/httpx"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// maxWorkbookSize bounds stock count uploads.
const maxWorkbookSize = 10 << 20

type JobsHandler struct {
	uc     jobs.UseCase
	resp   *httpx.Responder
	logger logger.ZapLogger
}

func NewJobsHandler(uc jobs.UseCase, resp *httpx.Responder, log logger.ZapLogger) *JobsHandler {
	return &JobsHandler{
		uc:     uc,
		resp:   resp,
		logger: log,
	}
}

func (h *JobsHandler) Routes(r chi.Router) {
	r.Post("/jobs/reconciliation", h.StartReconciliation)
	r.Post("/jobs/stock-count", h.StartStockCount)
	r.Get("/jobs/{id}", h.GetJob)
}

func (h *JobsHandler) StartReconciliation(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	job, err := h.uc.StartReconciliation(r.Context())
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusAccepted, job)
}

// StartStockCount takes the workbook either as a multipart "file" field or as
// the raw request body.
func (h *JobsHandler) StartStockCount(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxWorkbookSize)

	var workbook io.Reader = r.Body
	if file, _, err := r.FormFile("file"); err == nil {
		defer file.Close()
		workbook = file
	} else if !errors.Is(err, http.ErrNotMultipart) {
		h.resp.Error(w, r, apperror.NewValidation("file", "%s", err.Error()))
		return
	}

	job, err := h.uc.StartStockCount(r.Context(), workbook)
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusAccepted, job)
}

func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.RequireRole(r.Context(), model.RoleAdmin, model.RoleStaff); err != nil {
		h.resp.Error(w, r, err)
		return
	}
	job, err := h.uc.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.resp.Error(w, r, err)
		return
	}
	h.resp.JSON(w, http.StatusOK, job)
}
