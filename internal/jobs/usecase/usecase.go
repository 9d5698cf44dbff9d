package usecase

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/auth"
	"github.com/fekuna/omnipos-stock-service/internal/batch"
	batchdto "github.com/fekuna/omnipos-stock-service/internal/batch/dto"
	"github.com/fekuna/omnipos-stock-service/internal/excel"
	"github.com/fekuna/omnipos-stock-service/internal/inventory"
	invdto "github.com/fekuna/omnipos-stock-service/internal/inventory/dto"
	"github.com/fekuna/omnipos-stock-service/internal/jobs"
	"github.com/fekuna/omnipos-stock-service/internal/jobs/dto"
	"github.com/fekuna/omnipos-stock-service/internal/model"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/telemetry"
	"github.com/fekuna/omnipos-stock-service/internal/product"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	reconciliationLockKey = "lock:jobs:reconciliation"
	reconciliationLockTTL = 15 * time.Minute
	stockCountReason      = "stock count"
)

type jobsUseCase struct {
	store       jobs.Store
	locker      jobs.Locker
	batchRepo   batch.Repository
	batchUC     batch.UseCase
	productRepo product.Repository
	invUC       inventory.UseCase
	logger      logger.ZapLogger
	tracer      trace.Tracer
	running     sync.WaitGroup
}

func NewJobsUseCase(
	store jobs.Store,
	locker jobs.Locker,
	batchRepo batch.Repository,
	batchUC batch.UseCase,
	productRepo product.Repository,
	invUC inventory.UseCase,
	log logger.ZapLogger,
) jobs.UseCase {
	return &jobsUseCase{
		store:       store,
		locker:      locker,
		batchRepo:   batchRepo,
		batchUC:     batchUC,
		productRepo: productRepo,
		invUC:       invUC,
		logger:      log,
		tracer:      telemetry.Tracer("jobs"),
	}
}

// StartReconciliation compares current_stock with batch totals for every
// product that has batches. Only one run may be in flight across instances.
func (uc *jobsUseCase) StartReconciliation(ctx context.Context) (*model.JobStatus, error) {
	token := uuid.NewString()
	ok, err := uc.locker.AcquireLock(ctx, reconciliationLockKey, token, reconciliationLockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire reconciliation lock: %w", err)
	}
	if !ok {
		return nil, &apperror.BusyError{Resource: "reconciliation"}
	}
	release := func() {
		if err := uc.locker.ReleaseLock(context.Background(), reconciliationLockKey, token); err != nil {
			uc.logger.Warn("Reconciliation lock not released", zap.Error(err))
		}
	}

	totals, err := uc.batchRepo.SumByProduct(ctx, "")
	if err != nil {
		release()
		return nil, err
	}
	productIDs := make([]string, 0, len(totals))
	for pid := range totals {
		productIDs = append(productIDs, pid)
	}
	sort.Strings(productIDs)

	job, err := uc.store.Start(ctx, jobs.KindReconciliation, len(productIDs))
	if err != nil {
		release()
		return nil, err
	}

	uc.spawn(ctx, job, func(ctx context.Context) {
		defer release()
		uc.reconcile(ctx, job.ID, productIDs)
	})
	return job, nil
}

func (uc *jobsUseCase) reconcile(ctx context.Context, jobID string, productIDs []string) {
	ctx, span := uc.tracer.Start(ctx, "jobs.Reconciliation", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("job.total", len(productIDs)),
	))
	defer span.End()

	result := dto.ReconciliationResult{Drifts: []batchdto.Drift{}}
	for i, pid := range productIDs {
		drifts, err := uc.batchUC.Reconcile(ctx, pid)
		if err != nil {
			uc.fail(ctx, span, jobID, fmt.Errorf("reconcile product %s: %w", pid, err))
			return
		}
		result.Drifts = append(result.Drifts, drifts...)
		result.Checked++
		uc.progress(ctx, jobID, i+1)
	}

	msg := fmt.Sprintf("%d of %d products drift from their batches", len(result.Drifts), result.Checked)
	uc.finish(ctx, jobID, msg, result)
}

// StartStockCount parses an xlsx count sheet and books one ADJUSTMENT per
// product whose counted quantity differs from current_stock.
func (uc *jobsUseCase) StartStockCount(ctx context.Context, workbook io.Reader) (*model.JobStatus, error) {
	rows, err := excel.ParseStockCount(workbook)
	if err != nil {
		return nil, apperror.NewValidation("file", "%s", err.Error())
	}

	job, err := uc.store.Start(ctx, jobs.KindStockCount, len(rows))
	if err != nil {
		return nil, err
	}
	userID := auth.GetUserID(ctx)

	uc.spawn(ctx, job, func(ctx context.Context) {
		uc.stockCount(ctx, job.ID, rows, userID)
	})
	return job, nil
}

func (uc *jobsUseCase) stockCount(ctx context.Context, jobID string, rows []excel.CountRow, userID string) {
	ctx, span := uc.tracer.Start(ctx, "jobs.StockCount", trace.WithAttributes(
		attribute.String("job.id", jobID),
		attribute.Int("job.total", len(rows)),
	))
	defer span.End()

	result := dto.StockCountResult{Failures: []dto.RowFailure{}}
	for i, row := range rows {
		adjusted, err := uc.applyCount(ctx, jobID, row, userID)
		switch {
		case err != nil:
			result.Failures = append(result.Failures, dto.RowFailure{
				Row:   row.Row,
				SKU:   row.SKU,
				Code:  apperror.Code(err),
				Error: err.Error(),
			})
		case adjusted:
			result.Adjusted++
		default:
			result.Unchanged++
		}
		uc.progress(ctx, jobID, i+1)
	}

	msg := fmt.Sprintf("%d adjusted, %d unchanged, %d failed", result.Adjusted, result.Unchanged, len(result.Failures))
	uc.finish(ctx, jobID, msg, result)
}

// applyCount books the difference between the sheet and the locked row in one
// transaction; writes committed before that lock are absorbed by the count.
func (uc *jobsUseCase) applyCount(ctx context.Context, jobID string, row excel.CountRow, userID string) (bool, error) {
	p, err := uc.productRepo.FindByUnique(ctx, "sku", row.SKU, "")
	if err != nil {
		return false, err
	}
	if p == nil {
		return false, apperror.NewNotFound("product", row.SKU)
	}
	if p.IsArchived {
		return false, apperror.NewValidation("sku", "product %s is archived", row.SKU)
	}

	_, movement, err := uc.invUC.SetCountedStock(ctx, &invdto.CountStockInput{
		ProductID: p.ID,
		Counted:   row.Counted,
		Reason:    stockCountReason,
		Reference: jobID,
		UserID:    userID,
	})
	if err != nil {
		return false, err
	}
	return movement != nil, nil
}

func (uc *jobsUseCase) GetJob(ctx context.Context, id string) (*model.JobStatus, error) {
	job, err := uc.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, apperror.NewNotFound("job", id)
	}
	return job, nil
}

func (uc *jobsUseCase) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		uc.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// spawn runs fn detached from the request's cancellation but keeps its values
// (actor, trace).
func (uc *jobsUseCase) spawn(ctx context.Context, job *model.JobStatus, fn func(context.Context)) {
	bg := context.WithoutCancel(ctx)
	uc.running.Add(1)
	go func() {
		defer uc.running.Done()
		defer func() {
			if r := recover(); r != nil {
				uc.logger.Error("Job panicked", zap.String("job_id", job.ID), zap.Any("panic", r))
				_ = uc.store.Fail(bg, job.ID, fmt.Errorf("internal error"))
			}
		}()
		uc.logger.Info("Job started",
			zap.String("job_id", job.ID),
			zap.String("kind", job.Kind),
			zap.Int("total", job.Total),
		)
		fn(bg)
	}()
}

func (uc *jobsUseCase) progress(ctx context.Context, jobID string, processed int) {
	if err := uc.store.Progress(ctx, jobID, processed); err != nil {
		uc.logger.Warn("Job progress not saved", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (uc *jobsUseCase) finish(ctx context.Context, jobID, msg string, result any) {
	if err := uc.store.Finish(ctx, jobID, msg, result); err != nil {
		uc.logger.Error("Job result not saved", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	uc.logger.Info("Job finished", zap.String("job_id", jobID), zap.String("summary", msg))
}

func (uc *jobsUseCase) fail(ctx context.Context, span trace.Span, jobID string, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, apperror.Code(err))
	uc.logger.Error("Job failed", zap.String("job_id", jobID), zap.Error(err))
	if serr := uc.store.Fail(ctx, jobID, err); serr != nil {
		uc.logger.Error("Job failure not saved", zap.String("job_id", jobID), zap.Error(serr))
	}
}
