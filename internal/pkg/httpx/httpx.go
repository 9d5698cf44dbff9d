package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fekuna/omnipos-stock-service/internal/apperror"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/i18n"
	"github.com/fekuna/omnipos-stock-service/internal/pkg/logger"
	"go.uber.org/zap"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Issues  []any  `json:"issues,omitempty"`
}

type Page struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

type issueView struct {
	apperror.StockIssue
	Message string `json:"message"`
}

// Responder writes the service's JSON envelope and turns apperror values into
// status codes and localized messages.
type Responder struct {
	translator *i18n.Translator
	logger     logger.ZapLogger
}

func NewResponder(translator *i18n.Translator, log logger.ZapLogger) *Responder {
	return &Responder{translator: translator, logger: log}
}

func (re *Responder) JSON(w http.ResponseWriter, status int, data any) {
	WriteJSON(w, status, envelope{Success: true, Data: data})
}

func (re *Responder) Error(w http.ResponseWriter, r *http.Request, err error) {
	code := apperror.Code(err)
	status := StatusFor(code)
	lang := r.Header.Get("Accept-Language")

	body := envelope{Code: code, Message: err.Error()}

	var stockErr *apperror.InsufficientStockError
	var cancelErr *apperror.OrderNotCancellableError
	var batchErr *apperror.NonEmptyBatchError
	var parentErr *apperror.ParentArchivedError
	switch {
	case errors.As(err, &stockErr):
		msgs := make([]string, 0, len(stockErr.Issues))
		for _, issue := range stockErr.Issues {
			msg := re.localizeIssue(issue, lang)
			msgs = append(msgs, msg)
			body.Issues = append(body.Issues, issueView{StockIssue: issue, Message: msg})
		}
		body.Message = strings.Join(msgs, "; ")
	case errors.As(err, &cancelErr):
		body.Message = re.translator.Localize(i18n.MsgOrderNotCancel, map[string]any{
			"OrderID": cancelErr.OrderID,
			"Reason":  cancelErr.Reason,
		}, body.Message, lang)
	case errors.As(err, &batchErr):
		body.Message = re.translator.Localize(i18n.MsgBatchNotEmpty, map[string]any{
			"BatchID":  batchErr.BatchID,
			"Quantity": batchErr.Quantity,
		}, body.Message, lang)
	case errors.As(err, &parentErr):
		body.Message = re.translator.Localize(i18n.MsgParentArchived, map[string]any{
			"ChildID":  parentErr.ChildID,
			"ParentID": parentErr.ParentID,
		}, body.Message, lang)
	}

	if status >= http.StatusInternalServerError {
		re.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
		if code == apperror.CodeInternal {
			body.Message = "internal server error"
		}
	}

	WriteJSON(w, status, body)
}

func (re *Responder) localizeIssue(issue apperror.StockIssue, lang string) string {
	name := issue.ProductName
	if name == "" {
		name = issue.ProductID
	}
	data := map[string]any{
		"ProductName": name,
		"Available":   issue.Available,
		"Requested":   issue.Requested,
	}
	id := i18n.MsgInsufficientStock
	if issue.Kind == apperror.IssueOutOfStock {
		id = i18n.MsgOutOfStock
	}
	return re.translator.Localize(id, data, issue.Message(), lang)
}

func StatusFor(code string) int {
	switch code {
	case apperror.CodeValidation:
		return http.StatusBadRequest
	case apperror.CodeNotFound:
		return http.StatusNotFound
	case apperror.CodeForbidden:
		return http.StatusForbidden
	case apperror.CodeInsufficientStock,
		apperror.CodeOrderNotCancelable,
		apperror.CodeInvalidTransition,
		apperror.CodeNonEmptyBatch,
		apperror.CodeParentArchived,
		apperror.CodeConflict:
		return http.StatusConflict
	case apperror.CodeBusy:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func DecodeJSON(r *http.Request, out any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return apperror.NewValidation("body", "invalid JSON body")
	}
	return nil
}

func ParseOptionalInt(raw string, defaultValue int) (int, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, apperror.NewValidation("", "invalid integer: %s", raw)
	}
	if parsed < 0 {
		return 0, apperror.NewValidation("", "value cannot be negative")
	}
	return parsed, nil
}

// ParseOptionalTime accepts RFC3339 or a plain YYYY-MM-DD date.
func ParseOptionalTime(raw string) (*time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, apperror.NewValidation("", "invalid time: %s", raw)
}

// Pagination reads page/page_size with sane bounds.
func Pagination(r *http.Request) (page, pageSize int, err error) {
	q := r.URL.Query()
	if page, err = ParseOptionalInt(q.Get("page"), 1); err != nil {
		return 0, 0, err
	}
	if pageSize, err = ParseOptionalInt(q.Get("page_size"), 20); err != nil {
		return 0, 0, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize > 200 {
		pageSize = 200
	}
	return page, pageSize, nil
}
