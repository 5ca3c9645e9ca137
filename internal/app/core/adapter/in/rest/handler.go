package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

// maxBodyBytes 交易 body 很小，超過就當作格式錯誤
const maxBodyBytes = 4 << 10

// Service 是 Handler 需要的業務操作，由 usecase.CoreUseCase 實作
type Service interface {
	ApplyTransaction(ctx context.Context, req usecase.TransactionRequest) (domain.Balance, error)
	GetStatement(ctx context.Context, customerID int64) (*domain.Statement, error)
}

// Handler 帳本的 HTTP 入口
type Handler struct {
	svc     Service
	log     zerolog.Logger
	metrics http.Handler
	mux     *http.ServeMux
}

// Option 設定 Handler
type Option func(*Handler)

// WithMetricsHandler 在 /metrics 掛上 metrics handler
func WithMetricsHandler(h http.Handler) Option {
	return func(handler *Handler) {
		handler.metrics = h
	}
}

// NewHandler 建立 HTTP Handler
//
// 參數:
//
//	svc: 業務邏輯
//	log: request log 使用的 logger
//
// 回傳:
//
//	*Handler: 已註冊好路由的 http.Handler
func NewHandler(svc Service, log zerolog.Logger, opts ...Option) *Handler {
	h := &Handler{
		svc: svc,
		log: log,
		mux: http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(h)
	}

	h.mux.HandleFunc("POST /customers/{id}/transactions", h.postTransaction)
	h.mux.HandleFunc("GET /customers/{id}/statement", h.getStatement)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	if h.metrics != nil {
		h.mux.Handle("GET /metrics", h.metrics)
	}
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	defer func() {
		if p := recover(); p != nil {
			h.log.Error().Interface("panic", p).Str("path", r.URL.Path).Msg("handler panic")
			if !rec.wroteHeader {
				writeJSON(rec, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}
		h.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	}()
	h.mux.ServeHTTP(rec, r)
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(r)
	if !ok {
		h.writeError(w, domain.ErrAccountNotFound)
		return
	}

	var body transactionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "invalid request body"})
		return
	}
	req, err := body.toUseCase(customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.svc.ApplyTransaction(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Limit: res.Limit, Balance: res.Balance})
}

func (h *Handler) getStatement(w http.ResponseWriter, r *http.Request) {
	customerID, ok := parseCustomerID(r)
	if !ok {
		h.writeError(w, domain.ErrAccountNotFound)
		return
	}
	stmt, err := h.svc.GetStatement(r.Context(), customerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newStatementResponse(stmt))
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError 將 domain 錯誤對應到 HTTP 狀態碼
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var ve domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: ve.Message, Field: ve.Field})
	case errors.Is(err, domain.ErrLimitExceeded):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: domain.ErrAccountNotFound.Error()})
	case domain.IsRetryable(err):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: domain.ErrConflict.Error()})
	case errors.Is(err, domain.ErrLedgerClosed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.log.Error().Err(err).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

// parseCustomerID 非數字或非正數的 id 一律視為找不到客戶
func parseCustomerID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.wroteHeader {
		return
	}
	r.status = status
	r.wroteHeader = true
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	return r.ResponseWriter.Write(b)
}

// Unwrap 讓 http.ResponseController 與 MaxBytesReader 能存取底層 writer
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
