package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
)

// 交易結果標籤，用於 metrics
const (
	ResultOK            = "ok"
	ResultInvalid       = "invalid"
	ResultNotFound      = "not_found"
	ResultLimitExceeded = "limit_exceeded"
	ResultConflict      = "conflict"
	ResultError         = "error"
)

// TransactionRequest 已由邊界層解碼的交易請求
type TransactionRequest struct {
	CustomerID  int64
	Amount      int64
	Kind        domain.TransactionKind
	Description string
}

// CoreUseCase 是核心業務邏輯層
type CoreUseCase struct {
	ledger        Ledger
	publisher     EventPublisher
	metrics       MetricsRecorder
	logger        zerolog.Logger
	statementSize int
}

// Option 設定 CoreUseCase
type Option func(*CoreUseCase)

// WithPublisher 交易成功後發布事件
func WithPublisher(p EventPublisher) Option {
	return func(c *CoreUseCase) {
		c.publisher = p
	}
}

// WithMetrics 設定 metrics recorder
func WithMetrics(m MetricsRecorder) Option {
	return func(c *CoreUseCase) {
		c.metrics = m
	}
}

// WithLogger 設定 logger
func WithLogger(l zerolog.Logger) Option {
	return func(c *CoreUseCase) {
		c.logger = l
	}
}

// WithStatementSize 設定對帳單顯示的交易筆數
func WithStatementSize(n int) Option {
	return func(c *CoreUseCase) {
		if n > 0 {
			c.statementSize = n
		}
	}
}

func NewCoreUseCase(ledger Ledger, opts ...Option) *CoreUseCase {
	c := &CoreUseCase{
		ledger:        ledger,
		logger:        zerolog.Nop(),
		statementSize: domain.DefaultStatementSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ApplyTransaction 驗證並套用交易
//
// 參數:
//
//	ctx: 上下文
//	req: 交易請求
//
// 回傳:
//
//	domain.Balance: 套用後的額度與餘額
//	error: ValidationError / ErrAccountNotFound / ErrLimitExceeded / ErrConflict / StorageError
func (c *CoreUseCase) ApplyTransaction(ctx context.Context, req TransactionRequest) (domain.Balance, error) {
	start := time.Now()

	// 驗證失敗不會碰到儲存層
	tran, err := domain.NewTransaction(req.CustomerID, req.Amount, req.Kind, req.Description)
	if err != nil {
		c.observeApply(req.Kind, err, start)
		return domain.Balance{}, err
	}

	result, err := c.ledger.ApplyTransaction(ctx, tran)
	c.observeApply(req.Kind, err, start)
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			c.logger.Error().Err(err).Int64("customer_id", req.CustomerID).Msg("apply transaction failed")
		}
		return domain.Balance{}, err
	}

	if c.publisher != nil {
		event := domain.NewTransactionApplied(tran, result)
		if err := c.publisher.PublishTransactionApplied(ctx, event); err != nil {
			c.logger.Warn().Err(err).
				Str("transaction_id", tran.TransactionID.String()).
				Msg("publish transaction applied failed")
		}
	}
	return result, nil
}

// GetStatement 取得對帳單
func (c *CoreUseCase) GetStatement(ctx context.Context, customerID int64) (*domain.Statement, error) {
	start := time.Now()
	if customerID <= 0 {
		c.observeStatement(domain.ErrAccountNotFound, start)
		return nil, domain.ErrAccountNotFound
	}
	stmt, err := c.ledger.GetStatement(ctx, customerID, c.statementSize)
	c.observeStatement(err, start)
	if err != nil {
		if errors.Is(err, domain.ErrStorage) {
			c.logger.Error().Err(err).Int64("customer_id", customerID).Msg("get statement failed")
		}
		return nil, err
	}
	return stmt, nil
}

func (c *CoreUseCase) observeApply(kind domain.TransactionKind, err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveApply(kind.String(), ResultOf(err), time.Since(start).Seconds())
}

func (c *CoreUseCase) observeStatement(err error, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveStatement(ResultOf(err), time.Since(start).Seconds())
}

// ResultOf 將錯誤轉為結果標籤
func ResultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case domain.IsValidation(err):
		return ResultInvalid
	case domain.IsNotFound(err):
		return ResultNotFound
	case errors.Is(err, domain.ErrLimitExceeded):
		return ResultLimitExceeded
	case domain.IsRetryable(err):
		return ResultConflict
	}
	return ResultError
}
