package usecase

import (
	"context"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的介面
// 所有實作都必須保證：同一個客戶的 ApplyTransaction 依序生效 (linearizable)，
// 不同客戶之間互不阻塞
type Ledger interface {
	// ApplyTransaction 在透支額度限制下套用交易
	// 成功時會填入 tran.Sequence 與 tran.OccurredAt
	ApplyTransaction(ctx context.Context, tran *domain.Transaction) (domain.Balance, error)
	// GetStatement 取得一致的帳戶快照與最近 size 筆交易 (由新到舊)
	GetStatement(ctx context.Context, customerID int64, size int) (*domain.Statement, error)
	// LoadAllAccounts 載入所有帳戶
	LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error)
}

// EventPublisher 交易成功後對外發布事件
type EventPublisher interface {
	PublishTransactionApplied(ctx context.Context, event domain.TransactionApplied) error
}

// MetricsRecorder 記錄交易結果
type MetricsRecorder interface {
	ObserveApply(kind string, result string, seconds float64)
	ObserveStatement(result string, seconds float64)
}
