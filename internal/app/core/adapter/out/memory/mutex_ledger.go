package memory

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

// MutexLedger 是一個使用「每個帳戶一把 Mutex」實現的帳本
//
// 結構:
//
//	accounts: 帳戶狀態 Map，開戶後不再新增或刪除，查詢 Map 本身不需要鎖
//	wal: Write-Ahead Log 實例 (nil 代表不落地)
//
// 同一帳戶的交易由該帳戶的 mu 序列化；不同帳戶只會在 WAL 的 group commit 交會
type MutexLedger struct {
	accounts map[int64]*accountState
	wal      *wal.WAL
	clock    func() time.Time
	logger   zerolog.Logger
}

// NewMutexLedger 建立一個新的 MutexLedger 實例
//
// 參數:
//
//	accounts: 初始帳戶資料 Map
//	wal: Write-Ahead Log 實例
//
// 回傳:
//
//	*MutexLedger: MutexLedger 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexLedger(accounts map[int64]*domain.Account, wal *wal.WAL, opts ...Option) (*MutexLedger, error) {
	o := newOptions(opts)
	ledger := &MutexLedger{
		accounts: newAccountStates(accounts, o.historySize),
		wal:      wal,
		clock:    o.clock,
		logger:   o.logger,
	}
	replayed, err := recoverFromWAL(wal, ledger.accounts, ledger.logger)
	if err != nil {
		return nil, err
	}
	ledger.logger.Info().Int("accounts", len(accounts)).Int("replayed", replayed).Msg("mutex ledger ready")
	return ledger, nil
}

// ApplyTransaction 處理交易請求 (每帳戶 Mutex)
//
// 參數:
//
//	ctx: 上下文
//	tran: 已驗證的交易物件
//
// 回傳:
//
//	domain.Balance: 套用後的額度與餘額
//	error: 處理錯誤
func (m *MutexLedger) ApplyTransaction(ctx context.Context, tran *domain.Transaction) (domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return domain.Balance{}, err
	}
	state, ok := m.accounts[tran.CustomerID]
	if !ok {
		return domain.Balance{}, domain.ErrAccountNotFound
	}

	state.mu.Lock()
	defer state.mu.Unlock()
	return state.apply(tran, m.wal, m.clock())
}

// GetStatement 在讀鎖下取得一致的快照
func (m *MutexLedger) GetStatement(ctx context.Context, customerID int64, size int) (*domain.Statement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	state, ok := m.accounts[customerID]
	if !ok {
		return nil, domain.ErrAccountNotFound
	}

	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.statement(size, m.clock()), nil
}

// LoadAllAccounts 回傳所有帳戶目前狀態的複本
func (m *MutexLedger) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	out := make(map[int64]*domain.Account, len(m.accounts))
	for id, state := range m.accounts {
		state.mu.RLock()
		acc := state.account
		state.mu.RUnlock()
		out[id] = &acc
	}
	return out, nil
}

var _ usecase.Ledger = (*MutexLedger)(nil)
