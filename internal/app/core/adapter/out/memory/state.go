package memory

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

// accountState 單一帳戶在記憶體中的狀態
// mu 只有 MutexLedger 使用；LMAXLedger 由分區的單一寫入者獨佔
type accountState struct {
	mu       sync.RWMutex
	account  domain.Account
	sequence uint64
	history  *history
}

func newAccountStates(accounts map[int64]*domain.Account, historySize int) map[int64]*accountState {
	states := make(map[int64]*accountState, len(accounts))
	for id, acc := range accounts {
		states[id] = &accountState{
			account: *acc,
			history: newHistory(historySize),
		}
	}
	return states
}

// apply 在不變量下套用交易；成功才會修改狀態
// 順序: 檢查額度 -> 寫入 WAL (fsync) -> 更新餘額與歷史
func (s *accountState) apply(tran *domain.Transaction, w *wal.WAL, now time.Time) (domain.Balance, error) {
	newBalance, err := s.account.Preview(tran)
	if err != nil {
		return domain.Balance{}, err
	}

	applied := *tran
	applied.Sequence = s.sequence + 1
	applied.OccurredAt = now.UTC()

	if w != nil {
		if err := w.Write(&applied); err != nil {
			return domain.Balance{}, domain.NewStorageError("wal append", fmt.Errorf("%w: %w", domain.ErrWALWriteFailed, err))
		}
	}

	s.account.Balance = newBalance
	s.sequence = applied.Sequence
	s.history.push(applied)
	*tran = applied
	return s.account.Snapshot(), nil
}

// replay 重放 WAL 中的一筆交易 (不寫 WAL)
// 紀錄寫入時已通過額度檢查，這裡不再檢查，額度調低不會讓恢復失敗
func (s *accountState) replay(tran *domain.Transaction) error {
	if tran.Sequence != s.sequence+1 {
		return fmt.Errorf("wal: customer %d sequence %d out of order (expected %d)", tran.CustomerID, tran.Sequence, s.sequence+1)
	}
	if err := s.account.Restore(tran); err != nil {
		return fmt.Errorf("wal: customer %d sequence %d: %w", tran.CustomerID, tran.Sequence, err)
	}
	s.sequence = tran.Sequence
	s.history.push(*tran)
	return nil
}

func (s *accountState) statement(size int, asOf time.Time) *domain.Statement {
	return &domain.Statement{
		Limit:            s.account.Limit,
		Balance:          s.account.Balance,
		AsOf:             asOf.UTC(),
		LastTransactions: s.history.latest(size),
	}
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只在建構時呼叫，無需 Lock (單執行緒)
// 恢復後餘額低於目前額度的帳戶只記錄警告，之後的扣款會被拒絕直到入帳補回
func recoverFromWAL(w *wal.WAL, states map[int64]*accountState, log zerolog.Logger) (int, error) {
	if w == nil {
		return 0, nil
	}
	count := 0
	err := w.ReadAll(func(jsonRaw []byte) error {
		var tran domain.Transaction
		if err := json.Unmarshal(jsonRaw, &tran); err != nil {
			return err
		}
		state, ok := states[tran.CustomerID]
		if !ok {
			return fmt.Errorf("wal: customer %d: %w", tran.CustomerID, domain.ErrAccountNotFound)
		}
		if err := state.replay(&tran); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		return count, err
	}
	for id, state := range states {
		if state.account.Balance < -state.account.Limit {
			log.Warn().
				Int64("customer_id", id).
				Int64("balance", state.account.Balance).
				Int64("limit", state.account.Limit).
				Uint64("sequence", state.sequence).
				Msg("recovered balance is below the configured limit")
		}
	}
	return count, nil
}

// history 固定大小的環狀 buffer，保留最近的交易
type history struct {
	buf  []domain.Transaction
	next int
	size int
}

func newHistory(capacity int) *history {
	return &history{buf: make([]domain.Transaction, capacity)}
}

func (h *history) push(t domain.Transaction) {
	h.buf[h.next] = t
	h.next = (h.next + 1) % len(h.buf)
	if h.size < len(h.buf) {
		h.size++
	}
}

// latest 回傳最近 n 筆 (由新到舊) 的複本
func (h *history) latest(n int) []domain.Transaction {
	if n > h.size || n <= 0 {
		n = h.size
	}
	out := make([]domain.Transaction, 0, n)
	idx := h.next
	for i := 0; i < n; i++ {
		idx = (idx - 1 + len(h.buf)) % len(h.buf)
		out = append(out, h.buf[idx])
	}
	return out
}
