package domain

import "math"

// Account 帳戶
// Limit 在開戶時決定，之後不可變；Balance 只能經由帳本套用交易改變
type Account struct {
	ID      int64
	Limit   int64
	Balance int64
}

func NewAccount(id int64, limit int64, balance int64) *Account {
	return &Account{
		ID:      id,
		Limit:   limit,
		Balance: balance,
	}
}

// Balance 交易套用後回傳給呼叫端的結果
type Balance struct {
	Limit   int64
	Balance int64
}

// Apply 在額度限制下套用一筆交易 (核心不變量: Balance >= -Limit)
// 呼叫端必須已經取得此帳戶的獨佔權 (鎖、單一寫入者或資料列鎖)
//
// 參數:
//
//	tran: 已驗證的交易
//
// 回傳:
//
//	int64: 套用後的餘額
//	error: ErrLimitExceeded (不會修改任何狀態)
func (a *Account) Apply(tran *Transaction) (int64, error) {
	newBalance, err := a.Preview(tran)
	if err != nil {
		return a.Balance, err
	}
	a.Balance = newBalance
	return newBalance, nil
}

// Preview 計算套用後的餘額但不修改帳戶
func (a *Account) Preview(tran *Transaction) (int64, error) {
	return NextBalance(a.Balance, a.Limit, tran)
}

// NextBalance 不變量檢查的純函式版本，SQL 帳本在資料列鎖內使用
// 扣款溢位時一定低於 -limit，回傳 ErrLimitExceeded；入帳溢位回傳 ErrBalanceOverflow
func NextBalance(balance int64, limit int64, tran *Transaction) (int64, error) {
	newBalance, ok := addDelta(balance, tran)
	if tran.Kind == TransactionKindDebit {
		if !ok || newBalance < -limit {
			return balance, ErrLimitExceeded
		}
		return newBalance, nil
	}
	// 入帳只會讓餘額變大，只需檢查溢位
	if !ok {
		return balance, ErrBalanceOverflow
	}
	return newBalance, nil
}

// Restore 重放已經套用過的交易，不再檢查額度
// 額度可能在交易寫入後才被調低，歷史紀錄仍然要能完整恢復
func (a *Account) Restore(tran *Transaction) error {
	newBalance, ok := addDelta(a.Balance, tran)
	if !ok {
		return ErrBalanceOverflow
	}
	a.Balance = newBalance
	return nil
}

// addDelta 帶溢位檢查的 balance + Delta
func addDelta(balance int64, tran *Transaction) (int64, bool) {
	delta := tran.Delta()
	if delta > 0 && balance > math.MaxInt64-delta {
		return balance, false
	}
	if delta < 0 && balance < math.MinInt64-delta {
		return balance, false
	}
	return balance + delta, true
}

// Snapshot 回傳目前的 Balance
func (a *Account) Snapshot() Balance {
	return Balance{Limit: a.Limit, Balance: a.Balance}
}
