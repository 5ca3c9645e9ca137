package domain

import "time"

// DefaultStatementSize 對帳單預設顯示的最近交易筆數
const DefaultStatementSize = 10

// Statement 某一時間點的帳戶快照
// Balance 與 LastTransactions 必須對應到同一個時間點
type Statement struct {
	Limit   int64
	Balance int64
	AsOf    time.Time
	// LastTransactions 由新到舊
	LastTransactions []Transaction
}
