package grpc

import (
	"time"

	"github.com/shopspring/decimal"
)

// 以 JSON codec 傳輸的訊息，欄位名稱即為 wire format

type ApplyTransactionRequest struct {
	CustomerID  int64           `json:"customerId"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
}

type ApplyTransactionResponse struct {
	Limit   int64 `json:"limit"`
	Balance int64 `json:"balance"`
}

type GetStatementRequest struct {
	CustomerID int64 `json:"customerId"`
}

type GetStatementResponse struct {
	Limit            int64            `json:"limit"`
	Balance          int64            `json:"balance"`
	AsOf             time.Time        `json:"asOf"`
	LastTransactions []StatementEntry `json:"lastTransactions"`
}

// StatementEntry 對帳單中的一筆交易
type StatementEntry struct {
	TransactionID string    `json:"transactionId"`
	Sequence      uint64    `json:"sequence"`
	Amount        int64     `json:"amount"`
	Kind          string    `json:"kind"`
	Description   string    `json:"description"`
	OccurredAt    time.Time `json:"occurredAt"`
}
