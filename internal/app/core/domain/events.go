package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionApplied 交易成功套用後發布的事件
type TransactionApplied struct {
	TransactionID uuid.UUID `json:"transactionId"`
	CustomerID    int64     `json:"customerId"`
	Sequence      uint64    `json:"sequence"`
	Amount        int64     `json:"amount"`
	Kind          string    `json:"kind"`
	Description   string    `json:"description"`
	Limit         int64     `json:"limit"`
	Balance       int64     `json:"balance"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// NewTransactionApplied 由已套用的交易與結果建立事件
func NewTransactionApplied(tran *Transaction, result Balance) TransactionApplied {
	return TransactionApplied{
		TransactionID: tran.TransactionID,
		CustomerID:    tran.CustomerID,
		Sequence:      tran.Sequence,
		Amount:        tran.Amount,
		Kind:          tran.Kind.Code(),
		Description:   tran.Description,
		Limit:         result.Limit,
		Balance:       result.Balance,
		OccurredAt:    tran.OccurredAt,
	}
}
