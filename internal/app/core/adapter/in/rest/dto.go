package rest

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

// transactionRequest POST /customers/{id}/transactions 的 body
// amount 保留原始字面值，1.5 這類非整數可以回報成欄位錯誤而不是 JSON 錯誤
type transactionRequest struct {
	Amount      json.RawMessage `json:"amount"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
}

// toUseCase 轉成 usecase 的請求，金額與類型在這裡檢查
func (r *transactionRequest) toUseCase(customerID int64) (usecase.TransactionRequest, error) {
	amount, err := r.amount()
	if err != nil {
		return usecase.TransactionRequest{}, err
	}
	kind, err := domain.ParseTransactionKind(r.Kind)
	if err != nil {
		return usecase.TransactionRequest{}, err
	}
	return usecase.TransactionRequest{
		CustomerID:  customerID,
		Amount:      amount,
		Kind:        kind,
		Description: r.Description,
	}, nil
}

// amount 只接受 JSON 整數字面值，1.0、1e2 與字串 "1" 都不算整數
func (r *transactionRequest) amount() (int64, error) {
	if !isIntegerLiteral(r.Amount) {
		return 0, domain.ValidationError{Field: "amount", Message: "must be an integer"}
	}
	d, err := decimal.NewFromString(string(r.Amount))
	if err != nil {
		return 0, domain.ValidationError{Field: "amount", Message: "must be an integer"}
	}
	return domain.AmountFromDecimal(d)
}

func isIntegerLiteral(raw []byte) bool {
	if len(raw) > 0 && raw[0] == '-' {
		raw = raw[1:]
	}
	if len(raw) == 0 {
		return false
	}
	for _, c := range raw {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

type balanceResponse struct {
	Limit   int64 `json:"limit"`
	Balance int64 `json:"balance"`
}

type statementResponse struct {
	Balance          statementBalance      `json:"balance"`
	LastTransactions []statementTransaction `json:"lastTransactions"`
}

type statementBalance struct {
	Total int64     `json:"total"`
	Date  time.Time `json:"date"`
	Limit int64     `json:"limit"`
}

type statementTransaction struct {
	Amount      int64     `json:"amount"`
	Kind        string    `json:"kind"`
	Description string    `json:"description"`
	OccurredAt  time.Time `json:"occurredAt"`
}

func newStatementResponse(stmt *domain.Statement) statementResponse {
	resp := statementResponse{
		Balance: statementBalance{
			Total: stmt.Balance,
			Date:  stmt.AsOf,
			Limit: stmt.Limit,
		},
		LastTransactions: make([]statementTransaction, 0, len(stmt.LastTransactions)),
	}
	for _, t := range stmt.LastTransactions {
		resp.LastTransactions = append(resp.LastTransactions, statementTransaction{
			Amount:      t.Amount,
			Kind:        t.Kind.Code(),
			Description: t.Description,
			OccurredAt:  t.OccurredAt,
		})
	}
	return resp
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}
