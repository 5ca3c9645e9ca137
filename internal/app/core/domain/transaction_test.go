package domain

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransactionValidation(t *testing.T) {
	tests := []struct {
		name        string
		customerID  int64
		amount      int64
		kind        TransactionKind
		description string
		field       string
	}{
		{"ok credit", 1, 100, TransactionKindCredit, "salary", ""},
		{"ok debit", 1, 1, TransactionKindDebit, "x", ""},
		{"description 10 chars", 1, 1, TransactionKindDebit, strings.Repeat("a", 10), ""},
		{"description 10 runes multibyte", 1, 1, TransactionKindDebit, strings.Repeat("é", 10), ""},
		{"description empty", 1, 1, TransactionKindDebit, "", "description"},
		{"description 11 chars", 1, 1, TransactionKindDebit, strings.Repeat("a", 11), "description"},
		{"amount zero", 1, 0, TransactionKindCredit, "x", "amount"},
		{"amount negative", 1, -5, TransactionKindCredit, "x", "amount"},
		{"unknown kind", 1, 5, TransactionKind(9), "x", "kind"},
		{"bad customer", 0, 5, TransactionKindCredit, "x", "customerId"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tran, err := NewTransaction(tt.customerID, tt.amount, tt.kind, tt.description)
			if tt.field == "" {
				require.NoError(t, err)
				assert.NotEqual(t, uuid.Nil, tran.TransactionID)
				return
			}
			var ve ValidationError
			require.True(t, errors.As(err, &ve), "expected ValidationError, got %v", err)
			assert.Equal(t, tt.field, ve.Field)
			assert.Nil(t, tran)
		})
	}
}

func TestParseTransactionKind(t *testing.T) {
	k, err := ParseTransactionKind("c")
	require.NoError(t, err)
	assert.Equal(t, TransactionKindCredit, k)
	assert.Equal(t, "c", k.Code())

	k, err = ParseTransactionKind("d")
	require.NoError(t, err)
	assert.Equal(t, TransactionKindDebit, k)
	assert.Equal(t, "d", k.Code())

	for _, code := range []string{"", "C", "x", "cd"} {
		_, err := ParseTransactionKind(code)
		assert.True(t, IsValidation(err), code)
	}
}

func TestAccountApply(t *testing.T) {
	acc := NewAccount(1, 1000, 0)

	debit := func(amount int64) *Transaction {
		return &Transaction{CustomerID: 1, Amount: amount, Kind: TransactionKindDebit, Description: "d"}
	}
	credit := func(amount int64) *Transaction {
		return &Transaction{CustomerID: 1, Amount: amount, Kind: TransactionKindCredit, Description: "c"}
	}

	balance, err := acc.Apply(debit(1000))
	require.NoError(t, err)
	assert.Equal(t, int64(-1000), balance)

	balance, err = acc.Apply(debit(1))
	assert.ErrorIs(t, err, ErrLimitExceeded)
	assert.Equal(t, int64(-1000), balance)
	assert.Equal(t, int64(-1000), acc.Balance)

	balance, err = acc.Apply(credit(500))
	require.NoError(t, err)
	assert.Equal(t, int64(-500), balance)
	assert.Equal(t, Balance{Limit: 1000, Balance: -500}, acc.Snapshot())
}

func TestNextBalanceOverflow(t *testing.T) {
	tests := []struct {
		name    string
		balance int64
		limit   int64
		amount  int64
		kind    TransactionKind
		want    int64
		wantErr error
	}{
		{"debit to limit", 0, 1000, 1000, TransactionKindDebit, -1000, nil},
		{"debit wraps past min", -1000, 1000, math.MaxInt64, TransactionKindDebit, -1000, ErrLimitExceeded},
		{"debit max with max limit", 0, math.MaxInt64, math.MaxInt64, TransactionKindDebit, -math.MaxInt64, nil},
		{"debit one past min", -math.MaxInt64, math.MaxInt64, 2, TransactionKindDebit, -math.MaxInt64, ErrLimitExceeded},
		{"credit to max", 0, 1000, math.MaxInt64, TransactionKindCredit, math.MaxInt64, nil},
		{"credit wraps past max", math.MaxInt64 - 1, 1000, 2, TransactionKindCredit, math.MaxInt64 - 1, ErrBalanceOverflow},
		{"credit from overdraft", -1000, 1000, math.MaxInt64, TransactionKindCredit, math.MaxInt64 - 1000, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tran := &Transaction{CustomerID: 1, Amount: tt.amount, Kind: tt.kind, Description: "x"}
			got, err := NextBalance(tt.balance, tt.limit, tran)
			assert.Equal(t, tt.want, got)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.GreaterOrEqual(t, got, -tt.limit)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	assert.True(t, IsValidation(ErrBalanceOverflow))
}

func TestAccountRestoreSkipsLimit(t *testing.T) {
	// 額度調低後，已寫入的歷史仍可重放
	acc := NewAccount(1, 10, 0)
	require.NoError(t, acc.Restore(&Transaction{Amount: 500, Kind: TransactionKindDebit}))
	assert.Equal(t, int64(-500), acc.Balance)

	acc.Balance = math.MaxInt64
	assert.ErrorIs(t, acc.Restore(&Transaction{Amount: 1, Kind: TransactionKindCredit}), ErrBalanceOverflow)
	assert.Equal(t, int64(math.MaxInt64), acc.Balance)
}

func TestErrorClassifiers(t *testing.T) {
	wrapped := fmt.Errorf("apply: %w", ErrAccountNotFound)
	assert.True(t, IsNotFound(wrapped))
	assert.False(t, IsRetryable(wrapped))

	assert.True(t, IsRetryable(fmt.Errorf("mysql: %w", ErrConflict)))
	assert.True(t, IsValidation(fmt.Errorf("in: %w", ValidationError{Field: "amount"})))

	cause := errors.New("disk full")
	serr := NewStorageError("wal append", cause)
	assert.ErrorIs(t, serr, ErrStorage)
	assert.ErrorIs(t, serr, cause)
	assert.Contains(t, serr.Error(), "wal append")
}
