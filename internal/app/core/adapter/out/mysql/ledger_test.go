package mysql

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/pkg/retry"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"deadlock", &mysqldriver.MySQLError{Number: 1213, Message: "Deadlock found"}, true},
		{"lock wait timeout", &mysqldriver.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, true},
		{"wrapped deadlock", fmt.Errorf("commit: %w", &mysqldriver.MySQLError{Number: 1213}), true},
		{"duplicate key", &mysqldriver.MySQLError{Number: 1062}, false},
		{"limit exceeded", domain.ErrLimitExceeded, false},
		{"plain error", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestTranslateError(t *testing.T) {
	assert.ErrorIs(t, translateError("op", gorm.ErrRecordNotFound), domain.ErrAccountNotFound)
	assert.ErrorIs(t, translateError("op", domain.ErrLimitExceeded), domain.ErrLimitExceeded)
	assert.ErrorIs(t, translateError("op", context.Canceled), context.Canceled)
	assert.ErrorIs(t, translateError("op", domain.ErrBalanceOverflow), domain.ErrBalanceOverflow)

	conflict := translateError("apply", &retry.ExhaustedError{Attempts: 4, Err: &mysqldriver.MySQLError{Number: 1213}})
	assert.ErrorIs(t, conflict, domain.ErrConflict)
	assert.True(t, domain.IsRetryable(conflict))

	storage := translateError("apply", errors.New("connection refused"))
	assert.ErrorIs(t, storage, domain.ErrStorage)
	assert.False(t, domain.IsRetryable(storage))
}

func TestTransactionModelMapping(t *testing.T) {
	occurred := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	tran := &domain.Transaction{
		TransactionID: uuid.New(),
		Sequence:      7,
		CustomerID:    3,
		Amount:        250,
		Kind:          domain.TransactionKindDebit,
		Description:   "groceries",
		OccurredAt:    occurred,
	}

	row := toSQLTransaction(tran)
	assert.Equal(t, "d", row.Kind)
	assert.Len(t, row.RefID, 16)

	back, err := row.toDomain()
	require.NoError(t, err)
	assert.Equal(t, *tran, back)

	row.Kind = "x"
	_, err = row.toDomain()
	assert.True(t, domain.IsValidation(err))
}

func TestCustomerModel(t *testing.T) {
	acc := (&sqlCustomer{ID: 1, Limit: 1000, Balance: -10}).toDomain()
	assert.Equal(t, domain.NewAccount(1, 1000, -10), acc)
	assert.Equal(t, "customers", (&sqlCustomer{}).TableName())
	assert.Equal(t, "transactions", (&sqlTransaction{}).TableName())
}
