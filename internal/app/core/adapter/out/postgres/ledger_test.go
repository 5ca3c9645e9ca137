package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/pkg/retry"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"lock not available", &pq.Error{Code: "55P03"}, true},
		{"wrapped deadlock", fmt.Errorf("commit: %w", &pq.Error{Code: "40P01"}), true},
		{"check violation", &pq.Error{Code: "23514"}, false},
		{"unique violation", &pq.Error{Code: "23505"}, false},
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
	assert.ErrorIs(t, translateError("op", sql.ErrNoRows), domain.ErrAccountNotFound)
	assert.ErrorIs(t, translateError("op", domain.ErrAccountNotFound), domain.ErrAccountNotFound)
	assert.ErrorIs(t, translateError("op", domain.ErrLimitExceeded), domain.ErrLimitExceeded)
	assert.ErrorIs(t, translateError("op", context.DeadlineExceeded), context.DeadlineExceeded)
	assert.ErrorIs(t, translateError("op", domain.ErrBalanceOverflow), domain.ErrBalanceOverflow)

	conflict := translateError("apply", &retry.ExhaustedError{Attempts: 3, Err: &pq.Error{Code: "40001"}})
	assert.ErrorIs(t, conflict, domain.ErrConflict)
	assert.True(t, domain.IsRetryable(conflict))

	storage := translateError("apply", &pq.Error{Code: "08006", Message: "connection failure"})
	assert.ErrorIs(t, storage, domain.ErrStorage)
	assert.False(t, domain.IsNotFound(storage))
}

func TestBigintOverflowMapping(t *testing.T) {
	overflow := fmt.Errorf("scan: %w", &pq.Error{Code: "22003", Message: "bigint out of range"})
	assert.True(t, isNumericOutOfRange(overflow))
	assert.False(t, isNumericOutOfRange(&pq.Error{Code: "23514"}))
	assert.False(t, isRetryable(overflow))

	debit := &domain.Transaction{Amount: 1, Kind: domain.TransactionKindDebit}
	credit := &domain.Transaction{Amount: 1, Kind: domain.TransactionKindCredit}
	assert.ErrorIs(t, overflowError(debit), domain.ErrLimitExceeded)
	assert.ErrorIs(t, overflowError(credit), domain.ErrBalanceOverflow)
	assert.True(t, domain.IsValidation(translateError("apply", overflowError(credit))))
}

func TestApplyDeltaQueryGuardsLimit(t *testing.T) {
	// 額度檢查必須與更新在同一條語句內
	assert.True(t, strings.Contains(applyDeltaQuery, "balance + $2 >= -account_limit"))
	assert.True(t, strings.Contains(applyDeltaQuery, "RETURNING account_limit, balance, sequence"))
	assert.True(t, strings.Contains(schema, "CHECK (balance >= -account_limit)"))
	assert.True(t, strings.Contains(selectLastTransactionsQuery, "ORDER BY sequence DESC"))
}
