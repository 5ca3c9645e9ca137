package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/retry"
)

// PostgreSQL 可重試的 SQLSTATE
const (
	codeSerializationFailure pq.ErrorCode = "40001"
	codeDeadlockDetected     pq.ErrorCode = "40P01"
	codeLockNotAvailable     pq.ErrorCode = "55P03"
	// bigint 溢位
	codeNumericOutOfRange pq.ErrorCode = "22003"
)

// PostgresLedger 以單一條件式 UPDATE 完成額度檢查與扣款
// UPDATE 取得的資料列鎖讓同一客戶的交易依序生效，不同客戶之間沒有共用的鎖
type PostgresLedger struct {
	db    *sql.DB
	retry retry.Policy
	clock func() time.Time
}

func NewPostgresLedger(db *sql.DB, maxRetries int) *PostgresLedger {
	return &PostgresLedger{
		db: db,
		retry: retry.Policy{
			MaxRetries: maxRetries,
			BaseDelay:  5 * time.Millisecond,
			Retryable:  isRetryable,
		},
		clock: time.Now,
	}
}

// EnsureSchema 建立資料表並寫入不存在的帳戶
func (p *PostgresLedger) EnsureSchema(ctx context.Context, accounts map[int64]*domain.Account) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return domain.NewStorageError("migrate", err)
	}
	for _, acc := range accounts {
		if _, err := p.db.ExecContext(ctx, seedCustomerQuery, acc.ID, acc.Limit, acc.Balance); err != nil {
			return domain.NewStorageError("seed accounts", err)
		}
	}
	return nil
}

// ApplyTransaction 套用交易，衝突時依策略重試
func (p *PostgresLedger) ApplyTransaction(ctx context.Context, tran *domain.Transaction) (domain.Balance, error) {
	var result domain.Balance
	var applied domain.Transaction
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		result, applied, err = p.applyOnce(ctx, tran)
		return err
	})
	if err != nil {
		return domain.Balance{}, translateError("apply transaction", err)
	}
	*tran = applied
	return result, nil
}

func (p *PostgresLedger) applyOnce(ctx context.Context, tran *domain.Transaction) (result domain.Balance, applied domain.Transaction, err error) {
	applied = *tran

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return result, applied, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var limit, balance int64
	var sequence uint64
	err = tx.QueryRowContext(ctx, applyDeltaQuery,
		tran.CustomerID, tran.Delta(), tran.Kind == domain.TransactionKindCredit,
	).Scan(&limit, &balance, &sequence)
	if errors.Is(err, sql.ErrNoRows) {
		// 沒有資料列被更新：帳戶不存在或扣款超過額度
		var exists bool
		if err = tx.QueryRowContext(ctx, customerExistsQuery, tran.CustomerID).Scan(&exists); err != nil {
			return result, applied, err
		}
		if !exists {
			err = domain.ErrAccountNotFound
			return result, applied, err
		}
		err = domain.ErrLimitExceeded
		return result, applied, err
	}
	if isNumericOutOfRange(err) {
		err = overflowError(tran)
		return result, applied, err
	}
	if err != nil {
		return result, applied, err
	}

	applied.Sequence = sequence
	applied.OccurredAt = p.clock().UTC()
	if _, err = tx.ExecContext(ctx, insertTransactionQuery,
		applied.TransactionID.String(),
		applied.CustomerID,
		applied.Sequence,
		applied.Amount,
		applied.Kind.Code(),
		applied.Description,
		applied.OccurredAt,
	); err != nil {
		return result, applied, err
	}

	if err = tx.Commit(); err != nil {
		return result, applied, err
	}
	return domain.Balance{Limit: limit, Balance: balance}, applied, nil
}

// GetStatement 在唯讀 REPEATABLE READ Transaction 內讀取，餘額與交易列表來自同一個快照
func (p *PostgresLedger) GetStatement(ctx context.Context, customerID int64, size int) (*domain.Statement, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, translateError("get statement", err)
	}
	defer tx.Rollback()

	stmt := &domain.Statement{}
	if err := tx.QueryRowContext(ctx, selectCustomerQuery, customerID).Scan(&stmt.Limit, &stmt.Balance); err != nil {
		return nil, translateError("get statement", err)
	}
	stmt.AsOf = p.clock().UTC()

	rows, err := tx.QueryContext(ctx, selectLastTransactionsQuery, customerID, size)
	if err != nil {
		return nil, translateError("get statement", err)
	}
	defer rows.Close()

	stmt.LastTransactions = make([]domain.Transaction, 0, size)
	for rows.Next() {
		t := domain.Transaction{CustomerID: customerID}
		var kind string
		if err := rows.Scan(&t.TransactionID, &t.Sequence, &t.Amount, &kind, &t.Description, &t.OccurredAt); err != nil {
			return nil, translateError("get statement", err)
		}
		if t.Kind, err = domain.ParseTransactionKind(kind); err != nil {
			return nil, translateError("get statement", fmt.Errorf("customer %d sequence %d: %w", customerID, t.Sequence, err))
		}
		t.OccurredAt = t.OccurredAt.UTC()
		stmt.LastTransactions = append(stmt.LastTransactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError("get statement", err)
	}
	return stmt, nil
}

// LoadAllAccounts 載入所有帳戶
func (p *PostgresLedger) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	rows, err := p.db.QueryContext(ctx, selectAllCustomersQuery)
	if err != nil {
		return nil, domain.NewStorageError("load accounts", err)
	}
	defer rows.Close()

	accounts := make(map[int64]*domain.Account)
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.ID, &acc.Limit, &acc.Balance); err != nil {
			return nil, domain.NewStorageError("load accounts", err)
		}
		accounts[acc.ID] = &acc
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("load accounts", err)
	}
	return accounts, nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
			return true
		}
	}
	return false
}

func isNumericOutOfRange(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeNumericOutOfRange
}

// overflowError 與 domain.NextBalance 相同的對應：扣款溢位視為超過額度
func overflowError(tran *domain.Transaction) error {
	if tran.Kind == domain.TransactionKindDebit {
		return domain.ErrLimitExceeded
	}
	return domain.ErrBalanceOverflow
}

func translateError(op string, err error) error {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrAccountNotFound
	case errors.Is(err, domain.ErrAccountNotFound),
		errors.Is(err, domain.ErrLimitExceeded),
		domain.IsValidation(err),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.As(err, &exhausted):
		return fmt.Errorf("%w: %s: %w", domain.ErrConflict, op, exhausted)
	}
	return domain.NewStorageError(op, err)
}

var _ usecase.Ledger = (*PostgresLedger)(nil)
