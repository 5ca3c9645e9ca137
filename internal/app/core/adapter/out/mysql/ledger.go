package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/mysql"
	"github.com/JoeShih716/go-credit-ledger/pkg/retry"
)

// MySQL 可重試的錯誤碼
const (
	errLockWaitTimeout uint16 = 1205
	errDeadlock        uint16 = 1213
)

// MySQLLedger 以資料列悲觀鎖保證同一客戶的交易依序生效
// 不同客戶鎖的是不同資料列，互不阻塞
type MySQLLedger struct {
	client *mysql.Client
	retry  retry.Policy
	clock  func() time.Time
}

// NewMySQLLedger 建立 MySQLLedger
//
// 參數:
//
//	client: MySQL 客戶端
//	maxRetries: 遇到死結或鎖等待逾時時最多重試幾次
func NewMySQLLedger(client *mysql.Client, maxRetries int) *MySQLLedger {
	return &MySQLLedger{
		client: client,
		retry: retry.Policy{
			MaxRetries: maxRetries,
			BaseDelay:  5 * time.Millisecond,
			Retryable:  isRetryable,
		},
		clock: time.Now,
	}
}

// EnsureSchema 建立資料表並寫入不存在的帳戶 (已存在的帳戶不會被覆蓋)
func (ledger *MySQLLedger) EnsureSchema(ctx context.Context, accounts map[int64]*domain.Account) error {
	db := ledger.client.DB().WithContext(ctx)
	if err := db.AutoMigrate(&sqlCustomer{}, &sqlTransaction{}); err != nil {
		return domain.NewStorageError("migrate", err)
	}
	if len(accounts) == 0 {
		return nil
	}
	rows := make([]sqlCustomer, 0, len(accounts))
	for _, acc := range accounts {
		rows = append(rows, sqlCustomer{ID: acc.ID, Limit: acc.Limit, Balance: acc.Balance})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return domain.NewStorageError("seed accounts", err)
	}
	return nil
}

// ApplyTransaction 在 Transaction 內鎖住客戶資料列、檢查額度、更新餘額並寫入交易紀錄
func (ledger *MySQLLedger) ApplyTransaction(ctx context.Context, tran *domain.Transaction) (domain.Balance, error) {
	var result domain.Balance
	var applied domain.Transaction
	err := ledger.retry.Do(ctx, func(ctx context.Context) error {
		var err error
		result, applied, err = ledger.applyOnce(ctx, tran)
		return err
	})
	if err != nil {
		return domain.Balance{}, translateError("apply transaction", err)
	}
	*tran = applied
	return result, nil
}

func (ledger *MySQLLedger) applyOnce(ctx context.Context, tran *domain.Transaction) (domain.Balance, domain.Transaction, error) {
	var result domain.Balance
	applied := *tran

	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 取得鎖定帳號 悲觀鎖
		var customer sqlCustomer
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", tran.CustomerID).
			Take(&customer).Error
		if err != nil {
			return err
		}

		newBalance, err := domain.NextBalance(customer.Balance, customer.Limit, tran)
		if err != nil {
			return err
		}

		applied.Sequence = customer.Sequence + 1
		applied.OccurredAt = ledger.clock().UTC()

		// 更新資料庫
		if err := tx.Model(&sqlCustomer{}).
			Where("id = ?", customer.ID).
			Updates(map[string]any{"balance": newBalance, "sequence": applied.Sequence}).Error; err != nil {
			return err
		}
		// 建立交易紀錄
		if err := tx.Create(toSQLTransaction(&applied)).Error; err != nil {
			return err
		}

		result = domain.Balance{Limit: customer.Limit, Balance: newBalance}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelReadCommitted})

	return result, applied, err
}

// GetStatement 在唯讀的 REPEATABLE READ Transaction 內讀取餘額與最近交易，兩者來自同一個快照
func (ledger *MySQLLedger) GetStatement(ctx context.Context, customerID int64, size int) (*domain.Statement, error) {
	var stmt *domain.Statement
	err := ledger.client.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var customer sqlCustomer
		if err := tx.Where("id = ?", customerID).Take(&customer).Error; err != nil {
			return err
		}
		asOf := ledger.clock().UTC()

		var rows []sqlTransaction
		if err := tx.Where("customer_id = ?", customerID).
			Order("sequence DESC").
			Limit(size).
			Find(&rows).Error; err != nil {
			return err
		}

		last := make([]domain.Transaction, 0, len(rows))
		for i := range rows {
			t, err := rows[i].toDomain()
			if err != nil {
				return err
			}
			last = append(last, t)
		}
		stmt = &domain.Statement{
			Limit:            customer.Limit,
			Balance:          customer.Balance,
			AsOf:             asOf,
			LastTransactions: last,
		}
		return nil
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, translateError("get statement", err)
	}
	return stmt, nil
}

// LoadAllAccounts 載入所有帳戶
func (ledger *MySQLLedger) LoadAllAccounts(ctx context.Context) (map[int64]*domain.Account, error) {
	var customers []sqlCustomer
	if err := ledger.client.DB().WithContext(ctx).Find(&customers).Error; err != nil {
		return nil, domain.NewStorageError("load accounts", err)
	}
	accounts := make(map[int64]*domain.Account, len(customers))
	for i := range customers {
		accounts[customers[i].ID] = customers[i].toDomain()
	}
	return accounts, nil
}

// isRetryable 死結與鎖等待逾時可以重試
func isRetryable(err error) bool {
	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == errDeadlock || myErr.Number == errLockWaitTimeout
	}
	return false
}

// translateError 將 GORM / driver 錯誤轉成 domain 錯誤
func translateError(op string, err error) error {
	var exhausted *retry.ExhaustedError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
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

var _ usecase.Ledger = (*MySQLLedger)(nil)
