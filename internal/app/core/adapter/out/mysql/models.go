package mysql

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
)

// sqlCustomer 對應資料庫的 customers 表
type sqlCustomer struct {
	ID int64 `gorm:"primaryKey;autoIncrement:false"`
	// limit 是保留字
	Limit   int64 `gorm:"column:account_limit;not null"`
	Balance int64 `gorm:"not null;default:0"`
	// Sequence 最後一筆交易的順序號
	Sequence  uint64 `gorm:"not null;default:0"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlCustomer) TableName() string {
	return "customers"
}

// sqlTransaction 對應資料庫的 transactions 表
type sqlTransaction struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	RefID       []byte    `gorm:"column:ref_id;type:binary(16);uniqueIndex"` // 對應 domain.TransactionID
	CustomerID  int64     `gorm:"not null;uniqueIndex:idx_customer_sequence,priority:1"`
	Sequence    uint64    `gorm:"not null;uniqueIndex:idx_customer_sequence,priority:2"`
	Amount      int64     `gorm:"not null"`
	Kind        string    `gorm:"type:char(1);not null"`
	Description string    `gorm:"size:10;not null"`
	OccurredAt  time.Time `gorm:"precision:6;not null"`
}

func (*sqlTransaction) TableName() string {
	return "transactions"
}

func toSQLTransaction(tran *domain.Transaction) *sqlTransaction {
	return &sqlTransaction{
		RefID:       tran.TransactionID[:],
		CustomerID:  tran.CustomerID,
		Sequence:    tran.Sequence,
		Amount:      tran.Amount,
		Kind:        tran.Kind.Code(),
		Description: tran.Description,
		OccurredAt:  tran.OccurredAt,
	}
}

func (t *sqlTransaction) toDomain() (domain.Transaction, error) {
	kind, err := domain.ParseTransactionKind(t.Kind)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %d: %w", t.ID, err)
	}
	refID, err := uuid.FromBytes(t.RefID)
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("transaction %d: ref_id: %w", t.ID, err)
	}
	return domain.Transaction{
		TransactionID: refID,
		Sequence:      t.Sequence,
		CustomerID:    t.CustomerID,
		Amount:        t.Amount,
		Kind:          kind,
		Description:   t.Description,
		OccurredAt:    t.OccurredAt.UTC(),
	}, nil
}

func (c *sqlCustomer) toDomain() *domain.Account {
	return domain.NewAccount(c.ID, c.Limit, c.Balance)
}
