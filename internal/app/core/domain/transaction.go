package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// 描述長度限制 (以字元計)
const (
	DescriptionMinLength = 1
	DescriptionMaxLength = 10
)

// TransactionKind 交易類型
// 為了節省記憶體，使用 uint8；對外以單一字元 c / d 表示
type TransactionKind uint8

const (
	// 入帳
	TransactionKindCredit TransactionKind = 1
	// 扣款
	TransactionKindDebit TransactionKind = 2
)

// ParseTransactionKind 將對外的單字元代碼轉為 TransactionKind
func ParseTransactionKind(code string) (TransactionKind, error) {
	switch code {
	case "c":
		return TransactionKindCredit, nil
	case "d":
		return TransactionKindDebit, nil
	}
	return 0, ValidationError{Field: "kind", Message: "must be one of c, d"}
}

// Code 回傳對外的單字元代碼
func (k TransactionKind) Code() string {
	switch k {
	case TransactionKindCredit:
		return "c"
	case TransactionKindDebit:
		return "d"
	}
	return ""
}

// Valid 是否為已知類型
func (k TransactionKind) Valid() bool {
	return k == TransactionKindCredit || k == TransactionKindDebit
}

func (k TransactionKind) String() string {
	switch k {
	case TransactionKindCredit:
		return "credit"
	case TransactionKindDebit:
		return "debit"
	}
	return "unknown"
}

// Transaction 交易 注意欄位排序以避免 Padding
type Transaction struct {
	// Sequence: 單一客戶內的順序號 (由帳本分配，1, 2, 3...)
	// 用於 WAL 重放與排序
	Sequence uint64
	// CustomerID: 帳戶 ID
	CustomerID int64
	// Amount: 金額，永遠為正數，正負由 Kind 決定
	Amount int64
	// OccurredAt: 成功套用的時間，由帳本指定
	OccurredAt time.Time
	// Description: 交易描述 (1~10 個字元)
	Description string
	// TransactionID: 內部追蹤號 (UUID)
	TransactionID uuid.UUID
	// Kind: 放到最後面，利用 Padding 空間
	Kind TransactionKind
}

// NewTransaction 建立並驗證一筆交易請求
// 驗證失敗時回傳 ValidationError，不會碰觸任何儲存層
//
// 參數:
//
//	customerID: 帳戶 ID
//	amount: 金額 (必須為正整數)
//	kind: 交易類型
//	description: 描述
//
// 回傳:
//
//	*Transaction: 尚未套用的交易 (Sequence 與 OccurredAt 為零值)
//	error: ValidationError
func NewTransaction(customerID int64, amount int64, kind TransactionKind, description string) (*Transaction, error) {
	tran := &Transaction{
		TransactionID: uuid.New(),
		CustomerID:    customerID,
		Amount:        amount,
		Kind:          kind,
		Description:   description,
	}
	if err := tran.Validate(); err != nil {
		return nil, err
	}
	return tran, nil
}

// Validate 檢查交易欄位
func (t *Transaction) Validate() error {
	if t.CustomerID <= 0 {
		return ValidationError{Field: "customerId", Message: "must be a positive integer"}
	}
	if t.Amount <= 0 {
		return ValidationError{Field: "amount", Message: "must be a positive integer"}
	}
	if !t.Kind.Valid() {
		return ValidationError{Field: "kind", Message: "must be one of c, d"}
	}
	n := utf8.RuneCountInString(t.Description)
	if n < DescriptionMinLength || n > DescriptionMaxLength {
		return ValidationError{Field: "description", Message: "length must be between 1 and 10 characters"}
	}
	return nil
}

// Delta 回傳套用到餘額上的變動量
func (t *Transaction) Delta() int64 {
	if t.Kind == TransactionKindDebit {
		return -t.Amount
	}
	return t.Amount
}
