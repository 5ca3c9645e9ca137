package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrLimitExceeded 扣款後會超過透支額度
	ErrLimitExceeded = errors.New("overdraft limit exceeded")

	// ErrConflict 樂觀鎖或資料列鎖衝突重試次數用完，可原樣重送
	ErrConflict = errors.New("concurrent update conflict")

	// ErrStorage 儲存層失敗
	ErrStorage = errors.New("storage failure")

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = errors.New("wal write failed")

	// ErrLedgerClosed 帳本已關閉
	ErrLedgerClosed = errors.New("ledger is closed")
)

// ErrBalanceOverflow 入帳後餘額超出 int64 範圍，以金額欄位錯誤回報
var ErrBalanceOverflow error = ValidationError{Field: "amount", Message: "balance would overflow"}

// ValidationError 輸入格式錯誤
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
}

// StorageError 包裝底層儲存錯誤，errors.Is(err, ErrStorage) 成立
type StorageError struct {
	Op  string
	Err error
}

// NewStorageError 建立 StorageError
func NewStorageError(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// IsValidation 是否為輸入錯誤
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsNotFound 是否為帳戶不存在
func IsNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

// IsRetryable 相同請求可以直接重送
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}
