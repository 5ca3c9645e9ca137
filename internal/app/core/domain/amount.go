package domain

import (
	"math"

	"github.com/shopspring/decimal"
)

var maxAmount = decimal.NewFromInt(math.MaxInt64)

// AmountFromDecimal 將對外傳入的金額轉為整數最小單位
// 只接受不帶小數點與指數的正整數寫法，1.0 與 1e2 都回傳 ValidationError
func AmountFromDecimal(d decimal.Decimal) (int64, error) {
	// decimal 保留原始寫法的指數: "1" 為 0，"1.0" 為 -1，"1e2" 為 2
	if d.Exponent() != 0 {
		return 0, ValidationError{Field: "amount", Message: "must be an integer"}
	}
	if d.GreaterThan(maxAmount) {
		return 0, ValidationError{Field: "amount", Message: "out of range"}
	}
	if !d.IsPositive() {
		return 0, ValidationError{Field: "amount", Message: "must be positive"}
	}
	return d.IntPart(), nil
}
