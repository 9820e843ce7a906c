package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount 金額必須為正整數 (最小貨幣單位)
	ErrInvalidAmount = errors.New("amount must be a positive integer of minor units")

	// ErrSameAccount 轉出與轉入帳戶相同
	ErrSameAccount = errors.New("source and destination account must differ")

	// ErrInvalidExternalRef 外部參考編號為空
	ErrInvalidExternalRef = errors.New("external reference must not be empty")

	// ErrInsufficientFunds 餘額不足
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrDuplicateExternalRef 外部參考編號已入帳
	ErrDuplicateExternalRef = errors.New("external reference already applied")

	// ErrUnbalancedUnit AtomicUnit 的 delta 與帳目不吻合 (程式錯誤)
	ErrUnbalancedUnit = errors.New("atomic unit deltas do not match its entries")

	// ErrConflict 樂觀鎖版本衝突，呼叫端可整筆重試
	ErrConflict = errors.New("concurrent modification conflict")

	// ErrStorageUnavailable 儲存層不可用，或重試次數已用盡
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ErrBalanceOverflow 入帳後餘額超過 int64 上限，屬於金額錯誤
var ErrBalanceOverflow = fmt.Errorf("%w: resulting balance exceeds the int64 range", ErrInvalidAmount)

// ErrorCode 將錯誤轉為對外 (gRPC / NATS) 使用的固定代碼
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAccountNotFound):
		return "ACCOUNT_NOT_FOUND"
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrSameAccount):
		return "SAME_ACCOUNT"
	case errors.Is(err, ErrInvalidExternalRef):
		return "INVALID_EXTERNAL_REF"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrDuplicateExternalRef):
		return "DUPLICATE_EXTERNAL_REF"
	case errors.Is(err, ErrAccountAlreadyExists):
		return "ACCOUNT_ALREADY_EXISTS"
	case errors.Is(err, ErrConflict):
		return "CONFLICT"
	case errors.Is(err, ErrStorageUnavailable):
		return "STORAGE_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

// IsTransient 是否為暫時性錯誤 (可退避重試)
func IsTransient(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrStorageUnavailable)
}

// IsValidation 是否為輸入驗證錯誤 (不可重試)
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSameAccount) ||
		errors.Is(err, ErrInvalidExternalRef)
}
