package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Account 帳戶
//
// Balance 以最小貨幣單位 (例如 cents) 儲存，永遠不使用浮點數。
// Version 每次成功套用 AtomicUnit 時 +1，供樂觀鎖使用。
type Account struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAccount 建立新帳戶，餘額固定為 0
func NewAccount(now time.Time) *Account {
	return &Account{
		ID:        uuid.NewString(),
		Balance:   0,
		Version:   0,
		CreatedAt: now.UTC(),
	}
}

// Clone 回傳帳戶的複本，避免呼叫端持有儲存層內部狀態
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// ApplyDelta 回傳 balance 套用 delta 後的餘額
//
// 結果為負回傳 ErrInsufficientFunds，超過 int64 上限回傳 ErrBalanceOverflow。
// balance 必須 >= 0 (已 commit 的餘額)。
func ApplyDelta(balance, delta int64) (int64, error) {
	if delta > 0 && balance > math.MaxInt64-delta {
		return 0, ErrBalanceOverflow
	}
	if delta < 0 && balance+delta < 0 {
		return 0, ErrInsufficientFunds
	}
	return balance + delta, nil
}
