package domain

import "time"

// EntryKind 帳目類型
type EntryKind string

const (
	// 外部入金
	EntryKindDeposit EntryKind = "deposit"
	// 轉出
	EntryKindTransferOut EntryKind = "transfer_out"
	// 轉入
	EntryKindTransferIn EntryKind = "transfer_in"
)

// Valid 是否為已知的帳目類型
func (k EntryKind) Valid() bool {
	switch k {
	case EntryKindDeposit, EntryKindTransferOut, EntryKindTransferIn:
		return true
	}
	return false
}

// LedgerEntry 帳目 (寫入後不可變更，只能追加)
type LedgerEntry struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Kind      EntryKind `json:"kind"`
	// Amount 永遠為正數，方向由 Kind 決定
	Amount int64 `json:"amount"`
	// CounterpartyAccountID 只有轉帳類帳目才有值
	CounterpartyAccountID string `json:"counterparty_account_id,omitempty"`
	// ExternalRef 只有入金帳目才有值 (金流商的事件編號，全系統唯一)
	ExternalRef string `json:"external_ref,omitempty"`
	// GroupID 同一筆轉帳的兩筆帳目共用
	GroupID string `json:"group_id"`
	// CreatedAt 僅供參考，不作為排序依據
	CreatedAt time.Time `json:"created_at"`
}

// SignedAmount 回傳帳目對餘額的影響 (轉出為負)
func (e LedgerEntry) SignedAmount() int64 {
	if e.Kind == EntryKindTransferOut {
		return -e.Amount
	}
	return e.Amount
}

// Replay 依帳目重新計算每個帳戶的餘額，用於稽核
func Replay(entries []LedgerEntry) map[string]int64 {
	balances := make(map[string]int64)
	for _, e := range entries {
		balances[e.AccountID] += e.SignedAmount()
	}
	return balances
}

// GroupNet 回傳每個 GroupID 的淨額，正確的轉帳群組淨額必為 0
func GroupNet(entries []LedgerEntry) map[string]int64 {
	nets := make(map[string]int64)
	for _, e := range entries {
		if e.Kind == EntryKindDeposit {
			continue
		}
		nets[e.GroupID] += e.SignedAmount()
	}
	return nets
}
