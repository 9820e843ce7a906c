package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// BalanceDelta 單一帳戶的餘額變動 (有正負號)
type BalanceDelta struct {
	AccountID string `json:"account_id"`
	Amount    int64  `json:"amount"`
}

// AtomicUnit 一次要「全部成功或全部失敗」寫入儲存層的單位
//
// Deltas 與 Entries 必須互相吻合：每個帳戶的 delta 總和等於其帳目的 SignedAmount 總和，
// 這樣 balance == sum(entries) 才能一直成立。
type AtomicUnit struct {
	GroupID string         `json:"group_id"`
	Deltas  []BalanceDelta `json:"deltas"`
	Entries []LedgerEntry  `json:"entries"`
}

// NewTransferUnit 建立轉帳單位：一筆 transfer_out + 一筆 transfer_in，共用同一個 GroupID
func NewTransferUnit(groupID, fromID, toID string, amount int64, now time.Time) (*AtomicUnit, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if fromID == toID {
		return nil, ErrSameAccount
	}
	now = now.UTC()
	unit := &AtomicUnit{
		GroupID: groupID,
		Deltas: []BalanceDelta{
			{AccountID: fromID, Amount: -amount},
			{AccountID: toID, Amount: amount},
		},
		Entries: []LedgerEntry{
			{
				ID:                    uuid.NewString(),
				AccountID:             fromID,
				Kind:                  EntryKindTransferOut,
				Amount:                amount,
				CounterpartyAccountID: toID,
				GroupID:               groupID,
				CreatedAt:             now,
			},
			{
				ID:                    uuid.NewString(),
				AccountID:             toID,
				Kind:                  EntryKindTransferIn,
				Amount:                amount,
				CounterpartyAccountID: fromID,
				GroupID:               groupID,
				CreatedAt:             now,
			},
		},
	}
	unit.sortDeltas()
	return unit, nil
}

// NewDepositUnit 建立入金單位：一筆帶 ExternalRef 的 deposit 帳目
func NewDepositUnit(externalRef, accountID string, amount int64, now time.Time) (*AtomicUnit, error) {
	externalRef = strings.TrimSpace(externalRef)
	if externalRef == "" {
		return nil, ErrInvalidExternalRef
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	groupID := uuid.NewString()
	return &AtomicUnit{
		GroupID: groupID,
		Deltas:  []BalanceDelta{{AccountID: accountID, Amount: amount}},
		Entries: []LedgerEntry{
			{
				ID:          uuid.NewString(),
				AccountID:   accountID,
				Kind:        EntryKindDeposit,
				Amount:      amount,
				ExternalRef: externalRef,
				GroupID:     groupID,
				CreatedAt:   now.UTC(),
			},
		},
	}, nil
}

// sortDeltas 依帳戶 ID 排序 delta，確保所有套用順序一致
func (u *AtomicUnit) sortDeltas() {
	sort.SliceStable(u.Deltas, func(i, j int) bool {
		return u.Deltas[i].AccountID < u.Deltas[j].AccountID
	})
}

// LockIDs 回傳需要鎖定的帳號 ID (去重、排序)，依固定順序上鎖以避免死鎖
func (u *AtomicUnit) LockIDs() []string {
	ids := make([]string, 0, len(u.Deltas))
	seen := make(map[string]struct{}, len(u.Deltas))
	for _, d := range u.Deltas {
		if _, ok := seen[d.AccountID]; ok {
			continue
		}
		seen[d.AccountID] = struct{}{}
		ids = append(ids, d.AccountID)
	}
	sort.Strings(ids)
	return ids
}

// NetDeltas 合併同帳戶的 delta
func (u *AtomicUnit) NetDeltas() map[string]int64 {
	net := make(map[string]int64, len(u.Deltas))
	for _, d := range u.Deltas {
		net[d.AccountID] += d.Amount
	}
	return net
}

// ExternalRefs 回傳所有入金帳目的外部參考編號
func (u *AtomicUnit) ExternalRefs() []string {
	var refs []string
	for _, e := range u.Entries {
		if e.Kind == EntryKindDeposit && e.ExternalRef != "" {
			refs = append(refs, e.ExternalRef)
		}
	}
	return refs
}

// Validate 檢查單位內部是否自洽 (儲存層套用前呼叫)
func (u *AtomicUnit) Validate() error {
	if u == nil || len(u.Deltas) == 0 {
		return fmt.Errorf("%w: empty unit", ErrUnbalancedUnit)
	}
	refs := make(map[string]struct{})
	fromEntries := make(map[string]int64)
	for _, e := range u.Entries {
		if e.Amount <= 0 {
			return ErrInvalidAmount
		}
		if !e.Kind.Valid() {
			return fmt.Errorf("%w: unknown entry kind %q", ErrUnbalancedUnit, e.Kind)
		}
		if e.Kind == EntryKindDeposit {
			if e.ExternalRef == "" {
				return ErrInvalidExternalRef
			}
			// 同一單位內重複的 ref 也視為重複入帳
			if _, ok := refs[e.ExternalRef]; ok {
				return ErrDuplicateExternalRef
			}
			refs[e.ExternalRef] = struct{}{}
		} else if e.CounterpartyAccountID == "" || e.CounterpartyAccountID == e.AccountID {
			return fmt.Errorf("%w: transfer entry %s without a distinct counterparty", ErrUnbalancedUnit, e.ID)
		}
		fromEntries[e.AccountID] += e.SignedAmount()
	}
	net := u.NetDeltas()
	if len(net) != len(fromEntries) {
		return ErrUnbalancedUnit
	}
	for id, amount := range net {
		if fromEntries[id] != amount {
			return fmt.Errorf("%w: account %s delta %d != entries %d", ErrUnbalancedUnit, id, amount, fromEntries[id])
		}
	}
	return nil
}

// Commit 成功套用後，每個被異動帳戶的最新狀態
type Commit struct {
	GroupID  string
	Accounts map[string]Account
}

// Balance 回傳 commit 後指定帳戶的餘額
func (c *Commit) Balance(accountID string) int64 {
	if c == nil {
		return 0
	}
	return c.Accounts[accountID].Balance
}
