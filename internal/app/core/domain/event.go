package domain

import "time"

// EventType 帳本事件類型
type EventType string

const (
	EventTransferCommitted EventType = "transfer.committed"
	EventDepositApplied    EventType = "deposit.applied"
)

// LedgerEvent commit 成功後對外發布的事件
type LedgerEvent struct {
	Type       EventType     `json:"type"`
	GroupID    string        `json:"group_id"`
	Entries    []LedgerEntry `json:"entries"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewLedgerEvent 由已 commit 的單位建立事件
func NewLedgerEvent(t EventType, unit *AtomicUnit, now time.Time) LedgerEvent {
	return LedgerEvent{
		Type:       t,
		GroupID:    unit.GroupID,
		Entries:    unit.Entries,
		OccurredAt: now.UTC(),
	}
}
