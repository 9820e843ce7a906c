package sqldb

import (
	"time"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// sqlAccount 對應資料庫的 accounts 表
type sqlAccount struct {
	ID        string `gorm:"primaryKey;size:36"`
	Balance   int64  `gorm:"not null;default:0"`
	Version   int64  `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt int64 `gorm:"autoUpdateTime:milli"` // 自動更新時間
}

func (*sqlAccount) TableName() string {
	return "accounts"
}

func (a *sqlAccount) toDomain() domain.Account {
	return domain.Account{
		ID:        a.ID,
		Balance:   a.Balance,
		Version:   a.Version,
		CreatedAt: a.CreatedAt.UTC(),
	}
}

// sqlEntry 對應資料庫的 ledger_entries 表
// Seq 自增，代表寫入順序；ExternalRef 只有入金帳目有值，其餘為 NULL (唯一索引允許多個 NULL)
type sqlEntry struct {
	Seq                   int64   `gorm:"primaryKey;autoIncrement"`
	ID                    string  `gorm:"size:36;uniqueIndex"`
	AccountID             string  `gorm:"size:36;index;not null"`
	Kind                  string  `gorm:"size:16;not null"`
	Amount                int64   `gorm:"not null"`
	CounterpartyAccountID string  `gorm:"size:36"`
	ExternalRef           *string `gorm:"size:191;uniqueIndex"`
	GroupID               string  `gorm:"size:36;index;not null"`
	CreatedAt             time.Time
}

func (*sqlEntry) TableName() string {
	return "ledger_entries"
}

func newSQLEntry(e domain.LedgerEntry) sqlEntry {
	row := sqlEntry{
		ID:                    e.ID,
		AccountID:             e.AccountID,
		Kind:                  string(e.Kind),
		Amount:                e.Amount,
		CounterpartyAccountID: e.CounterpartyAccountID,
		GroupID:               e.GroupID,
		CreatedAt:             e.CreatedAt,
	}
	if e.ExternalRef != "" {
		ref := e.ExternalRef
		row.ExternalRef = &ref
	}
	return row
}

func (e *sqlEntry) toDomain() domain.LedgerEntry {
	entry := domain.LedgerEntry{
		ID:                    e.ID,
		AccountID:             e.AccountID,
		Kind:                  domain.EntryKind(e.Kind),
		Amount:                e.Amount,
		CounterpartyAccountID: e.CounterpartyAccountID,
		GroupID:               e.GroupID,
		CreatedAt:             e.CreatedAt.UTC(),
	}
	if e.ExternalRef != nil {
		entry.ExternalRef = *e.ExternalRef
	}
	return entry
}
