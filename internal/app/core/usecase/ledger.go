package usecase

import (
	"context"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// LedgerStore 是帳務系統唯一可以異動餘額的儲存層介面
type LedgerStore interface {
	// CreateAccount 建立帳戶 (餘額必須為 0)
	CreateAccount(ctx context.Context, account *domain.Account) error
	// GetAccount 取得帳戶最新狀態，找不到回傳 domain.ErrAccountNotFound
	GetAccount(ctx context.Context, accountID string) (*domain.Account, error)
	// AtomicApply 將所有 delta 與帳目當成一個單位寫入，全部成功或全部失敗。
	// 失敗時回傳 ErrAccountNotFound / ErrInsufficientFunds / ErrDuplicateExternalRef /
	// ErrConflict / ErrStorageUnavailable 其中之一 (可用 errors.Is 判斷)
	AtomicApply(ctx context.Context, unit *domain.AtomicUnit) (*domain.Commit, error)
	// ListEntries 取得帳戶的所有帳目 (依寫入順序)
	ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error)
	// FindDepositByExternalRef 依外部參考編號查入金帳目，找不到回傳 nil, nil
	FindDepositByExternalRef(ctx context.Context, externalRef string) (*domain.LedgerEntry, error)
	// LoadAllAccounts 載入所有帳戶
	LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error)
}

// EventPublisher commit 後發布帳本事件 (best effort，失敗不影響已 commit 的交易)
type EventPublisher interface {
	Publish(ctx context.Context, event domain.LedgerEvent) error
}

// NopPublisher 不發布任何事件
type NopPublisher struct{}

// Publish implements EventPublisher.
func (NopPublisher) Publish(context.Context, domain.LedgerEvent) error { return nil }
