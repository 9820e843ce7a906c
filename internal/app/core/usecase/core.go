package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// CoreUseCase 是核心業務邏輯層，對外 (gRPC / NATS) 只依賴這一層
type CoreUseCase struct {
	accounts   *AccountService
	transfers  *TransferEngine
	reconciler *ReconciliationEngine
	auditor    *Auditor
}

// NewCoreUseCase 以同一個 LedgerStore 組出所有服務
func NewCoreUseCase(store LedgerStore, publisher EventPublisher, policy RetryPolicy, logger *zap.Logger) *CoreUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	accounts := NewAccountService(store, logger.Named("account"))
	return &CoreUseCase{
		accounts:   accounts,
		transfers:  NewTransferEngine(accounts, store, publisher, policy, logger.Named("transfer")),
		reconciler: NewReconciliationEngine(accounts, store, publisher, policy, logger.Named("reconcile")),
		auditor:    NewAuditor(store, logger.Named("audit")),
	}
}

// CreateAccount 建立帳戶
func (c *CoreUseCase) CreateAccount(ctx context.Context) (*domain.Account, error) {
	return c.accounts.CreateAccount(ctx)
}

// GetAccount 取得帳戶 (餘額 + 版本)
func (c *CoreUseCase) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	return c.accounts.GetAccount(ctx, accountID)
}

// GetAccountBalance 取得帳戶餘額
func (c *CoreUseCase) GetAccountBalance(ctx context.Context, accountID string) (int64, error) {
	return c.accounts.GetBalance(ctx, accountID)
}

// ListEntries 取得帳戶帳目
func (c *CoreUseCase) ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	return c.accounts.ListEntries(ctx, accountID)
}

// Transfer 轉帳
func (c *CoreUseCase) Transfer(ctx context.Context, fromID, toID string, amount int64) (*TransferReceipt, error) {
	return c.transfers.Transfer(ctx, fromID, toID, amount)
}

// ApplyExternalPayment 外部付款入帳 (冪等)
func (c *CoreUseCase) ApplyExternalPayment(ctx context.Context, externalRef, accountID string, amount int64) (*ReconcileResult, error) {
	return c.reconciler.ApplyExternalPayment(ctx, externalRef, accountID, amount)
}

// Audit 稽核；accountID 為空時稽核全部帳戶
func (c *CoreUseCase) Audit(ctx context.Context, accountID string) (*AuditReport, error) {
	if accountID == "" {
		return c.auditor.VerifyAll(ctx)
	}
	return c.auditor.VerifyAccount(ctx, accountID)
}
