package usecase

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// snapshotAttempts 讀取帳戶與帳目期間若版本變動，最多重讀幾次
const snapshotAttempts = 3

// AuditMismatch 儲存的餘額與重播帳目的結果不一致
type AuditMismatch struct {
	AccountID       string
	StoredBalance   int64
	ReplayedBalance int64
}

// AuditReport 稽核結果
type AuditReport struct {
	Accounts         int
	Entries          int
	Mismatches       []AuditMismatch
	UnbalancedGroups []string
}

// OK 沒有任何不一致
func (r *AuditReport) OK() bool {
	return len(r.Mismatches) == 0 && len(r.UnbalancedGroups) == 0
}

// Auditor 以重播帳目的方式驗證 balance == sum(entries)
type Auditor struct {
	store  LedgerStore
	logger *zap.Logger
}

func NewAuditor(store LedgerStore, logger *zap.Logger) *Auditor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Auditor{store: store, logger: logger}
}

// VerifyAccount 稽核單一帳戶
func (a *Auditor) VerifyAccount(ctx context.Context, accountID string) (*AuditReport, error) {
	account, entries, err := a.snapshot(ctx, accountID)
	if err != nil {
		return nil, err
	}
	report := &AuditReport{Accounts: 1, Entries: len(entries)}
	a.compare(report, account, entries)
	return report, nil
}

// VerifyAll 稽核所有帳戶，並檢查每個轉帳群組淨額為 0。
// 系統仍在寫入時，跨帳戶的群組檢查可能看到只寫了一半的時間點，建議在離峰時執行。
func (a *Auditor) VerifyAll(ctx context.Context) (*AuditReport, error) {
	accounts, err := a.store.LoadAllAccounts(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	report := &AuditReport{Accounts: len(ids)}
	var all []domain.LedgerEntry
	for _, id := range ids {
		account, entries, err := a.snapshot(ctx, id)
		if err != nil {
			return nil, err
		}
		report.Entries += len(entries)
		a.compare(report, account, entries)
		all = append(all, entries...)
	}

	for groupID, net := range domain.GroupNet(all) {
		if net != 0 {
			report.UnbalancedGroups = append(report.UnbalancedGroups, groupID)
		}
	}
	sort.Strings(report.UnbalancedGroups)

	if !report.OK() {
		a.logger.Error("ledger audit found drift",
			zap.Int("mismatches", len(report.Mismatches)),
			zap.Int("unbalanced_groups", len(report.UnbalancedGroups)),
		)
	}
	return report, nil
}

// snapshot 讀帳戶 → 讀帳目 → 再讀帳戶，兩次版本相同才代表帳目與餘額是同一個時間點
func (a *Auditor) snapshot(ctx context.Context, accountID string) (*domain.Account, []domain.LedgerEntry, error) {
	for i := 0; i < snapshotAttempts; i++ {
		before, err := a.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, nil, err
		}
		entries, err := a.store.ListEntries(ctx, accountID)
		if err != nil {
			return nil, nil, err
		}
		after, err := a.store.GetAccount(ctx, accountID)
		if err != nil {
			return nil, nil, err
		}
		if before.Version == after.Version {
			return after, entries, nil
		}
	}
	return nil, nil, fmt.Errorf("%w: account %s kept changing during audit", domain.ErrConflict, accountID)
}

func (a *Auditor) compare(report *AuditReport, account *domain.Account, entries []domain.LedgerEntry) {
	replayed := domain.Replay(entries)[account.ID]
	if replayed != account.Balance || account.Balance < 0 {
		report.Mismatches = append(report.Mismatches, AuditMismatch{
			AccountID:       account.ID,
			StoredBalance:   account.Balance,
			ReplayedBalance: replayed,
		})
	}
}
