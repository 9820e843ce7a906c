package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// ReconcileStatus 外部付款事件的處理結果
type ReconcileStatus string

const (
	// 第一次入帳
	ReconcileApplied ReconcileStatus = "applied"
	// 重複送達，沒有任何異動
	ReconcileAlreadyApplied ReconcileStatus = "already_applied"
)

// ReconcileResult 入帳結果
type ReconcileResult struct {
	Status      ReconcileStatus
	ExternalRef string
	AccountID   string
	// EntryID 入金帳目 ID (重複送達時為原始帳目，查不到時為空)
	EntryID string
	// Balance 入帳後餘額，只有 Status == ReconcileApplied 時有值
	Balance int64
}

// ReconciliationEngine 將金流商「付款成功」事件轉成入金，同一個 externalRef 最多入帳一次
//
// 每個 externalRef 只有 unseen → applied 一種轉換。冪等性完全依靠儲存層的唯一性檢查，
// 因此不論重複事件比原始事件早到或晚到，結果都一樣。
type ReconciliationEngine struct {
	accounts  *AccountService
	store     LedgerStore
	publisher EventPublisher
	policy    RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciliationEngine(accounts *AccountService, store LedgerStore, publisher EventPublisher, policy RetryPolicy, logger *zap.Logger) *ReconciliationEngine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationEngine{
		accounts:  accounts,
		store:     store,
		publisher: publisher,
		policy:    policy.normalize(),
		logger:    logger,
		now:       time.Now,
	}
}

// ApplyExternalPayment 套用一筆已驗證過簽章的外部付款
func (e *ReconciliationEngine) ApplyExternalPayment(ctx context.Context, externalRef, accountID string, amount int64) (*ReconcileResult, error) {
	externalRef = strings.TrimSpace(externalRef)
	accountID = strings.TrimSpace(accountID)
	if externalRef == "" {
		return nil, domain.ErrInvalidExternalRef
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	logger := e.logger.With(
		zap.String("external_ref", externalRef),
		zap.String("account_id", accountID),
		zap.Int64("amount", amount),
		zap.String("amount_major", domain.FormatMinor(amount)),
	)

	var (
		result *ReconcileResult
		unit   *domain.AtomicUnit
	)
	err := runWithRetry(ctx, e.policy, logger, "apply external payment", func(ctx context.Context) error {
		u, r, err := e.attempt(ctx, externalRef, accountID, amount, logger)
		if err != nil {
			return err
		}
		unit, result = u, r
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			logger.Error("apply external payment failed", zap.Error(err))
		} else {
			logger.Info("external payment rejected", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
		}
		return nil, err
	}

	if result.Status == ReconcileApplied {
		logger.Info("external payment applied", zap.Int64("balance", result.Balance))
		e.publish(ctx, domain.NewLedgerEvent(domain.EventDepositApplied, unit, e.now()))
	} else {
		logger.Info("external payment already applied", zap.String("entry_id", result.EntryID))
	}
	return result, nil
}

func (e *ReconciliationEngine) attempt(ctx context.Context, externalRef, accountID string, amount int64, logger *zap.Logger) (*domain.AtomicUnit, *ReconcileResult, error) {
	if err := e.accounts.Exists(ctx, accountID); err != nil {
		return nil, nil, err
	}

	unit, err := domain.NewDepositUnit(externalRef, accountID, amount, e.now())
	if err != nil {
		return nil, nil, err
	}

	commit, err := e.store.AtomicApply(context.WithoutCancel(ctx), unit)
	switch {
	case err == nil:
		return unit, &ReconcileResult{
			Status:      ReconcileApplied,
			ExternalRef: externalRef,
			AccountID:   accountID,
			EntryID:     unit.Entries[0].ID,
			Balance:     commit.Balance(accountID),
		}, nil
	case errors.Is(err, domain.ErrDuplicateExternalRef):
		return nil, e.alreadyApplied(ctx, externalRef, accountID, amount, logger), nil
	default:
		return nil, nil, err
	}
}

// alreadyApplied 重複事件不是錯誤；查原始帳目只是為了回報，查詢失敗不影響結果
func (e *ReconciliationEngine) alreadyApplied(ctx context.Context, externalRef, accountID string, amount int64, logger *zap.Logger) *ReconcileResult {
	result := &ReconcileResult{
		Status:      ReconcileAlreadyApplied,
		ExternalRef: externalRef,
		AccountID:   accountID,
	}

	original, err := e.store.FindDepositByExternalRef(ctx, externalRef)
	if err != nil {
		logger.Warn("lookup of original deposit failed", zap.Error(err))
		return result
	}
	if original == nil {
		return result
	}
	result.EntryID = original.ID
	if original.AccountID != accountID || original.Amount != amount {
		logger.Warn("redelivered payment does not match original deposit",
			zap.String("original_account_id", original.AccountID),
			zap.Int64("original_amount", original.Amount),
		)
	}
	return result
}

func (e *ReconciliationEngine) publish(ctx context.Context, event domain.LedgerEvent) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("publish ledger event failed",
			zap.String("group_id", event.GroupID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
