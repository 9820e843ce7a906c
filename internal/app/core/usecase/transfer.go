package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// TransferReceipt 轉帳成功的回執
type TransferReceipt struct {
	GroupID       string
	FromAccountID string
	ToAccountID   string
	Amount        int64
	FromBalance   int64
	ToBalance     int64
	Entries       []domain.LedgerEntry
}

// TransferEngine 兩個帳戶之間的原子轉帳
//
// 不持有任何長時間的鎖：每次嘗試都重新讀取餘額，交給 LedgerStore.AtomicApply 做最後檢查，
// 遇到 ErrConflict 時整筆重試。
type TransferEngine struct {
	accounts  *AccountService
	store     LedgerStore
	publisher EventPublisher
	policy    RetryPolicy
	logger    *zap.Logger
	now       func() time.Time
}

func NewTransferEngine(accounts *AccountService, store LedgerStore, publisher EventPublisher, policy RetryPolicy, logger *zap.Logger) *TransferEngine {
	if publisher == nil {
		publisher = NopPublisher{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferEngine{
		accounts:  accounts,
		store:     store,
		publisher: publisher,
		policy:    policy.normalize(),
		logger:    logger,
		now:       time.Now,
	}
}

// Transfer 從 fromID 轉 amount (最小貨幣單位) 到 toID
func (e *TransferEngine) Transfer(ctx context.Context, fromID, toID string, amount int64) (*TransferReceipt, error) {
	fromID = strings.TrimSpace(fromID)
	toID = strings.TrimSpace(toID)
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if fromID == toID {
		return nil, domain.ErrSameAccount
	}

	// 同一筆轉帳的所有嘗試共用 GroupID，失敗的嘗試不會留下任何帳目
	groupID := uuid.NewString()
	logger := e.logger.With(
		zap.String("group_id", groupID),
		zap.String("from", fromID),
		zap.String("to", toID),
		zap.Int64("amount", amount),
		zap.String("amount_major", domain.FormatMinor(amount)),
	)

	var (
		receipt *TransferReceipt
		unit    *domain.AtomicUnit
	)
	err := runWithRetry(ctx, e.policy, logger, "transfer", func(ctx context.Context) error {
		u, r, err := e.attempt(ctx, groupID, fromID, toID, amount)
		if err != nil {
			return err
		}
		unit, receipt = u, r
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrStorageUnavailable) {
			logger.Error("transfer failed", zap.Error(err))
		} else {
			logger.Info("transfer rejected", zap.String("code", domain.ErrorCode(err)), zap.Error(err))
		}
		return nil, err
	}

	logger.Info("transfer committed",
		zap.Int64("from_balance", receipt.FromBalance),
		zap.Int64("to_balance", receipt.ToBalance),
	)
	e.publish(ctx, domain.NewLedgerEvent(domain.EventTransferCommitted, unit, e.now()))
	return receipt, nil
}

// attempt 單次嘗試：讀取最新狀態 → 預先檢查 → 原子寫入
func (e *TransferEngine) attempt(ctx context.Context, groupID, fromID, toID string, amount int64) (*domain.AtomicUnit, *TransferReceipt, error) {
	from, err := e.accounts.GetAccount(ctx, fromID)
	if err != nil {
		return nil, nil, err
	}
	if err := e.accounts.Exists(ctx, toID); err != nil {
		return nil, nil, err
	}

	// 預先檢查只是提早失敗，真正的保證在 AtomicApply 裡
	if from.Balance < amount {
		return nil, nil, domain.ErrInsufficientFunds
	}

	unit, err := domain.NewTransferUnit(groupID, fromID, toID, amount, e.now())
	if err != nil {
		return nil, nil, err
	}

	// 已送出的單位不可中途取消，呼叫端放棄等待也要讓它完成 commit 或 abort
	commit, err := e.store.AtomicApply(context.WithoutCancel(ctx), unit)
	if err != nil {
		return nil, nil, err
	}

	return unit, &TransferReceipt{
		GroupID:       groupID,
		FromAccountID: fromID,
		ToAccountID:   toID,
		Amount:        amount,
		FromBalance:   commit.Balance(fromID),
		ToBalance:     commit.Balance(toID),
		Entries:       unit.Entries,
	}, nil
}

func (e *TransferEngine) publish(ctx context.Context, event domain.LedgerEvent) {
	if err := e.publisher.Publish(context.WithoutCancel(ctx), event); err != nil {
		e.logger.Warn("publish ledger event failed",
			zap.String("group_id", event.GroupID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}
