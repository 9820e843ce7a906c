package usecase

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// AccountService 帳戶生命週期與餘額查詢，不包含任何會異動餘額的邏輯
type AccountService struct {
	store  LedgerStore
	logger *zap.Logger
	now    func() time.Time
}

func NewAccountService(store LedgerStore, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// CreateAccount 建立餘額為 0 的新帳戶
func (s *AccountService) CreateAccount(ctx context.Context) (*domain.Account, error) {
	account := domain.NewAccount(s.now())
	if err := s.store.CreateAccount(ctx, account); err != nil {
		s.logger.Error("create account failed", zap.Error(err))
		return nil, err
	}
	s.logger.Info("account created", zap.String("account_id", account.ID))
	return account.Clone(), nil
}

// GetAccount 每次都從儲存層讀取最新狀態
func (s *AccountService) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return nil, domain.ErrAccountNotFound
	}
	return s.store.GetAccount(ctx, accountID)
}

// GetBalance 取得帳戶餘額 (最小貨幣單位)
func (s *AccountService) GetBalance(ctx context.Context, accountID string) (int64, error) {
	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return account.Balance, nil
}

// Exists 帳戶存在回傳 nil
func (s *AccountService) Exists(ctx context.Context, accountID string) error {
	_, err := s.GetAccount(ctx, accountID)
	return err
}

// ListEntries 帳戶對帳單
func (s *AccountService) ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	if err := s.Exists(ctx, accountID); err != nil {
		return nil, err
	}
	return s.store.ListEntries(ctx, strings.TrimSpace(accountID))
}
