package sqldb

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/gormdb"
)

// Store 以關聯式資料庫 (MySQL / PostgreSQL) 實作 LedgerStore
//
// 每個 AtomicUnit 是一個 DB Transaction：
//  1. SELECT ... FOR UPDATE 依 id 順序鎖住相關帳戶 (悲觀鎖)
//  2. 檢查餘額與外部參考編號
//  3. UPDATE ... WHERE id = ? AND version = ? (樂觀鎖，0 rows → ErrConflict)
//  4. 寫入帳目，external_ref 唯一索引是最後一道防線
type Store struct {
	db *gorm.DB
}

func NewStore(client *gormdb.Client) *Store {
	return &Store{db: client.DB()}
}

// Migrate 建立/更新資料表
func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&sqlAccount{}, &sqlEntry{})
}

// CreateAccount 建立帳戶
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.Balance != 0 {
		return fmt.Errorf("%w: new account must start at zero", domain.ErrInvalidAmount)
	}
	row := sqlAccount{
		ID:        account.ID,
		Balance:   0,
		Version:   account.Version,
		CreatedAt: account.CreatedAt,
	}
	err := s.db.WithContext(ctx).Create(&row).Error
	return classify(err, domain.ErrAccountAlreadyExists)
}

// GetAccount 取得帳戶餘額與版本
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	var row sqlAccount
	err := s.db.WithContext(ctx).Where("id = ?", accountID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAccountNotFound
	}
	if err != nil {
		return nil, classify(err, domain.ErrStorageUnavailable)
	}
	account := row.toDomain()
	return &account, nil
}

// ListEntries 取得帳戶帳目 (依寫入順序)
func (s *Store) ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	var rows []sqlEntry
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("seq").Find(&rows).Error; err != nil {
		return nil, classify(err, domain.ErrStorageUnavailable)
	}
	entries := make([]domain.LedgerEntry, 0, len(rows))
	for i := range rows {
		entries = append(entries, rows[i].toDomain())
	}
	return entries, nil
}

// FindDepositByExternalRef 依外部參考編號查入金帳目，找不到回傳 nil, nil
func (s *Store) FindDepositByExternalRef(ctx context.Context, externalRef string) (*domain.LedgerEntry, error) {
	var row sqlEntry
	err := s.db.WithContext(ctx).
		Where("external_ref = ? AND kind = ?", externalRef, string(domain.EntryKindDeposit)).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, domain.ErrStorageUnavailable)
	}
	entry := row.toDomain()
	return &entry, nil
}

// LoadAllAccounts 載入所有帳戶
func (s *Store) LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error) {
	var rows []sqlAccount
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, classify(err, domain.ErrStorageUnavailable)
	}
	accounts := make(map[string]*domain.Account, len(rows))
	for i := range rows {
		account := rows[i].toDomain()
		accounts[account.ID] = &account
	}
	return accounts, nil
}

// AtomicApply 在同一個 DB Transaction 內套用整個單位
func (s *Store) AtomicApply(ctx context.Context, unit *domain.AtomicUnit) (*domain.Commit, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	var commit *domain.Commit
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 取得鎖定帳號 以及 lockID (依 id 排序，避免死鎖)
		ids := unit.LockIDs()
		var rows []sqlAccount
		query := tx
		if s.supportsRowLocks() {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		if err := query.Where("id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
			return err
		}
		// 安全檢查：確保涉及的帳號都存在
		if len(rows) != len(ids) {
			return domain.ErrAccountNotFound
		}
		byID := make(map[string]*sqlAccount, len(rows))
		for i := range rows {
			byID[rows[i].ID] = &rows[i]
		}

		// 2. 餘額檢查
		net := unit.NetDeltas()
		for id, delta := range net {
			if _, err := domain.ApplyDelta(byID[id].Balance, delta); err != nil {
				return err
			}
		}

		// 3. 外部參考編號檢查 (唯一索引仍會擋下同時送達的重複事件)
		if refs := unit.ExternalRefs(); len(refs) > 0 {
			var count int64
			if err := tx.Model(&sqlEntry{}).Where("external_ref IN ?", refs).Count(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return domain.ErrDuplicateExternalRef
			}
		}

		// 4. 更新餘額 (Compare-And-Swap)
		commit = &domain.Commit{GroupID: unit.GroupID, Accounts: make(map[string]domain.Account, len(ids))}
		for _, id := range ids {
			row := byID[id]
			res := tx.Model(&sqlAccount{}).
				Where("id = ? AND version = ?", id, row.Version).
				Updates(map[string]any{
					"balance": gorm.Expr("balance + ?", net[id]),
					"version": gorm.Expr("version + 1"),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrConflict
			}
			account := row.toDomain()
			account.Balance += net[id]
			account.Version++
			commit.Accounts[id] = account
		}

		// 5. 建立帳目
		entries := make([]sqlEntry, 0, len(unit.Entries))
		for _, e := range unit.Entries {
			entries = append(entries, newSQLEntry(e))
		}
		return tx.Create(&entries).Error
	})
	if err != nil {
		return nil, classify(err, domain.ErrDuplicateExternalRef)
	}
	return commit, nil
}

// supportsRowLocks sqlite 沒有 row lock (整個資料庫一把寫鎖)，其餘使用 FOR UPDATE
func (s *Store) supportsRowLocks() bool {
	switch s.db.Dialector.Name() {
	case gormdb.DriverMySQL, gormdb.DriverPostgres:
		return true
	default:
		return false
	}
}

var _ usecase.LedgerStore = (*Store)(nil)
