package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

const (
	recordAccount = "account"
	recordUnit    = "unit"
)

// walRecord WAL 內的一筆紀錄：建立帳戶或一個已 commit 的 AtomicUnit
type walRecord struct {
	Type    string             `json:"type"`
	Account *domain.Account    `json:"account,omitempty"`
	Unit    *domain.AtomicUnit `json:"unit,omitempty"`
}

// accountSlot 單一帳戶的狀態與它自己的鎖
type accountSlot struct {
	mu      sync.Mutex
	account domain.Account
	entries []domain.LedgerEntry
}

// refState 外部參考編號的狀態；pending 代表另一個單位正在寫入中
type refState struct {
	entry   domain.LedgerEntry
	pending bool
}

// MutexStore 是一個使用「每個帳戶一把 Mutex」實現的帳本儲存層
//
// 結構:
//
//	accounts: 帳戶資料 Map (mu 只保護 Map 本身，不保護帳戶內容)
//	refs: 已入帳的外部參考編號 (refsMu 保護，只在檢查/登記時短暫持有)
//	wal: Write-Ahead Log 實例 (可為 nil，代表純記憶體)
//
// 同一個 AtomicUnit 會依 LockIDs() 的順序鎖住所有相關帳戶，互不相干的帳戶不會互相等待。
type MutexStore struct {
	mu       sync.RWMutex
	accounts map[string]*accountSlot

	refsMu sync.Mutex
	refs   map[string]*refState

	wal *wal.WAL
}

// NewMutexStore 建立一個新的 MutexStore 實例
//
// 參數:
//
//	w: Write-Ahead Log 實例 (nil 代表不持久化)
//
// 回傳:
//
//	*MutexStore: MutexStore 實例
//	error: 初始化錯誤 (如 WAL 恢復失敗)
func NewMutexStore(w *wal.WAL) (*MutexStore, error) {
	store := &MutexStore{
		accounts: make(map[string]*accountSlot),
		refs:     make(map[string]*refState),
		wal:      w,
	}
	if w == nil {
		return store, nil
	}
	if err := store.recoverFromWAL(); err != nil {
		return nil, err
	}
	return store, nil
}

// recoverFromWAL 從 WAL 檔案恢復帳本狀態
// 只有 NewMutexStore 呼叫，無需 Lock (單執行緒)
func (m *MutexStore) recoverFromWAL() error {
	return m.wal.ReadAll(func(jsonRaw []byte) error {
		var rec walRecord
		if err := json.Unmarshal(jsonRaw, &rec); err != nil {
			return err
		}
		switch rec.Type {
		case recordAccount:
			if rec.Account == nil {
				return fmt.Errorf("wal: account record without account")
			}
			m.accounts[rec.Account.ID] = &accountSlot{account: *rec.Account}
		case recordUnit:
			if rec.Unit == nil {
				return fmt.Errorf("wal: unit record without unit")
			}
			slots := make(map[string]*accountSlot, len(rec.Unit.Deltas))
			for _, id := range rec.Unit.LockIDs() {
				slot, ok := m.accounts[id]
				if !ok {
					return fmt.Errorf("wal: unit %s references unknown account %s", rec.Unit.GroupID, id)
				}
				slots[id] = slot
			}
			m.applyLocked(slots, rec.Unit)
			for _, e := range rec.Unit.Entries {
				if e.Kind == domain.EntryKindDeposit {
					m.refs[e.ExternalRef] = &refState{entry: e}
				}
			}
		default:
			return fmt.Errorf("wal: unknown record type %q", rec.Type)
		}
		return nil
	})
}

// CreateAccount 建立帳戶
func (m *MutexStore) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.Balance != 0 {
		return fmt.Errorf("%w: new account must start at zero", domain.ErrInvalidAmount)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.ID]; ok {
		return domain.ErrAccountAlreadyExists
	}
	if m.wal != nil {
		if err := m.wal.Write(walRecord{Type: recordAccount, Account: account}); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
	}
	m.accounts[account.ID] = &accountSlot{account: *account}
	return nil
}

// GetAccount 取得指定帳戶的當前狀態
//
// 參數:
//
//	ctx: 上下文
//	accountID: 帳戶 ID
//
// 回傳:
//
//	*domain.Account: 帳戶複本
//	error: 查詢錯誤 (如帳戶不存在)
func (m *MutexStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	slot, ok := m.slot(accountID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.account.Clone(), nil
}

// ListEntries 取得帳戶帳目 (寫入順序)
func (m *MutexStore) ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	slot, ok := m.slot(accountID)
	if !ok {
		return nil, domain.ErrAccountNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	entries := make([]domain.LedgerEntry, len(slot.entries))
	copy(entries, slot.entries)
	return entries, nil
}

// FindDepositByExternalRef 依外部參考編號查已 commit 的入金帳目
func (m *MutexStore) FindDepositByExternalRef(ctx context.Context, externalRef string) (*domain.LedgerEntry, error) {
	m.refsMu.Lock()
	defer m.refsMu.Unlock()
	state, ok := m.refs[externalRef]
	if !ok || state.pending {
		return nil, nil
	}
	entry := state.entry
	return &entry, nil
}

// LoadAllAccounts 載入系統所有帳戶資料
func (m *MutexStore) LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error) {
	m.mu.RLock()
	slots := make([]*accountSlot, 0, len(m.accounts))
	for _, slot := range m.accounts {
		slots = append(slots, slot)
	}
	m.mu.RUnlock()

	accounts := make(map[string]*domain.Account, len(slots))
	for _, slot := range slots {
		slot.mu.Lock()
		accounts[slot.account.ID] = slot.account.Clone()
		slot.mu.Unlock()
	}
	return accounts, nil
}

// AtomicApply 將 unit 當成一個整體套用
//
// 參數:
//
//	ctx: 上下文
//	unit: 要套用的 delta 與帳目
//
// 回傳:
//
//	*domain.Commit: commit 後各帳戶的狀態
//	error: ErrAccountNotFound / ErrInsufficientFunds / ErrDuplicateExternalRef / ErrConflict / ErrStorageUnavailable
func (m *MutexStore) AtomicApply(ctx context.Context, unit *domain.AtomicUnit) (*domain.Commit, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	ids := unit.LockIDs()
	slots, err := m.lockSlots(ids)
	if err != nil {
		return nil, err
	}
	defer unlockSlots(slots, ids)

	// 1. 餘額檢查 (持有鎖，檢查結果在 commit 前不會改變)
	for id, delta := range unit.NetDeltas() {
		if _, err := domain.ApplyDelta(slots[id].account.Balance, delta); err != nil {
			return nil, err
		}
	}

	// 2. 登記外部參考編號 (唯一性)
	refs := unit.ExternalRefs()
	if err := m.reserveRefs(unit.Entries); err != nil {
		return nil, err
	}

	// 3. 寫入 WAL (Critical Path)，失敗時撤回登記，什麼都不留下
	if m.wal != nil {
		if err := m.wal.Write(walRecord{Type: recordUnit, Unit: unit}); err != nil {
			m.releaseRefs(refs)
			return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
		}
	}

	// 4. 套用並確認登記
	commit := m.applyLocked(slots, unit)
	m.confirmRefs(refs)
	return commit, nil
}

func (m *MutexStore) slot(accountID string) (*accountSlot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	slot, ok := m.accounts[accountID]
	return slot, ok
}

// lockSlots 依 ids 的順序 (已排序) 鎖住帳戶
func (m *MutexStore) lockSlots(ids []string) (map[string]*accountSlot, error) {
	slots := make(map[string]*accountSlot, len(ids))
	m.mu.RLock()
	for _, id := range ids {
		slot, ok := m.accounts[id]
		if !ok {
			m.mu.RUnlock()
			return nil, domain.ErrAccountNotFound
		}
		slots[id] = slot
	}
	m.mu.RUnlock()

	for _, id := range ids {
		slots[id].mu.Lock()
	}
	return slots, nil
}

func unlockSlots(slots map[string]*accountSlot, ids []string) {
	for i := len(ids) - 1; i >= 0; i-- {
		slots[ids[i]].mu.Unlock()
	}
}

// reserveRefs 一次登記所有入金帳目的 ref；已存在回傳重複，正在寫入中回傳衝突 (讓呼叫端稍後重試)
func (m *MutexStore) reserveRefs(entries []domain.LedgerEntry) error {
	m.refsMu.Lock()
	defer m.refsMu.Unlock()
	for _, e := range entries {
		if e.Kind != domain.EntryKindDeposit {
			continue
		}
		if state, ok := m.refs[e.ExternalRef]; ok {
			if state.pending {
				return domain.ErrConflict
			}
			return domain.ErrDuplicateExternalRef
		}
	}
	for _, e := range entries {
		if e.Kind == domain.EntryKindDeposit {
			m.refs[e.ExternalRef] = &refState{entry: e, pending: true}
		}
	}
	return nil
}

func (m *MutexStore) releaseRefs(refs []string) {
	m.refsMu.Lock()
	defer m.refsMu.Unlock()
	for _, ref := range refs {
		delete(m.refs, ref)
	}
}

func (m *MutexStore) confirmRefs(refs []string) {
	m.refsMu.Lock()
	defer m.refsMu.Unlock()
	for _, ref := range refs {
		m.refs[ref].pending = false
	}
}

// applyLocked 套用 delta 與帳目，呼叫端必須已持有所有相關帳戶的鎖
func (m *MutexStore) applyLocked(slots map[string]*accountSlot, unit *domain.AtomicUnit) *domain.Commit {
	for id, delta := range unit.NetDeltas() {
		slots[id].account.Balance += delta
	}
	for _, e := range unit.Entries {
		slot := slots[e.AccountID]
		slot.entries = append(slot.entries, e)
	}
	commit := &domain.Commit{GroupID: unit.GroupID, Accounts: make(map[string]domain.Account, len(slots))}
	for id, slot := range slots {
		slot.account.Version++
		commit.Accounts[id] = slot.account
	}
	return commit
}

var _ usecase.LedgerStore = (*MutexStore)(nil)
