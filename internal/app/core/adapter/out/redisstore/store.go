package redisstore

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

//go:embed atomic_apply.lua
var atomicApplyLua string

//go:embed create_account.lua
var createAccountLua string

var (
	atomicApplyScript   = redis.NewScript(atomicApplyLua)
	createAccountScript = redis.NewScript(createAccountLua)
)

// atomic_apply.lua 的回傳狀態
const (
	statusOK           = 1
	statusNotFound     = -1
	statusInsufficient = -2
	statusDuplicateRef = -3
	statusOverflow     = -4
)

// 所有 key 共用 {ledger} hash tag，Cluster 模式下一個單位的 key 都在同一個 slot
const (
	keyAccounts = "{ledger}:accounts"
	keyRefs     = "{ledger}:refs"
)

func accountKey(id string) string { return "{ledger}:account:" + id }
func entriesKey(id string) string { return "{ledger}:entries:" + id }

// Store 以 Redis 實作 LedgerStore
//
// 每個 AtomicUnit 由一支 Lua script 完成 (Redis 以單執行緒原子執行 script)：
// 檢查帳戶存在 → 檢查餘額 → 檢查外部參考編號 → HINCRBY 餘額與版本 → RPUSH 帳目。
type Store struct {
	client redis.UniversalClient
}

func NewStore(client redis.UniversalClient) *Store {
	return &Store{client: client}
}

// CreateAccount 建立帳戶
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account.Balance != 0 {
		return fmt.Errorf("%w: new account must start at zero", domain.ErrInvalidAmount)
	}
	created, err := createAccountScript.Run(ctx, s.client,
		[]string{keyAccounts, accountKey(account.ID)},
		account.ID, account.Version, account.CreatedAt.UTC().Format(time.RFC3339Nano),
	).Int()
	if err != nil {
		return unavailable(err)
	}
	if created == 0 {
		return domain.ErrAccountAlreadyExists
	}
	return nil
}

// GetAccount 取得帳戶
func (s *Store) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	fields, err := s.client.HGetAll(ctx, accountKey(accountID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	return parseAccount(accountID, fields)
}

// ListEntries 取得帳戶帳目 (RPUSH 順序即寫入順序)
func (s *Store) ListEntries(ctx context.Context, accountID string) ([]domain.LedgerEntry, error) {
	raws, err := s.client.LRange(ctx, entriesKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	entries := make([]domain.LedgerEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.LedgerEntry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return nil, fmt.Errorf("redisstore: decode entry of %s: %w", accountID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// FindDepositByExternalRef 依外部參考編號查入金帳目，找不到回傳 nil, nil
func (s *Store) FindDepositByExternalRef(ctx context.Context, externalRef string) (*domain.LedgerEntry, error) {
	raw, err := s.client.HGet(ctx, keyRefs, externalRef).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	var e domain.LedgerEntry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, fmt.Errorf("redisstore: decode ref %s: %w", externalRef, err)
	}
	return &e, nil
}

// LoadAllAccounts 載入所有帳戶 (pipeline 一次取回)
func (s *Store) LoadAllAccounts(ctx context.Context) (map[string]*domain.Account, error) {
	ids, err := s.client.SMembers(ctx, keyAccounts).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	cmds := make([]*redis.MapStringStringCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, accountKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}

	accounts := make(map[string]*domain.Account, len(ids))
	for i, id := range ids {
		account, err := parseAccount(id, cmds[i].Val())
		if err != nil {
			return nil, err
		}
		accounts[id] = account
	}
	return accounts, nil
}

// AtomicApply 以一支 Lua script 套用整個單位
func (s *Store) AtomicApply(ctx context.Context, unit *domain.AtomicUnit) (*domain.Commit, error) {
	if err := unit.Validate(); err != nil {
		return nil, err
	}

	ids := unit.LockIDs()
	index := make(map[string]int, len(ids))
	net := unit.NetDeltas()

	keys := make([]string, 0, 1+2*len(ids))
	keys = append(keys, keyRefs)
	args := make([]any, 0, 3+len(ids)+4*len(unit.Entries))
	args = append(args, len(ids))
	for i, id := range ids {
		index[id] = i + 1
		keys = append(keys, accountKey(id), entriesKey(id))
		args = append(args, net[id])
	}

	encoded := make([]string, len(unit.Entries))
	for i, e := range unit.Entries {
		raw, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("redisstore: encode entry: %w", err)
		}
		encoded[i] = string(raw)
	}

	var refArgs []any
	for i, e := range unit.Entries {
		if e.Kind == domain.EntryKindDeposit {
			refArgs = append(refArgs, e.ExternalRef, encoded[i])
		}
	}
	args = append(args, len(refArgs)/2)
	args = append(args, refArgs...)

	args = append(args, len(unit.Entries))
	for i, e := range unit.Entries {
		args = append(args, index[e.AccountID], encoded[i])
	}

	res, err := atomicApplyScript.Run(ctx, s.client, keys, args...).Int64Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: empty script reply", domain.ErrStorageUnavailable)
	}

	switch res[0] {
	case statusOK:
	case statusNotFound:
		return nil, domain.ErrAccountNotFound
	case statusInsufficient:
		return nil, domain.ErrInsufficientFunds
	case statusDuplicateRef:
		return nil, domain.ErrDuplicateExternalRef
	case statusOverflow:
		return nil, domain.ErrBalanceOverflow
	default:
		return nil, fmt.Errorf("%w: unknown script status %d", domain.ErrStorageUnavailable, res[0])
	}
	if len(res) != 1+2*len(ids) {
		return nil, fmt.Errorf("%w: malformed script reply", domain.ErrStorageUnavailable)
	}

	commit := &domain.Commit{GroupID: unit.GroupID, Accounts: make(map[string]domain.Account, len(ids))}
	for i, id := range ids {
		commit.Accounts[id] = domain.Account{
			ID:      id,
			Balance: res[1+2*i],
			Version: res[2+2*i],
		}
	}
	return commit, nil
}

func parseAccount(id string, fields map[string]string) (*domain.Account, error) {
	balance, err := strconv.ParseInt(fields["balance"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisstore: account %s balance: %w", id, err)
	}
	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redisstore: account %s version: %w", id, err)
	}
	account := &domain.Account{ID: id, Balance: balance, Version: version}
	if raw := fields["created_at"]; raw != "" {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			account.CreatedAt = t
		}
	}
	return account, nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
}

var _ usecase.LedgerStore = (*Store)(nil)
