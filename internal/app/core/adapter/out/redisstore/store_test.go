package redisstore

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStore(client)
}

func createAccount(t *testing.T, s *Store) *domain.Account {
	t.Helper()
	acc := domain.NewAccount(time.Now())
	require.NoError(t, s.CreateAccount(context.Background(), acc))
	return acc
}

func TestStore_CreateAndGetAccount(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	acc := createAccount(t, s)
	got, err := s.GetAccount(ctx, acc.ID)
	require.NoError(t, err)
	assert.Equal(t, acc.ID, got.ID)
	assert.Equal(t, int64(0), got.Balance)
	assert.True(t, acc.CreatedAt.Equal(got.CreatedAt))

	assert.ErrorIs(t, s.CreateAccount(ctx, acc), domain.ErrAccountAlreadyExists)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestStore_AtomicApply(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAccount(t, s)
	b := createAccount(t, s)

	dep, err := domain.NewDepositUnit("ext-1", a.ID, 1000, time.Now())
	require.NoError(t, err)
	commit, err := s.AtomicApply(ctx, dep)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), commit.Balance(a.ID))
	assert.Equal(t, int64(1), commit.Accounts[a.ID].Version)

	tr, err := domain.NewTransferUnit("g-1", a.ID, b.ID, 400, time.Now())
	require.NoError(t, err)
	commit, err = s.AtomicApply(ctx, tr)
	require.NoError(t, err)
	assert.Equal(t, int64(600), commit.Balance(a.ID))
	assert.Equal(t, int64(400), commit.Balance(b.ID))

	entries, err := s.ListEntries(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.EntryKindDeposit, entries[0].Kind)
	assert.Equal(t, domain.EntryKindTransferOut, entries[1].Kind)
	assert.Equal(t, int64(600), domain.Replay(entries)[a.ID])

	found, err := s.FindDepositByExternalRef(ctx, "ext-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, a.ID, found.AccountID)
	assert.Equal(t, int64(1000), found.Amount)

	missing, err := s.FindDepositByExternalRef(ctx, "ext-404")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := s.LoadAllAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, int64(400), all[b.ID].Balance)
}

func TestStore_AtomicApplyRejections(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAccount(t, s)
	b := createAccount(t, s)

	dep, err := domain.NewDepositUnit("ext-1", a.ID, 600, time.Now())
	require.NoError(t, err)
	_, err = s.AtomicApply(ctx, dep)
	require.NoError(t, err)

	t.Run("insufficient funds", func(t *testing.T) {
		tr, err := domain.NewTransferUnit("g-2", a.ID, b.ID, 2000, time.Now())
		require.NoError(t, err)
		_, err = s.AtomicApply(ctx, tr)
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

		got, err := s.GetAccount(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(600), got.Balance)
		assert.Equal(t, int64(1), got.Version)
		entries, err := s.ListEntries(ctx, b.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("duplicate external ref", func(t *testing.T) {
		again, err := domain.NewDepositUnit("ext-1", a.ID, 600, time.Now())
		require.NoError(t, err)
		_, err = s.AtomicApply(ctx, again)
		assert.ErrorIs(t, err, domain.ErrDuplicateExternalRef)
	})

	t.Run("missing account", func(t *testing.T) {
		tr, err := domain.NewTransferUnit("g-3", a.ID, "missing", 1, time.Now())
		require.NoError(t, err)
		_, err = s.AtomicApply(ctx, tr)
		assert.ErrorIs(t, err, domain.ErrAccountNotFound)
	})
}

func TestStore_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	s := NewStore(client)
	acc := createAccount(t, s)

	mr.Close()
	_, err = s.GetAccount(context.Background(), acc.ID)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)

	dep, err := domain.NewDepositUnit("ext-1", acc.ID, 1, time.Now())
	require.NoError(t, err)
	_, err = s.AtomicApply(context.Background(), dep)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
}

func TestStore_RejectsBalanceOverflow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a := createAccount(t, s)
	b := createAccount(t, s)

	apply := func(unit *domain.AtomicUnit, err error) error {
		require.NoError(t, err)
		_, err = s.AtomicApply(ctx, unit)
		return err
	}
	maxDep, err := domain.NewDepositUnit("ext-max", b.ID, math.MaxInt64, time.Now())
	require.NoError(t, err)
	commit, err := s.AtomicApply(ctx, maxDep)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), commit.Balance(b.ID))
	require.NoError(t, apply(domain.NewDepositUnit("ext-small", a.ID, 10, time.Now())))

	err = apply(domain.NewDepositUnit("ext-more", b.ID, 1, time.Now()))
	assert.ErrorIs(t, err, domain.ErrBalanceOverflow)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	// 轉出方已扣款的情況也不能留下半套
	err = apply(domain.NewTransferUnit("g-overflow", a.ID, b.ID, 5, time.Now()))
	assert.ErrorIs(t, err, domain.ErrBalanceOverflow)

	gotA, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10), gotA.Balance)
	assert.Equal(t, int64(1), gotA.Version)
	gotB, err := s.GetAccount(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(math.MaxInt64), gotB.Balance)
	assert.Equal(t, int64(1), gotB.Version)

	entriesA, err := s.ListEntries(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, entriesA, 1)
	entriesB, err := s.ListEntries(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, entriesB, 1)

	found, err := s.FindDepositByExternalRef(ctx, "ext-more")
	require.NoError(t, err)
	assert.Nil(t, found)
}
