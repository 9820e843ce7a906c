package usecase_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

func TestTransfer_MovesFunds(t *testing.T) {
	ctx := context.Background()
	core := newCore(t, newMemoryStore(t), nil)
	a := fund(t, core, "ext-0", 1000)
	b := fund(t, core, "", 0)

	receipt, err := core.Transfer(ctx, a, b, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(600), receipt.FromBalance)
	assert.Equal(t, int64(400), receipt.ToBalance)
	require.Len(t, receipt.Entries, 2)
	assert.Equal(t, receipt.GroupID, receipt.Entries[0].GroupID)
	assert.Equal(t, receipt.GroupID, receipt.Entries[1].GroupID)

	balA, err := core.GetAccountBalance(ctx, a)
	require.NoError(t, err)
	balB, err := core.GetAccountBalance(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(600), balA)
	assert.Equal(t, int64(400), balB)

	entries, err := core.ListEntries(ctx, b)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.EntryKindTransferIn, entries[0].Kind)
	assert.Equal(t, a, entries[0].CounterpartyAccountID)
}

func TestTransfer_InsufficientFundsWritesNothing(t *testing.T) {
	ctx := context.Background()
	core := newCore(t, newMemoryStore(t), nil)
	a := fund(t, core, "ext-0", 1000)
	b := fund(t, core, "", 0)
	_, err := core.Transfer(ctx, a, b, 400)
	require.NoError(t, err)

	_, err = core.Transfer(ctx, a, b, 2000)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	accA, err := core.GetAccount(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(600), accA.Balance)

	entriesA, err := core.ListEntries(ctx, a)
	require.NoError(t, err)
	assert.Len(t, entriesA, 2, "deposit + transfer_out only")
	entriesB, err := core.ListEntries(ctx, b)
	require.NoError(t, err)
	assert.Len(t, entriesB, 1)
}

func TestTransfer_Validation(t *testing.T) {
	ctx := context.Background()
	core := newCore(t, newMemoryStore(t), nil)
	a := fund(t, core, "ext-0", 100)

	tests := []struct {
		name    string
		from    string
		to      string
		amount  int64
		wantErr error
	}{
		{"zero amount", a, "other", 0, domain.ErrInvalidAmount},
		{"negative amount", a, "other", -5, domain.ErrInvalidAmount},
		{"same account", a, a, 10, domain.ErrSameAccount},
		{"unknown source", "missing", a, 10, domain.ErrAccountNotFound},
		{"unknown destination", a, "missing", 10, domain.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := core.Transfer(ctx, tt.from, tt.to, tt.amount)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	bal, err := core.GetAccountBalance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(100), bal)
}

func TestTransfer_RetriesConflict(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStore(t)
	store := &flakyStore{MutexStore: mem, err: fmt.Errorf("%w: version moved", domain.ErrConflict), failures: 2}
	core := newCore(t, store, nil)

	a := fund(t, core, "", 0)
	b := fund(t, core, "", 0)
	// 入金直接寫進 memory store，不經過 flaky 計數
	unit, err := domain.NewDepositUnit("seed", a, 500, testNow)
	require.NoError(t, err)
	_, err = mem.AtomicApply(ctx, unit)
	require.NoError(t, err)

	receipt, err := core.Transfer(ctx, a, b, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(300), receipt.FromBalance)
	assert.Equal(t, int32(3), store.calls.Load())
}

func TestTransfer_GivesUpAsStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStore(t)
	store := &flakyStore{MutexStore: mem, err: domain.ErrConflict, failures: -1}
	core := newCore(t, store, nil)

	a := fund(t, core, "", 0)
	b := fund(t, core, "", 0)
	unit, err := domain.NewDepositUnit("seed", a, 500, testNow)
	require.NoError(t, err)
	_, err = mem.AtomicApply(ctx, unit)
	require.NoError(t, err)

	_, err = core.Transfer(ctx, a, b, 200)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, int32(fastRetry.MaxAttempts), store.calls.Load())

	bal, err := core.GetAccountBalance(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, int64(500), bal)
}

func TestTransfer_InsufficientFundsIsNotRetried(t *testing.T) {
	ctx := context.Background()
	mem := newMemoryStore(t)
	// 預先檢查通過，但儲存層在 commit 時發現餘額不足 (例如被別的轉帳搶先扣款)
	store := &flakyStore{MutexStore: mem, err: domain.ErrInsufficientFunds, failures: -1}
	core := newCore(t, store, nil)

	a := fund(t, core, "", 0)
	b := fund(t, core, "", 0)
	unit, err := domain.NewDepositUnit("seed", a, 500, testNow)
	require.NoError(t, err)
	_, err = mem.AtomicApply(ctx, unit)
	require.NoError(t, err)

	_, err = core.Transfer(ctx, a, b, 200)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, int32(1), store.calls.Load())
}

func TestTransfer_ConcurrentConservation(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(t)
	core := newCore(t, store, nil)

	const (
		accounts   = 8
		perAccount = 1000
		workers    = 32
		perWorker  = 50
	)
	ids := make([]string, accounts)
	for i := range ids {
		ids[i] = fund(t, core, fmt.Sprintf("seed-%d", i), perAccount)
	}

	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			r := rand.New(rand.NewPCG(seed, seed*31+7))
			for i := 0; i < perWorker; i++ {
				from := ids[r.IntN(accounts)]
				to := ids[r.IntN(accounts)]
				if from == to {
					continue
				}
				_, err := core.Transfer(ctx, from, to, int64(r.IntN(300)+1))
				if err != nil {
					errs <- err
				}
			}
		}(uint64(w + 1))
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	}

	var total int64
	for _, id := range ids {
		bal, err := core.GetAccountBalance(ctx, id)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, bal, int64(0))
		total += bal
	}
	assert.Equal(t, int64(accounts*perAccount), total)

	report, err := core.Audit(ctx, "")
	require.NoError(t, err)
	assert.True(t, report.OK(), "mismatches=%v unbalanced=%v", report.Mismatches, report.UnbalancedGroups)
}

func TestTransfer_SubmittedUnitIgnoresCallerCancellation(t *testing.T) {
	mem := newMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := &cancellingStore{MutexStore: mem, cancel: cancel}
	core := newCore(t, store, nil)
	a := fund(t, core, "seed", 500)
	b := fund(t, core, "", 0)

	store.armed = true
	receipt, err := core.Transfer(ctx, a, b, 100)
	require.NoError(t, err)
	assert.NoError(t, store.applyCtxErr)
	assert.Equal(t, int64(400), receipt.FromBalance)
}

func TestTransfer_PublishesEvent(t *testing.T) {
	ctx := context.Background()
	publisher := &recordingPublisher{}
	core := newCore(t, newMemoryStore(t), publisher)
	a := fund(t, core, "ext-0", 1000)
	b := fund(t, core, "", 0)

	receipt, err := core.Transfer(ctx, a, b, 250)
	require.NoError(t, err)

	events := publisher.snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventDepositApplied, events[0].Type)
	assert.Equal(t, domain.EventTransferCommitted, events[1].Type)
	assert.Equal(t, receipt.GroupID, events[1].GroupID)
	assert.Len(t, events[1].Entries, 2)
}

func TestTransfer_PublisherFailureDoesNotFailTransfer(t *testing.T) {
	ctx := context.Background()
	core := newCore(t, newMemoryStore(t), &recordingPublisher{err: errBoom})
	a := fund(t, core, "ext-0", 1000)
	b := fund(t, core, "", 0)

	_, err := core.Transfer(ctx, a, b, 250)
	require.NoError(t, err)
	bal, err := core.GetAccountBalance(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, int64(250), bal)
}

var _ usecase.LedgerStore = (*flakyStore)(nil)
