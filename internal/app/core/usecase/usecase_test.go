package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

var fastRetry = usecase.RetryPolicy{
	MaxAttempts:   4,
	BaseDelay:     time.Millisecond,
	MaxDelay:      2 * time.Millisecond,
	JitterPercent: 50,
}

func newMemoryStore(t *testing.T) *memory.MutexStore {
	t.Helper()
	store, err := memory.NewMutexStore(nil)
	require.NoError(t, err)
	return store
}

func newCore(t *testing.T, store usecase.LedgerStore, publisher usecase.EventPublisher) *usecase.CoreUseCase {
	t.Helper()
	return usecase.NewCoreUseCase(store, publisher, fastRetry, nil)
}

// fund 建立帳戶並以外部付款入金
func fund(t *testing.T, core *usecase.CoreUseCase, ref string, amount int64) string {
	t.Helper()
	ctx := context.Background()
	account, err := core.CreateAccount(ctx)
	require.NoError(t, err)
	if amount > 0 {
		_, err = core.ApplyExternalPayment(ctx, ref, account.ID, amount)
		require.NoError(t, err)
	}
	return account.ID
}

// flakyStore AtomicApply 前 failures 次回傳 err，之後交給 memory store
type flakyStore struct {
	*memory.MutexStore
	err      error
	failures int32
	calls    atomic.Int32
}

func (s *flakyStore) AtomicApply(ctx context.Context, unit *domain.AtomicUnit) (*domain.Commit, error) {
	n := s.calls.Add(1)
	if s.failures < 0 || n <= s.failures {
		return nil, s.err
	}
	return s.MutexStore.AtomicApply(ctx, unit)
}

// recordingPublisher 記錄所有事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) snapshot() []domain.LedgerEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.LedgerEvent(nil), p.events...)
}

var errBoom = errors.New("boom")

var testNow = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// cancellingStore 在 AtomicApply 內取消呼叫端的 ctx，記錄儲存層看到的 ctx 狀態
type cancellingStore struct {
	*memory.MutexStore
	cancel      context.CancelFunc
	armed       bool
	applyCtxErr error
}

func (s *cancellingStore) AtomicApply(ctx context.Context, unit *domain.AtomicUnit) (*domain.Commit, error) {
	if s.armed {
		s.cancel()
		s.applyCtxErr = ctx.Err()
	}
	return s.MutexStore.AtomicApply(ctx, unit)
}
