package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
)

// RetryPolicy 暫時性錯誤 (ErrConflict / ErrStorageUnavailable) 的重試策略
type RetryPolicy struct {
	MaxAttempts   int           // 含第一次的總嘗試次數
	BaseDelay     time.Duration // 第一次退避時間，之後每次加倍
	MaxDelay      time.Duration // 單次退避上限
	JitterPercent uint64        // 隨機抖動百分比，避免同一組帳戶的重試同時撞在一起
}

// DefaultRetryPolicy 預設重試策略
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     10 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		JitterPercent: 50,
	}
}

func (p RetryPolicy) normalize() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.JitterPercent > 100 {
		p.JitterPercent = 100
	}
	return p
}

func (p RetryPolicy) backoff() retry.Backoff {
	p = p.normalize()
	b := retry.NewExponential(p.BaseDelay)
	b = retry.WithCappedDuration(p.MaxDelay, b)
	if p.JitterPercent > 0 {
		b = retry.WithJitterPercent(p.JitterPercent, b)
	}
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), b)
}

// runWithRetry 重複執行 fn，直到成功、遇到非暫時性錯誤或次數用盡。
// 次數用盡時一律回傳 ErrStorageUnavailable (ErrConflict 不會往外傳)。
func runWithRetry(ctx context.Context, policy RetryPolicy, logger *zap.Logger, op string, fn func(ctx context.Context) error) error {
	attempt := 0
	err := retry.Do(ctx, policy.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx)
		if err != nil && domain.IsTransient(err) {
			logger.Warn("transient ledger error, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && domain.IsTransient(err) {
		return fmt.Errorf("%w: %s gave up after %d attempts (last error: %v)", domain.ErrStorageUnavailable, op, attempt, err)
	}
	return err
}
