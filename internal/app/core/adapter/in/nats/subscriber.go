package nats

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

const (
	DefaultSubject = "payments.confirmed"
	DefaultQueue   = "ledger_reconcile"

	// StatusRejected 無法入帳且重送也不會成功 (輸入錯誤)
	StatusRejected = "rejected"
	// CodeInvalidPayload 訊息不是合法的 JSON
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// PaymentConfirmed 金流驗證服務送來的「付款成功」事件 (簽章已驗證)
type PaymentConfirmed struct {
	ExternalRef string `json:"external_ref"`
	AccountID   string `json:"account_id"`
	Amount      int64  `json:"amount"`
}

// Reply 回覆給發布端；收到回覆代表不需要再重送
type Reply struct {
	Status  string `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	EntryID string `json:"entry_id,omitempty"`
	Balance int64  `json:"balance,omitempty"`
}

// PaymentApplier 入帳用例
type PaymentApplier interface {
	ApplyExternalPayment(ctx context.Context, externalRef, accountID string, amount int64) (*usecase.ReconcileResult, error)
}

// Subscriber 以 Queue Group 訂閱付款事件，多個副本只會有一個收到同一則訊息
type Subscriber struct {
	applier PaymentApplier
	nc      *nats.Conn
	subject string
	queue   string
	logger  *zap.Logger

	mu  sync.Mutex
	sub *nats.Subscription
}

func NewSubscriber(applier PaymentApplier, nc *nats.Conn, subject, queue string, logger *zap.Logger) *Subscriber {
	if subject == "" {
		subject = DefaultSubject
	}
	if queue == "" {
		queue = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		applier: applier,
		nc:      nc,
		subject: subject,
		queue:   queue,
		logger:  logger,
	}
}

// Start 訂閱並阻塞直到 ctx 結束 (graceful shutdown)
func (s *Subscriber) Start(ctx context.Context) error {
	sub, err := s.nc.QueueSubscribe(s.subject, s.queue, func(m *nats.Msg) {
		reply, ok := s.handle(ctx, m.Data)
		if !ok || m.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			s.logger.Error("encode reply failed", zap.Error(err))
			return
		}
		if err := m.Respond(data); err != nil {
			s.logger.Warn("respond failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	s.logger.Info("NATS payment subscriber is running",
		zap.String("subject", s.subject),
		zap.String("queue", s.queue),
	)

	// Block until context is cancelled.
	<-ctx.Done()
	s.logger.Info("NATS payment subscriber shutting down, draining subscription...")
	return s.Stop(context.Background())
}

// Stop 停止接收新訊息，已收到的處理完才結束
func (s *Subscriber) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil || !s.sub.IsValid() {
		return nil
	}
	err := s.sub.Drain()
	s.sub = nil
	return err
}

// handle 處理一則訊息；ok == false 代表不回覆，讓發布端逾時後重送
func (s *Subscriber) handle(ctx context.Context, data []byte) (*Reply, bool) {
	var msg PaymentConfirmed
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warn("invalid payment payload", zap.Error(err))
		return &Reply{Status: StatusRejected, Code: CodeInvalidPayload, Message: err.Error()}, true
	}

	result, err := s.applier.ApplyExternalPayment(ctx, msg.ExternalRef, msg.AccountID, msg.Amount)
	switch {
	case err == nil:
		return &Reply{
			Status:  string(result.Status),
			EntryID: result.EntryID,
			Balance: result.Balance,
		}, true
	case domain.IsValidation(err), errors.Is(err, domain.ErrAccountNotFound):
		return &Reply{Status: StatusRejected, Code: domain.ErrorCode(err), Message: err.Error()}, true
	default:
		s.logger.Warn("payment not applied, waiting for redelivery",
			zap.String("external_ref", msg.ExternalRef),
			zap.String("code", domain.ErrorCode(err)),
			zap.Error(err),
		)
		return nil, false
	}
}
