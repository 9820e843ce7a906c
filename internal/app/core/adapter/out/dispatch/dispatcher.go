package dispatch

import (
	"context"
	"errors"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
)

var (
	// ErrQueueFull 輸送帶已滿，事件被丟棄
	ErrQueueFull = errors.New("dispatch: event queue full")
	// ErrStopped Dispatcher 已停止
	ErrStopped = errors.New("dispatch: dispatcher stopped")
)

const defaultBufferSize = 1024

// Dispatcher 將 commit 後的事件非同步轉交給下游 (例如 Kafka)
//
// Publish(不等待) -> Channel -> Run Loop -> sink.Publish
//
// 交易的呼叫端只負責把事件放上輸送帶，下游變慢或失敗都不會拖住交易。
type Dispatcher struct {
	sink    usecase.EventPublisher
	events  chan domain.LedgerEvent
	stopped atomic.Bool
	logger  *zap.Logger
}

// NewDispatcher 建立 Dispatcher
//
// 參數:
//
//	sink: 真正發布事件的下游
//	bufferSize: 輸送帶容量 (<= 0 使用預設值)
//	logger: 發布失敗時記錄用
func NewDispatcher(sink usecase.EventPublisher, bufferSize int, logger *zap.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:   sink,
		events: make(chan domain.LedgerEvent, bufferSize),
		logger: logger,
	}
}

// Publish 放入輸送帶，不會阻塞
func (d *Dispatcher) Publish(ctx context.Context, event domain.LedgerEvent) error {
	if d.stopped.Load() {
		return ErrStopped
	}
	select {
	case d.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start 啟動 Run Loop，阻塞直到 ctx 結束；結束前會把輸送帶上剩下的事件送完
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("event dispatcher is running")
	for {
		select {
		case <-ctx.Done():
			// 收到關閉信號，把剩下的事件處理完
			d.stopped.Store(true)
			d.drain()
			d.logger.Info("event dispatcher stopped")
			return nil
		case event := <-d.events:
			d.deliver(event)
		}
	}
}

// Stop 之後的 Publish 一律回傳 ErrStopped
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.stopped.Store(true)
	return nil
}

func (d *Dispatcher) drain() {
	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(event domain.LedgerEvent) {
	if err := d.sink.Publish(context.Background(), event); err != nil {
		d.logger.Warn("deliver ledger event failed",
			zap.String("group_id", event.GroupID),
			zap.String("type", string(event.Type)),
			zap.Error(err),
		)
	}
}

var _ usecase.EventPublisher = (*Dispatcher)(nil)
