package bootstrap

import (
	"context"

	"go.uber.org/zap"

	grpcadapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/grpc"
	natsadapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/in/nats"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/dispatch"
	kafkaadapter "github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/kafka"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/internal/config"
)

// Bootstrap 依設定建立所有相依元件並組裝成 App
// 回傳 App、cleanup (反向關閉所有資源) 或錯誤
func Bootstrap(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, func(), error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var cleanupFns []func()
	var servers []Server
	var dispatcher *dispatch.Dispatcher

	// 1. 儲存層
	store, closeStore, err := openStore(ctx, cfg.Store, logger.Named("store"))
	if err != nil {
		return nil, nil, err
	}
	cleanupFns = append(cleanupFns, closeStore)

	// 2. 帳本事件 (Kafka 經由非同步輸送帶發布)
	var publisher usecase.EventPublisher = usecase.NopPublisher{}
	if cfg.Kafka.Enabled {
		kafkaPublisher := kafkaadapter.NewPublisher(kafkaadapter.Config{
			Brokers:         cfg.Kafka.Brokers,
			Topic:           cfg.Kafka.Topic,
			WriteTimeout:    cfg.Kafka.WriteTimeout,
			BreakerFailures: cfg.Kafka.BreakerFailures,
			BreakerTimeout:  cfg.Kafka.BreakerTimeout,
		}, logger.Named("kafka"))
		cleanupFns = append(cleanupFns, func() {
			if err := kafkaPublisher.Close(); err != nil {
				logger.Warn("close kafka publisher failed", zap.Error(err))
			}
		})

		dispatcher = dispatch.NewDispatcher(kafkaPublisher, cfg.Kafka.BufferSize, logger.Named("dispatch"))
		publisher = dispatcher
	}

	// 3. 用例層
	core := usecase.NewCoreUseCase(store, publisher, retryPolicy(cfg.Retry), logger.Named("core"))

	// 4. 對外入口
	servers = append(servers, grpcadapter.NewGrpcServer(cfg.GRPC.Addr, core, logger.Named("grpc")))

	if cfg.NATS.Enabled {
		nc, err := connectNats(cfg.NATS.URL, logger.Named("nats"))
		if err != nil {
			return nil, runCleanup(cleanupFns), err
		}
		cleanupFns = append(cleanupFns, nc.Close)
		servers = append(servers, natsadapter.NewSubscriber(core, nc, cfg.NATS.Subject, cfg.NATS.Queue, logger.Named("nats")))
	}

	if dispatcher != nil {
		servers = append(servers, dispatcher)
	}

	return NewApp(servers, logger), runCleanup(cleanupFns), nil
}

// retryPolicy 設定檔的重試區塊轉成用例層的重試策略
func retryPolicy(c config.RetryConfig) usecase.RetryPolicy {
	return usecase.RetryPolicy{
		MaxAttempts:   c.MaxAttempts,
		BaseDelay:     c.BaseDelay,
		MaxDelay:      c.MaxDelay,
		JitterPercent: c.JitterPercent,
	}
}

// runCleanup 回傳一個依反向順序執行所有 cleanup 的函式
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
