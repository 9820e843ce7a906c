package bootstrap

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Server 由 App 管理生命週期的元件 (gRPC server / NATS subscriber / event dispatcher)
// Start 應阻塞直到 ctx 結束或 Stop 被呼叫
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers []Server
	logger  *zap.Logger
}

func NewApp(servers []Server, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{servers: servers, logger: logger}
}

// Run 啟動所有 Server，直到 ctx 結束 (或任一 Server 失敗) 後依序停止
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	<-ctx.Done()
	a.logger.Info("shutting down servers", zap.Int("count", len(a.servers)))

	for _, srv := range a.servers {
		if err := srv.Stop(context.Background()); err != nil {
			a.logger.Warn("stop server failed", zap.Error(err))
		}
	}

	return g.Wait()
}
