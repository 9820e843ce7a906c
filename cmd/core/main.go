package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/bootstrap"
	"github.com/JoeShih716/go-wallet-ledger/internal/config"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to config yaml (default "+config.DefaultPath+")")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Printf("ledger service: %v", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// 1. 載入設定
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	// 2. 初始化 Logger
	zlog, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = zlog.Sync() }()

	// Graceful Shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 3. 組裝所有元件
	app, cleanup, err := bootstrap.Bootstrap(ctx, cfg, zlog)
	if cleanup != nil {
		defer cleanup()
	}
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	zlog.Info("Ledger service starting",
		zap.String("store", cfg.Store.Driver),
		zap.String("grpc_addr", cfg.GRPC.Addr),
		zap.Bool("nats", cfg.NATS.Enabled),
		zap.Bool("kafka", cfg.Kafka.Enabled),
	)

	// 4. 阻塞直到收到 SIGINT / SIGTERM
	if err := app.Run(ctx); err != nil {
		return err
	}
	zlog.Info("Server exited")
	return nil
}
