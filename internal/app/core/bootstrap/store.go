package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/redisstore"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/adapter/out/sqldb"
	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-wallet-ledger/internal/config"
	"github.com/JoeShih716/go-wallet-ledger/pkg/gormdb"
	"github.com/JoeShih716/go-wallet-ledger/pkg/wal"
)

const connectTimeout = 5 * time.Second

// openStore 依 store.driver 建立 LedgerStore，回傳的 cleanup 負責關閉底層連線
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (usecase.LedgerStore, func(), error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return openMemory(cfg.WALPath, logger)
	case config.DriverMySQL, config.DriverPostgres:
		return openSQL(ctx, cfg.SQL, logger)
	case config.DriverRedis:
		return openRedis(ctx, cfg.Redis, logger)
	default:
		return nil, nil, fmt.Errorf("bootstrap: unknown store driver %q", cfg.Driver)
	}
}

func openMemory(walPath string, logger *zap.Logger) (usecase.LedgerStore, func(), error) {
	if walPath == "" {
		logger.Warn("memory store running without WAL, balances are lost on restart")
		store, err := memory.NewMutexStore(nil)
		return store, func() {}, err
	}

	w, err := wal.NewWAL(walPath)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: open wal: %w", err)
	}
	store, err := memory.NewMutexStore(w)
	if err != nil {
		_ = w.Close()
		return nil, nil, fmt.Errorf("bootstrap: replay wal: %w", err)
	}

	accounts, err := store.LoadAllAccounts(context.Background())
	if err != nil {
		_ = w.Close()
		return nil, nil, err
	}
	logger.Info("memory store recovered from WAL",
		zap.String("path", walPath),
		zap.Int("accounts", len(accounts)),
	)
	return store, func() {
		if err := w.Close(); err != nil {
			logger.Warn("close wal failed", zap.Error(err))
		}
	}, nil
}

func openSQL(ctx context.Context, cfg gormdb.Config, logger *zap.Logger) (usecase.LedgerStore, func(), error) {
	client, err := gormdb.NewClient(cfg, logger.Named("gorm"))
	if err != nil {
		return nil, nil, err
	}
	store := sqldb.NewStore(client)

	migrateCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	if err := store.Migrate(migrateCtx); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("bootstrap: migrate: %w", err)
	}
	logger.Info("connected to SQL store", zap.String("driver", cfg.Driver), zap.String("host", cfg.Host))
	return store, func() {
		if err := client.Close(); err != nil {
			logger.Warn("close sql client failed", zap.Error(err))
		}
	}, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (usecase.LedgerStore, func(), error) {
	rdb, err := connectRedis(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("connected to Redis store", zap.Strings("addrs", cfg.Addrs))
	return redisstore.NewStore(rdb), func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("close redis client failed", zap.Error(err))
		}
	}, nil
}

// connectRedis 單一地址使用一般連線，多個地址使用 Cluster
func connectRedis(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Addrs,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("bootstrap: redis ping: %w", err)
	}
	return rdb, nil
}

func connectNats(url string, logger *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("go-wallet-ledger"),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: nats connect: %w", err)
	}
	return nc, nil
}
