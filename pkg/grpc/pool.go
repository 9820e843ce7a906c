package grpc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/status"
)

// Pool 管理通往多個帳務節點的 gRPC 連線，同一個 target 只維護一條連線 (Thread-safe)
type Pool struct {
	conns        sync.Map // map[string]*grpc.ClientConn
	mu           sync.Mutex
	interceptors []grpc.UnaryClientInterceptor
	callOpts     []grpc.CallOption
	keepalive    keepalive.ClientParameters
}

// PoolOption 定義了 Pool 的配置選項函數
type PoolOption func(*Pool)

// WithInterceptor 加入全局的 UnaryClientInterceptor (依加入順序串接)
func WithInterceptor(interceptor grpc.UnaryClientInterceptor) PoolOption {
	return func(p *Pool) {
		p.interceptors = append(p.interceptors, interceptor)
	}
}

// WithCallOptions 每次呼叫預設帶上的選項
// 例如 grpc.WaitForReady(true) 讓呼叫在連線就緒前排隊等待
func WithCallOptions(opts ...grpc.CallOption) PoolOption {
	return func(p *Pool) {
		p.callOpts = append(p.callOpts, opts...)
	}
}

// WithKeepalive 覆寫預設的 keepalive (10s ping / 1s timeout)
func WithKeepalive(interval, timeout time.Duration) PoolOption {
	return func(p *Pool) {
		p.keepalive.Time = interval
		p.keepalive.Timeout = timeout
	}
}

func NewPool(opts ...PoolOption) *Pool {
	p := &Pool{
		keepalive: keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             time.Second,
			PermitWithoutStream: true,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetConnection 取得 target 的連線，不存在或已關閉時建立新的
//
// 參數:
//
//	target: string - 帳務服務地址 (e.g., "localhost:50051")
//	opts: ...grpc.DialOption - 額外的連線選項 (測試時傳入 bufconn dialer)
//
// 回傳值:
//
//	*grpc.ClientConn: gRPC 客戶端連線物件
//	error: 若建立連線失敗則回傳錯誤
func (p *Pool) GetConnection(target string, opts ...grpc.DialOption) (*grpc.ClientConn, error) {
	// Fast path
	if conn, ok := p.load(target); ok {
		return conn, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	// Double-check，加鎖期間可能已被其他 goroutine 建立
	if conn, ok := p.load(target); ok {
		return conn, nil
	}

	dialOpts := []grpc.DialOption{
		// 內部服務通訊，不使用 TLS
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(p.keepalive),
	}
	if len(p.interceptors) > 0 {
		dialOpts = append(dialOpts, grpc.WithChainUnaryInterceptor(p.interceptors...))
	}
	if len(p.callOpts) > 0 {
		dialOpts = append(dialOpts, grpc.WithDefaultCallOptions(p.callOpts...))
	}
	dialOpts = append(dialOpts, opts...)

	// grpc.NewClient 不會立刻連線，第一次呼叫時才建立 (Lazy connection)
	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create grpc client for target %s: %w", target, err)
	}

	p.conns.Store(target, conn)
	return conn, nil
}

func (p *Pool) load(target string) (*grpc.ClientConn, bool) {
	v, ok := p.conns.Load(target)
	if !ok {
		return nil, false
	}
	conn := v.(*grpc.ClientConn)
	if conn.GetState() == connectivity.Shutdown {
		p.conns.Delete(target)
		return nil, false
	}
	return conn, true
}

// Close 關閉所有連線，回傳第一個發生的錯誤
func (p *Pool) Close() error {
	var firstErr error
	p.conns.Range(func(key, value any) bool {
		conn := value.(*grpc.ClientConn)
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		p.conns.Delete(key)
		return true
	})
	return firstErr
}

// LoggingInterceptor 記錄失敗的呼叫與耗時過長的呼叫
func LoggingInterceptor(logger *zap.Logger, slow time.Duration) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		start := time.Now()
		err := invoker(ctx, method, req, reply, cc, opts...)
		elapsed := time.Since(start)
		switch {
		case err != nil:
			logger.Warn("grpc call failed",
				zap.String("method", method),
				zap.String("code", status.Code(err).String()),
				zap.Duration("elapsed", elapsed),
				zap.Error(err),
			)
		case slow > 0 && elapsed > slow:
			logger.Info("slow grpc call", zap.String("method", method), zap.Duration("elapsed", elapsed))
		}
		return err
	}
}
