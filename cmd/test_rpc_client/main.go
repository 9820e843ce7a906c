package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/JoeShih716/go-wallet-ledger/internal/app/core/domain"
	grpcpool "github.com/JoeShih716/go-wallet-ledger/pkg/grpc"
	"github.com/JoeShih716/go-wallet-ledger/pkg/ledgerrpc"
	"github.com/JoeShih716/go-wallet-ledger/pkg/logger"
)

// 壓測：A、B 兩個帳戶互相轉帳，結束後檢查總額不變且稽核無誤差
func main() {
	addr := flag.String("addr", "localhost:50051", "ledger gRPC address")
	total := flag.Int("n", 100000, "number of transfers")
	concurrency := flag.Int("c", 200, "concurrent requests")
	funding := flag.Int64("fund", 10_000_000, "initial deposit into account A (minor units)")
	amount := flag.Int64("amount", 100, "amount per transfer (minor units)")
	timeout := flag.Duration("timeout", 5*time.Minute, "overall timeout")
	flag.Parse()

	zlog, err := logger.New(logger.Config{Level: "warn", Encoding: "console"})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	pool := grpcpool.NewPool(
		grpcpool.WithInterceptor(grpcpool.LoggingInterceptor(zlog, time.Second)),
		grpcpool.WithCallOptions(grpc.WaitForReady(true)),
	)
	defer pool.Close()

	conn, err := pool.GetConnection(*addr)
	if err != nil {
		log.Fatalf("did not connect: %v", err)
	}
	c := ledgerrpc.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	// 1. 建立帳戶並入金
	a := mustCreate(ctx, c)
	b := mustCreate(ctx, c)
	paid, err := c.ApplyExternalPayment(ctx, &ledgerrpc.ApplyExternalPaymentRequest{
		ExternalRef: "loadtest-" + uuid.NewString(),
		AccountID:   a,
		Amount:      *funding,
	})
	if err != nil || !paid.Success {
		log.Fatalf("fund account: err=%v resp=%+v", err, paid)
	}
	fmt.Printf("Accounts A=%s B=%s, funded A with %s\n", a, b, domain.FormatMinor(*funding))

	// 2. 雙向並發轉帳
	var ok, rejected, failed atomic.Int64
	var wg sync.WaitGroup
	sem := make(chan struct{}, *concurrency)
	startTime := time.Now()

	for i := 0; i < *total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			from, to := a, b
			if idx%2 == 1 {
				from, to = b, a
			}
			resp, err := c.Transfer(ctx, &ledgerrpc.TransferRequest{FromAccountID: from, ToAccountID: to, Amount: *amount})
			switch {
			case err != nil:
				failed.Add(1)
			case !resp.Success:
				rejected.Add(1)
			default:
				ok.Add(1)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(startTime)

	fmt.Printf("Completed %d transfers in %v (ok=%d rejected=%d failed=%d)\n",
		*total, elapsed, ok.Load(), rejected.Load(), failed.Load())
	fmt.Printf("TPS: %.2f\n", float64(*total)/elapsed.Seconds())

	// 3. 檢查總額守恆與稽核
	balA := mustBalance(ctx, c, a)
	balB := mustBalance(ctx, c, b)
	fmt.Printf("A=%s B=%s total=%s\n", domain.FormatMinor(balA), domain.FormatMinor(balB), domain.FormatMinor(balA+balB))
	if balA+balB != *funding {
		log.Fatalf("conservation violated: expected %s, got %s", domain.FormatMinor(*funding), domain.FormatMinor(balA+balB))
	}

	for _, id := range []string{a, b} {
		report, err := c.Audit(ctx, &ledgerrpc.AuditRequest{AccountID: id})
		if err != nil {
			log.Fatalf("audit %s: %v", id, err)
		}
		if !report.OK {
			zlog.Error("audit drift", zap.String("account_id", id), zap.Any("mismatches", report.Mismatches))
			log.Fatalf("audit failed for %s", id)
		}
	}
	fmt.Println("Audit OK")
}

func mustCreate(ctx context.Context, c *ledgerrpc.Client) string {
	resp, err := c.CreateAccount(ctx, &ledgerrpc.CreateAccountRequest{})
	if err != nil {
		log.Fatalf("create account: %v", err)
	}
	return resp.AccountID
}

func mustBalance(ctx context.Context, c *ledgerrpc.Client, id string) int64 {
	resp, err := c.GetBalance(ctx, &ledgerrpc.GetBalanceRequest{AccountID: id})
	if err != nil {
		log.Fatalf("get balance %s: %v", id, err)
	}
	return resp.Balance
}
