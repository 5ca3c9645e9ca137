package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpc_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/in/grpc"
	grpcx "github.com/JoeShih716/go-credit-ledger/pkg/grpc"
	"github.com/JoeShih716/go-credit-ledger/pkg/logger"
)

func main() {
	addr := flag.String("addr", "localhost:50051", "grpc server address")
	customerID := flag.Int64("customer", 1, "customer to debit")
	totalCount := flag.Int("count", 10000, "number of debits to fire")
	concurrency := flag.Int("concurrency", 200, "concurrent in-flight requests")
	amount := flag.Int64("amount", 100, "amount per debit")
	timeout := flag.Duration("timeout", 120*time.Second, "overall timeout")
	flag.Parse()

	log := logger.New(logger.Config{Level: "info", Format: "console"}, os.Stderr)

	pool := grpcx.NewPool()
	defer pool.Close()
	conn, err := pool.GetConnection(*addr)
	if err != nil {
		log.Fatal().Err(err).Msg("did not connect")
	}
	c := grpc_adapter.NewLedgerServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	before, err := c.GetStatement(ctx, &grpc_adapter.GetStatementRequest{CustomerID: *customerID})
	if err != nil {
		log.Fatal().Err(err).Msg("get statement before load")
	}

	res := fire(ctx, c, log, *customerID, *amount, *totalCount, *concurrency)

	after, err := c.GetStatement(ctx, &grpc_adapter.GetStatementRequest{CustomerID: *customerID})
	if err != nil {
		log.Fatal().Err(err).Msg("get statement after load")
	}

	fmt.Printf("Completed %d requests in %v\n", *totalCount, res.elapsed)
	fmt.Printf("TPS: %.2f\n", float64(*totalCount)/res.elapsed.Seconds())
	fmt.Printf("ok=%d limit_exceeded=%d conflict=%d failed=%d\n", res.ok, res.limited, res.conflicts, res.failed)
	fmt.Printf("balance: %d -> %d (limit %d)\n", before.Balance, after.Balance, after.Limit)

	// 沒有其他寫入者時，餘額變化必須剛好等於成功的扣款
	expected := before.Balance - res.ok*(*amount)
	if after.Balance != expected {
		log.Error().Int64("expected", expected).Int64("actual", after.Balance).Msg("balance mismatch")
		os.Exit(1)
	}
	if after.Balance < -after.Limit {
		log.Error().Int64("balance", after.Balance).Int64("limit", after.Limit).Msg("overdraft limit violated")
		os.Exit(1)
	}
	log.Info().Msg("ledger invariant holds")
}

type loadResult struct {
	ok, limited, conflicts, failed int64
	elapsed                        time.Duration
}

// fire 以 concurrency 個同時進行的請求送出 total 筆扣款
func fire(ctx context.Context, c *grpc_adapter.LedgerServiceClient, log zerolog.Logger, customerID, amount int64, total, concurrency int) loadResult {
	var (
		wg  sync.WaitGroup
		res loadResult
	)
	sem := make(chan struct{}, concurrency)
	start := time.Now()

	for i := 0; i < total; i++ {
		sem <- struct{}{}
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := c.ApplyTransaction(ctx, &grpc_adapter.ApplyTransactionRequest{
				CustomerID:  customerID,
				Amount:      decimal.NewFromInt(amount),
				Kind:        "d",
				Description: "load",
			})
			switch status.Code(err) {
			case codes.OK:
				atomic.AddInt64(&res.ok, 1)
			case codes.FailedPrecondition:
				atomic.AddInt64(&res.limited, 1)
			case codes.Aborted:
				atomic.AddInt64(&res.conflicts, 1)
			default:
				if atomic.AddInt64(&res.failed, 1)%1000 == 1 {
					log.Warn().Err(err).Int("index", idx).Msg("debit failed")
				}
			}
		}(i)
	}
	wg.Wait()
	res.elapsed = time.Since(start)
	return res
}
