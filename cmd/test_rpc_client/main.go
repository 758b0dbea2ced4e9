package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JoeShih716/go-atm-ledger/pkg/grpc"
	"github.com/JoeShih716/go-atm-ledger/pkg/ledgerrpc"
)

// 對 ledger server 做循環轉帳壓測 (1->2->3->1 ...)，檢查 deadlock 與總額守恆
func main() {
	target := flag.String("target", "localhost:50051", "ledger server address")
	total := flag.Int("n", 10000, "total transfers")
	concurrency := flag.Int("c", 100, "concurrent clients")
	accountsFlag := flag.Int64("accounts", 3, "account ids 1..N are used in a cycle")
	amountFlag := flag.String("amount", "1", "amount per transfer")
	timeout := flag.Duration("timeout", 120*time.Second, "overall timeout")
	flag.Parse()

	zl, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	amount, err := decimal.NewFromString(*amountFlag)
	if err != nil {
		zl.Fatal("invalid amount", zap.Error(err))
	}
	if *accountsFlag < 2 {
		zl.Fatal("need at least 2 accounts")
	}

	pool := grpc.NewPool(grpc.WithCallOptions(ledgerrpc.CallOption()))
	defer func() { _ = pool.Close() }()
	conn, err := pool.GetConnection(*target)
	if err != nil {
		zl.Fatal("did not connect", zap.Error(err))
	}
	c := ledgerrpc.NewClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var (
		succeeded atomic.Int64
		rejected  atomic.Int64
		failed    atomic.Int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	startTime := time.Now()
	for i := 0; i < *total; i++ {
		from := int64(i)%*accountsFlag + 1
		to := from%*accountsFlag + 1
		g.Go(func() error {
			reply, err := c.Transfer(gctx, &ledgerrpc.TransferRequest{
				RefID:         uuid.NewString(),
				FromAccountID: from,
				ToAccountID:   to,
				Amount:        amount,
			})
			switch {
			case err != nil:
				if failed.Add(1)%1000 == 1 {
					zl.Warn("transfer rpc failed", zap.Int64("from", from), zap.Int64("to", to), zap.Error(err))
				}
			case !reply.Success:
				rejected.Add(1)
			default:
				succeeded.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(startTime)

	net, pairs, err := transferNet(ctx, c, *accountsFlag)
	if err != nil {
		zl.Fatal("read transactions", zap.Error(err))
	}

	fmt.Printf("Completed %d requests in %v\n", *total, elapsed)
	fmt.Printf("TPS: %.2f\n", float64(*total)/elapsed.Seconds())
	fmt.Printf("succeeded=%d rejected=%d rpc_failed=%d\n", succeeded.Load(), rejected.Load(), failed.Load())
	fmt.Printf("transfer records: out=%d in=%d net=%s conserved=%t\n", pairs[0], pairs[1], net, net.IsZero() && pairs[0] == pairs[1])
}

// transferNet 讀交易紀錄 (不經過快取)，所有帳戶 TRANSFER_IN 減 TRANSFER_OUT 應該為 0
func transferNet(ctx context.Context, c *ledgerrpc.Client, n int64) (decimal.Decimal, [2]int, error) {
	net := decimal.Zero
	var pairs [2]int
	for id := int64(1); id <= n; id++ {
		reply, err := c.ListTransactions(ctx, &ledgerrpc.ListTransactionsRequest{AccountID: id})
		if err != nil {
			return decimal.Zero, pairs, fmt.Errorf("account %d: %w", id, err)
		}
		for _, rec := range reply.Records {
			switch rec.Type {
			case "TRANSFER_OUT":
				net = net.Sub(rec.Amount)
				pairs[0]++
			case "TRANSFER_IN":
				net = net.Add(rec.Amount)
				pairs[1]++
			}
		}
	}
	return net, pairs, nil
}
