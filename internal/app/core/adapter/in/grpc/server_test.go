package grpc_test

import (
	"context"
	"net"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	grpc_adapter "github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/in/grpc"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/out/cache"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/adapter/out/memory"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-atm-ledger/pkg/ledgerrpc"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newTestClient(t *testing.T) *ledgerrpc.Client {
	t.Helper()
	ledger, err := memory.NewMutexLedger(map[int64]*domain.Account{
		1: domain.NewAccount(1, "alice", dec("500"), domain.AccountKindCurrent),
		2: domain.NewAccount(2, "bob", dec("150"), domain.AccountKindSavings),
	})
	require.NoError(t, err)

	core := usecase.NewCoreUseCase(ledger, cache.NewMemoryCache(), zap.NewNop())
	executor := usecase.NewExecutor(core, usecase.ExecutorOptions{Workers: 4, QueueSize: 16}, zap.NewNop())
	executor.Start(context.Background())
	t.Cleanup(executor.Close)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer(grpc.UnaryInterceptor(grpc_adapter.UnaryLoggingInterceptor(zap.NewNop())))
	ledgerrpc.RegisterLedgerServiceServer(srv, grpc_adapter.NewGrpcServer(core, executor, zap.NewNop()))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return ledgerrpc.NewClient(conn)
}

func TestWithdrawAndGetAccount(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	reply, err := c.Withdraw(ctx, &ledgerrpc.WithdrawRequest{AccountID: 1, Amount: dec("1200")})
	require.NoError(t, err)
	assert.True(t, reply.Success)
	assert.True(t, reply.CurrentBalance.Equal(dec("-700")))
	_, err = uuid.Parse(reply.RefID)
	assert.NoError(t, err)

	reply, err = c.Withdraw(ctx, &ledgerrpc.WithdrawRequest{AccountID: 1, Amount: dec("301")})
	require.NoError(t, err)
	assert.False(t, reply.Success)
	assert.Equal(t, "INSUFFICIENT_FUNDS", reply.ErrorCode)

	acc, err := c.GetAccount(ctx, &ledgerrpc.GetAccountRequest{AccountID: 1})
	require.NoError(t, err)
	assert.Equal(t, "CURRENT", acc.Type)
	assert.True(t, acc.Balance.Equal(dec("-700")))
}

func TestTransferSoftFailures(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	tests := []struct {
		name string
		req  *ledgerrpc.TransferRequest
		code string
	}{
		{"missing destination", &ledgerrpc.TransferRequest{FromAccountID: 1, ToAccountID: 3, Amount: dec("200")}, "NOT_FOUND"},
		{"self transfer", &ledgerrpc.TransferRequest{FromAccountID: 1, ToAccountID: 1, Amount: dec("1")}, "INVALID_OPERATION"},
		{"negative amount", &ledgerrpc.TransferRequest{FromAccountID: 1, ToAccountID: 2, Amount: dec("-1")}, "INVALID_AMOUNT"},
		{"bad ref id", &ledgerrpc.TransferRequest{RefID: "nope", FromAccountID: 1, ToAccountID: 2, Amount: dec("1")}, "INVALID_OPERATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reply, err := c.Transfer(ctx, tt.req)
			require.NoError(t, err)
			assert.False(t, reply.Success)
			assert.Equal(t, tt.code, reply.ErrorCode)
			assert.NotEmpty(t, reply.Message)
		})
	}

	acc, err := c.GetAccount(ctx, &ledgerrpc.GetAccountRequest{AccountID: 1})
	require.NoError(t, err)
	assert.True(t, acc.Balance.Equal(dec("500")))
}

func TestTransferIsIdempotentPerRefID(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	refID := uuid.NewString()
	for i := 0; i < 3; i++ {
		reply, err := c.Transfer(ctx, &ledgerrpc.TransferRequest{RefID: refID, FromAccountID: 1, ToAccountID: 2, Amount: dec("100")})
		require.NoError(t, err)
		require.True(t, reply.Success, reply.Message)
		assert.Equal(t, refID, reply.RefID)
		assert.True(t, reply.CurrentBalance.Equal(dec("400")))
	}

	out, err := c.ListTransactions(ctx, &ledgerrpc.ListTransactionsRequest{AccountID: 1})
	require.NoError(t, err)
	require.Len(t, out.Records, 1)
	assert.Equal(t, "TRANSFER_OUT", out.Records[0].Type)
	assert.Equal(t, "Transfer to 2", out.Records[0].Remark)

	in, err := c.ListTransactions(ctx, &ledgerrpc.ListTransactionsRequest{AccountID: 2})
	require.NoError(t, err)
	require.Len(t, in.Records, 1)
	assert.Equal(t, refID, in.Records[0].RefID)
}

func TestGetAccountNotFound(t *testing.T) {
	c := newTestClient(t)

	_, err := c.GetAccount(context.Background(), &ledgerrpc.GetAccountRequest{AccountID: 404})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestOpenAccountAndVerifyPIN(t *testing.T) {
	ctx := context.Background()
	c := newTestClient(t)

	opened, err := c.OpenAccount(ctx, &ledgerrpc.OpenAccountRequest{
		AccountID: 7, OwnerName: "grace", Type: "savings", InitialBalance: dec("250"), PIN: "1234",
	})
	require.NoError(t, err)
	require.True(t, opened.Success, opened.Message)

	dup, err := c.OpenAccount(ctx, &ledgerrpc.OpenAccountRequest{AccountID: 7, OwnerName: "x", Type: "CURRENT"})
	require.NoError(t, err)
	assert.False(t, dup.Success)
	assert.Equal(t, "ALREADY_EXISTS", dup.ErrorCode)

	low, err := c.OpenAccount(ctx, &ledgerrpc.OpenAccountRequest{AccountID: 8, OwnerName: "y", Type: "SAVINGS", InitialBalance: dec("50")})
	require.NoError(t, err)
	assert.Equal(t, "INSUFFICIENT_FUNDS", low.ErrorCode)

	badKind, err := c.OpenAccount(ctx, &ledgerrpc.OpenAccountRequest{AccountID: 9, OwnerName: "z", Type: "GOLD"})
	require.NoError(t, err)
	assert.Equal(t, "INVALID_OPERATION", badKind.ErrorCode)

	ok, err := c.VerifyPIN(ctx, &ledgerrpc.VerifyPINRequest{AccountID: 7, PIN: "1234"})
	require.NoError(t, err)
	assert.True(t, ok.Success)

	wrong, err := c.VerifyPIN(ctx, &ledgerrpc.VerifyPINRequest{AccountID: 7, PIN: "0000"})
	require.NoError(t, err)
	assert.False(t, wrong.Success)
	assert.Equal(t, "PIN_MISMATCH", wrong.ErrorCode)

	unset, err := c.VerifyPIN(ctx, &ledgerrpc.VerifyPINRequest{AccountID: 1, PIN: "1234"})
	require.NoError(t, err)
	assert.Equal(t, "PIN_NOT_SET", unset.ErrorCode)
}
