package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// Client LedgerService 的 client，每次呼叫都會指定 ledgerrpc 的 proto codec
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetAccount(ctx context.Context, in *GetAccountRequest, opts ...grpc.CallOption) (*AccountReply, error) {
	return invoke[AccountReply](ctx, c.cc, "GetAccount", in, opts)
}

func (c *Client) Withdraw(ctx context.Context, in *WithdrawRequest, opts ...grpc.CallOption) (*TransactionReply, error) {
	return invoke[TransactionReply](ctx, c.cc, "Withdraw", in, opts)
}

func (c *Client) Deposit(ctx context.Context, in *DepositRequest, opts ...grpc.CallOption) (*TransactionReply, error) {
	return invoke[TransactionReply](ctx, c.cc, "Deposit", in, opts)
}

func (c *Client) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransactionReply, error) {
	return invoke[TransactionReply](ctx, c.cc, "Transfer", in, opts)
}

func (c *Client) ListTransactions(ctx context.Context, in *ListTransactionsRequest, opts ...grpc.CallOption) (*ListTransactionsReply, error) {
	return invoke[ListTransactionsReply](ctx, c.cc, "ListTransactions", in, opts)
}

func (c *Client) VerifyPIN(ctx context.Context, in *VerifyPINRequest, opts ...grpc.CallOption) (*VerifyPINReply, error) {
	return invoke[VerifyPINReply](ctx, c.cc, "VerifyPIN", in, opts)
}

func (c *Client) OpenAccount(ctx context.Context, in *OpenAccountRequest, opts ...grpc.CallOption) (*OpenAccountReply, error) {
	return invoke[OpenAccountReply](ctx, c.cc, "OpenAccount", in, opts)
}
