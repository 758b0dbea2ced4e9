package ledgerrpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName 完整的 gRPC service 名稱
const ServiceName = "ledger.v1.LedgerService"

// LedgerServiceServer server 端需要實作的介面
type LedgerServiceServer interface {
	GetAccount(context.Context, *GetAccountRequest) (*AccountReply, error)
	Withdraw(context.Context, *WithdrawRequest) (*TransactionReply, error)
	Deposit(context.Context, *DepositRequest) (*TransactionReply, error)
	Transfer(context.Context, *TransferRequest) (*TransactionReply, error)
	ListTransactions(context.Context, *ListTransactionsRequest) (*ListTransactionsReply, error)
	VerifyPIN(context.Context, *VerifyPINRequest) (*VerifyPINReply, error)
	OpenAccount(context.Context, *OpenAccountRequest) (*OpenAccountReply, error)
}

// ServiceDesc 對應 proto/ledger/v1/ledger.proto 的 service descriptor
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAccount", Handler: unaryHandler("GetAccount", LedgerServiceServer.GetAccount)},
		{MethodName: "Withdraw", Handler: unaryHandler("Withdraw", LedgerServiceServer.Withdraw)},
		{MethodName: "Deposit", Handler: unaryHandler("Deposit", LedgerServiceServer.Deposit)},
		{MethodName: "Transfer", Handler: unaryHandler("Transfer", LedgerServiceServer.Transfer)},
		{MethodName: "ListTransactions", Handler: unaryHandler("ListTransactions", LedgerServiceServer.ListTransactions)},
		{MethodName: "VerifyPIN", Handler: unaryHandler("VerifyPIN", LedgerServiceServer.VerifyPIN)},
		{MethodName: "OpenAccount", Handler: unaryHandler("OpenAccount", LedgerServiceServer.OpenAccount)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ledger/v1/ledger.proto",
}

// RegisterLedgerServiceServer 註冊到 grpc.Server
func RegisterLedgerServiceServer(s grpc.ServiceRegistrar, srv LedgerServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(LedgerServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod(method),
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
