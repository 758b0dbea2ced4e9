package grpc

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-atm-ledger/pkg/ledgerrpc"
)

// GrpcServer 實作 ledgerrpc.LedgerServiceServer
//
// 讀取直接走 CoreUseCase (可能讀到快取)，寫入一律送進 Executor 排隊執行
type GrpcServer struct {
	core     *usecase.CoreUseCase
	executor *usecase.Executor
	logger   *zap.Logger
}

func NewGrpcServer(core *usecase.CoreUseCase, executor *usecase.Executor, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcServer{
		core:     core,
		executor: executor,
		logger:   logger,
	}
}

func (s *GrpcServer) GetAccount(ctx context.Context, req *ledgerrpc.GetAccountRequest) (*ledgerrpc.AccountReply, error) {
	acc, err := s.core.FindAccount(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ledgerrpc.AccountReply{
		AccountID: acc.ID,
		OwnerName: acc.OwnerName,
		Balance:   acc.Balance,
		Type:      string(acc.Kind),
	}, nil
}

func (s *GrpcServer) Withdraw(ctx context.Context, req *ledgerrpc.WithdrawRequest) (*ledgerrpc.TransactionReply, error) {
	op := domain.NewWithdraw(req.AccountID, req.Amount)
	op.Remark = req.Remark
	return s.submit(ctx, req.RefID, op, req.AccountID)
}

func (s *GrpcServer) Deposit(ctx context.Context, req *ledgerrpc.DepositRequest) (*ledgerrpc.TransactionReply, error) {
	op := domain.NewDeposit(req.AccountID, req.Amount)
	op.Remark = req.Remark
	return s.submit(ctx, req.RefID, op, req.AccountID)
}

func (s *GrpcServer) Transfer(ctx context.Context, req *ledgerrpc.TransferRequest) (*ledgerrpc.TransactionReply, error) {
	op := domain.NewTransfer(req.FromAccountID, req.ToAccountID, req.Amount)
	return s.submit(ctx, req.RefID, op, req.FromAccountID)
}

// submit 送進 Executor 並等待結果
//
// 參數:
//
//	rawRefID: client 指定的 RefID，空字串沿用 op 產生的
//	op: 交易請求
//	balanceOf: 成功後回傳哪個帳戶的餘額
func (s *GrpcServer) submit(ctx context.Context, rawRefID string, op *domain.Operation, balanceOf int64) (*ledgerrpc.TransactionReply, error) {
	// 1. UUID 解析
	if rawRefID != "" {
		refID, err := uuid.Parse(rawRefID)
		if err != nil {
			return softFailure(fmt.Errorf("%w: invalid ref_id: %w", domain.ErrInvalidOperation, err), rawRefID), nil
		}
		op.RefID = refID
	}

	// 2. 執行交易
	if err := s.executor.Do(ctx, op); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			// client 已放棄等待，交易仍會在背景完成
			return nil, status.FromContextError(ctxErr).Err()
		}
		// 業務邏輯錯誤，回傳 Success=false (Soft Failure)
		return softFailure(err, op.RefID.String()), nil
	}

	// 3. 取得最新餘額 (Best Effort)
	reply := &ledgerrpc.TransactionReply{
		Success: true,
		RefID:   op.RefID.String(),
	}
	if acc, err := s.core.LatestAccount(ctx, balanceOf); err == nil {
		reply.CurrentBalance = acc.Balance
	} else {
		s.logger.Warn("read balance after commit failed", zap.Int64("account_id", balanceOf), zap.Error(err))
	}
	return reply, nil
}

func (s *GrpcServer) ListTransactions(ctx context.Context, req *ledgerrpc.ListTransactionsRequest) (*ledgerrpc.ListTransactionsReply, error) {
	records, err := s.core.ListTransactions(ctx, req.AccountID)
	if err != nil {
		return nil, toStatus(err)
	}
	reply := &ledgerrpc.ListTransactionsReply{Records: make([]ledgerrpc.TransactionRecord, 0, len(records))}
	for _, rec := range records {
		reply.Records = append(reply.Records, ledgerrpc.TransactionRecord{
			ID:        rec.ID,
			RefID:     rec.RefID.String(),
			AccountID: rec.AccountID,
			Timestamp: rec.Timestamp,
			Type:      string(rec.Type),
			Amount:    rec.Amount,
			Remark:    rec.Remark,
		})
	}
	return reply, nil
}

func (s *GrpcServer) VerifyPIN(ctx context.Context, req *ledgerrpc.VerifyPINRequest) (*ledgerrpc.VerifyPINReply, error) {
	if err := s.core.VerifyPIN(ctx, req.AccountID, req.PIN); err != nil {
		if errors.Is(err, domain.ErrStore) {
			return nil, toStatus(err)
		}
		return &ledgerrpc.VerifyPINReply{
			ErrorCode: domain.ErrorCode(err),
			Message:   err.Error(),
		}, nil
	}
	return &ledgerrpc.VerifyPINReply{Success: true}, nil
}

func (s *GrpcServer) OpenAccount(ctx context.Context, req *ledgerrpc.OpenAccountRequest) (*ledgerrpc.OpenAccountReply, error) {
	kind, err := domain.ParseAccountKind(req.Type)
	if err != nil {
		return &ledgerrpc.OpenAccountReply{ErrorCode: domain.ErrorCode(err), Message: err.Error()}, nil
	}
	acc := domain.NewAccount(req.AccountID, req.OwnerName, req.InitialBalance, kind)
	if err := s.core.OpenAccount(ctx, acc, req.PIN); err != nil {
		return &ledgerrpc.OpenAccountReply{ErrorCode: domain.ErrorCode(err), Message: err.Error()}, nil
	}
	return &ledgerrpc.OpenAccountReply{Success: true}, nil
}

func softFailure(err error, refID string) *ledgerrpc.TransactionReply {
	return &ledgerrpc.TransactionReply{
		Success:   false,
		ErrorCode: domain.ErrorCode(err),
		Message:   err.Error(),
		RefID:     refID,
	}
}

// toStatus 將 domain 錯誤轉成 gRPC status (讀取類 API 使用)
func toStatus(err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInvalidAmount), errors.Is(err, domain.ErrInvalidOperation):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrLockTimeout):
		code = codes.DeadlineExceeded
	case errors.Is(err, domain.ErrStore), errors.Is(err, domain.ErrExecutorClosed):
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

var _ ledgerrpc.LedgerServiceServer = (*GrpcServer)(nil)
