package usecase

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-atm-ledger/pkg/pin"
)

// CoreUseCase 是核心業務邏輯層，呈現層 (gRPC / CLI) 只透過它操作帳務
type CoreUseCase struct {
	ledger Ledger
	cache  AccountCache
	logger *zap.Logger
	// refreshOnWrite 交易成功後是否重新讀取並寫入快取 (預設關閉，只有讀取路徑會寫快取)
	refreshOnWrite bool
}

// CoreOption 設定 CoreUseCase 的選項
type CoreOption func(*CoreUseCase)

// WithRefreshOnWrite 交易成功後主動刷新快取
func WithRefreshOnWrite(enabled bool) CoreOption {
	return func(c *CoreUseCase) {
		c.refreshOnWrite = enabled
	}
}

func NewCoreUseCase(ledger Ledger, cache AccountCache, logger *zap.Logger, opts ...CoreOption) *CoreUseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CoreUseCase{
		ledger: ledger,
		cache:  cache,
		logger: logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindAccount 先查快取，沒有再查 Ledger 並寫回快取 (read-through)
func (c *CoreUseCase) FindAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	if c.cache != nil {
		if acc, ok := c.cache.Get(ctx, accountID); ok {
			return acc, nil
		}
	}
	return c.RefreshAccount(ctx, accountID)
}

// RefreshAccount 直接從 Ledger 讀取最新快照並覆蓋快取
func (c *CoreUseCase) RefreshAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	acc, err := c.ledger.FindAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Put(ctx, acc)
	}
	return acc, nil
}

// LatestAccount 直接讀 Ledger，不讀也不寫快取
func (c *CoreUseCase) LatestAccount(ctx context.Context, accountID int64) (*domain.Account, error) {
	return c.ledger.FindAccount(ctx, accountID)
}

// Execute 執行一筆交易 (Executor 的 worker 會呼叫這裡)
func (c *CoreUseCase) Execute(ctx context.Context, op *domain.Operation) error {
	if err := op.Validate(); err != nil {
		return err
	}
	if err := c.ledger.PostTransaction(ctx, op); err != nil {
		return err
	}
	if c.refreshOnWrite {
		for _, id := range op.GetLockIDs() {
			if _, err := c.RefreshAccount(ctx, id); err != nil {
				// 交易已經 commit，刷新失敗只記錄
				c.logger.Warn("refresh cache after write failed",
					zap.Int64("account_id", id),
					zap.Stringer("ref_id", op.RefID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// Withdraw 提款
func (c *CoreUseCase) Withdraw(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	return c.Execute(ctx, domain.NewWithdraw(accountID, amount))
}

// Deposit 存款
func (c *CoreUseCase) Deposit(ctx context.Context, accountID int64, amount decimal.Decimal) error {
	return c.Execute(ctx, domain.NewDeposit(accountID, amount))
}

// Transfer 轉帳
func (c *CoreUseCase) Transfer(ctx context.Context, fromID, toID int64, amount decimal.Decimal) error {
	return c.Execute(ctx, domain.NewTransfer(fromID, toID, amount))
}

// ListTransactions 列出交易紀錄 (新的在前)
func (c *CoreUseCase) ListTransactions(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error) {
	return c.ledger.ListTransactions(ctx, accountID)
}

// OpenAccount 開戶，pinCode 為空表示不設定 PIN
func (c *CoreUseCase) OpenAccount(ctx context.Context, account *domain.Account, pinCode string) error {
	if err := account.Validate(); err != nil {
		return err
	}
	var pinHash string
	if pinCode != "" {
		hash, err := pin.Hash(pinCode)
		if err != nil {
			return err
		}
		pinHash = hash
	}
	return c.ledger.CreateAccount(ctx, account, pinHash)
}

// VerifyPIN 驗證帳戶 PIN
//
// 回傳:
//
//	nil: 驗證成功
//	domain.ErrAccountNotFound / domain.ErrPINNotSet / domain.ErrPINMismatch / domain.ErrStore
func (c *CoreUseCase) VerifyPIN(ctx context.Context, accountID int64, pinCode string) error {
	hash, err := c.ledger.GetPINHash(ctx, accountID)
	if err != nil {
		return err
	}
	if err := pin.Compare(hash, pinCode); err != nil {
		if errors.Is(err, pin.ErrMismatch) {
			return domain.ErrPINMismatch
		}
		return err
	}
	return nil
}
