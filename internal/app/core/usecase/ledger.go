package usecase

import (
	"context"

	"github.com/JoeShih716/go-atm-ledger/internal/app/core/domain"
)

// Ledger 是帳務系統的儲存層介面，餘額與交易紀錄的唯一權威
type Ledger interface {
	// 不分 Deposit/Withdraw/Transfer，直接看 op.Type 決定；一個 op 是一個 unit of work
	PostTransaction(ctx context.Context, op *domain.Operation) error
	// FindAccount 讀取帳戶快照，找不到回傳 domain.ErrAccountNotFound
	FindAccount(ctx context.Context, accountID int64) (*domain.Account, error)
	// ListTransactions 列出帳戶交易紀錄，新的在前
	ListTransactions(ctx context.Context, accountID int64) ([]domain.TransactionRecord, error)
	// CreateAccount 開戶，pinHash 可為空字串 (未設定 PIN)
	CreateAccount(ctx context.Context, account *domain.Account, pinHash string) error
	// GetPINHash 取得 PIN hash，未設定回傳 domain.ErrPINNotSet
	GetPINHash(ctx context.Context, accountID int64) (string, error)
}

// AccountCache 帳戶快照快取，只是參考用，不保證與 Ledger 一致
type AccountCache interface {
	Get(ctx context.Context, accountID int64) (*domain.Account, bool)
	Put(ctx context.Context, account *domain.Account)
	Remove(ctx context.Context, accountID int64)
}
