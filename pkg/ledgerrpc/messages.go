package ledgerrpc

import (
	"time"

	"github.com/shopspring/decimal"
)

type GetAccountRequest struct {
	AccountID int64 `json:"account_id"`
}

type AccountReply struct {
	AccountID int64           `json:"account_id"`
	OwnerName string          `json:"owner_name"`
	Balance   decimal.Decimal `json:"balance"`
	Type      string          `json:"type"`
}

// WithdrawRequest RefID 為空時由 server 產生；重送同一個 RefID 只會入帳一次
type WithdrawRequest struct {
	RefID     string          `json:"ref_id,omitempty"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Remark    string          `json:"remark,omitempty"`
}

type DepositRequest struct {
	RefID     string          `json:"ref_id,omitempty"`
	AccountID int64           `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Remark    string          `json:"remark,omitempty"`
}

type TransferRequest struct {
	RefID         string          `json:"ref_id,omitempty"`
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// TransactionReply 業務錯誤 (餘額不足、帳戶不存在...) 以 Success=false 回傳，不使用 gRPC status
type TransactionReply struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
	RefID     string `json:"ref_id"`
	// CurrentBalance: 提款/轉帳為轉出帳戶餘額，存款為存入帳戶餘額 (best effort)
	CurrentBalance decimal.Decimal `json:"current_balance"`
}

type ListTransactionsRequest struct {
	AccountID int64 `json:"account_id"`
}

type TransactionRecord struct {
	ID        int64           `json:"id"`
	RefID     string          `json:"ref_id"`
	AccountID int64           `json:"account_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Remark    string          `json:"remark"`
}

type ListTransactionsReply struct {
	Records []TransactionRecord `json:"records"`
}

type VerifyPINRequest struct {
	AccountID int64  `json:"account_id"`
	PIN       string `json:"pin"`
}

type VerifyPINReply struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

type OpenAccountRequest struct {
	AccountID      int64           `json:"account_id"`
	OwnerName      string          `json:"owner_name"`
	Type           string          `json:"type"`
	InitialBalance decimal.Decimal `json:"initial_balance"`
	PIN            string          `json:"pin,omitempty"`
}

type OpenAccountReply struct {
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
	Message   string `json:"message,omitempty"`
}
