package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OperationType 交易請求類型
type OperationType uint8

const (
	// 存款
	OperationTypeDeposit OperationType = 1
	// 提款
	OperationTypeWithdraw OperationType = 2
	// 轉帳
	OperationTypeTransfer OperationType = 3
)

func (t OperationType) String() string {
	switch t {
	case OperationTypeDeposit:
		return "deposit"
	case OperationTypeWithdraw:
		return "withdraw"
	case OperationTypeTransfer:
		return "transfer"
	default:
		return fmt.Sprintf("operation(%d)", uint8(t))
	}
}

// TransactionType 交易紀錄類型 (對應 transactions.type 欄位)
type TransactionType string

const (
	TransactionTypeWithdraw    TransactionType = "WITHDRAW"
	TransactionTypeDeposit     TransactionType = "DEPOSIT"
	TransactionTypeTransferOut TransactionType = "TRANSFER_OUT"
	TransactionTypeTransferIn  TransactionType = "TRANSFER_IN"
)

const (
	RemarkWithdraw = "ATM withdraw"
	RemarkDeposit  = "ATM deposit"
)

// TransactionRecord 交易紀錄，只新增不修改
type TransactionRecord struct {
	ID        int64           `json:"id"`
	RefID     uuid.UUID       `json:"ref_id"`
	AccountID int64           `json:"account_id"`
	Timestamp time.Time       `json:"timestamp"`
	Type      TransactionType `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Remark    string          `json:"remark"`
}

// Operation 一次交易請求，對應 Ledger 的一個 unit of work
//
//	Withdraw: 使用 From
//	Deposit:  使用 To
//	Transfer: From -> To
type Operation struct {
	// RefID: 外部追蹤號，同一個 RefID 只會入帳一次
	RefID  uuid.UUID       `json:"ref_id"`
	Type   OperationType   `json:"type"`
	From   int64           `json:"from,omitempty"`
	To     int64           `json:"to,omitempty"`
	Amount decimal.Decimal `json:"amount"`
	// Remark: 提款/存款可自訂備註，空字串使用預設值
	Remark string `json:"remark,omitempty"`
}

func NewWithdraw(accountID int64, amount decimal.Decimal) *Operation {
	return &Operation{RefID: uuid.New(), Type: OperationTypeWithdraw, From: accountID, Amount: amount}
}

func NewDeposit(accountID int64, amount decimal.Decimal) *Operation {
	return &Operation{RefID: uuid.New(), Type: OperationTypeDeposit, To: accountID, Amount: amount}
}

func NewTransfer(fromID, toID int64, amount decimal.Decimal) *Operation {
	return &Operation{RefID: uuid.New(), Type: OperationTypeTransfer, From: fromID, To: toID, Amount: amount}
}

// Validate 檢查請求本身 (不需要讀資料)
func (o *Operation) Validate() error {
	if err := ValidateAmount(o.Amount); err != nil {
		return err
	}
	switch o.Type {
	case OperationTypeDeposit, OperationTypeWithdraw:
		return nil
	case OperationTypeTransfer:
		if o.From == o.To {
			return fmt.Errorf("%w: transfer from account %d to itself", ErrInvalidOperation, o.From)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown operation type %d", ErrInvalidOperation, o.Type)
	}
}

// GetLockIDs 回傳需要鎖定的帳號 ID，由小到大排序以避免死鎖
func (o *Operation) GetLockIDs() (ids []int64) {
	ids = make([]int64, 0, 2)
	switch o.Type {
	case OperationTypeTransfer:
		switch {
		case o.From < o.To:
			ids = append(ids, o.From, o.To)
		case o.From > o.To:
			ids = append(ids, o.To, o.From)
		default:
			ids = append(ids, o.From)
		}
	case OperationTypeDeposit:
		ids = append(ids, o.To)
	case OperationTypeWithdraw:
		ids = append(ids, o.From)
	}
	return ids
}

// Apply 在已鎖定、剛讀出的帳戶快照上套用交易
//
// 參數:
//
//	accounts: 以帳戶 ID 為 key 的快照 (必須是 GetLockIDs 鎖住後讀出的)
//	at: 交易時間
//
// 回傳:
//
//	[]TransactionRecord: 要寫入的交易紀錄 (提款/存款一筆，轉帳兩筆)
//	error: ErrAccountNotFound / ErrInsufficientFunds / ErrInvalidAmount / ErrInvalidOperation
//
// 失敗時快照可能已被部分修改，呼叫端必須整個丟棄 (rollback)
func (o *Operation) Apply(accounts map[int64]*Account, at time.Time) ([]TransactionRecord, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	lookup := func(id int64) (*Account, error) {
		acc, ok := accounts[id]
		if !ok || acc == nil {
			return nil, fmt.Errorf("%w: id %d", ErrAccountNotFound, id)
		}
		return acc, nil
	}
	record := func(accountID int64, t TransactionType, remark string) TransactionRecord {
		return TransactionRecord{
			RefID:     o.RefID,
			AccountID: accountID,
			Timestamp: at,
			Type:      t,
			Amount:    o.Amount,
			Remark:    remark,
		}
	}

	switch o.Type {
	case OperationTypeWithdraw:
		from, err := lookup(o.From)
		if err != nil {
			return nil, err
		}
		if err := from.Withdraw(o.Amount); err != nil {
			return nil, err
		}
		return []TransactionRecord{record(o.From, TransactionTypeWithdraw, o.remarkOr(RemarkWithdraw))}, nil
	case OperationTypeDeposit:
		to, err := lookup(o.To)
		if err != nil {
			return nil, err
		}
		if err := to.Deposit(o.Amount); err != nil {
			return nil, err
		}
		return []TransactionRecord{record(o.To, TransactionTypeDeposit, o.remarkOr(RemarkDeposit))}, nil
	default:
		from, err := lookup(o.From)
		if err != nil {
			return nil, err
		}
		to, err := lookup(o.To)
		if err != nil {
			return nil, err
		}
		if err := from.Withdraw(o.Amount); err != nil {
			return nil, err
		}
		if err := to.Deposit(o.Amount); err != nil {
			return nil, err
		}
		return []TransactionRecord{
			record(o.From, TransactionTypeTransferOut, fmt.Sprintf("Transfer to %d", o.To)),
			record(o.To, TransactionTypeTransferIn, fmt.Sprintf("Transfer from %d", o.From)),
		}, nil
	}
}

func (o *Operation) remarkOr(fallback string) string {
	if o.Remark != "" {
		return o.Remark
	}
	return fallback
}
