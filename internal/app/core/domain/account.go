package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AccountKind 帳戶類型，建立後不可變更，決定提款規則
type AccountKind string

const (
	// 儲蓄帳戶：需保留最低餘額
	AccountKindSavings AccountKind = "SAVINGS"
	// 活期帳戶：允許透支到額度為止
	AccountKindCurrent AccountKind = "CURRENT"
)

var (
	// SavingsMinimumBalance 儲蓄帳戶最低餘額
	SavingsMinimumBalance = decimal.NewFromInt(100)
	// CurrentOverdraftLimit 活期帳戶透支額度
	CurrentOverdraftLimit = decimal.NewFromInt(1000)
)

// ParseAccountKind 解析資料庫或設定檔中的帳戶類型 (不分大小寫)
func ParseAccountKind(raw string) (AccountKind, error) {
	switch AccountKind(strings.ToUpper(strings.TrimSpace(raw))) {
	case AccountKindSavings:
		return AccountKindSavings, nil
	case AccountKindCurrent:
		return AccountKindCurrent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownAccountKind, raw)
	}
}

// Floor 回傳該類型帳戶提款後餘額的下限
func (k AccountKind) Floor() (decimal.Decimal, bool) {
	switch k {
	case AccountKindSavings:
		return SavingsMinimumBalance, true
	case AccountKindCurrent:
		return CurrentOverdraftLimit.Neg(), true
	default:
		return decimal.Decimal{}, false
	}
}

// Account 帳戶快照，不是權威資料；真正的餘額以 Ledger 為準
type Account struct {
	ID        int64           `json:"account_id"`
	OwnerName string          `json:"owner_name"`
	Balance   decimal.Decimal `json:"balance"`
	Kind      AccountKind     `json:"kind"`
}

func NewAccount(id int64, ownerName string, balance decimal.Decimal, kind AccountKind) *Account {
	return &Account{
		ID:        id,
		OwnerName: ownerName,
		Balance:   balance,
		Kind:      kind,
	}
}

// Clone 複製一份快照，避免跨 goroutine 共用同一個實例
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

// CanWithdraw 判斷提款後是否仍符合帳戶類型的規則 (純函式，不修改狀態)
func (a *Account) CanWithdraw(amount decimal.Decimal) bool {
	floor, ok := a.Kind.Floor()
	if !ok {
		return false
	}
	return a.Balance.Sub(amount).GreaterThanOrEqual(floor)
}

// Withdraw 提款 (只改記憶體快照)
func (a *Account) Withdraw(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}
	if !a.CanWithdraw(amount) {
		floor, _ := a.Kind.Floor()
		return fmt.Errorf("%w: %s account %d balance %s cannot withdraw %s (floor %s)",
			ErrRuleViolation, strings.ToLower(string(a.Kind)), a.ID, a.Balance, amount, floor)
	}

	a.Balance = a.Balance.Sub(amount)
	return nil
}

// Deposit 存款 (只改記憶體快照)
func (a *Account) Deposit(amount decimal.Decimal) error {
	if err := ValidateAmount(amount); err != nil {
		return err
	}

	a.Balance = a.Balance.Add(amount)
	return nil
}

// Validate 檢查開戶資料
func (a *Account) Validate() error {
	floor, ok := a.Kind.Floor()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAccountKind, a.Kind)
	}
	if err := validateScale(a.Balance); err != nil {
		return err
	}
	if a.Balance.LessThan(floor) {
		return fmt.Errorf("%w: opening balance %s below floor %s", ErrRuleViolation, a.Balance, floor)
	}
	return nil
}

func (a *Account) String() string {
	return fmt.Sprintf("Account{id=%d, owner=%q, kind=%s, balance=%s}", a.ID, a.OwnerName, a.Kind, a.Balance)
}

// AmountScale 金額最多的小數位數，與 DECIMAL(19,4) 欄位一致
const AmountScale = 4

// ValidateAmount 金額必須大於 0，且小數位數不超過 AmountScale
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: got %s", ErrInvalidAmount, amount)
	}
	return validateScale(amount)
}

// validateScale 尾端的 0 不算 (1.23400 視為 1.234)
func validateScale(v decimal.Decimal) error {
	if !v.Equal(v.Truncate(AmountScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, v, AmountScale)
	}
	return nil
}
