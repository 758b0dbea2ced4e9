package domain

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrInvalidAmount 金額必須為正數
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrInsufficientFunds 餘額不足 (帳戶規則不允許提款)
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrRuleViolation 帳戶類型的提款規則不通過，屬於 ErrInsufficientFunds
	ErrRuleViolation = fmt.Errorf("%w: withdrawal rule violated", ErrInsufficientFunds)

	// ErrAccountNotFound 找不到帳戶
	ErrAccountNotFound = errors.New("account not found")

	// ErrAccountAlreadyExists 帳戶已存在
	ErrAccountAlreadyExists = errors.New("account already exists")

	// ErrInvalidOperation 請求格式錯誤 (例如轉帳給自己)
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnknownAccountKind 無法辨識的帳戶類型
	ErrUnknownAccountKind = errors.New("unknown account kind")

	// ErrStore 儲存層錯誤 (連線、鎖等待逾時、約束違反)
	ErrStore = errors.New("ledger store failure")

	// ErrLockTimeout 等待 row lock 逾時
	ErrLockTimeout = fmt.Errorf("%w: lock wait timeout", ErrStore)

	// ErrWALWriteFailed 寫入 WAL 失敗
	ErrWALWriteFailed = fmt.Errorf("%w: wal write failed", ErrStore)

	// ErrPINNotSet 帳戶尚未設定 PIN
	ErrPINNotSet = errors.New("pin not set")

	// ErrPINMismatch PIN 錯誤
	ErrPINMismatch = errors.New("invalid pin")

	// ErrExecutorClosed executor 已關閉，不再接受新交易
	ErrExecutorClosed = errors.New("executor closed")
)

// NewStoreError 將基礎設施錯誤包裝成 ErrStore，domain 錯誤原樣回傳
func NewStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if isClassified(err) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrLockTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStore, err)
}

// isClassified 判斷錯誤是否已經是 ledger 定義的錯誤 (不需要再包一層)
func isClassified(err error) bool {
	for _, target := range []error{
		ErrInvalidAmount,
		ErrInsufficientFunds,
		ErrAccountNotFound,
		ErrAccountAlreadyExists,
		ErrInvalidOperation,
		ErrUnknownAccountKind,
		ErrStore,
		ErrPINNotSet,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// ErrorCode 回傳錯誤對應的穩定代碼，給 transport 層使用
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount):
		return "INVALID_AMOUNT"
	case errors.Is(err, ErrInsufficientFunds):
		return "INSUFFICIENT_FUNDS"
	case errors.Is(err, ErrAccountNotFound):
		return "NOT_FOUND"
	case errors.Is(err, ErrAccountAlreadyExists):
		return "ALREADY_EXISTS"
	case errors.Is(err, ErrInvalidOperation), errors.Is(err, ErrUnknownAccountKind):
		return "INVALID_OPERATION"
	case errors.Is(err, ErrLockTimeout):
		return "LOCK_TIMEOUT"
	case errors.Is(err, ErrStore):
		return "STORE_ERROR"
	case errors.Is(err, ErrPINNotSet):
		return "PIN_NOT_SET"
	case errors.Is(err, ErrPINMismatch):
		return "PIN_MISMATCH"
	case errors.Is(err, ErrExecutorClosed):
		return "UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}
