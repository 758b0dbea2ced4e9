package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestParseAccountKind(t *testing.T) {
	for raw, want := range map[string]AccountKind{
		"SAVINGS":   AccountKindSavings,
		"savings":   AccountKindSavings,
		" Current ": AccountKindCurrent,
	} {
		got, err := ParseAccountKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got)
	}

	_, err := ParseAccountKind("gold")
	assert.ErrorIs(t, err, ErrUnknownAccountKind)
}

func TestCanWithdraw(t *testing.T) {
	tests := []struct {
		name    string
		kind    AccountKind
		balance string
		amount  string
		want    bool
	}{
		{"savings keeps minimum exactly", AccountKindSavings, "150", "50", true},
		{"savings below minimum", AccountKindSavings, "150", "60", false},
		{"savings fractional below minimum", AccountKindSavings, "150", "50.0001", false},
		{"current within overdraft", AccountKindCurrent, "500", "1200", true},
		{"current reaches overdraft limit", AccountKindCurrent, "-700", "300", true},
		{"current beyond overdraft", AccountKindCurrent, "-700", "301", false},
		{"unknown kind never withdraws", AccountKind("GOLD"), "1000000", "1", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc := NewAccount(1, "x", d(tt.balance), tt.kind)
			assert.Equal(t, tt.want, acc.CanWithdraw(d(tt.amount)))
			// CanWithdraw 不改狀態
			assert.True(t, acc.Balance.Equal(d(tt.balance)))
		})
	}
}

func TestWithdrawAndDeposit(t *testing.T) {
	acc := NewAccount(2, "bob", d("150"), AccountKindSavings)

	err := acc.Withdraw(d("60"))
	assert.ErrorIs(t, err, ErrRuleViolation)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.True(t, acc.Balance.Equal(d("150")))

	require.NoError(t, acc.Withdraw(d("50")))
	assert.True(t, acc.Balance.Equal(d("100")))

	require.NoError(t, acc.Deposit(d("0.25")))
	assert.True(t, acc.Balance.Equal(d("100.25")))

	assert.ErrorIs(t, acc.Deposit(decimal.Zero), ErrInvalidAmount)
	assert.ErrorIs(t, acc.Withdraw(d("-1")), ErrInvalidAmount)
	assert.True(t, acc.Balance.Equal(d("100.25")))
}

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		amount string
		valid  bool
	}{
		{"1", true},
		{"0.0001", true},
		{"1.2345", true},
		{"1.23450000", true},
		{"0", false},
		{"-5", false},
		{"0.00001", false},
		{"1.23456", false},
		{"100.00009", false},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			err := ValidateAmount(d(tt.amount))
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidAmount)
		})
	}

	// 超過位數的金額不會動到餘額
	acc := NewAccount(1, "alice", d("500"), AccountKindCurrent)
	assert.ErrorIs(t, acc.Withdraw(d("0.00001")), ErrInvalidAmount)
	assert.ErrorIs(t, acc.Deposit(d("0.00001")), ErrInvalidAmount)
	assert.True(t, acc.Balance.Equal(d("500")))
	assert.ErrorIs(t, NewWithdraw(1, d("0.00001")).Validate(), ErrInvalidAmount)
}

func TestAccountValidate(t *testing.T) {
	assert.NoError(t, NewAccount(1, "a", d("100"), AccountKindSavings).Validate())
	assert.NoError(t, NewAccount(1, "a", d("-1000"), AccountKindCurrent).Validate())
	assert.ErrorIs(t, NewAccount(1, "a", d("99.99"), AccountKindSavings).Validate(), ErrRuleViolation)
	assert.ErrorIs(t, NewAccount(1, "a", d("-1000.01"), AccountKindCurrent).Validate(), ErrRuleViolation)
	assert.ErrorIs(t, NewAccount(1, "a", d("0"), AccountKind("")).Validate(), ErrUnknownAccountKind)
	assert.NoError(t, NewAccount(1, "a", d("150.12340"), AccountKindSavings).Validate())
	assert.ErrorIs(t, NewAccount(1, "a", d("150.00001"), AccountKindSavings).Validate(), ErrInvalidAmount)
}

func TestCloneIsIndependent(t *testing.T) {
	acc := NewAccount(1, "alice", d("500"), AccountKindCurrent)
	cp := acc.Clone()
	require.NoError(t, cp.Withdraw(d("100")))

	assert.True(t, acc.Balance.Equal(d("500")))
	assert.True(t, cp.Balance.Equal(d("400")))
	assert.Nil(t, (*Account)(nil).Clone())
}
