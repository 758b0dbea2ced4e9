package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLockIDsAscending(t *testing.T) {
	assert.Equal(t, []int64{3, 9}, NewTransfer(9, 3, d("1")).GetLockIDs())
	assert.Equal(t, []int64{3, 9}, NewTransfer(3, 9, d("1")).GetLockIDs())
	assert.Equal(t, []int64{4}, NewWithdraw(4, d("1")).GetLockIDs())
	assert.Equal(t, []int64{5}, NewDeposit(5, d("1")).GetLockIDs())
	assert.Equal(t, []int64{7}, (&Operation{Type: OperationTypeTransfer, From: 7, To: 7}).GetLockIDs())
}

func TestOperationValidate(t *testing.T) {
	assert.NoError(t, NewTransfer(1, 2, d("0.01")).Validate())
	assert.ErrorIs(t, NewTransfer(1, 1, d("5")).Validate(), ErrInvalidOperation)
	assert.ErrorIs(t, NewDeposit(1, d("0")).Validate(), ErrInvalidAmount)
	assert.ErrorIs(t, (&Operation{Type: 42, Amount: d("1")}).Validate(), ErrInvalidOperation)
}

func TestApplyTransfer(t *testing.T) {
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	accounts := map[int64]*Account{
		1: NewAccount(1, "alice", d("500"), AccountKindCurrent),
		2: NewAccount(2, "bob", d("150"), AccountKindSavings),
	}
	op := NewTransfer(1, 2, d("200"))

	records, err := op.Apply(accounts, at)
	require.NoError(t, err)
	require.Len(t, records, 2)

	out, in := records[0], records[1]
	assert.Equal(t, TransactionTypeTransferOut, out.Type)
	assert.Equal(t, int64(1), out.AccountID)
	assert.Equal(t, "Transfer to 2", out.Remark)
	assert.Equal(t, TransactionTypeTransferIn, in.Type)
	assert.Equal(t, int64(2), in.AccountID)
	assert.Equal(t, "Transfer from 1", in.Remark)
	assert.Equal(t, op.RefID, out.RefID)
	assert.Equal(t, op.RefID, in.RefID)
	assert.Equal(t, at, out.Timestamp)
	assert.Equal(t, at, in.Timestamp)

	assert.True(t, accounts[1].Balance.Equal(d("300")))
	assert.True(t, accounts[2].Balance.Equal(d("350")))
}

func TestApplyErrors(t *testing.T) {
	at := time.Now()
	newAccounts := func() map[int64]*Account {
		return map[int64]*Account{
			1: NewAccount(1, "alice", d("500"), AccountKindCurrent),
			2: NewAccount(2, "bob", d("150"), AccountKindSavings),
		}
	}

	tests := []struct {
		name string
		op   *Operation
		want error
	}{
		{"missing destination", NewTransfer(1, 3, d("200")), ErrAccountNotFound},
		{"missing source", NewTransfer(3, 1, d("200")), ErrAccountNotFound},
		{"missing withdraw account", NewWithdraw(8, d("1")), ErrAccountNotFound},
		{"missing deposit account", NewDeposit(8, d("1")), ErrAccountNotFound},
		{"savings floor", NewTransfer(2, 1, d("51")), ErrInsufficientFunds},
		{"overdraft", NewWithdraw(1, d("1500.01")), ErrInsufficientFunds},
		{"self transfer", NewTransfer(2, 2, d("1")), ErrInvalidOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := tt.op.Apply(newAccounts(), at)
			assert.ErrorIs(t, err, tt.want)
			assert.Nil(t, records)
		})
	}
}

func TestApplyRemarks(t *testing.T) {
	accounts := map[int64]*Account{1: NewAccount(1, "alice", d("500"), AccountKindCurrent)}

	records, err := NewWithdraw(1, d("10")).Apply(accounts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, RemarkWithdraw, records[0].Remark)

	dep := NewDeposit(1, d("10"))
	dep.Remark = "branch 12"
	records, err = dep.Apply(accounts, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "branch 12", records[0].Remark)
	assert.Equal(t, TransactionTypeDeposit, records[0].Type)
}

func TestConstructorsAssignRefID(t *testing.T) {
	a, b := NewDeposit(1, d("1")), NewDeposit(1, d("1"))
	assert.NotEqual(t, uuid.Nil, a.RefID)
	assert.NotEqual(t, a.RefID, b.RefID)
	assert.Equal(t, "transfer", OperationTypeTransfer.String())
	assert.Equal(t, "operation(9)", OperationType(9).String())
}
