package ledgerrpc

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func TestCodecReplacesDefaultProtoCodec(t *testing.T) {
	c := encoding.GetCodec(CodecName)
	require.NotNil(t, c)
	assert.IsType(t, codec{}, c)
}

// decodeFields 把一個訊息拆成 欄位編號 -> 原始值，檢查編號與 ledger.proto 一致
func decodeFields(t *testing.T, b []byte) map[protowire.Number]any {
	t.Helper()
	fields := make(map[protowire.Number]any)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.Positive(t, n)
		b = b[n:]
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			require.Positive(t, n)
			fields[num] = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			require.Positive(t, n)
			fields[num] = v
			b = b[n:]
		default:
			t.Fatalf("unexpected wire type %d for field %d", typ, num)
		}
	}
	return fields
}

func TestTransferRequestFieldNumbers(t *testing.T) {
	in := &TransferRequest{
		RefID:         "4c2b8d0e-7f3a-4c1e-9d5b-1a2b3c4d5e6f",
		FromAccountID: 1,
		ToAccountID:   2,
		Amount:        decimal.RequireFromString("1200.5"),
	}
	raw, err := codec{}.Marshal(in)
	require.NoError(t, err)

	assert.Equal(t, map[protowire.Number]any{
		1: "4c2b8d0e-7f3a-4c1e-9d5b-1a2b3c4d5e6f",
		2: uint64(1),
		3: uint64(2),
		4: "1200.5",
	}, decodeFields(t, raw))

	var out TransferRequest
	require.NoError(t, codec{}.Unmarshal(raw, &out))
	assert.True(t, in.Amount.Equal(out.Amount))
	assert.Equal(t, in.RefID, out.RefID)
	assert.Equal(t, int64(2), out.ToAccountID)
}

func TestZeroValuesAreNotSent(t *testing.T) {
	raw, err := codec{}.Marshal(&TransactionReply{RefID: "r"})
	require.NoError(t, err)
	assert.Equal(t, map[protowire.Number]any{4: "r"}, decodeFields(t, raw))

	raw, err = codec{}.Marshal(&GetAccountRequest{})
	require.NoError(t, err)
	assert.Empty(t, raw)
}

func TestNegativeBalanceAndAccountID(t *testing.T) {
	in := &AccountReply{AccountID: -3, OwnerName: "alice", Balance: decimal.RequireFromString("-700"), Type: "CURRENT"}
	raw, err := codec{}.Marshal(in)
	require.NoError(t, err)

	var out AccountReply
	require.NoError(t, codec{}.Unmarshal(raw, &out))
	assert.Equal(t, int64(-3), out.AccountID)
	assert.True(t, out.Balance.Equal(decimal.RequireFromString("-700")))
	assert.Equal(t, "CURRENT", out.Type)
}

func TestListTransactionsReplyCarriesRecords(t *testing.T) {
	at := time.Date(2026, 3, 1, 8, 30, 0, 123000000, time.UTC)
	in := &ListTransactionsReply{Records: []TransactionRecord{
		{ID: 2, RefID: "b", AccountID: 1, Timestamp: at, Type: "TRANSFER_OUT", Amount: decimal.RequireFromString("0.0001"), Remark: "Transfer to 2"},
		{ID: 1, RefID: "a", AccountID: 1, Type: "DEPOSIT", Amount: decimal.RequireFromString("10")},
	}}
	raw, err := codec{}.Marshal(in)
	require.NoError(t, err)

	var out ListTransactionsReply
	require.NoError(t, codec{}.Unmarshal(raw, &out))
	require.Len(t, out.Records, 2)
	assert.True(t, at.Equal(out.Records[0].Timestamp))
	assert.True(t, out.Records[0].Amount.Equal(decimal.RequireFromString("0.0001")))
	assert.Equal(t, "Transfer to 2", out.Records[0].Remark)
	assert.True(t, out.Records[1].Timestamp.IsZero())
	assert.Equal(t, "DEPOSIT", out.Records[1].Type)
}

func TestSharedLayoutMessages(t *testing.T) {
	raw, err := codec{}.Marshal(&DepositRequest{AccountID: 4, Amount: decimal.RequireFromString("5"), Remark: "cash"})
	require.NoError(t, err)
	var dep DepositRequest
	require.NoError(t, codec{}.Unmarshal(raw, &dep))
	assert.Equal(t, int64(4), dep.AccountID)
	assert.Equal(t, "cash", dep.Remark)

	raw, err = codec{}.Marshal(&VerifyPINReply{Success: false, ErrorCode: "PIN_MISMATCH", Message: "no"})
	require.NoError(t, err)
	var opened OpenAccountReply
	require.NoError(t, codec{}.Unmarshal(raw, &opened))
	assert.Equal(t, "PIN_MISMATCH", opened.ErrorCode)
}

func TestUnknownFieldsAreSkipped(t *testing.T) {
	raw, err := codec{}.Marshal(&GetAccountRequest{AccountID: 9})
	require.NoError(t, err)
	raw = protowire.AppendTag(raw, 42, protowire.BytesType)
	raw = protowire.AppendString(raw, "from a newer client")
	raw = protowire.AppendTag(raw, 43, protowire.VarintType)
	raw = protowire.AppendVarint(raw, 7)

	var out GetAccountRequest
	require.NoError(t, codec{}.Unmarshal(raw, &out))
	assert.Equal(t, int64(9), out.AccountID)
}

func TestMalformedInput(t *testing.T) {
	// field 1 宣告長度 5 但只有 1 個位元組
	var tr TransferRequest
	assert.Error(t, codec{}.Unmarshal([]byte{0x0a, 0x05, 'a'}, &tr))

	bad := protowire.AppendTag(nil, 4, protowire.BytesType)
	bad = protowire.AppendString(bad, "12abc")
	err := codec{}.Unmarshal(bad, &tr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid decimal")
}

func TestProtoMessagesUseProtobuf(t *testing.T) {
	in := timestamppb.New(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	raw, err := codec{}.Marshal(in)
	require.NoError(t, err)

	var out timestamppb.Timestamp
	require.NoError(t, codec{}.Unmarshal(raw, &out))
	assert.True(t, in.AsTime().Equal(out.AsTime()))

	_, err = codec{}.Marshal(struct{}{})
	assert.Error(t, err)
}
