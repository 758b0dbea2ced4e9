package ledgerrpc

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// 每個訊息依 proto/ledger/v1/ledger.proto 的欄位編號編解碼 (proto3 規則，零值不送)

// wireMessage 由本套件的訊息實作，codec 靠它決定怎麼編碼
type wireMessage interface {
	appendWire(b []byte) ([]byte, error)
	readWire(b []byte) error
}

// fieldReader 讀取一個欄位的值，回傳用掉的位元組數；回傳 0 表示不認得，由 readFields 跳過
type fieldReader func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func readFields(b []byte, read fieldReader) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := read(num, typ, b)
		if err != nil {
			return fmt.Errorf("ledgerrpc: field %d: %w", num, err)
		}
		if n == 0 {
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func appendInt64(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendDecimal(b []byte, num protowire.Number, v decimal.Decimal) []byte {
	if v.IsZero() {
		return b
	}
	return appendString(b, num, v.String())
}

func appendMessage(b []byte, num protowire.Number, raw []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, raw)
}

func appendTimestamp(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	if t.IsZero() {
		return b, nil
	}
	raw, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, err
	}
	return appendMessage(b, num, raw), nil
}

func readInt64(typ protowire.Type, b []byte, dst *int64) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = int64(v)
	}
	return n
}

func readBool(typ protowire.Type, b []byte, dst *bool) int {
	if typ != protowire.VarintType {
		return 0
	}
	v, n := protowire.ConsumeVarint(b)
	if n > 0 {
		*dst = protowire.DecodeBool(v)
	}
	return n
}

func readString(typ protowire.Type, b []byte, dst *string) int {
	if typ != protowire.BytesType {
		return 0
	}
	v, n := protowire.ConsumeString(b)
	if n > 0 {
		*dst = v
	}
	return n
}

func readDecimal(typ protowire.Type, b []byte, dst *decimal.Decimal) (int, error) {
	var s string
	n := readString(typ, b, &s)
	if n <= 0 || s == "" {
		return n, nil
	}
	v, err := decimal.NewFromString(s)
	if err != nil {
		return n, fmt.Errorf("invalid decimal %q: %w", s, err)
	}
	*dst = v
	return n, nil
}

func readMessage(typ protowire.Type, b []byte, read func(raw []byte) error) (int, error) {
	if typ != protowire.BytesType {
		return 0, nil
	}
	raw, n := protowire.ConsumeBytes(b)
	if n <= 0 {
		return n, nil
	}
	return n, read(raw)
}

func readTimestamp(typ protowire.Type, b []byte, dst *time.Time) (int, error) {
	return readMessage(typ, b, func(raw []byte) error {
		var ts timestamppb.Timestamp
		if err := proto.Unmarshal(raw, &ts); err != nil {
			return err
		}
		*dst = ts.AsTime()
		return nil
	})
}

func (m *GetAccountRequest) appendWire(b []byte) ([]byte, error) {
	return appendInt64(b, 1, m.AccountID), nil
}

func (m *GetAccountRequest) readWire(b []byte) error {
	*m = GetAccountRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readInt64(typ, b, &m.AccountID), nil
		}
		return 0, nil
	})
}

func (m *AccountReply) appendWire(b []byte) ([]byte, error) {
	b = appendInt64(b, 1, m.AccountID)
	b = appendString(b, 2, m.OwnerName)
	b = appendDecimal(b, 3, m.Balance)
	b = appendString(b, 4, m.Type)
	return b, nil
}

func (m *AccountReply) readWire(b []byte) error {
	*m = AccountReply{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt64(typ, b, &m.AccountID), nil
		case 2:
			return readString(typ, b, &m.OwnerName), nil
		case 3:
			return readDecimal(typ, b, &m.Balance)
		case 4:
			return readString(typ, b, &m.Type), nil
		}
		return 0, nil
	})
}

func (m *WithdrawRequest) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.RefID)
	b = appendInt64(b, 2, m.AccountID)
	b = appendDecimal(b, 3, m.Amount)
	b = appendString(b, 4, m.Remark)
	return b, nil
}

func (m *WithdrawRequest) readWire(b []byte) error {
	*m = WithdrawRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.RefID), nil
		case 2:
			return readInt64(typ, b, &m.AccountID), nil
		case 3:
			return readDecimal(typ, b, &m.Amount)
		case 4:
			return readString(typ, b, &m.Remark), nil
		}
		return 0, nil
	})
}

// DepositRequest 與 WithdrawRequest 欄位編號相同
func (m *DepositRequest) appendWire(b []byte) ([]byte, error) {
	return (*WithdrawRequest)(m).appendWire(b)
}

func (m *DepositRequest) readWire(b []byte) error {
	return (*WithdrawRequest)(m).readWire(b)
}

func (m *TransferRequest) appendWire(b []byte) ([]byte, error) {
	b = appendString(b, 1, m.RefID)
	b = appendInt64(b, 2, m.FromAccountID)
	b = appendInt64(b, 3, m.ToAccountID)
	b = appendDecimal(b, 4, m.Amount)
	return b, nil
}

func (m *TransferRequest) readWire(b []byte) error {
	*m = TransferRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readString(typ, b, &m.RefID), nil
		case 2:
			return readInt64(typ, b, &m.FromAccountID), nil
		case 3:
			return readInt64(typ, b, &m.ToAccountID), nil
		case 4:
			return readDecimal(typ, b, &m.Amount)
		}
		return 0, nil
	})
}

func (m *TransactionReply) appendWire(b []byte) ([]byte, error) {
	b = appendBool(b, 1, m.Success)
	b = appendString(b, 2, m.ErrorCode)
	b = appendString(b, 3, m.Message)
	b = appendString(b, 4, m.RefID)
	b = appendDecimal(b, 5, m.CurrentBalance)
	return b, nil
}

func (m *TransactionReply) readWire(b []byte) error {
	*m = TransactionReply{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readBool(typ, b, &m.Success), nil
		case 2:
			return readString(typ, b, &m.ErrorCode), nil
		case 3:
			return readString(typ, b, &m.Message), nil
		case 4:
			return readString(typ, b, &m.RefID), nil
		case 5:
			return readDecimal(typ, b, &m.CurrentBalance)
		}
		return 0, nil
	})
}

func (m *ListTransactionsRequest) appendWire(b []byte) ([]byte, error) {
	return appendInt64(b, 1, m.AccountID), nil
}

func (m *ListTransactionsRequest) readWire(b []byte) error {
	*m = ListTransactionsRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 {
			return readInt64(typ, b, &m.AccountID), nil
		}
		return 0, nil
	})
}

func (m *TransactionRecord) appendWire(b []byte) ([]byte, error) {
	b = appendInt64(b, 1, m.ID)
	b = appendString(b, 2, m.RefID)
	b = appendInt64(b, 3, m.AccountID)
	b, err := appendTimestamp(b, 4, m.Timestamp)
	if err != nil {
		return nil, err
	}
	b = appendString(b, 5, m.Type)
	b = appendDecimal(b, 6, m.Amount)
	b = appendString(b, 7, m.Remark)
	return b, nil
}

func (m *TransactionRecord) readWire(b []byte) error {
	*m = TransactionRecord{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt64(typ, b, &m.ID), nil
		case 2:
			return readString(typ, b, &m.RefID), nil
		case 3:
			return readInt64(typ, b, &m.AccountID), nil
		case 4:
			return readTimestamp(typ, b, &m.Timestamp)
		case 5:
			return readString(typ, b, &m.Type), nil
		case 6:
			return readDecimal(typ, b, &m.Amount)
		case 7:
			return readString(typ, b, &m.Remark), nil
		}
		return 0, nil
	})
}

func (m *ListTransactionsReply) appendWire(b []byte) ([]byte, error) {
	for i := range m.Records {
		raw, err := m.Records[i].appendWire(nil)
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 1, raw)
	}
	return b, nil
}

func (m *ListTransactionsReply) readWire(b []byte) error {
	*m = ListTransactionsReply{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num != 1 {
			return 0, nil
		}
		return readMessage(typ, b, func(raw []byte) error {
			var rec TransactionRecord
			if err := rec.readWire(raw); err != nil {
				return err
			}
			m.Records = append(m.Records, rec)
			return nil
		})
	})
}

func (m *VerifyPINRequest) appendWire(b []byte) ([]byte, error) {
	b = appendInt64(b, 1, m.AccountID)
	b = appendString(b, 2, m.PIN)
	return b, nil
}

func (m *VerifyPINRequest) readWire(b []byte) error {
	*m = VerifyPINRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt64(typ, b, &m.AccountID), nil
		case 2:
			return readString(typ, b, &m.PIN), nil
		}
		return 0, nil
	})
}

// statusReply VerifyPINReply 與 OpenAccountReply 共用的欄位
type statusReply struct {
	Success   bool
	ErrorCode string
	Message   string
}

func (m *statusReply) appendWire(b []byte) ([]byte, error) {
	b = appendBool(b, 1, m.Success)
	b = appendString(b, 2, m.ErrorCode)
	b = appendString(b, 3, m.Message)
	return b, nil
}

func (m *statusReply) readWire(b []byte) error {
	*m = statusReply{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readBool(typ, b, &m.Success), nil
		case 2:
			return readString(typ, b, &m.ErrorCode), nil
		case 3:
			return readString(typ, b, &m.Message), nil
		}
		return 0, nil
	})
}

func (m *VerifyPINReply) appendWire(b []byte) ([]byte, error) {
	return (*statusReply)(m).appendWire(b)
}

func (m *VerifyPINReply) readWire(b []byte) error {
	return (*statusReply)(m).readWire(b)
}

func (m *OpenAccountRequest) appendWire(b []byte) ([]byte, error) {
	b = appendInt64(b, 1, m.AccountID)
	b = appendString(b, 2, m.OwnerName)
	b = appendString(b, 3, m.Type)
	b = appendDecimal(b, 4, m.InitialBalance)
	b = appendString(b, 5, m.PIN)
	return b, nil
}

func (m *OpenAccountRequest) readWire(b []byte) error {
	*m = OpenAccountRequest{}
	return readFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case 1:
			return readInt64(typ, b, &m.AccountID), nil
		case 2:
			return readString(typ, b, &m.OwnerName), nil
		case 3:
			return readString(typ, b, &m.Type), nil
		case 4:
			return readDecimal(typ, b, &m.InitialBalance)
		case 5:
			return readString(typ, b, &m.PIN), nil
		}
		return 0, nil
	})
}

func (m *OpenAccountReply) appendWire(b []byte) ([]byte, error) {
	return (*statusReply)(m).appendWire(b)
}

func (m *OpenAccountReply) readWire(b []byte) error {
	return (*statusReply)(m).readWire(b)
}
