// Package ledgerrpc 定義 ledger.v1.LedgerService 的 gRPC 介面
//
// 訊息格式見 proto/ledger/v1/ledger.proto，以 protobuf wire format 傳送，
// 用 protoc 產生的 client 可以直接呼叫這個 server
package ledgerrpc

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/proto"
)

// CodecName 與 grpc 預設的 proto codec 同名，content-type 為 application/grpc+proto
const CodecName = "proto"

// codec 取代 grpc 預設的 proto codec：本套件的訊息自己編碼，其他 proto.Message 交給 proto.Marshal
type codec struct{}

func (codec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case wireMessage:
		return m.appendWire(nil)
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("ledgerrpc: cannot marshal %T", v)
	}
}

func (codec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case wireMessage:
		return m.readWire(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("ledgerrpc: cannot unmarshal into %T", v)
	}
}

func (codec) Name() string {
	return CodecName
}

// grpc 的 proto codec 在 grpc 套件初始化時註冊，這裡之後註冊會覆蓋它
func init() {
	encoding.RegisterCodec(codec{})
}

// CallOption 明確指定 proto codec，建立連線時可搭配 grpc.WithDefaultCallOptions
func CallOption() grpc.CallOption {
	return grpc.CallContentSubtype(CodecName)
}
