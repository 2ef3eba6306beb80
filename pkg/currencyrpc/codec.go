package currencyrpc

import "fmt"

// Codec はこのパッケージのワイヤ型をgRPCで送受信するためのコーデック。
// 標準のprotoコーデックと同じ名前を名乗ることで、Content-Typeは
// application/grpc+proto のままコード生成版の実装と相互運用できる。
type Codec struct{}

// Marshal はメッセージをワイヤ形式へ変換する。
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("currencyrpcのメッセージ型ではない: %T", v)
	}
	return m.marshal(), nil
}

// Unmarshal はワイヤ形式をメッセージへ変換する。
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("currencyrpcのメッセージ型ではない: %T", v)
	}
	return m.unmarshal(data)
}

// Name はコーデック名を返す。
func (Codec) Name() string { return "proto" }
