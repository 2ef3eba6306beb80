package currencyrpc

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// message はこのパッケージのRPCメッセージが実装するワイヤ変換インターフェース。
type message interface {
	marshal() []byte
	unmarshal(data []byte) error
}

// CurrencyRequest はお気に入り通貨の取得リクエスト。
type CurrencyRequest struct {
	// UserID は対象ユーザーのUUID文字列。
	UserID string
}

// CurrencyItem は通貨名とレートの組。
type CurrencyItem struct {
	// Name は通貨名。
	Name string
	// Rate は基準通貨に対するレート。
	Rate float64
}

// CurrencyResponse はお気に入り通貨の一覧レスポンス。
type CurrencyResponse struct {
	// Currencies はユーザーのお気に入り通貨のリスト。
	Currencies []*CurrencyItem
}

func (m *CurrencyRequest) marshal() []byte {
	var b []byte
	if m.UserID != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.UserID)
	}
	return b
}

func (m *CurrencyRequest) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("CurrencyRequestのタグ解析に失敗: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("user_idの解析に失敗: %w", protowire.ParseError(n))
			}
			m.UserID = v
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("未知フィールドの読み飛ばしに失敗: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *CurrencyItem) marshal() []byte {
	var b []byte
	if m.Name != "" {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendString(b, m.Name)
	}
	if m.Rate != 0 {
		b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(m.Rate))
	}
	return b
}

func (m *CurrencyItem) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("CurrencyItemのタグ解析に失敗: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(data)
			if n < 0 {
				return fmt.Errorf("nameの解析に失敗: %w", protowire.ParseError(n))
			}
			m.Name = v
			data = data[n:]
		case num == 2 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return fmt.Errorf("rateの解析に失敗: %w", protowire.ParseError(n))
			}
			m.Rate = math.Float64frombits(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("未知フィールドの読み飛ばしに失敗: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}

func (m *CurrencyResponse) marshal() []byte {
	var b []byte
	for _, item := range m.Currencies {
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, item.marshal())
	}
	return b
}

func (m *CurrencyResponse) unmarshal(data []byte) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return fmt.Errorf("CurrencyResponseのタグ解析に失敗: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return fmt.Errorf("currenciesの解析に失敗: %w", protowire.ParseError(n))
			}
			item := &CurrencyItem{}
			if err := item.unmarshal(v); err != nil {
				return err
			}
			m.Currencies = append(m.Currencies, item)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return fmt.Errorf("未知フィールドの読み飛ばしに失敗: %w", protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	return nil
}
