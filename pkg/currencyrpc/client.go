package currencyrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// methodGetUserCurrencies はGetUserCurrenciesのフルメソッド名。
const methodGetUserCurrencies = "/kawase.finance.CurrencyService/GetUserCurrencies"

// Client はCurrencyServiceのgRPCクライアント。
type Client struct {
	// conn はfinanceサービスへのgRPCコネクション。
	conn *grpc.ClientConn
}

// NewClient はfinanceサービスへのgRPCクライアントを生成する。
// 内部ネットワーク前提のため平文で接続する。コネクションは遅延確立であり、
// この時点では接続先の死活は確認しない。
func NewClient(target string) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(Codec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("gRPCコネクションの作成に失敗: %w", err)
	}
	return &Client{conn: conn}, nil
}

// GetUserCurrencies は指定ユーザーのお気に入り通貨一覧を取得する。
// 認証トークンは呼び出し側がctxのメタデータに設定する。
func (c *Client) GetUserCurrencies(ctx context.Context, req *CurrencyRequest) (*CurrencyResponse, error) {
	resp := &CurrencyResponse{}
	if err := c.conn.Invoke(ctx, methodGetUserCurrencies, req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close はコネクションを閉じる。
func (c *Client) Close() error {
	return c.conn.Close()
}
