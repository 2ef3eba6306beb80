package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// hopByHopHeaders はプロキシが中継してはならないホップバイホップヘッダー（RFC 9110）。
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// Client は内部サービスへのリクエスト転送用HTTPクライアント。
type Client struct {
	// httpClient は内部で使用するHTTPクライアント。
	httpClient *http.Client
}

// New は転送用HTTPクライアントを生成する。
// timeoutが0以下の場合は30秒を使う。
func New(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Forward は受信リクエストを複製して内部サービスへ送信する。
// メソッド・ヘッダー（ホップバイホップを除く）・ボディをそのまま転送し、
// レスポンスは加工せずに返す。接続断などの転送失敗はエラーとして返し、
// レスポンスボディのクローズは呼び出し側の責務とする。
// コンテキストのキャンセルは送信中のリクエストに伝播する。
func (c *Client) Forward(ctx context.Context, method, url string, header http.Header, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの作成に失敗: %w", err)
	}

	req.Header = header.Clone()
	for _, h := range hopByHopHeaders {
		req.Header.Del(h)
	}
	// Hostは転送先に合わせて書き換える（NewRequestWithContextがURLから設定する）
	req.Header.Del("Host")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("転送リクエストの送信に失敗: %w", err)
	}
	return resp, nil
}

// StripHopByHop はレスポンス中継時に除去すべきヘッダーをコピー先から取り除きつつ、
// srcの内容をdstへコピーする。
func StripHopByHop(dst http.Header, src http.Header) {
	for key, values := range src {
		dst[key] = values
	}
	for _, h := range hopByHopHeaders {
		dst.Del(h)
	}
}
