package gateway

import (
	"io"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/kawase/pkg/httpclient"
	"github.com/nao1215/kawase/pkg/middleware"
)

// handleForward はルートテーブルに基づくリクエスト転送を処理するハンドラを返す。
// Ginに登録済みのルート（ログアウト・RPCブリッジ・ヘルスチェック）以外の
// すべてのリクエストがここに到達する。
func (s *Server) handleForward() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.routes.Load().resolve(c.Request.Method, c.Request.URL.Path)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "ルートが設定されていません"})
			return
		}

		if r.requiresAuth {
			s.gate(c)
			if c.IsAborted() {
				return
			}
			// 認証済みユーザーIDを内部サービスへ伝播する
			c.Request.Header.Set(middleware.HeaderUserID, middleware.GetUserID(c))
		}

		target := r.address + c.Request.URL.Path
		if q := c.Request.URL.RawQuery; q != "" {
			target += "?" + q
		}

		resp, err := s.forwarder.Forward(c.Request.Context(), c.Request.Method, target, c.Request.Header, c.Request.Body)
		if err != nil {
			log.Printf("[Gateway] ルート%sの転送に失敗: %v", r.id, err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "backend_unavailable"})
			return
		}
		defer resp.Body.Close()

		// ステータス・ヘッダー・ボディをそのまま中継する
		httpclient.StripHopByHop(c.Writer.Header(), resp.Header)
		c.Status(resp.StatusCode)
		if _, err := io.Copy(c.Writer, resp.Body); err != nil {
			log.Printf("[Gateway] ルート%sのレスポンス中継に失敗: %v", r.id, err)
		}
	}
}
