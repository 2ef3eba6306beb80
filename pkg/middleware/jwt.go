package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/kawase/pkg/token"
)

// HeaderUserID はサービス間でユーザーIDを伝播するためのHTTPヘッダーキー。
// ゲートウェイが転送リクエストに設定する。
const HeaderUserID = "X-User-ID"

// headerKeyAuthReason は認証拒否の理由を機械可読に伝えるレスポンスヘッダーキー。
// 呼び出し元は「期限切れ」と「不正」を区別して再ログインを促せる。
const headerKeyAuthReason = "X-Auth-Reason"

// contextKeyUserID / contextKeyToken はGinコンテキストに認証結果を格納するキー。
const (
	contextKeyUserID = "user_id"
	contextKeyToken  = "raw_token"
)

// JWTAuth はベアラートークンを検証するリクエストゲートを返す。
// 検証に成功した場合、コンテキストに認証済みユーザーIDと生トークンを設定する。
// 失敗はすべて401で応答し、種別はX-Auth-Reasonヘッダーで伝える。
// 認証不要のルート（登録・ログイン・ヘルスチェック）にはこのミドルウェアを適用しない。
func JWTAuth(v *token.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			reject(c, token.ReasonMissingToken, "Authorizationヘッダーが必要です")
			return
		}

		raw, found := strings.CutPrefix(authHeader, "Bearer ")
		if !found || raw == "" {
			reject(c, "malformed", "Bearer トークン形式が不正です")
			return
		}

		userID, err := v.Validate(raw)
		if err != nil {
			reject(c, token.Reason(err), rejectMessage(err))
			return
		}

		c.Set(contextKeyUserID, userID.String())
		c.Set(contextKeyToken, raw)
		c.Next()
	}
}

// reject は401とエラー理由を設定してリクエストを打ち切る。
// レスポンスボディには内部情報を含めず、短い理由のみを返す。
func reject(c *gin.Context, reason, message string) {
	c.Header(headerKeyAuthReason, reason)
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
}

// rejectMessage は検証エラーから利用者向けの短いメッセージを導出する。
func rejectMessage(err error) string {
	switch token.Reason(err) {
	case "expired":
		return "トークンの有効期限が切れています"
	case "revoked":
		return "トークンは失効しています"
	case "bad_signature":
		return "トークンの署名が不正です"
	case "wrong_issuer":
		return "トークンの発行者または対象が不正です"
	case "malformed_claims":
		return "トークンのクレームが不正です"
	default:
		return "トークンが無効です"
	}
}

// GetUserID はGinコンテキストから認証済みユーザーIDを取得する。
// JWTAuthミドルウェアが事前に適用されている必要がある。
func GetUserID(c *gin.Context) string {
	userID, _ := c.Get(contextKeyUserID)
	if id, ok := userID.(string); ok {
		return id
	}
	return ""
}

// GetToken はGinコンテキストから検証済みの生トークンを取得する。
// ログアウト時の失効登録や、バックエンドへのトークン伝播に使う。
func GetToken(c *gin.Context) string {
	raw, _ := c.Get(contextKeyToken)
	if t, ok := raw.(string); ok {
		return t
	}
	return ""
}
