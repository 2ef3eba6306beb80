package gateway

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nao1215/kawase/pkg/currencyrpc"
	"github.com/nao1215/kawase/pkg/middleware"
)

// currencyClient はfinanceサービスのRPCクライアントを抽象化する。
// テストではスタブに差し替える。
type currencyClient interface {
	GetUserCurrencies(ctx context.Context, req *currencyrpc.CurrencyRequest) (*currencyrpc.CurrencyResponse, error)
}

// handleGetUserCurrencies はHTTPリクエストをfinanceサービスのgRPCへ変換する
// ブリッジハンドラを返す。検証済みトークンをメタデータで伝播し、finance側でも
// 独立に再検証される。
func (s *Server) handleGetUserCurrencies() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := metadata.NewOutgoingContext(c.Request.Context(),
			metadata.Pairs("authorization", "Bearer "+middleware.GetToken(c)))

		resp, err := s.currencies.GetUserCurrencies(ctx, &currencyrpc.CurrencyRequest{
			UserID: c.Param("userId"),
		})
		if err != nil {
			if st, ok := status.FromError(err); ok && st.Code() == codes.Unauthenticated {
				c.String(http.StatusUnauthorized, st.Message())
				return
			}
			log.Printf("[Gateway] GetUserCurrenciesの呼び出しに失敗: %v", err)
			c.String(http.StatusInternalServerError, "Service unavailable")
			return
		}

		items := make([]gin.H, 0, len(resp.Currencies))
		for _, cur := range resp.Currencies {
			items = append(items, gin.H{"name": cur.Name, "rate": cur.Rate})
		}
		c.JSON(http.StatusOK, items)
	}
}
