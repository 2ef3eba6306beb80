package finance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	_ "modernc.org/sqlite"

	"github.com/nao1215/kawase/pkg/middleware"
	"github.com/nao1215/kawase/pkg/token"
)

// Server は通貨サービスのHTTPサーバー。
// 通貨一覧とユーザーごとのお気に入り通貨を提供する。
// トークンはゲートウェイとは独立にここでも再検証する（失効リストは
// ゲートウェイ専用のため参照しない）。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries は通貨テーブル群へのクエリ実行オブジェクト。
	queries *queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// validator はトークン検証器。HTTPゲートとgRPCサーバーで共有する。
	validator *token.Validator
}

// NewServer は新しい通貨サーバーを生成する。
// SQLiteデータベースの初期化とスキーマ・シードデータの適用を行う。
// JWT_SECRETが未設定の場合はエラーを返す。
func NewServer(port string) (*Server, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("環境変数JWT_SECRETが設定されていません")
	}

	dbPath := getEnvOr("FINANCE_DB_PATH", "/data/finance.db")
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:  router,
		port:    port,
		queries: &queries{db: sqlDB},
		db:      sqlDB,
		validator: token.NewValidator(
			jwtSecret,
			getEnvOr("JWT_ISSUER", "kawase"),
			getEnvOr("JWT_AUDIENCE", "kawase"),
			nil,
		),
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動し、コンテキストのキャンセルで適切に停止する。
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.port),
		Handler: s.router,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/currencies")
	api.Use(middleware.JWTAuth(s.validator))
	{
		// 全通貨一覧（お気に入りフラグ付き）
		api.GET("", s.handleListCurrencies())
		// お気に入り通貨一覧
		api.GET("/favorites", s.handleListFavorites())
		// お気に入り通貨の置き換え
		api.PUT("/favorites", s.handleUpdateFavorites())
	}

	// ヘルスチェックは認証不要
	s.router.GET("/api/currencies/healthcheck", s.handleHealthcheck())
	s.router.GET("/health", s.handleHealthcheck())
}

// currencyResponse は通貨のJSONレスポンス構造。
type currencyResponse struct {
	// ID は通貨の一意識別子。
	ID string `json:"id"`
	// Name は通貨名。
	Name string `json:"name"`
	// Rate は基準通貨に対するレート。
	Rate float64 `json:"rate"`
	// IsFavorite は呼び出しユーザーのお気に入りかどうか。
	IsFavorite bool `json:"is_favorite"`
}

// favoriteResponse はお気に入り通貨のJSONレスポンス構造。
type favoriteResponse struct {
	// ID は通貨の一意識別子。
	ID string `json:"id"`
	// Name は通貨名。
	Name string `json:"name"`
	// Rate は基準通貨に対するレート。
	Rate float64 `json:"rate"`
}

// updateFavoritesRequest はお気に入り置き換えリクエストのJSON構造。
type updateFavoritesRequest struct {
	// CurrencyIDs は置き換え後のお気に入り通貨IDの集合。
	CurrencyIDs []string `json:"currency_ids"`
}

// handleListCurrencies は全通貨一覧取得を処理するハンドラを返す。
// 各通貨には呼び出しユーザーのお気に入りフラグを付与する。
func (s *Server) handleListCurrencies() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		currencies, err := s.queries.listCurrencies(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "通貨一覧の取得に失敗しました"})
			log.Printf("[Finance] 通貨一覧取得エラー: %v", err)
			return
		}

		favorites, err := s.queries.listFavoriteIDs(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "お気に入りの取得に失敗しました"})
			log.Printf("[Finance] お気に入り取得エラー: %v", err)
			return
		}

		responses := make([]currencyResponse, 0, len(currencies))
		for _, cur := range currencies {
			responses = append(responses, currencyResponse{
				ID:         cur.ID,
				Name:       cur.Name,
				Rate:       cur.Rate,
				IsFavorite: favorites[cur.ID],
			})
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleListFavorites はお気に入り通貨一覧取得を処理するハンドラを返す。
func (s *Server) handleListFavorites() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		currencies, err := s.queries.listFavoriteCurrencies(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "お気に入りの取得に失敗しました"})
			log.Printf("[Finance] お気に入り取得エラー: %v", err)
			return
		}

		responses := make([]favoriteResponse, 0, len(currencies))
		for _, cur := range currencies {
			responses = append(responses, favoriteResponse{ID: cur.ID, Name: cur.Name, Rate: cur.Rate})
		}

		c.JSON(http.StatusOK, responses)
	}
}

// handleUpdateFavorites はお気に入り通貨の置き換えを処理するハンドラを返す。
// 現在の集合との差分のみを挿入・削除する。存在しない通貨IDが含まれる場合は400を返す。
func (s *Server) handleUpdateFavorites() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := middleware.GetUserID(c)

		var req updateFavoritesRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		for _, id := range req.CurrencyIDs {
			exists, err := s.queries.currencyExists(c.Request.Context(), id)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "通貨の確認に失敗しました"})
				log.Printf("[Finance] 通貨確認エラー: %v", err)
				return
			}
			if !exists {
				c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("存在しない通貨IDです: %s", id)})
				return
			}
		}

		if err := s.queries.updateFavorites(c.Request.Context(), userID, req.CurrencyIDs); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "お気に入りの更新に失敗しました"})
			log.Printf("[Finance] お気に入り更新エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "お気に入り通貨を更新しました"})
	}
}

// handleHealthcheck はヘルスチェックを処理するハンドラを返す。
func (s *Server) handleHealthcheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "finance"})
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
