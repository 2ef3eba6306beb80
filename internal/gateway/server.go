package gateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/kawase/pkg/currencyrpc"
	"github.com/nao1215/kawase/pkg/httpclient"
	"github.com/nao1215/kawase/pkg/middleware"
	"github.com/nao1215/kawase/pkg/revocation"
	"github.com/nao1215/kawase/pkg/token"
)

// Server はAPIゲートウェイのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// gate はリクエストゲート（トークン検証ミドルウェア）。
	gate gin.HandlerFunc
	// store はログアウト済みトークンの失効リスト。
	store revocation.Store
	// sweeper は失効リストの定期掃除タスク。
	sweeper *revocation.Sweeper
	// forwarder は内部サービスへの転送クライアント。
	forwarder *httpclient.Client
	// currencies はfinanceサービスへのRPCクライアント。
	currencies currencyClient
	// rpcClient はシャットダウン時にクローズする実クライアント。
	rpcClient *currencyrpc.Client
	// routes は現在のルートテーブル。再読込時はテーブル全体を差し替える。
	routes atomic.Pointer[routeTable]
	// routesPath はルート設定ファイルのパス。SIGHUPでの再読込に使う。
	routesPath string
}

// NewServer は新しいゲートウェイサーバーを生成する。
// JWT_SECRET未設定・ルート設定の不備は起動時エラーとして扱う。
func NewServer(port string) (*Server, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("環境変数JWT_SECRETが設定されていません")
	}

	sweepMinutes, err := strconv.Atoi(getEnvOr("SWEEP_INTERVAL_MINUTES", "60"))
	if err != nil || sweepMinutes <= 0 {
		return nil, fmt.Errorf("SWEEP_INTERVAL_MINUTESの値が不正: %q", os.Getenv("SWEEP_INTERVAL_MINUTES"))
	}

	routesPath := getEnvOr("ROUTES_FILE", "routes.yaml")
	table, err := loadRouteTable(routesPath)
	if err != nil {
		return nil, err
	}

	store := revocation.NewMemoryStore()
	validator := token.NewValidator(
		jwtSecret,
		getEnvOr("JWT_ISSUER", "kawase"),
		getEnvOr("JWT_AUDIENCE", "kawase"),
		store,
	)

	rpcClient, err := currencyrpc.NewClient(getEnvOr("FINANCE_GRPC_ADDR", "localhost:50051"))
	if err != nil {
		return nil, err
	}

	frontendURL := getEnvOr("FRONTEND_URL", "http://localhost:3000")

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS([]string{frontendURL}))

	s := &Server{
		router:     router,
		port:       port,
		gate:       middleware.JWTAuth(validator),
		store:      store,
		sweeper:    revocation.NewSweeper(store, time.Duration(sweepMinutes)*time.Minute),
		forwarder:  httpclient.New(30 * time.Second),
		currencies: rpcClient,
		rpcClient:  rpcClient,
		routesPath: routesPath,
	}
	s.routes.Store(table)
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動し、コンテキストのキャンセルで適切に停止する。
// 失効リストの掃除タスクとルート設定の再読込監視も同じコンテキストで動かす。
func (s *Server) Run(ctx context.Context) error {
	go s.sweeper.Start(ctx)
	go s.watchReload(ctx)

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
		log.Printf("[Gateway] シャットダウンを開始")
		if s.rpcClient != nil {
			if err := s.rpcClient.Close(); err != nil {
				log.Printf("[Gateway] gRPCコネクションのクローズに失敗: %v", err)
			}
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// setupRoutes はAPIルーティングを設定する。
// ここに登録されないパスはすべてhandleForwardでルートテーブルに従い転送される。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "gateway"})
	})

	// ゲートウェイ自身で終端するエンドポイント（認証必須）
	api := s.router.Group("/api")
	api.Use(s.gate)
	{
		// ログアウト。失効リストはゲートウェイ内にあるため転送せずここで処理する
		api.POST("/user/logout", s.handleLogout())
		// financeサービスへのRPCブリッジ
		api.GET("/grpc/currencies/user/:userId", s.handleGetUserCurrencies())
	}

	// 上記以外はルートテーブルに基づいて内部サービスへ転送する
	s.router.NoRoute(s.handleForward())
}

// handleLogout はログアウトを処理するハンドラを返す。
// 提示されたトークンを有効期限付きで失効リストへ登録する。
// 登録後は同じトークンでのアクセスは即座に401になる。
func (s *Server) handleLogout() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := middleware.GetToken(c)

		expiresAt, err := token.Expiry(raw)
		if err != nil {
			// ゲートを通過したトークンに期限がないことはないはずだが、念のため
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの有効期限を取得できません"})
			log.Printf("[Gateway] ログアウト時の期限取得エラー: %v", err)
			return
		}

		if err := s.store.Revoke(revocation.Key(raw), expiresAt); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ログアウトに失敗しました"})
			log.Printf("[Gateway] 失効リストへの登録エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "ログアウトしました"})
	}
}

// watchReload はSIGHUPを受けてルート設定を再読込する。
// 読込に失敗した場合は現在のテーブルを維持する。
func (s *Server) watchReload(ctx context.Context) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			table, err := loadRouteTable(s.routesPath)
			if err != nil {
				log.Printf("[Gateway] ルート設定の再読込に失敗（現在の設定を維持）: %v", err)
				continue
			}
			s.routes.Store(table)
			log.Printf("[Gateway] ルート設定を再読込: %dルート", len(table.routes))
		}
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
