package user

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"

	"github.com/nao1215/kawase/pkg/middleware"
	"github.com/nao1215/kawase/pkg/token"
)

// Server はユーザーサービスのHTTPサーバー。
// ユーザー登録・ログイン（JWT発行）・ヘルスチェックを提供する。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// queries はusersテーブルへのクエリ実行オブジェクト。
	queries *queries
	// db はSQLiteデータベース接続。
	db *sql.DB
	// jwtSecret はトークン署名鍵。
	jwtSecret string
	// issuer / audience は発行するトークンのiss/audクレーム値。
	issuer   string
	audience string
	// tokenTTL は発行するトークンの有効期間。
	tokenTTL time.Duration
}

// NewServer は新しいユーザーサーバーを生成する。
// SQLiteデータベースの初期化とスキーマ作成を行う。
// JWT_SECRETが未設定の場合はエラーを返す（署名鍵なしでの起動は許可しない）。
func NewServer(port string) (*Server, error) {
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, errors.New("環境変数JWT_SECRETが設定されていません")
	}

	dbPath := getEnvOr("USER_DB_PATH", "/data/user.db")
	sqlDB, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := initSchema(sqlDB); err != nil {
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}

	ttlMinutes, err := strconv.Atoi(getEnvOr("TOKEN_EXPIRY_MINUTES", "15"))
	if err != nil || ttlMinutes <= 0 {
		return nil, fmt.Errorf("TOKEN_EXPIRY_MINUTESの値が不正: %q", os.Getenv("TOKEN_EXPIRY_MINUTES"))
	}

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())

	s := &Server{
		router:    router,
		port:      port,
		queries:   &queries{db: sqlDB},
		db:        sqlDB,
		jwtSecret: jwtSecret,
		issuer:    getEnvOr("JWT_ISSUER", "kawase"),
		audience:  getEnvOr("JWT_AUDIENCE", "kawase"),
		tokenTTL:  time.Duration(ttlMinutes) * time.Minute,
	}
	s.setupRoutes()

	return s, nil
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// setupRoutes はAPIルーティングを設定する。
// 登録・ログイン・ヘルスチェックはすべて認証不要のためゲートを適用しない。
func (s *Server) setupRoutes() {
	api := s.router.Group("/api/user")
	{
		// ユーザー登録
		api.POST("/register", s.handleRegister())
		// ログイン（JWT発行）
		api.POST("/login", s.handleLogin())
		// ヘルスチェック
		api.GET("/healthcheck", s.handleHealthcheck())
	}

	// コンテナオーケストレーター向けのヘルスチェック
	s.router.GET("/health", s.handleHealthcheck())
}

// registerRequest はユーザー登録リクエストのJSON構造。
type registerRequest struct {
	// Name はログイン名。
	Name string `json:"name" binding:"required"`
	// Password は平文パスワード。保存前にbcryptでハッシュ化する。
	Password string `json:"password" binding:"required"`
}

// loginRequest はログインリクエストのJSON構造。
type loginRequest struct {
	// Name はログイン名。
	Name string `json:"name" binding:"required"`
	// Password は平文パスワード。
	Password string `json:"password" binding:"required"`
}

// handleRegister はユーザー登録を処理するハンドラを返す。
// ログイン名が重複している場合は400を返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req registerRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		if _, err := s.queries.getUserByName(c.Request.Context(), req.Name); err == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "このユーザー名は既に使用されています"})
			return
		} else if !errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの確認に失敗しました"})
			log.Printf("[User] ユーザー確認エラー: %v", err)
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "パスワードの処理に失敗しました"})
			log.Printf("[User] パスワードハッシュ化エラー: %v", err)
			return
		}

		userID := uuid.New().String()
		if err := s.queries.createUser(c.Request.Context(), userID, req.Name, string(hash)); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの作成に失敗しました"})
			log.Printf("[User] ユーザー作成エラー: %v", err)
			return
		}

		c.JSON(http.StatusCreated, gin.H{"user_id": userID, "name": req.Name})
	}
}

// handleLogin はログインを処理するハンドラを返す。
// 認証に成功するとJWTトークンとユーザーIDを返す。
// 存在しないユーザーと誤ったパスワードは同じ401を返し、ユーザー名の存在を漏らさない。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("リクエストが不正です: %v", err)})
			return
		}

		u, err := s.queries.getUserByName(c.Request.Context(), req.Name)
		if errors.Is(err, sql.ErrNoRows) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが違います"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーの取得に失敗しました"})
			log.Printf("[User] ユーザー取得エラー: %v", err)
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "ユーザー名またはパスワードが違います"})
			return
		}

		userID, err := uuid.Parse(u.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "ユーザーIDが不正です"})
			log.Printf("[User] ユーザーIDの解析エラー: %v", err)
			return
		}

		signed, err := token.Generate(s.jwtSecret, s.issuer, s.audience, userID, s.tokenTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "トークンの発行に失敗しました"})
			log.Printf("[User] トークン発行エラー: %v", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"token": signed, "user_id": u.ID})
	}
}

// handleHealthcheck はヘルスチェックを処理するハンドラを返す。
func (s *Server) handleHealthcheck() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "user"})
	}
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
