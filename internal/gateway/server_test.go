package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nao1215/kawase/pkg/currencyrpc"
	"github.com/nao1215/kawase/pkg/httpclient"
	"github.com/nao1215/kawase/pkg/middleware"
	"github.com/nao1215/kawase/pkg/revocation"
	"github.com/nao1215/kawase/pkg/token"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testSecret = "test-secret-key"

// setupTestServer はテスト用のゲートウェイサーバーを構築する。
// 失効リストはテスト側からも操作できるよう返す。
func setupTestServer(t *testing.T, routesYAML string) (*Server, *revocation.MemoryStore) {
	t.Helper()

	table, err := parseRouteTable([]byte(routesYAML))
	if err != nil {
		t.Fatalf("ルート設定の解析に失敗: %v", err)
	}

	store := revocation.NewMemoryStore()
	validator := token.NewValidator(testSecret, "kawase", "kawase", store)

	s := &Server{
		router:    gin.New(),
		port:      "0",
		gate:      middleware.JWTAuth(validator),
		store:     store,
		sweeper:   revocation.NewSweeper(store, time.Hour),
		forwarder: httpclient.New(5 * time.Second),
	}
	s.routes.Store(table)
	s.setupRoutes()

	return s, store
}

// issueToken はテスト用の有効なトークンを発行するヘルパー関数。
func issueToken(t *testing.T, userID uuid.UUID, ttl time.Duration) string {
	t.Helper()
	signed, err := token.Generate(testSecret, "kawase", "kawase", userID, ttl)
	if err != nil {
		t.Fatalf("テスト用トークンの発行に失敗: %v", err)
	}
	return signed
}

// doRequest はテスト用のHTTPリクエストを実行し、レスポンスを返すヘルパー関数。
func doRequest(router *gin.Engine, method, path, bearer string, body io.Reader) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// routesFor はテスト用バックエンドに向けたルート設定を生成するヘルパー関数。
func routesFor(backendURL string) string {
	return fmt.Sprintf(`
routes:
  - routeId: user-login
    matchPath: /api/user/login
    matchMethods: [POST]
    clusterId: backend
  - routeId: user-all
    matchPath: /api/user/*
    clusterId: backend
    authPolicy: requireJwtToken
  - routeId: currencies-all
    matchPath: /api/currencies/*
    clusterId: backend
    authPolicy: requireJwtToken
clusters:
  - clusterId: backend
    address: %s
`, backendURL)
}

// TestHandleForward はルートテーブルに基づく転送を検証する。
func TestHandleForward(t *testing.T) {
	t.Parallel()

	t.Run("認証不要ルートがそのまま転送されること", func(t *testing.T) {
		t.Parallel()

		var gotPath, gotBody string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			b, _ := io.ReadAll(r.Body)
			gotBody = string(b)
			w.Header().Set("X-Backend", "user")
			w.WriteHeader(http.StatusTeapot)
			fmt.Fprint(w, `{"relayed":true}`)
		}))
		t.Cleanup(backend.Close)

		s, _ := setupTestServer(t, routesFor(backend.URL))
		w := doRequest(s.router, http.MethodPost, "/api/user/login", "", bytes.NewReader([]byte(`{"name":"alice"}`)))

		if w.Code != http.StatusTeapot {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusTeapot)
		}
		if gotPath != "/api/user/login" {
			t.Errorf("転送パス = %q, want %q", gotPath, "/api/user/login")
		}
		if gotBody != `{"name":"alice"}` {
			t.Errorf("転送ボディ = %q, want %q", gotBody, `{"name":"alice"}`)
		}
		if got := w.Header().Get("X-Backend"); got != "user" {
			t.Errorf("レスポンスヘッダーX-Backend = %q, want %q", got, "user")
		}
		if w.Body.String() != `{"relayed":true}` {
			t.Errorf("レスポンスボディ = %q, want %q", w.Body.String(), `{"relayed":true}`)
		}
	})

	t.Run("クエリ文字列が転送先に引き継がれること", func(t *testing.T) {
		t.Parallel()

		var gotQuery string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotQuery = r.URL.RawQuery
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(backend.Close)

		s, _ := setupTestServer(t, routesFor(backend.URL))
		bearer := issueToken(t, uuid.New(), 15*time.Minute)
		doRequest(s.router, http.MethodGet, "/api/currencies?base=USD&limit=10", bearer, nil)

		if gotQuery != "base=USD&limit=10" {
			t.Errorf("転送クエリ = %q, want %q", gotQuery, "base=USD&limit=10")
		}
	})

	t.Run("認証必須ルートはトークンなしで401になりバックエンドに到達しないこと", func(t *testing.T) {
		t.Parallel()

		backendHit := false
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			backendHit = true
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(backend.Close)

		s, _ := setupTestServer(t, routesFor(backend.URL))
		w := doRequest(s.router, http.MethodGet, "/api/currencies", "", nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if got := w.Header().Get("X-Auth-Reason"); got != token.ReasonMissingToken {
			t.Errorf("X-Auth-Reason = %q, want %q", got, token.ReasonMissingToken)
		}
		if backendHit {
			t.Error("認証拒否されたリクエストがバックエンドに到達した")
		}
	})

	t.Run("認証必須ルートでユーザーIDが伝播されること", func(t *testing.T) {
		t.Parallel()

		var gotUserID, gotAuth string
		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUserID = r.Header.Get(middleware.HeaderUserID)
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(backend.Close)

		s, _ := setupTestServer(t, routesFor(backend.URL))
		userID := uuid.New()
		bearer := issueToken(t, userID, 15*time.Minute)
		w := doRequest(s.router, http.MethodGet, "/api/currencies", bearer, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		if gotUserID != userID.String() {
			t.Errorf("X-User-ID = %q, want %q", gotUserID, userID.String())
		}
		if gotAuth != "Bearer "+bearer {
			t.Errorf("Authorizationヘッダーが転送されていない: %q", gotAuth)
		}
	})

	t.Run("未設定パスは404になること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		w := doRequest(s.router, http.MethodGet, "/api/unknown", "", nil)

		if w.Code != http.StatusNotFound {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("バックエンド接続不能は503になること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://127.0.0.1:1"))
		w := doRequest(s.router, http.MethodPost, "/api/user/login", "", nil)

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}

		var resp map[string]string
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスのJSON解析に失敗: %v", err)
		}
		if resp["error"] != "backend_unavailable" {
			t.Errorf("エラー = %q, want %q", resp["error"], "backend_unavailable")
		}
	})
}

// TestHandleLogout はログアウトと失効リストの連動を検証する。
func TestHandleLogout(t *testing.T) {
	t.Parallel()

	t.Run("ログアウト後は同じトークンが即座に拒否されること", func(t *testing.T) {
		t.Parallel()

		backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		t.Cleanup(backend.Close)

		s, _ := setupTestServer(t, routesFor(backend.URL))
		bearer := issueToken(t, uuid.New(), 15*time.Minute)

		// ログアウト前は通る
		before := doRequest(s.router, http.MethodGet, "/api/currencies", bearer, nil)
		if before.Code != http.StatusOK {
			t.Fatalf("ログアウト前のステータスコード = %d, want %d", before.Code, http.StatusOK)
		}

		logout := doRequest(s.router, http.MethodPost, "/api/user/logout", bearer, nil)
		if logout.Code != http.StatusOK {
			t.Fatalf("ログアウトのステータスコード = %d, want %d, body = %s", logout.Code, http.StatusOK, logout.Body.String())
		}

		// ログアウト後は失効として拒否される
		after := doRequest(s.router, http.MethodGet, "/api/currencies", bearer, nil)
		if after.Code != http.StatusUnauthorized {
			t.Errorf("ログアウト後のステータスコード = %d, want %d", after.Code, http.StatusUnauthorized)
		}
		if got := after.Header().Get("X-Auth-Reason"); got != "revoked" {
			t.Errorf("X-Auth-Reason = %q, want %q", got, "revoked")
		}

		// 別のトークンには影響しない
		other := doRequest(s.router, http.MethodGet, "/api/currencies", issueToken(t, uuid.New(), 15*time.Minute), nil)
		if other.Code != http.StatusOK {
			t.Errorf("別トークンのステータスコード = %d, want %d", other.Code, http.StatusOK)
		}
	})

	t.Run("トークンなしのログアウトは401になること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		w := doRequest(s.router, http.MethodPost, "/api/user/logout", "", nil)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("期限切れエントリは掃除で取り除かれること", func(t *testing.T) {
		t.Parallel()

		s, store := setupTestServer(t, routesFor("http://localhost:1"))
		bearer := issueToken(t, uuid.New(), 100*time.Millisecond)

		logout := doRequest(s.router, http.MethodPost, "/api/user/logout", bearer, nil)
		if logout.Code != http.StatusOK {
			t.Fatalf("ログアウトのステータスコード = %d, want %d", logout.Code, http.StatusOK)
		}
		if store.Len() != 1 {
			t.Fatalf("失効リストのエントリ数 = %d, want 1", store.Len())
		}

		// トークンの期限が切れるまで待ってから掃除する
		time.Sleep(150 * time.Millisecond)
		if removed := store.Sweep(); removed != 1 {
			t.Errorf("Sweep() = %d, want 1", removed)
		}
		if store.Len() != 0 {
			t.Errorf("掃除後のエントリ数 = %d, want 0", store.Len())
		}
	})
}

// stubCurrencyClient はテスト用のRPCクライアントスタブ。
type stubCurrencyClient struct {
	resp   *currencyrpc.CurrencyResponse
	err    error
	gotCtx context.Context
	gotReq *currencyrpc.CurrencyRequest
}

func (s *stubCurrencyClient) GetUserCurrencies(ctx context.Context, req *currencyrpc.CurrencyRequest) (*currencyrpc.CurrencyResponse, error) {
	s.gotCtx = ctx
	s.gotReq = req
	return s.resp, s.err
}

// TestHandleGetUserCurrencies はgRPCブリッジを検証する。
func TestHandleGetUserCurrencies(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	bridgePath := "/api/grpc/currencies/user/" + userID.String()

	t.Run("成功時はJSONの通貨一覧が返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		stub := &stubCurrencyClient{
			resp: &currencyrpc.CurrencyResponse{
				Currencies: []*currencyrpc.CurrencyItem{
					{Name: "USD", Rate: 1.0},
					{Name: "JPY", Rate: 147.35},
				},
			},
		}
		s.currencies = stub

		bearer := issueToken(t, userID, 15*time.Minute)
		w := doRequest(s.router, http.MethodGet, bridgePath, bearer, nil)

		if w.Code != http.StatusOK {
			t.Fatalf("ステータスコード = %d, want %d, body = %s", w.Code, http.StatusOK, w.Body.String())
		}

		var resp []map[string]any
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("レスポンスのJSON解析に失敗: %v", err)
		}
		if len(resp) != 2 {
			t.Fatalf("通貨数 = %d, want 2", len(resp))
		}
		if resp[1]["name"] != "JPY" || resp[1]["rate"] != 147.35 {
			t.Errorf("resp[1] = %v, want JPY/147.35", resp[1])
		}

		// リクエストのuserIdとメタデータのトークンが伝播されていること
		if stub.gotReq.UserID != userID.String() {
			t.Errorf("RPCのUserID = %q, want %q", stub.gotReq.UserID, userID.String())
		}
		md, ok := metadata.FromOutgoingContext(stub.gotCtx)
		if !ok {
			t.Fatal("RPCコンテキストにメタデータがない")
		}
		if got := md.Get("authorization"); len(got) != 1 || got[0] != "Bearer "+bearer {
			t.Errorf("authorizationメタデータ = %v, want Bearer <トークン>", got)
		}
	})

	t.Run("Unauthenticatedは401とステータス詳細が返ること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		s.currencies = &stubCurrencyClient{err: status.Error(codes.Unauthenticated, "トークンが無効です")}

		w := doRequest(s.router, http.MethodGet, bridgePath, issueToken(t, userID, 15*time.Minute), nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if w.Body.String() != "トークンが無効です" {
			t.Errorf("レスポンスボディ = %q, want %q", w.Body.String(), "トークンが無効です")
		}
	})

	t.Run("その他のRPCエラーは500になること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		s.currencies = &stubCurrencyClient{err: status.Error(codes.Internal, "内部エラー")}

		w := doRequest(s.router, http.MethodGet, bridgePath, issueToken(t, userID, 15*time.Minute), nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
		if w.Body.String() != "Service unavailable" {
			t.Errorf("レスポンスボディ = %q, want %q", w.Body.String(), "Service unavailable")
		}
	})

	t.Run("トランスポート障害も500になること", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		s.currencies = &stubCurrencyClient{err: errors.New("接続が切断された")}

		w := doRequest(s.router, http.MethodGet, bridgePath, issueToken(t, userID, 15*time.Minute), nil)
		if w.Code != http.StatusInternalServerError {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusInternalServerError)
		}
	})

	t.Run("トークンなしは401でRPCが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		s, _ := setupTestServer(t, routesFor("http://localhost:1"))
		stub := &stubCurrencyClient{}
		s.currencies = stub

		w := doRequest(s.router, http.MethodGet, bridgePath, "", nil)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusUnauthorized)
		}
		if stub.gotReq != nil {
			t.Error("認証拒否されたのにRPCが呼ばれた")
		}
	})
}

// TestHealthEndpoint はヘルスチェックが認証不要であることを検証する。
func TestHealthEndpoint(t *testing.T) {
	t.Parallel()

	s, _ := setupTestServer(t, routesFor("http://localhost:1"))
	w := doRequest(s.router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
	}
}
