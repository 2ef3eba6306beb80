package finance

import (
	"context"
	"log"
	"net"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/nao1215/kawase/pkg/currencyrpc"
	"github.com/nao1215/kawase/pkg/token"
)

// currencyRPC はCurrencyServiceのgRPCサーバー実装。
// HTTPゲートと同じ検証器でメタデータ内のトークンを独立に再検証する。
type currencyRPC struct {
	// queries は通貨テーブル群へのクエリ実行オブジェクト。
	queries *queries
	// validator はトークン検証器。
	validator *token.Validator
}

// GetUserCurrencies は指定ユーザーのお気に入り通貨一覧を返す。
// メタデータのトークンが欠如または無効な場合はUnauthenticated、
// userIdがUUIDでない場合はInvalidArgumentを返す。
func (r *currencyRPC) GetUserCurrencies(ctx context.Context, req *currencyrpc.CurrencyRequest) (*currencyrpc.CurrencyResponse, error) {
	if err := r.authenticate(ctx); err != nil {
		return nil, err
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "ユーザーIDがUUIDではありません")
	}

	currencies, err := r.queries.listFavoriteCurrencies(ctx, userID.String())
	if err != nil {
		log.Printf("[Finance] gRPCお気に入り取得エラー: %v", err)
		return nil, status.Error(codes.Internal, "お気に入りの取得に失敗しました")
	}

	resp := &currencyrpc.CurrencyResponse{
		Currencies: make([]*currencyrpc.CurrencyItem, 0, len(currencies)),
	}
	for _, c := range currencies {
		resp.Currencies = append(resp.Currencies, &currencyrpc.CurrencyItem{
			Name: c.Name,
			Rate: c.Rate,
		})
	}
	return resp, nil
}

// authenticate はgRPCメタデータのベアラートークンを検証する。
func (r *currencyRPC) authenticate(ctx context.Context) error {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "認証メタデータがありません")
	}

	values := md.Get("authorization")
	if len(values) == 0 {
		return status.Error(codes.Unauthenticated, "認証トークンがありません")
	}

	raw, found := strings.CutPrefix(values[0], "Bearer ")
	if !found || raw == "" {
		return status.Error(codes.Unauthenticated, "Bearer トークン形式が不正です")
	}

	if _, err := r.validator.Validate(raw); err != nil {
		return status.Errorf(codes.Unauthenticated, "トークンが無効です: %s", token.Reason(err))
	}
	return nil
}

// NewGRPCServer は通貨サービスのgRPCサーバーを生成する。
func (s *Server) NewGRPCServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ForceServerCodec(currencyrpc.Codec{}))
	currencyrpc.RegisterCurrencyServer(srv, &currencyRPC{
		queries:   s.queries,
		validator: s.validator,
	})
	return srv
}

// ServeGRPC は指定アドレスでgRPCサーバーを起動し、コンテキストの
// キャンセルで適切に停止する。
func (s *Server) ServeGRPC(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := s.NewGRPCServer()
	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	log.Printf("[Finance] gRPCサーバーを起動: %s", addr)
	return srv.Serve(lis)
}
