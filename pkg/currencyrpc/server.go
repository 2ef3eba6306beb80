package currencyrpc

import (
	"context"

	"google.golang.org/grpc"
)

// CurrencyServer はCurrencyServiceのサーバー側実装が満たすインターフェース。
type CurrencyServer interface {
	// GetUserCurrencies は指定ユーザーのお気に入り通貨一覧を返す。
	GetUserCurrencies(ctx context.Context, req *CurrencyRequest) (*CurrencyResponse, error)
}

// RegisterCurrencyServer はCurrencyServiceの実装をgRPCサーバーへ登録する。
func RegisterCurrencyServer(s grpc.ServiceRegistrar, srv CurrencyServer) {
	s.RegisterService(&serviceDesc, srv)
}

func getUserCurrenciesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := &CurrencyRequest{}
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(CurrencyServer).GetUserCurrencies(ctx, req)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: methodGetUserCurrencies,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(CurrencyServer).GetUserCurrencies(ctx, req.(*CurrencyRequest))
	}
	return interceptor(ctx, req, info, handler)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: "kawase.finance.CurrencyService",
	HandlerType: (*CurrencyServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetUserCurrencies",
			Handler:    getUserCurrenciesHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "currency.proto",
}
