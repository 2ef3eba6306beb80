// 通貨サービスのエントリポイント。
// 通貨一覧とお気に入り通貨の管理をHTTPとgRPCの両方で提供する。
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nao1215/kawase/internal/finance"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}
	grpcAddr := os.Getenv("GRPC_ADDR")
	if grpcAddr == "" {
		grpcAddr = ":50051"
	}

	server, err := finance.NewServer(port)
	if err != nil {
		log.Fatalf("Financeサーバーの初期化に失敗: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// gRPCサーバーはHTTPサーバーと並行して動かす
	go func() {
		if err := server.ServeGRPC(ctx, grpcAddr); err != nil {
			log.Fatalf("FinanceサービスのgRPC起動に失敗: %v", err)
		}
	}()

	log.Printf("Financeサービスを起動します: :%s", port)
	if err := server.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Financeサービスの起動に失敗: %v", err)
	}
}
