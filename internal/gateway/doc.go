// Package gateway はAPIゲートウェイのHTTPサーバーを提供する。
//
// ゲートウェイはシステムの唯一の公開入口であり、次の責務を持つ:
//
//   - リクエストゲート: ベアラートークンの検証と401応答
//   - 失効リスト: ログアウト済みトークンの保持と定期掃除
//   - ルートテーブル: YAML設定に基づく転送先の解決（SIGHUPで再読込）
//   - プロキシ: 内部サービスへのリクエスト転送とレスポンス中継
//   - RPCブリッジ: HTTPリクエストをfinanceサービスのgRPCへ変換
//
// ゲートウェイ自身は状態を持たず、失効リストはプロセス内メモリのみ。
// 再起動すると失効情報は失われるが、トークンの有効期限が上限となる。
package gateway
