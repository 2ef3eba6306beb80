// Package middleware はGinベースのHTTP APIで使用する共通ミドルウェアを提供する。
//
// ベアラートークンを検証するリクエストゲート、パニックリカバリ、CORS設定など、
// ゲートウェイと内部サービスで共通して使用するミドルウェアを含む。
package middleware
