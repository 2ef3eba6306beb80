// Package httpclient はゲートウェイから内部サービスへのHTTP転送クライアントを提供する。
//
// JSONの組み立てや解釈は行わず、受信リクエストのメソッド・ヘッダー・ボディを
// そのまま転送する。ホップバイホップヘッダーの除去のみここで行う。
package httpclient
