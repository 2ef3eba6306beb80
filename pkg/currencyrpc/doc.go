// Package currencyrpc はfinanceサービスの通貨情報RPCのワイヤ型とクライアント/サーバーを提供する。
//
// メッセージは3種類・5フィールドしかないため、コード生成は使わず
// protowireで直接エンコードする。ワイヤ形式は以下のスキーマと互換:
//
//	service CurrencyService {
//	  rpc GetUserCurrencies(CurrencyRequest) returns (CurrencyResponse);
//	}
//	message CurrencyRequest  { string user_id = 1; }
//	message CurrencyItem     { string name = 1; double rate = 2; }
//	message CurrencyResponse { repeated CurrencyItem currencies = 1; }
//
// 認証はgRPCメタデータの authorization キーでベアラートークンを伝播し、
// サーバー側が独立して再検証する。
package currencyrpc
