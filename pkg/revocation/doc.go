// Package revocation はログアウト済みトークンの失効リストを提供する。
//
// 失効エントリはトークン自身の有効期限と同じ寿命を持ち、参照時の遅延失効と
// Sweeperによる定期清掃の両方でメモリ使用量を抑える。ストアはインターフェースで
// 抽象化されており、外部キャッシュ等の別実装に差し替えられる。
package revocation
