package revocation

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Store は失効済みトークンの集合を表す。
// インメモリ実装のほか、外部キャッシュをバックエンドとする実装に差し替えられるよう、
// Revoke/IsRevokedはエラーを返す。
type Store interface {
	// Revoke はトークンキーを失効リストへ登録する。既存エントリは上書きされる（冪等）。
	// expiresAtにはトークン自身の有効期限を渡すこと。自然失効したトークンを
	// それ以上保持する意味はないため、ストアが寿命を延ばすことはない。
	Revoke(tokenKey string, expiresAt time.Time) error
	// IsRevoked はトークンキーが失効リストに存在し、かつ有効期限内である場合にtrueを返す。
	// 期限切れエントリは物理削除前であっても存在しないものとして扱う。
	IsRevoked(tokenKey string) (bool, error)
	// Sweep は有効期限を過ぎたエントリを一括削除し、削除件数を返す。
	Sweep() int
	// Len は現在保持しているエントリ数を返す（期限切れ未削除分を含む）。
	Len() int
}

// Key は生のトークン文字列からストア用のキーを導出する。
// 生トークンをそのままキーにするとメモリを浪費し、ダンプやログへの
// 漏えいリスクがあるため、固定長のSHA-256ダイジェストを使う。
func Key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// MemoryStore はプロセス内メモリに失効エントリを保持するStore実装。
// 単一ゲートウェイプロセスでの利用を想定している。
type MemoryStore struct {
	// mu はentriesへの並行アクセスを保護する。
	mu sync.RWMutex
	// entries はトークンキーから有効期限へのマップ。
	entries map[string]time.Time
	// now は現在時刻を返す関数。テストで差し替える。
	now func() time.Time
}

// NewMemoryStore は空のインメモリ失効ストアを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Revoke はトークンキーを失効リストへ登録する。
// 呼び出しが返った時点で、以降のIsRevokedから必ず観測できる。
func (s *MemoryStore) Revoke(tokenKey string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[tokenKey] = expiresAt
	return nil
}

// IsRevoked はトークンキーが失効済みかどうかを返す。
// 有効期限を過ぎたエントリはSweep前でも「存在しない」扱いにする。
func (s *MemoryStore) IsRevoked(tokenKey string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiresAt, ok := s.entries[tokenKey]
	if !ok {
		return false, nil
	}
	return !s.now().After(expiresAt), nil
}

// Sweep は有効期限を過ぎたエントリを削除し、削除件数を返す。
// 同じ時刻に二度呼んでも、二度目の削除件数は0になる（冪等）。
func (s *MemoryStore) Sweep() int {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, expiresAt := range s.entries {
		if expiresAt.Before(now) {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Len は保持中のエントリ数を返す。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
