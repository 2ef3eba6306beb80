package revocation

import (
	"context"
	"log"
	"time"
)

// DefaultSweepInterval はSweeperのデフォルト清掃間隔。
const DefaultSweepInterval = time.Hour

// Sweeper は失効ストアの期限切れエントリを定期的に削除するバックグラウンドタスク。
type Sweeper struct {
	// store は清掃対象の失効ストア。
	store Store
	// interval は清掃の実行間隔。
	interval time.Duration
	// tick が設定されている場合、内部タイマーの代わりにこのチャネルを使う。
	// テストで実時間を待たずにtickを注入するためのもの。
	tick <-chan time.Time
}

// NewSweeper は指定間隔で清掃を行うSweeperを生成する。
// intervalが0以下の場合はDefaultSweepIntervalを使う。
func NewSweeper(store Store, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{store: store, interval: interval}
}

// Start は清掃ループを開始する。コンテキストがキャンセルされるまでブロックするため、
// goroutineとして呼び出されることを想定している。
// キャンセル後は次のtickを待たずに速やかに終了する。
func (sw *Sweeper) Start(ctx context.Context) {
	log.Printf("[Sweeper] 失効トークンの清掃タスクを開始します。間隔: %s", sw.interval)

	tick := sw.tick
	if tick == nil {
		ticker := time.NewTicker(sw.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("[Sweeper] 清掃タスクを停止します")
			return
		case <-tick:
			sw.sweepOnce()
		}
	}
}

// sweepOnce は1回分の清掃を実行する。
// Sweepは冪等で安価なため、失敗してもリトライやバックオフは行わず次のtickに任せる。
// ストア実装のパニックでループ自体が死なないよう、ここで回復させる。
func (sw *Sweeper) sweepOnce() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Sweeper] 清掃中にパニックが発生しました: %v", r)
		}
	}()

	removed := sw.store.Sweep()
	log.Printf("[Sweeper] 期限切れの失効エントリを%d件削除しました", removed)
}
