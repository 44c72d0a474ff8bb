package search

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// TypedSearcher はテキスト入力による検索のデバウンスを管理する。
// 連続した入力を合流させ、最後の入力から一定時間（テキスト用の短い遅延）
// 経過後に1回だけ検索を実行する。結果はセッションの最新結果として公開され、
// クライアントはGET /api/search/resultsで取得する。
type TypedSearcher struct {
	engine *Engine
	logger *slog.Logger
	delay  time.Duration

	mu       sync.Mutex
	debounce map[string]*Debouncer
}

// NewTypedSearcher はTypedSearcherを生成する。
func NewTypedSearcher(engine *Engine, logger *slog.Logger, delay time.Duration) *TypedSearcher {
	return &TypedSearcher{
		engine:   engine,
		logger:   logger,
		delay:    delay,
		debounce: make(map[string]*Debouncer),
	}
}

// Submit は入力中のクエリを受け付け、デバウンス後の検索実行を予約する。
// 遅延時間内の再入力は前の予約を取り消し、最後のクエリだけが実行される。
func (t *TypedSearcher) Submit(sessionID, query string) {
	t.debouncerFor(sessionID).Trigger(func() {
		// デバウンス後の検索は元のHTTPリクエストに紐づかないためバックグラウンドで実行する
		if _, _, err := t.engine.Search(context.Background(), sessionID, query); err != nil {
			t.logger.Warn("テキスト検索の実行に失敗しました",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()),
			)
		}
	})
}

// Drop はセッションのデバウンス状態を破棄する。ログアウト時に呼ばれる。
func (t *TypedSearcher) Drop(sessionID string) {
	t.mu.Lock()
	debouncer := t.debounce[sessionID]
	delete(t.debounce, sessionID)
	t.mu.Unlock()

	if debouncer != nil {
		debouncer.Stop()
	}
}

// debouncerFor はセッションのデバウンサーを取得または生成する。
func (t *TypedSearcher) debouncerFor(sessionID string) *Debouncer {
	t.mu.Lock()
	defer t.mu.Unlock()

	d, ok := t.debounce[sessionID]
	if !ok {
		d = NewDebouncer(t.delay)
		t.debounce[sessionID] = d
	}
	return d
}
