// Package library はリモートフォルダからのライブラリ構築と保持を提供する。
// リスティング結果の変換、サニタイズ、セッション別のインメモリ保持を含む。
package library

import (
	"sync"
	"time"

	"github.com/hitoshi/canvas/internal/model"
)

// snapshot は1セッション分のライブラリの不変スナップショット。
type snapshot struct {
	items       []model.SearchResult
	version     int64
	refreshedAt time.Time
}

// Store はセッション別のライブラリをインメモリに保持する。
// 置き換えは全件一括で行われ、部分更新は存在しない。
// リスティング失敗時は呼び出し元がReplaceを呼ばないことで直前の内容が維持される。
type Store struct {
	mu   sync.RWMutex
	sets map[string]*snapshot
}

// NewStore はStoreを生成する。
func NewStore() *Store {
	return &Store{
		sets: make(map[string]*snapshot),
	}
}

// Replace はセッションのライブラリを新しいアイテム集合で一括置換する。
// バージョンは単調増加し、置換のたびにインクリメントされる。
func (s *Store) Replace(sessionID string, items []model.SearchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var version int64 = 1
	if prev, ok := s.sets[sessionID]; ok {
		version = prev.version + 1
	}

	s.sets[sessionID] = &snapshot{
		items:       items,
		version:     version,
		refreshedAt: time.Now(),
	}
}

// Items はセッションのライブラリのコピーを返す。未構築の場合は空スライスを返す。
func (s *Store) Items(sessionID string) []model.SearchResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[sessionID]
	if !ok {
		return []model.SearchResult{}
	}

	items := make([]model.SearchResult, len(set.items))
	copy(items, set.items)
	return items
}

// Version はセッションのライブラリのバージョンを返す。未構築の場合は0。
func (s *Store) Version(sessionID string) int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[sessionID]
	if !ok {
		return 0
	}
	return set.version
}

// RefreshedAt はセッションのライブラリの最終構築時刻を返す。
func (s *Store) RefreshedAt(sessionID string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.sets[sessionID]
	if !ok {
		return time.Time{}, false
	}
	return set.refreshedAt, true
}

// Drop はセッションのライブラリを破棄する。ログアウト時に呼ばれる。
func (s *Store) Drop(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sets, sessionID)
}
