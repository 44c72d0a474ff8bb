// Package search はライブラリに対するキーワード検索パイプラインを提供する。
// キーワード抽出、部分一致マッチング、Web結果の合成、順序保証を含む。
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/hitoshi/canvas/internal/extract"
	"github.com/hitoshi/canvas/internal/metrics"
	"github.com/hitoshi/canvas/internal/model"
)

// ItemSource は検索対象となるライブラリのスナップショット取得ポート。
type ItemSource interface {
	Items(sessionID string) []model.SearchResult
}

// Engine はセッション別の検索を実行する。
// 検索ごとに単調増加するシーケンス番号を払い出し、
// 完了時に最新でない検索の結果を破棄することで表示順序を保証する。
type Engine struct {
	extractor extract.Extractor
	source    ItemSource
	metrics   metrics.MetricsCollector
	logger    *slog.Logger

	// webResultsEnabled が真の場合、キーワードごとにWeb検索への
	// プレースホルダー結果を合成して末尾に付加する。
	webResultsEnabled bool

	mu       sync.Mutex
	seq      map[string]uint64
	lastHits map[string][]model.SearchResult
}

// NewEngine はEngineを生成する。
func NewEngine(
	extractor extract.Extractor,
	source ItemSource,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	webResultsEnabled bool,
) *Engine {
	return &Engine{
		extractor:         extractor,
		source:            source,
		metrics:           collector,
		logger:            logger,
		webResultsEnabled: webResultsEnabled,
		seq:               make(map[string]uint64),
		lastHits:          make(map[string][]model.SearchResult),
	}
}

// Search はクエリを実行し、結果を返す。
// 実行中により新しい検索が開始された場合、この検索の結果は
// セッションの最新結果として公開されず、呼び出し元にstale=trueが返る。
func (e *Engine) Search(ctx context.Context, sessionID, query string) (results []model.SearchResult, stale bool, err error) {
	seq := e.begin(sessionID)
	e.metrics.RecordSearch()

	items := e.source.Items(sessionID)

	// 空クエリはライブラリ全件を返す（閲覧モード）
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return items, !e.publish(sessionID, seq, items), nil
	}

	keywords := e.extractKeywords(ctx, trimmed)
	if len(keywords) == 0 {
		empty := []model.SearchResult{}
		return empty, !e.publish(sessionID, seq, empty), nil
	}

	matched := matchItems(items, keywords)

	if e.webResultsEnabled {
		matched = append(matched, syntheticWebResults(keywords)...)
	}

	matched = dedupeByID(matched)

	e.logger.Debug("検索を実行しました",
		slog.String("session_id", sessionID),
		slog.Int("keyword_count", len(keywords)),
		slog.Int("hit_count", len(matched)),
	)

	return matched, !e.publish(sessionID, seq, matched), nil
}

// LastResults はセッションの最新の検索結果を返す。
func (e *Engine) LastResults(sessionID string) []model.SearchResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	hits, ok := e.lastHits[sessionID]
	if !ok {
		return []model.SearchResult{}
	}

	out := make([]model.SearchResult, len(hits))
	copy(out, hits)
	return out
}

// Drop はセッションの検索状態を破棄する。ログアウト時に呼ばれる。
func (e *Engine) Drop(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.seq, sessionID)
	delete(e.lastHits, sessionID)
}

// begin は新しい検索のシーケンス番号を払い出す。
func (e *Engine) begin(sessionID string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq[sessionID]++
	return e.seq[sessionID]
}

// publish は検索結果をセッションの最新結果として公開する。
// seqが最新の検索のものでない場合は何もせずfalseを返す（結果は破棄される）。
func (e *Engine) publish(sessionID string, seq uint64, hits []model.SearchResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seq != e.seq[sessionID] {
		return false
	}

	e.lastHits[sessionID] = hits
	return true
}

// extractKeywords は抽出器でキーワードを取得し、失敗時はフォールバック分割に切り替える。
// 抽出器の失敗は検索自体を失敗させない。
func (e *Engine) extractKeywords(ctx context.Context, query string) []string {
	keywords, err := e.extractor.Extract(ctx, query)
	if err == nil && len(keywords) > 0 {
		return normalizeKeywords(keywords)
	}

	if err != nil && !errors.Is(err, extract.ErrNotConfigured) {
		e.logger.Warn("キーワード抽出に失敗したためフォールバック分割を使用します",
			slog.String("error", err.Error()),
		)
	}
	e.metrics.RecordExtractorFallback()

	return extract.FallbackTokenize(query)
}

// normalizeKeywords はキーワードを小文字化し、空要素を除去する。
func normalizeKeywords(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			out = append(out, k)
		}
	}
	return out
}

// matchItems はいずれかのキーワードを部分一致で含むアイテムを抽出する（OR検索）。
// マッチはアイテムの出現順を保存する。
func matchItems(items []model.SearchResult, keywords []string) []model.SearchResult {
	matched := make([]model.SearchResult, 0, len(items))
	for _, item := range items {
		text := strings.ToLower(item.SearchableText())
		for _, k := range keywords {
			if strings.Contains(text, k) {
				matched = append(matched, item)
				break
			}
		}
	}
	return matched
}

// syntheticWebResults はキーワードごとにWeb検索へのプレースホルダー結果を合成する。
func syntheticWebResults(keywords []string) []model.SearchResult {
	results := make([]model.SearchResult, 0, len(keywords))
	for _, k := range keywords {
		searchURL := "https://www.google.com/search?q=" + url.QueryEscape(k)
		results = append(results, model.SearchResult{
			LibraryItem: model.LibraryItem{
				ID:          "web-" + k,
				MediaKind:   model.MediaKindOther,
				Title:       fmt.Sprintf("「%s」をWebで検索", k),
				Description: "ライブラリ外のWeb検索結果",
				LocatorURL:  searchURL,
				Origin:      model.OriginWeb,
			},
			WebViewLink: searchURL,
		})
	}
	return results
}

// dedupeByID はID重複を除去する。最初の出現が優先される。
func dedupeByID(results []model.SearchResult) []model.SearchResult {
	seen := make(map[string]struct{}, len(results))
	out := make([]model.SearchResult, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}
