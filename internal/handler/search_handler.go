package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/canvas/internal/model"
)

// SearchServiceInterface は検索ハンドラーが必要とするサービスインターフェース。
type SearchServiceInterface interface {
	Search(ctx context.Context, sessionID, query string) (results []model.SearchResult, stale bool, err error)
	LastResults(sessionID string) []model.SearchResult
}

// TypedSearchInterface は入力中クエリのデバウンス付き検索予約ポート。
type TypedSearchInterface interface {
	Submit(sessionID, query string)
}

// SearchHandler は検索関連のHTTPハンドラー。
type SearchHandler struct {
	service SearchServiceInterface
	typed   TypedSearchInterface
}

// NewSearchHandler はSearchHandlerを生成する。
func NewSearchHandler(service SearchServiceInterface, typed TypedSearchInterface) *SearchHandler {
	return &SearchHandler{service: service, typed: typed}
}

// Search はクエリを実行して結果を返す。
// GET /api/search?q=xxx
// 空クエリはライブラリ全件を返す（閲覧モード）。
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	query := r.URL.Query().Get("q")

	results, stale, err := h.service.Search(r.Context(), sessionID, query)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	responses := make([]libraryItemResponse, len(results))
	for i, result := range results {
		responses[i] = toLibraryItemResponse(result)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": responses,
		"stale":   stale,
	})
}

// typedSearchRequest は入力中クエリのボディ。
type typedSearchRequest struct {
	Query string `json:"q"`
}

// Typed は入力中のクエリを受け付け、デバウンス後の検索実行を予約する。
// POST /api/search/typed
// 検索は遅延実行されるため202を返し、結果はGET /api/search/resultsで取得する。
func (h *SearchHandler) Typed(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	var req typedSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "リクエスト内容を確認してください。",
		})
		return
	}

	h.typed.Submit(sessionID, req.Query)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]bool{"accepted": true})
}

// LastResults はセッションの最新の検索結果を返す。
// GET /api/search/results
// 音声検索はバックグラウンドで実行されるため、UIはこのエンドポイントをポーリングする。
func (h *SearchHandler) LastResults(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	results := h.service.LastResults(sessionID)
	responses := make([]libraryItemResponse, len(results))
	for i, result := range results {
		responses[i] = toLibraryItemResponse(result)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"results": responses,
	})
}
