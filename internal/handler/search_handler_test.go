package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/canvas/internal/model"
)

// mockSearchService はSearchServiceInterfaceのモック実装。
type mockSearchService struct {
	searchFn      func(ctx context.Context, sessionID, query string) ([]model.SearchResult, bool, error)
	lastResultsFn func(sessionID string) []model.SearchResult
}

func (m *mockSearchService) Search(ctx context.Context, sessionID, query string) ([]model.SearchResult, bool, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, sessionID, query)
	}
	return []model.SearchResult{}, false, nil
}

func (m *mockSearchService) LastResults(sessionID string) []model.SearchResult {
	if m.lastResultsFn != nil {
		return m.lastResultsFn(sessionID)
	}
	return []model.SearchResult{}
}

// mockTypedSearch はTypedSearchInterfaceのモック実装。
type mockTypedSearch struct {
	submitFn func(sessionID, query string)
}

func (m *mockTypedSearch) Submit(sessionID, query string) {
	if m.submitFn != nil {
		m.submitFn(sessionID, query)
	}
}

// --- GET /api/search テスト ---

// TestSearchHandler_Search_Success はクエリ実行と結果のシリアライズをテストする。
func TestSearchHandler_Search_Success(t *testing.T) {
	svc := &mockSearchService{
		searchFn: func(ctx context.Context, sessionID, query string) ([]model.SearchResult, bool, error) {
			if sessionID != "session-1" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-1")
			}
			if query != "海の写真" {
				t.Errorf("query = %q, want %q", query, "海の写真")
			}
			return []model.SearchResult{
				{LibraryItem: model.LibraryItem{ID: "item-1", MediaKind: model.MediaKindImage, Title: "海", Origin: model.OriginRemote}},
			}, false, nil
		},
	}

	h := NewSearchHandler(svc, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q="+"%E6%B5%B7%E3%81%AE%E5%86%99%E7%9C%9F", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSONBody(t, w)
	if result["stale"] != false {
		t.Errorf("stale = %v, want false", result["stale"])
	}
	results, ok := result["results"].([]interface{})
	if !ok {
		t.Fatalf("results is not an array: %T", result["results"])
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	first := results[0].(map[string]interface{})
	if first["id"] != "item-1" {
		t.Errorf("id = %v, want %q", first["id"], "item-1")
	}
}

// TestSearchHandler_Search_EmptyQuery は空クエリがそのままサービスに渡ることをテストする。
func TestSearchHandler_Search_EmptyQuery(t *testing.T) {
	var gotQuery string
	svc := &mockSearchService{
		searchFn: func(ctx context.Context, sessionID, query string) ([]model.SearchResult, bool, error) {
			gotQuery = query
			return []model.SearchResult{
				{LibraryItem: model.LibraryItem{ID: "item-1"}},
				{LibraryItem: model.LibraryItem{ID: "item-2"}},
			}, false, nil
		},
	}

	h := NewSearchHandler(svc, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if gotQuery != "" {
		t.Errorf("query = %q, want empty", gotQuery)
	}

	result := parseJSONBody(t, w)
	results := result["results"].([]interface{})
	if len(results) != 2 {
		t.Errorf("len(results) = %d, want 2", len(results))
	}
}

// TestSearchHandler_Search_Stale は破棄された検索のstaleフラグが伝播することをテストする。
func TestSearchHandler_Search_Stale(t *testing.T) {
	svc := &mockSearchService{
		searchFn: func(ctx context.Context, sessionID, query string) ([]model.SearchResult, bool, error) {
			return []model.SearchResult{}, true, nil
		},
	}

	h := NewSearchHandler(svc, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=old", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Search(w, req)

	result := parseJSONBody(t, w)
	if result["stale"] != true {
		t.Errorf("stale = %v, want true", result["stale"])
	}
}

// TestSearchHandler_Search_NotAuthorized は未認可エラーが403で返ることをテストする。
func TestSearchHandler_Search_NotAuthorized(t *testing.T) {
	svc := &mockSearchService{
		searchFn: func(ctx context.Context, sessionID, query string) ([]model.SearchResult, bool, error) {
			return nil, false, model.NewNotAuthorizedError()
		},
	}

	h := NewSearchHandler(svc, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=beach", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

// TestSearchHandler_Search_NoIdentity はコンテキストに識別情報がない場合に401を返すことをテストする。
func TestSearchHandler_Search_NoIdentity(t *testing.T) {
	h := NewSearchHandler(&mockSearchService{}, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodGet, "/api/search?q=beach", nil)
	w := httptest.NewRecorder()

	h.Search(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- POST /api/search/typed テスト ---

// TestSearchHandler_Typed は入力中クエリが予約され202が返ることをテストする。
func TestSearchHandler_Typed(t *testing.T) {
	var gotSession, gotQuery string
	typed := &mockTypedSearch{
		submitFn: func(sessionID, query string) {
			gotSession = sessionID
			gotQuery = query
		},
	}

	h := NewSearchHandler(&mockSearchService{}, typed)

	req := httptest.NewRequest(http.MethodPost, "/api/search/typed",
		strings.NewReader(`{"q": "beach sunset"}`))
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Typed(w, req)

	if w.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", w.Code, http.StatusAccepted)
	}
	if gotSession != "session-1" {
		t.Errorf("sessionID = %q, want %q", gotSession, "session-1")
	}
	if gotQuery != "beach sunset" {
		t.Errorf("query = %q, want %q", gotQuery, "beach sunset")
	}

	result := parseJSONBody(t, w)
	if result["accepted"] != true {
		t.Errorf("accepted = %v, want true", result["accepted"])
	}
}

// TestSearchHandler_Typed_InvalidBody は不正なJSONボディで400を返し、
// 検索が予約されないことをテストする。
func TestSearchHandler_Typed_InvalidBody(t *testing.T) {
	var submitted bool
	typed := &mockTypedSearch{
		submitFn: func(_, _ string) { submitted = true },
	}

	h := NewSearchHandler(&mockSearchService{}, typed)

	req := httptest.NewRequest(http.MethodPost, "/api/search/typed",
		strings.NewReader(`{invalid`))
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Typed(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if submitted {
		t.Error("Submit should not be called for invalid body")
	}
}

// TestSearchHandler_Typed_NoIdentity はコンテキストに識別情報がない場合に401を返すことをテストする。
func TestSearchHandler_Typed_NoIdentity(t *testing.T) {
	h := NewSearchHandler(&mockSearchService{}, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodPost, "/api/search/typed",
		strings.NewReader(`{"q": "beach"}`))
	w := httptest.NewRecorder()

	h.Typed(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// --- GET /api/search/results テスト ---

// TestSearchHandler_LastResults はセッションの最新の検索結果が返ることをテストする。
func TestSearchHandler_LastResults(t *testing.T) {
	svc := &mockSearchService{
		lastResultsFn: func(sessionID string) []model.SearchResult {
			if sessionID != "session-1" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-1")
			}
			return []model.SearchResult{
				{LibraryItem: model.LibraryItem{ID: "item-1", Title: "Beach"}},
				{LibraryItem: model.LibraryItem{ID: "web-beach", Title: "beach の検索結果", Origin: model.OriginWeb}},
			}
		},
	}

	h := NewSearchHandler(svc, &mockTypedSearch{})

	req := httptest.NewRequest(http.MethodGet, "/api/search/results", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.LastResults(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSONBody(t, w)
	results := result["results"].([]interface{})
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	second := results[1].(map[string]interface{})
	if second["origin"] != "web" {
		t.Errorf("origin = %v, want %q", second["origin"], "web")
	}
}
