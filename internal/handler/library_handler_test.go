package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/canvas/internal/model"
)

// --- モック定義 ---

// mockLibraryService はLibraryServiceInterfaceのモック実装。
type mockLibraryService struct {
	refreshFn func(ctx context.Context, sessionID, folderID string) error
	itemsFn   func(sessionID string) []model.SearchResult
}

func (m *mockLibraryService) Refresh(ctx context.Context, sessionID, folderID string) error {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, sessionID, folderID)
	}
	return nil
}

func (m *mockLibraryService) Items(sessionID string) []model.SearchResult {
	if m.itemsFn != nil {
		return m.itemsFn(sessionID)
	}
	return []model.SearchResult{}
}

// mockFolderSnapshot はFolderSnapshotのモック実装。
type mockFolderSnapshot struct {
	folder *model.FolderSelection
}

func (m *mockFolderSnapshot) CurrentFolder(sessionID string) *model.FolderSelection {
	return m.folder
}

// mockThumbnailFetcher はThumbnailFetcherのモック実装。
type mockThumbnailFetcher struct {
	fetchFn func(ctx context.Context, thumbnailURL string) ([]byte, string, error)
}

func (m *mockThumbnailFetcher) FetchThumbnail(ctx context.Context, thumbnailURL string) ([]byte, string, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, thumbnailURL)
	}
	return nil, "", nil
}

// --- POST /api/library/refresh テスト ---

// TestLibraryHandler_Refresh_Success は選択中フォルダでの再構築が件数を返すことをテストする。
func TestLibraryHandler_Refresh_Success(t *testing.T) {
	svc := &mockLibraryService{
		refreshFn: func(ctx context.Context, sessionID, folderID string) error {
			if sessionID != "session-1" {
				t.Errorf("sessionID = %q, want %q", sessionID, "session-1")
			}
			if folderID != "folder-abc" {
				t.Errorf("folderID = %q, want %q", folderID, "folder-abc")
			}
			return nil
		},
		itemsFn: func(sessionID string) []model.SearchResult {
			return []model.SearchResult{
				{LibraryItem: model.LibraryItem{ID: "item-1", Title: "Beach"}},
				{LibraryItem: model.LibraryItem{ID: "item-2", Title: "Mountain"}},
			}
		},
	}
	folders := &mockFolderSnapshot{folder: &model.FolderSelection{FolderID: "folder-abc", Name: "写真"}}

	h := NewLibraryHandler(svc, folders, &mockThumbnailFetcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/library/refresh", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Refresh(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSONBody(t, w)
	if result["item_count"] != float64(2) {
		t.Errorf("item_count = %v, want 2", result["item_count"])
	}
}

// TestLibraryHandler_Refresh_FolderNotSelected はフォルダ未選択の場合に400を返すことをテストする。
func TestLibraryHandler_Refresh_FolderNotSelected(t *testing.T) {
	called := false
	svc := &mockLibraryService{
		refreshFn: func(ctx context.Context, sessionID, folderID string) error {
			called = true
			return nil
		},
	}

	h := NewLibraryHandler(svc, &mockFolderSnapshot{}, &mockThumbnailFetcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/library/refresh", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Refresh(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if called {
		t.Error("Refresh should not be called without a folder selection")
	}
}

// TestLibraryHandler_Refresh_ListingFailed は一覧取得の失敗が502として返ることをテストする。
func TestLibraryHandler_Refresh_ListingFailed(t *testing.T) {
	svc := &mockLibraryService{
		refreshFn: func(ctx context.Context, sessionID, folderID string) error {
			return model.NewListingFailedError()
		},
	}
	folders := &mockFolderSnapshot{folder: &model.FolderSelection{FolderID: "folder-abc"}}

	h := NewLibraryHandler(svc, folders, &mockThumbnailFetcher{})

	req := httptest.NewRequest(http.MethodPost, "/api/library/refresh", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Refresh(w, req)

	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	result := parseJSONBody(t, w)
	if result["code"] != model.ErrCodeListingFailed {
		t.Errorf("code = %v, want %q", result["code"], model.ErrCodeListingFailed)
	}
}

// --- GET /api/library テスト ---

// TestLibraryHandler_List はライブラリ全件がJSONで返ることをテストする。
func TestLibraryHandler_List(t *testing.T) {
	svc := &mockLibraryService{
		itemsFn: func(sessionID string) []model.SearchResult {
			return []model.SearchResult{
				{
					LibraryItem: model.LibraryItem{
						ID:        "item-1",
						MediaKind: model.MediaKindImage,
						Title:     "Beach Sunset",
						Tags:      []string{"beach"},
						Origin:    model.OriginRemote,
					},
					WebViewLink:   "https://drive.example.com/item-1",
					ThumbnailLink: "https://cdn.example.com/thumb-1.png",
				},
			}
		},
	}

	h := NewLibraryHandler(svc, &mockFolderSnapshot{}, &mockThumbnailFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSONBody(t, w)
	items, ok := result["items"].([]interface{})
	if !ok {
		t.Fatalf("items is not an array: %T", result["items"])
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d, want 1", len(items))
	}
	item := items[0].(map[string]interface{})
	if item["id"] != "item-1" {
		t.Errorf("id = %v, want %q", item["id"], "item-1")
	}
	if item["media_kind"] != "image" {
		t.Errorf("media_kind = %v, want %q", item["media_kind"], "image")
	}
	if item["origin"] != "remote" {
		t.Errorf("origin = %v, want %q", item["origin"], "remote")
	}
	// サムネイルURLはプロキシエンドポイントに渡すためレスポンスに含まれる
	if item["thumbnail_link"] != "https://cdn.example.com/thumb-1.png" {
		t.Errorf("thumbnail_link = %v, want %q", item["thumbnail_link"], "https://cdn.example.com/thumb-1.png")
	}
}

// TestLibraryHandler_List_Empty は空ライブラリで空配列が返ることをテストする。
func TestLibraryHandler_List_Empty(t *testing.T) {
	h := NewLibraryHandler(&mockLibraryService{}, &mockFolderSnapshot{}, &mockThumbnailFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/library", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	result := parseJSONBody(t, w)
	items, ok := result["items"].([]interface{})
	if !ok {
		t.Fatalf("items is not an array: %T", result["items"])
	}
	if len(items) != 0 {
		t.Errorf("len(items) = %d, want 0", len(items))
	}
}

// --- GET /api/library/thumbnail テスト ---

// TestLibraryHandler_Thumbnail_Success はサムネイルのプロキシ取得をテストする。
func TestLibraryHandler_Thumbnail_Success(t *testing.T) {
	fetcher := &mockThumbnailFetcher{
		fetchFn: func(ctx context.Context, thumbnailURL string) ([]byte, string, error) {
			if thumbnailURL != "https://cdn.example.com/thumb.png" {
				t.Errorf("thumbnailURL = %q, want %q", thumbnailURL, "https://cdn.example.com/thumb.png")
			}
			return []byte("png-bytes"), "image/png", nil
		},
	}

	h := NewLibraryHandler(&mockLibraryService{}, &mockFolderSnapshot{}, fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/library/thumbnail?url=https%3A%2F%2Fcdn.example.com%2Fthumb.png", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Thumbnail(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want %q", ct, "image/png")
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, max-age=3600" {
		t.Errorf("Cache-Control = %q, want %q", cc, "private, max-age=3600")
	}
	if w.Body.String() != "png-bytes" {
		t.Errorf("body = %q, want %q", w.Body.String(), "png-bytes")
	}
}

// TestLibraryHandler_Thumbnail_MissingURL はurlパラメータがない場合に400を返すことをテストする。
func TestLibraryHandler_Thumbnail_MissingURL(t *testing.T) {
	h := NewLibraryHandler(&mockLibraryService{}, &mockFolderSnapshot{}, &mockThumbnailFetcher{})

	req := httptest.NewRequest(http.MethodGet, "/api/library/thumbnail", nil)
	req = withIdentity(req, "user-1", "session-1")
	w := httptest.NewRecorder()

	h.Thumbnail(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

// TestLibraryHandler_Thumbnail_NotAvailable は取得失敗時に404を返すことをテストする。
func TestLibraryHandler_Thumbnail_NotAvailable(t *testing.T) {
	tests := []struct {
		name    string
		fetchFn func(ctx context.Context, thumbnailURL string) ([]byte, string, error)
	}{
		{
			name: "取得エラー",
			fetchFn: func(ctx context.Context, thumbnailURL string) ([]byte, string, error) {
				return nil, "", errors.New("connection refused")
			},
		},
		{
			name: "SSRFブロックでデータなし",
			fetchFn: func(ctx context.Context, thumbnailURL string) ([]byte, string, error) {
				return nil, "", nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewLibraryHandler(&mockLibraryService{}, &mockFolderSnapshot{}, &mockThumbnailFetcher{fetchFn: tt.fetchFn})

			req := httptest.NewRequest(http.MethodGet, "/api/library/thumbnail?url=https%3A%2F%2Fexample.com%2Ft.png", nil)
			req = withIdentity(req, "user-1", "session-1")
			w := httptest.NewRecorder()

			h.Thumbnail(w, req)

			if w.Code != http.StatusNotFound {
				t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
			}
		})
	}
}
