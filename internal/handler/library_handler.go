package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/canvas/internal/model"
)

// LibraryServiceInterface はライブラリハンドラーが必要とするサービスインターフェース。
type LibraryServiceInterface interface {
	Refresh(ctx context.Context, sessionID, folderID string) error
	Items(sessionID string) []model.SearchResult
}

// FolderSnapshot は現在のフォルダ選択の参照ポート。
type FolderSnapshot interface {
	CurrentFolder(sessionID string) *model.FolderSelection
}

// ThumbnailFetcher はサムネイルのプロキシ取得ポート。
type ThumbnailFetcher interface {
	FetchThumbnail(ctx context.Context, thumbnailURL string) (data []byte, mimeType string, err error)
}

// LibraryHandler はライブラリ関連のHTTPハンドラー。
type LibraryHandler struct {
	service    LibraryServiceInterface
	folders    FolderSnapshot
	thumbnails ThumbnailFetcher
}

// NewLibraryHandler はLibraryHandlerを生成する。
func NewLibraryHandler(service LibraryServiceInterface, folders FolderSnapshot, thumbnails ThumbnailFetcher) *LibraryHandler {
	return &LibraryHandler{
		service:    service,
		folders:    folders,
		thumbnails: thumbnails,
	}
}

// libraryItemResponse はライブラリアイテムのJSONフォーマット。
type libraryItemResponse struct {
	ID          string   `json:"id"`
	MediaKind   string   `json:"media_kind"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	LocatorURL  string   `json:"locator_url,omitempty"`
	Origin      string   `json:"origin"`
	WebViewLink string   `json:"web_view_link,omitempty"`
	IconLink    string   `json:"icon_link,omitempty"`
	// ThumbnailLink はGET /api/library/thumbnail?url= にそのまま渡せるURL。
	ThumbnailLink string `json:"thumbnail_link,omitempty"`
}

// toLibraryItemResponse はドメインモデルをレスポンス型に変換する。
func toLibraryItemResponse(item model.SearchResult) libraryItemResponse {
	return libraryItemResponse{
		ID:          item.ID,
		MediaKind:   string(item.MediaKind),
		Title:       item.Title,
		Description: item.Description,
		Tags:        item.Tags,
		LocatorURL:  item.LocatorURL,
		Origin:        string(item.Origin),
		WebViewLink:   item.WebViewLink,
		IconLink:      item.IconLink,
		ThumbnailLink: item.ThumbnailLink,
	}
}

// Refresh は選択フォルダからライブラリを再構築する。
// POST /api/library/refresh
func (h *LibraryHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	folder := h.folders.CurrentFolder(sessionID)
	if folder == nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewFolderNotSelectedError())
		return
	}

	if err := h.service.Refresh(r.Context(), sessionID, folder.FolderID); err != nil {
		writeServiceError(w, err)
		return
	}

	items := h.service.Items(sessionID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"item_count": len(items),
	})
}

// List はライブラリの全アイテムを返す。
// GET /api/library
func (h *LibraryHandler) List(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	items := h.service.Items(sessionID)
	responses := make([]libraryItemResponse, len(items))
	for i, item := range items {
		responses[i] = toLibraryItemResponse(item)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"items": responses,
	})
}

// Thumbnail はアイテムのサムネイル画像をプロキシ取得して返す。
// GET /api/library/thumbnail?url=xxx
// 取得できない場合は404を返す（UIはメディア種別のアイコンで代替する）。
func (h *LibraryHandler) Thumbnail(w http.ResponseWriter, r *http.Request) {
	if _, _, ok := identityFromContext(w, r); !ok {
		return
	}

	thumbnailURL := r.URL.Query().Get("url")
	if thumbnailURL == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}

	data, mimeType, err := h.thumbnails.FetchThumbnail(r.Context(), thumbnailURL)
	if err != nil || data == nil {
		http.Error(w, "thumbnail not available", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", mimeType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Write(data)
}
