package library

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxThumbnailSize はサムネイルの最大サイズ（2MB）。
const maxThumbnailSize = 2 * 1024 * 1024

// thumbnailTimeout はサムネイル取得のタイムアウト。
const thumbnailTimeout = 5 * time.Second

// SSRFValidator はSSRF防止機能のうちthumbnail取得が必要とする部分。
type SSRFValidator interface {
	ValidateURL(rawURL string) error
	NewSafeClient(timeout time.Duration, maxResponseSize int64) *http.Client
}

// ThumbnailFetcherService はプロバイダーCDNからのサムネイル取得のインターフェース。
// サムネイルURLは認証Cookieを要求する場合があるため、サーバー側でプロキシ取得する。
type ThumbnailFetcherService interface {
	// FetchThumbnail は指定URLからサムネイル画像を取得する。
	// 取得失敗時はnilデータと空MIMEを返す（エラーは返さない）。
	FetchThumbnail(ctx context.Context, thumbnailURL string) (data []byte, mimeType string, err error)
}

// ThumbnailFetcher はサムネイル取得機能の実装。
type ThumbnailFetcher struct {
	ssrfGuard SSRFValidator

	mu     sync.Mutex
	client *http.Client
}

// NewThumbnailFetcher はThumbnailFetcherの新しいインスタンスを生成する。
func NewThumbnailFetcher(ssrfGuard SSRFValidator) *ThumbnailFetcher {
	return &ThumbnailFetcher{
		ssrfGuard: ssrfGuard,
	}
}

// FetchThumbnail は指定URLからサムネイル画像を取得する。
// 取得失敗時はnilデータと空MIMEを返す（アイテムカードはメディア種別のアイコンで代替する）。
func (f *ThumbnailFetcher) FetchThumbnail(ctx context.Context, thumbnailURL string) ([]byte, string, error) {
	if thumbnailURL == "" {
		return nil, "", nil
	}

	// SSRF検証
	if err := f.ssrfGuard.ValidateURL(thumbnailURL); err != nil {
		slog.Warn("サムネイル取得: SSRFブロック", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, thumbnailURL, nil)
	if err != nil {
		slog.Warn("サムネイル取得: リクエスト作成失敗", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}

	resp, err := f.getHTTPClient().Do(req)
	if err != nil {
		slog.Warn("サムネイル取得: HTTPリクエスト失敗", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}
	defer resp.Body.Close()

	// 2xx以外は取得失敗として扱う
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("サムネイル取得: HTTPステータス異常", "url", thumbnailURL, "status", resp.StatusCode)
		return nil, "", nil
	}

	// レスポンスボディを読み込み（最大2MB）
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxThumbnailSize+1))
	if err != nil {
		slog.Warn("サムネイル取得: レスポンス読み取り失敗", "url", thumbnailURL, "error", err)
		return nil, "", nil
	}

	// サイズ超過チェック
	if int64(len(body)) > maxThumbnailSize {
		slog.Warn("サムネイル取得: サイズ超過", "url", thumbnailURL, "size", len(body))
		return nil, "", nil
	}

	mimeType := extractMimeType(resp.Header.Get("Content-Type"))
	if !isImageMime(mimeType) {
		slog.Warn("サムネイル取得: 画像以外のContent-Type", "url", thumbnailURL, "contentType", mimeType)
		return nil, "", nil
	}

	return body, mimeType, nil
}

// getHTTPClient はSSRF防止機能付きHTTPクライアントを遅延生成して返す。
func (f *ThumbnailFetcher) getHTTPClient() *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.client == nil {
		f.client = f.ssrfGuard.NewSafeClient(thumbnailTimeout, maxThumbnailSize)
	}
	return f.client
}

// extractMimeType はContent-Typeヘッダーからパラメータを除いたMIMEタイプを取り出す。
func extractMimeType(contentType string) string {
	mime, _, _ := strings.Cut(contentType, ";")
	return strings.TrimSpace(strings.ToLower(mime))
}

// isImageMime はMIMEタイプが画像かを判定する。
func isImageMime(mime string) bool {
	return strings.HasPrefix(mime, "image/")
}

// compile-time interface check
var _ ThumbnailFetcherService = (*ThumbnailFetcher)(nil)
