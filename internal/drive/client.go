// Package drive はリモートストレージ（Google Drive）連携機能を提供する。
// フォルダ内ファイルの単一ページリスティングを含む。
package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/canvas/internal/metrics"
)

const (
	// defaultEndpoint はDrive v3のファイルリスティングエンドポイント。
	defaultEndpoint = "https://www.googleapis.com/drive/v3/files"

	// listFields はリスティングで要求するフィールドセット。
	// 検索とレンダリングに必要な最小限のみ要求する。
	listFields = "files(id, name, mimeType, webViewLink, iconLink, thumbnailLink, description)"

	// minPageSize / maxPageSize はプロバイダーが許容するページサイズの範囲。
	minPageSize = 100
	maxPageSize = 200
)

// File はリスティングで取得したリモートファイルのメタデータ。
type File struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	MimeType      string `json:"mimeType"`
	WebViewLink   string `json:"webViewLink"`
	IconLink      string `json:"iconLink"`
	ThumbnailLink string `json:"thumbnailLink"`
	Description   string `json:"description"`
}

// listResponse はfiles.listエンドポイントのレスポンス。
// nextPageTokenは要求も参照もしない（リスティングは常に先頭1ページのみ）。
type listResponse struct {
	Files []File `json:"files"`
}

// StatusError はストレージAPIのエラーステータスを保持する。
// 呼び出し元はステータスコードに応じて再認可・打ち切り・バックオフを判断する。
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("storage API returned status %d: %s", e.StatusCode, e.Body)
}

// IsUnauthorized はトークン期限切れ・無効（401）かを判定する。
func IsUnauthorized(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusUnauthorized
}

// IsPermanent はリトライ不能な失敗（403/404）かを判定する。
// フォルダの削除やアクセス権の剥奪がこれに該当する。
func IsPermanent(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusForbidden || se.StatusCode == http.StatusNotFound
}

// IsRetryable は一時的な失敗（429/5xx）かを判定する。
func IsRetryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
}

// Client はリモートストレージAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	metrics    metrics.MetricsCollector
	endpoint   string // テスト用にエンドポイントを差し替え可能
	pageSize   int
}

// NewClient はClient の新しいインスタンスを生成する。
// pageSizeは許容範囲（100〜200）にクランプされる。
func NewClient(httpClient *http.Client, logger *slog.Logger, collector metrics.MetricsCollector, pageSize int) *Client {
	if pageSize < minPageSize {
		pageSize = minPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		metrics:    collector,
		endpoint:   defaultEndpoint,
		pageSize:   pageSize,
	}
}

// Configured はクライアントが利用可能な設定を持つかを検証する。
// ブートストラップ時の型付き成否判定に使用する。
func (c *Client) Configured() error {
	if _, err := url.Parse(c.endpoint); err != nil {
		return fmt.Errorf("invalid storage endpoint: %w", err)
	}
	if c.httpClient == nil {
		return fmt.Errorf("http client is not configured")
	}
	return nil
}

// ListFolder は指定フォルダ直下の非ゴミ箱ファイルを先頭1ページ分だけ取得する。
// ページサイズを超えるフォルダでも後続ページは取得しない。
// 失敗時はエラーを返す（呼び出し元が前回のライブラリ維持を判断する）。
func (c *Client) ListFolder(ctx context.Context, accessToken, folderID string) ([]File, error) {
	if folderID == "" {
		return nil, fmt.Errorf("フォルダIDが指定されていません")
	}

	page, err := c.listPage(ctx, accessToken, folderID)
	if err != nil {
		return nil, err
	}

	c.logger.Info("フォルダのリスティングが完了しました",
		slog.String("folder_id", folderID),
		slog.Int("file_count", len(page.Files)),
	)

	return page.Files, nil
}

// listPage は先頭1ページ分のリスティングを実行する。
func (c *Client) listPage(ctx context.Context, accessToken, folderID string) (*listResponse, error) {
	// リクエストURL構築
	reqURL, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("エンドポイントURLのパースに失敗しました: %w", err)
	}

	q := reqURL.Query()
	q.Set("q", fmt.Sprintf("'%s' in parents and trashed=false", folderID))
	q.Set("fields", listFields)
	q.Set("pageSize", fmt.Sprintf("%d", c.pageSize))
	reqURL.RawQuery = q.Encode()

	// HTTPリクエスト作成
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	// HTTPリクエスト実行
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("ストレージAPIの呼び出しに失敗しました",
			slog.String("folder_id", folderID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("ストレージAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	c.metrics.RecordListingStatus(resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	// HTTPステータスチェック
	if resp.StatusCode != http.StatusOK {
		c.logger.Error("ストレージAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("folder_id", folderID),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	// JSONデコード
	var listResp listResponse
	if err := json.Unmarshal(body, &listResp); err != nil {
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	return &listResp, nil
}
