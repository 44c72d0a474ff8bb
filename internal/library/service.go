package library

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/canvas/internal/auth"
	"github.com/hitoshi/canvas/internal/drive"
	"github.com/hitoshi/canvas/internal/metrics"
	"github.com/hitoshi/canvas/internal/model"
)

// FolderLister はリモートフォルダのリスティングポート。
type FolderLister interface {
	ListFolder(ctx context.Context, accessToken, folderID string) ([]drive.File, error)
}

// Sanitizer はプロバイダー由来テキストのサニタイズポート。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// Service はライブラリの構築と参照のビジネスロジックを提供する。
type Service struct {
	lister    FolderLister
	flows     *auth.FlowRegistry
	store     *Store
	sanitizer Sanitizer
	metrics   metrics.MetricsCollector
	logger    *slog.Logger
	timeout   time.Duration
}

// NewService はServiceを生成する。
func NewService(
	lister FolderLister,
	flows *auth.FlowRegistry,
	store *Store,
	sanitizer Sanitizer,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	timeout time.Duration,
) *Service {
	return &Service{
		lister:    lister,
		flows:     flows,
		store:     store,
		sanitizer: sanitizer,
		metrics:   collector,
		logger:    logger,
		timeout:   timeout,
	}
}

// Refresh は選択フォルダをリスティングし、セッションのライブラリを一括置換する。
// 失敗時はストアを変更せず、直前のアイテムセットが維持される。
// 401系の失敗ではトークンを1回だけ再取得し、リスティングを1回だけやり直す。
func (s *Service) Refresh(ctx context.Context, sessionID, folderID string) error {
	flow := s.flows.Get(sessionID)
	if flow == nil {
		return model.NewNotAuthorizedError()
	}

	token := flow.AccessToken()
	if token == "" {
		return model.NewNotAuthorizedError()
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	files, err := s.listWithReauth(ctx, flow, token, folderID)
	s.metrics.RecordListingLatency(time.Since(start))

	if err != nil {
		return s.classifyListingError(sessionID, folderID, err)
	}

	items := make([]model.SearchResult, 0, len(files))
	for _, f := range files {
		items = append(items, s.buildItem(f))
	}

	s.store.Replace(sessionID, items)
	s.metrics.RecordRefreshSuccess()
	s.metrics.RecordItemsLoaded(len(items))

	s.logger.Info("ライブラリを再構築しました",
		slog.String("session_id", sessionID),
		slog.String("folder_id", folderID),
		slog.Int("item_count", len(items)),
	)

	return nil
}

// Items はセッションのライブラリのスナップショットを返す。
func (s *Service) Items(sessionID string) []model.SearchResult {
	return s.store.Items(sessionID)
}

// Drop はセッションのライブラリを破棄する。
func (s *Service) Drop(sessionID string) {
	s.store.Drop(sessionID)
}

// listWithReauth はリスティングを実行し、401の場合のみトークンを再取得して1回やり直す。
// 再取得後の失敗はそのまま返す（無限ループはしない）。
func (s *Service) listWithReauth(ctx context.Context, flow *auth.Flow, token, folderID string) ([]drive.File, error) {
	files, err := s.lister.ListFolder(ctx, token, folderID)
	if err == nil || !drive.IsUnauthorized(err) {
		return files, err
	}

	// 1. 期限切れを検出: トークンを1回だけ再取得する
	renewed, refreshErr := flow.RetryAuthorization(ctx)
	if refreshErr != nil {
		s.metrics.RecordTokenRefresh(false)
		return nil, refreshErr
	}
	s.metrics.RecordTokenRefresh(true)

	// 2. 新しいトークンでリスティングをやり直す
	return s.lister.ListFolder(ctx, renewed.AccessToken, folderID)
}

// classifyListingError はリスティングの失敗をユーザー向けエラーに変換し、記録する。
func (s *Service) classifyListingError(sessionID, folderID string, err error) error {
	s.logger.Error("リスティングに失敗しました",
		slog.String("session_id", sessionID),
		slog.String("folder_id", folderID),
		slog.String("error", err.Error()),
	)

	var apiErr *model.APIError
	switch {
	case drive.IsPermanent(err):
		s.metrics.RecordRefreshFailure("permanent")
		apiErr = model.NewFolderNotFoundError()
	case drive.IsRetryable(err):
		s.metrics.RecordRefreshFailure("retryable")
		apiErr = model.NewListingFailedError()
	default:
		if e, ok := err.(*model.APIError); ok {
			// トークン再取得の失敗はauthエラーとしてそのまま表面化する
			s.metrics.RecordRefreshFailure("auth")
			return e
		}
		s.metrics.RecordRefreshFailure("other")
		apiErr = model.NewListingFailedError()
	}

	return apiErr
}

// buildItem はリモートファイルのメタデータをライブラリアイテムに変換する。
func (s *Service) buildItem(f drive.File) model.SearchResult {
	sanitized := s.sanitizer.Sanitize(f.Description)

	return model.SearchResult{
		LibraryItem: model.LibraryItem{
			ID:          f.ID,
			MediaKind:   mediaKindFromMime(f.MimeType),
			Title:       f.Name,
			Description: sanitized,
			Tags:        extractTags(f.Description),
			LocatorURL:  f.WebViewLink,
			TextContent: stripHTMLText(f.Description),
			Origin:      model.OriginRemote,
		},
		WebViewLink:   f.WebViewLink,
		IconLink:      f.IconLink,
		ThumbnailLink: f.ThumbnailLink,
	}
}

// mediaKindFromMime はMIMEタイプをメディア種別にマッピングする。
// image → video → audio → document の順で優先判定し、残りはotherとなる。
func mediaKindFromMime(mimeType string) model.MediaKind {
	mime := strings.ToLower(mimeType)

	switch {
	case strings.HasPrefix(mime, "image/"):
		return model.MediaKindImage
	case strings.HasPrefix(mime, "video/"):
		return model.MediaKindVideo
	case strings.HasPrefix(mime, "audio/"):
		return model.MediaKindAudio
	case strings.HasPrefix(mime, "text/"),
		strings.Contains(mime, "pdf"),
		strings.Contains(mime, "document"):
		return model.MediaKindDocument
	default:
		return model.MediaKindOther
	}
}

// extractTags は説明文中のハッシュタグ（#tag）をタグとして抽出する。
// タグはサニタイズ前の生テキストから取得し、小文字化して返す。
func extractTags(description string) []string {
	var tags []string
	for _, field := range strings.Fields(description) {
		if !strings.HasPrefix(field, "#") {
			continue
		}
		tag := strings.ToLower(strings.TrimPrefix(field, "#"))
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}
