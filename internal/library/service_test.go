package library

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"testing"
	"time"

	"github.com/hitoshi/canvas/internal/auth"
	"github.com/hitoshi/canvas/internal/drive"
	"github.com/hitoshi/canvas/internal/model"
)

// --- Service テスト用モック ---

// mockLister はテスト用のFolderListerモック。
// 呼び出しごとに対応するレスポンスを順番に返す。
type mockLister struct {
	responses []listerResponse
	calls     int
	tokens    []string // 受け取ったアクセストークンの履歴
}

type listerResponse struct {
	files []drive.File
	err   error
}

func (m *mockLister) ListFolder(_ context.Context, accessToken, _ string) ([]drive.File, error) {
	m.tokens = append(m.tokens, accessToken)
	idx := m.calls
	m.calls++
	if idx >= len(m.responses) {
		return nil, errors.New("unexpected extra call")
	}
	r := m.responses[idx]
	return r.files, r.err
}

// mockSanitizer はテスト用のSanitizerモック。入力をそのまま返す。
type mockSanitizer struct {
	calls int
}

func (m *mockSanitizer) Sanitize(raw string) string {
	m.calls++
	return raw
}

// mockCollector はテスト用のMetricsCollectorモック。
type mockCollector struct {
	refreshSuccess    int
	refreshFailures   map[string]int
	itemsLoaded       int
	searches          int
	extractorFallback int
	tokenRefresh      map[bool]int
	voiceRestarts     int
}

func newMockCollector() *mockCollector {
	return &mockCollector{
		refreshFailures: make(map[string]int),
		tokenRefresh:    make(map[bool]int),
	}
}

func (m *mockCollector) RecordRefreshSuccess()               { m.refreshSuccess++ }
func (m *mockCollector) RecordRefreshFailure(reason string)  { m.refreshFailures[reason]++ }
func (m *mockCollector) RecordListingStatus(_ int)           {}
func (m *mockCollector) RecordListingLatency(_ time.Duration) {}
func (m *mockCollector) RecordItemsLoaded(count int)         { m.itemsLoaded += count }
func (m *mockCollector) RecordSearch()                       { m.searches++ }
func (m *mockCollector) RecordExtractorFallback()            { m.extractorFallback++ }
func (m *mockCollector) RecordTokenRefresh(success bool)     { m.tokenRefresh[success]++ }
func (m *mockCollector) RecordVoiceRestart()                 { m.voiceRestarts++ }

// mockTokenRefresher はテスト用のauth.TokenRefresherモック。
type mockTokenRefresher struct {
	session *model.AuthSession
	err     error
	calls   int
}

func (m *mockTokenRefresher) RefreshAccessToken(_ context.Context, _ string) (*model.AuthSession, error) {
	m.calls++
	return m.session, m.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type serviceFixture struct {
	lister    *mockLister
	flows     *auth.FlowRegistry
	store     *Store
	sanitizer *mockSanitizer
	collector *mockCollector
	svc       *Service
}

// newServiceFixture はAuthorized状態のセッション "session-1" を持つフィクスチャを返す。
func newServiceFixture(t *testing.T, refresher auth.TokenRefresher, responses ...listerResponse) *serviceFixture {
	t.Helper()

	f := &serviceFixture{
		lister:    &mockLister{responses: responses},
		flows:     auth.NewFlowRegistry(),
		store:     NewStore(),
		sanitizer: &mockSanitizer{},
		collector: newMockCollector(),
	}
	f.svc = NewService(f.lister, f.flows, f.store, f.sanitizer, f.collector, testLogger(), 30*time.Second)

	flow := auth.NewFlow(refresher)
	if err := flow.Bootstrap(nil, nil); err != nil {
		t.Fatalf("Bootstrap returned error: %v", err)
	}
	if err := flow.SignIn(&model.UserProfile{DisplayName: "山田太郎"}); err != nil {
		t.Fatalf("SignIn returned error: %v", err)
	}
	if err := flow.GrantToken(&model.AuthSession{AccessToken: "token-1", RefreshToken: "refresh-1"}); err != nil {
		t.Fatalf("GrantToken returned error: %v", err)
	}
	f.flows.Put("session-1", flow)

	return f
}

// --- Service テスト ---

// TestService_Refresh はリスティング結果がライブラリアイテムに変換され、
// 一括置換されることをテストする。
func TestService_Refresh(t *testing.T) {
	f := newServiceFixture(t, &mockTokenRefresher{}, listerResponse{
		files: []drive.File{
			{
				ID:            "file-1",
				Name:          "海の写真.jpg",
				MimeType:      "image/jpeg",
				WebViewLink:   "https://drive.example.com/file-1",
				IconLink:      "https://drive.example.com/icon-1",
				ThumbnailLink: "https://cdn.example.com/thumb-1.png",
				Description:   "夏の休暇 #beach #夏",
			},
			{ID: "file-2", Name: "議事録.pdf", MimeType: "application/pdf"},
		},
	})

	if err := f.svc.Refresh(context.Background(), "session-1", "folder-1"); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	items := f.svc.Items("session-1")
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}

	first := items[0]
	if first.MediaKind != model.MediaKindImage {
		t.Errorf("MediaKind = %q, want %q", first.MediaKind, model.MediaKindImage)
	}
	if first.Origin != model.OriginRemote {
		t.Errorf("Origin = %q, want %q", first.Origin, model.OriginRemote)
	}
	if first.LocatorURL != "https://drive.example.com/file-1" {
		t.Errorf("LocatorURL = %q, want view link", first.LocatorURL)
	}
	if first.ThumbnailLink != "https://cdn.example.com/thumb-1.png" {
		t.Errorf("ThumbnailLink = %q, want thumbnail link", first.ThumbnailLink)
	}
	if !reflect.DeepEqual(first.Tags, []string{"beach", "夏"}) {
		t.Errorf("Tags = %v, want [beach 夏]", first.Tags)
	}
	if items[1].MediaKind != model.MediaKindDocument {
		t.Errorf("MediaKind = %q, want %q", items[1].MediaKind, model.MediaKindDocument)
	}

	if f.sanitizer.calls == 0 {
		t.Error("sanitizer should be invoked for descriptions")
	}
	if f.collector.refreshSuccess != 1 {
		t.Errorf("refreshSuccess = %d, want 1", f.collector.refreshSuccess)
	}
	if f.collector.itemsLoaded != 2 {
		t.Errorf("itemsLoaded = %d, want 2", f.collector.itemsLoaded)
	}
}

// TestService_Refresh_NoSession はフロー不在のセッションが拒否されることをテストする。
func TestService_Refresh_NoSession(t *testing.T) {
	f := newServiceFixture(t, &mockTokenRefresher{})

	err := f.svc.Refresh(context.Background(), "no-such-session", "folder-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotAuthorized {
		t.Errorf("expected NOT_AUTHORIZED, got %v", err)
	}
}

// TestService_Refresh_KeepsPreviousOnFailure はリスティング失敗時に
// 直前のライブラリが維持されることをテストする。
func TestService_Refresh_KeepsPreviousOnFailure(t *testing.T) {
	f := newServiceFixture(t, &mockTokenRefresher{},
		listerResponse{files: []drive.File{{ID: "file-1", Name: "first"}}},
		listerResponse{err: &drive.StatusError{StatusCode: http.StatusInternalServerError}},
	)

	if err := f.svc.Refresh(context.Background(), "session-1", "folder-1"); err != nil {
		t.Fatalf("first Refresh returned error: %v", err)
	}

	err := f.svc.Refresh(context.Background(), "session-1", "folder-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeListingFailed {
		t.Errorf("expected LISTING_FAILED, got %v", err)
	}

	items := f.svc.Items("session-1")
	if len(items) != 1 || items[0].ID != "file-1" {
		t.Errorf("previous library should be kept, got %v", items)
	}
	if f.collector.refreshFailures["retryable"] != 1 {
		t.Errorf("refreshFailures[retryable] = %d, want 1", f.collector.refreshFailures["retryable"])
	}
}

// TestService_Refresh_PermanentFailure は403/404がFOLDER_NOT_FOUNDに
// 変換されることをテストする。
func TestService_Refresh_PermanentFailure(t *testing.T) {
	f := newServiceFixture(t, &mockTokenRefresher{},
		listerResponse{err: &drive.StatusError{StatusCode: http.StatusNotFound}},
	)

	err := f.svc.Refresh(context.Background(), "session-1", "folder-gone")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFolderNotFound {
		t.Errorf("expected FOLDER_NOT_FOUND, got %v", err)
	}
	if f.collector.refreshFailures["permanent"] != 1 {
		t.Errorf("refreshFailures[permanent] = %d, want 1", f.collector.refreshFailures["permanent"])
	}
}

// TestService_Refresh_ReauthOnce は401でトークンを1回だけ再取得し、
// 新しいトークンでリスティングをやり直すことをテストする。
func TestService_Refresh_ReauthOnce(t *testing.T) {
	refresher := &mockTokenRefresher{
		session: &model.AuthSession{AccessToken: "renewed-token"},
	}
	f := newServiceFixture(t, refresher,
		listerResponse{err: &drive.StatusError{StatusCode: http.StatusUnauthorized}},
		listerResponse{files: []drive.File{{ID: "file-1"}}},
	)

	if err := f.svc.Refresh(context.Background(), "session-1", "folder-1"); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	if f.lister.calls != 2 {
		t.Errorf("lister.calls = %d, want 2", f.lister.calls)
	}
	if refresher.calls != 1 {
		t.Errorf("refresher.calls = %d, want 1", refresher.calls)
	}
	if f.lister.tokens[1] != "renewed-token" {
		t.Errorf("retry token = %q, want %q", f.lister.tokens[1], "renewed-token")
	}
	if f.collector.tokenRefresh[true] != 1 {
		t.Errorf("tokenRefresh[true] = %d, want 1", f.collector.tokenRefresh[true])
	}
}

// TestService_Refresh_ReauthFailureDemotes は再取得の失敗で再リスティングせず、
// authエラーが表面化することをテストする。再々取得のループには入らない。
func TestService_Refresh_ReauthFailureDemotes(t *testing.T) {
	refresher := &mockTokenRefresher{err: errors.New("refresh token revoked")}
	f := newServiceFixture(t, refresher,
		listerResponse{err: &drive.StatusError{StatusCode: http.StatusUnauthorized}},
	)

	err := f.svc.Refresh(context.Background(), "session-1", "folder-1")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeAuthorizationDenied {
		t.Errorf("expected AUTHORIZATION_DENIED, got %v", err)
	}
	if f.lister.calls != 1 {
		t.Errorf("lister.calls = %d, want 1 (no relist after failed refresh)", f.lister.calls)
	}
	if refresher.calls != 1 {
		t.Errorf("refresher.calls = %d, want 1", refresher.calls)
	}
	if f.collector.tokenRefresh[false] != 1 {
		t.Errorf("tokenRefresh[false] = %d, want 1", f.collector.tokenRefresh[false])
	}

	// 失敗後はAuthenticatedに退行しトークンを失うため、次のRefreshは即座に拒否される
	err = f.svc.Refresh(context.Background(), "session-1", "folder-1")
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeNotAuthorized {
		t.Errorf("expected NOT_AUTHORIZED after demotion, got %v", err)
	}
}

// TestService_Refresh_ReauthThenPermanent は再取得成功後の2度目の失敗が
// そのまま表面化することをテストする（やり直しは1回だけ）。
func TestService_Refresh_ReauthThenPermanent(t *testing.T) {
	refresher := &mockTokenRefresher{
		session: &model.AuthSession{AccessToken: "renewed-token"},
	}
	f := newServiceFixture(t, refresher,
		listerResponse{err: &drive.StatusError{StatusCode: http.StatusUnauthorized}},
		listerResponse{err: &drive.StatusError{StatusCode: http.StatusForbidden}},
	)

	err := f.svc.Refresh(context.Background(), "session-1", "folder-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeFolderNotFound {
		t.Errorf("expected FOLDER_NOT_FOUND, got %v", err)
	}
	if f.lister.calls != 2 {
		t.Errorf("lister.calls = %d, want 2", f.lister.calls)
	}
}

// TestService_Drop はセッションのライブラリ破棄をテストする。
func TestService_Drop(t *testing.T) {
	f := newServiceFixture(t, &mockTokenRefresher{},
		listerResponse{files: []drive.File{{ID: "file-1"}}},
	)
	if err := f.svc.Refresh(context.Background(), "session-1", "folder-1"); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	f.svc.Drop("session-1")

	if len(f.svc.Items("session-1")) != 0 {
		t.Error("Items after Drop should be empty")
	}
}

// TestMediaKindFromMime はMIMEタイプのメディア種別マッピングをテストする。
// image → video → audio → document の順で判定され、残りはotherとなる。
func TestMediaKindFromMime(t *testing.T) {
	tests := []struct {
		mime string
		want model.MediaKind
	}{
		{"image/jpeg", model.MediaKindImage},
		{"image/png", model.MediaKindImage},
		{"video/mp4", model.MediaKindVideo},
		{"audio/mpeg", model.MediaKindAudio},
		{"text/plain", model.MediaKindDocument},
		{"application/pdf", model.MediaKindDocument},
		{"application/vnd.google-apps.document", model.MediaKindDocument},
		{"application/zip", model.MediaKindOther},
		{"", model.MediaKindOther},
		{"IMAGE/JPEG", model.MediaKindImage},
	}

	for _, tt := range tests {
		if got := mediaKindFromMime(tt.mime); got != tt.want {
			t.Errorf("mediaKindFromMime(%q) = %q, want %q", tt.mime, got, tt.want)
		}
	}
}

// TestExtractTags は説明文からのハッシュタグ抽出をテストする。
func TestExtractTags(t *testing.T) {
	tests := []struct {
		name        string
		description string
		want        []string
	}{
		{"タグあり", "夏の休暇 #Beach #Sunset", []string{"beach", "sunset"}},
		{"タグなし", "ただの説明文", nil},
		{"空の説明", "", nil},
		{"記号のみは除外", "# #tag", []string{"tag"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTags(tt.description)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extractTags(%q) = %v, want %v", tt.description, got, tt.want)
			}
		})
	}
}
