package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
)

func newTestProvider(tokenURL, userInfoURL string) *GoogleOAuthProvider {
	return NewGoogleOAuthProvider(GoogleOAuthConfig{
		ClientID:     "test-client-id",
		ClientSecret: "test-client-secret",
		RedirectURL:  "http://localhost:8080/auth/google/callback",
		TokenURL:     tokenURL,
		UserInfoURL:  userInfoURL,
	})
}

// TestGoogleOAuthProvider_Configured は設定の検証をテストする。
func TestGoogleOAuthProvider_Configured(t *testing.T) {
	tests := []struct {
		name    string
		config  GoogleOAuthConfig
		wantErr bool
	}{
		{
			name: "正常な設定",
			config: GoogleOAuthConfig{
				ClientID:     "id",
				ClientSecret: "secret",
				RedirectURL:  "http://localhost/callback",
			},
			wantErr: false,
		},
		{
			name:    "ClientID未設定",
			config:  GoogleOAuthConfig{ClientSecret: "secret", RedirectURL: "http://localhost/callback"},
			wantErr: true,
		},
		{
			name:    "RedirectURL未設定",
			config:  GoogleOAuthConfig{ClientID: "id", ClientSecret: "secret"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewGoogleOAuthProvider(tt.config)
			err := p.Configured()
			if (err != nil) != tt.wantErr {
				t.Errorf("Configured() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestGoogleOAuthProvider_GetLoginURL は認証URLにストレージスコープと
// offlineアクセスが含まれることをテストする。
func TestGoogleOAuthProvider_GetLoginURL(t *testing.T) {
	p := newTestProvider("", "")
	loginURL := p.GetLoginURL("state-123")

	parsed, err := url.Parse(loginURL)
	if err != nil {
		t.Fatalf("failed to parse login URL: %v", err)
	}
	q := parsed.Query()

	if q.Get("client_id") != "test-client-id" {
		t.Errorf("client_id = %q, want %q", q.Get("client_id"), "test-client-id")
	}
	if q.Get("state") != "state-123" {
		t.Errorf("state = %q, want %q", q.Get("state"), "state-123")
	}
	if q.Get("access_type") != "offline" {
		t.Errorf("access_type = %q, want %q", q.Get("access_type"), "offline")
	}
	scope := q.Get("scope")
	if !strings.Contains(scope, "openid") || !strings.Contains(scope, driveReadonlyScope) {
		t.Errorf("scope = %q, want openid and drive.readonly", scope)
	}
}

// TestGoogleOAuthProvider_ExchangeCode はコード交換の成功シナリオをテストする。
// トークン交換とユーザー情報取得の2段階がどちらも実行される。
func TestGoogleOAuthProvider_ExchangeCode(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "authorization_code" {
			t.Errorf("grant_type = %q, want %q", got, "authorization_code")
		}
		if got := r.PostForm.Get("code"); got != "auth-code" {
			t.Errorf("code = %q, want %q", got, "auth-code")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token":  "access-token-1",
			"refresh_token": "refresh-token-1",
			"expires_in":    3600,
			"token_type":    "Bearer",
		})
	}))
	defer tokenServer.Close()

	userInfoServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer access-token-1" {
			t.Errorf("Authorization = %q, want %q", got, "Bearer access-token-1")
		}
		json.NewEncoder(w).Encode(map[string]string{
			"sub":     "google-user-1",
			"email":   "taro@example.com",
			"name":    "山田太郎",
			"picture": "https://example.com/avatar.png",
		})
	}))
	defer userInfoServer.Close()

	p := newTestProvider(tokenServer.URL, userInfoServer.URL)

	userInfo, session, err := p.ExchangeCode(context.Background(), "auth-code")
	if err != nil {
		t.Fatalf("ExchangeCode returned error: %v", err)
	}
	if userInfo.ProviderUserID != "google-user-1" {
		t.Errorf("ProviderUserID = %q, want %q", userInfo.ProviderUserID, "google-user-1")
	}
	if userInfo.Provider != "google" {
		t.Errorf("Provider = %q, want %q", userInfo.Provider, "google")
	}
	if session.AccessToken != "access-token-1" {
		t.Errorf("AccessToken = %q, want %q", session.AccessToken, "access-token-1")
	}
	if session.RefreshToken != "refresh-token-1" {
		t.Errorf("RefreshToken = %q, want %q", session.RefreshToken, "refresh-token-1")
	}
}

// TestGoogleOAuthProvider_ExchangeCode_Denied はプロバイダーのエラー説明が
// エラーメッセージに表面化することをテストする。
func TestGoogleOAuthProvider_ExchangeCode_Denied(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error":             "invalid_grant",
			"error_description": "Code was already redeemed.",
		})
	}))
	defer tokenServer.Close()

	p := newTestProvider(tokenServer.URL, "")

	_, _, err := p.ExchangeCode(context.Background(), "used-code")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "Code was already redeemed.") {
		t.Errorf("error = %q, want provider description surfaced", err.Error())
	}
}

// TestGoogleOAuthProvider_RefreshAccessToken はリフレッシュトークンによる
// トークン再取得をテストする。リフレッシュトークン自体は維持される。
func TestGoogleOAuthProvider_RefreshAccessToken(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("failed to parse form: %v", err)
		}
		if got := r.PostForm.Get("grant_type"); got != "refresh_token" {
			t.Errorf("grant_type = %q, want %q", got, "refresh_token")
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "renewed-token",
			"expires_in":   3600,
		})
	}))
	defer tokenServer.Close()

	p := newTestProvider(tokenServer.URL, "")

	session, err := p.RefreshAccessToken(context.Background(), "refresh-token-1")
	if err != nil {
		t.Fatalf("RefreshAccessToken returned error: %v", err)
	}
	if session.AccessToken != "renewed-token" {
		t.Errorf("AccessToken = %q, want %q", session.AccessToken, "renewed-token")
	}
	if session.RefreshToken != "refresh-token-1" {
		t.Errorf("RefreshToken = %q, want %q", session.RefreshToken, "refresh-token-1")
	}
}

// TestGoogleOAuthProvider_RefreshAccessToken_Empty は空のリフレッシュトークンが
// ネットワーク呼び出しなしで拒否されることをテストする。
func TestGoogleOAuthProvider_RefreshAccessToken_Empty(t *testing.T) {
	p := newTestProvider("http://127.0.0.1:1", "")
	if _, err := p.RefreshAccessToken(context.Background(), ""); err == nil {
		t.Fatal("expected error, got nil")
	}
}
