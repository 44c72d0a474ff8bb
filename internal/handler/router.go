package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/canvas/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// フォルダ
	FolderService FolderServiceInterface
	FolderFinder  FolderFinder

	// ライブラリ
	LibraryService LibraryServiceInterface
	FolderSnapshot FolderSnapshot
	Thumbnails     ThumbnailFetcher

	// 検索
	SearchService SearchServiceInterface
	TypedSearch   TypedSearchInterface

	// 音声
	VoiceService VoiceServiceInterface

	// メトリクス（Prometheusスクレイプ用）
	Metrics http.Handler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）と/healthはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	folderHandler := NewFolderHandler(deps.FolderService, deps.FolderFinder)
	libraryHandler := NewLibraryHandler(deps.LibraryService, deps.FolderSnapshot, deps.Thumbnails)
	searchHandler := NewSearchHandler(deps.SearchService, deps.TypedSearch)
	voiceHandler := NewVoiceHandler(deps.VoiceService)

	// --- 認証不要のルート ---

	r.Get("/health", healthHandler)

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/status", authHandler.Status)
	})

	// CSRFトークン取得
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// フォルダ選択
		r.Route("/api/folder", func(r chi.Router) {
			r.Post("/", folderHandler.SelectFolder)
			r.Get("/", folderHandler.GetFolder)
			r.Delete("/", folderHandler.ClearFolder)
		})

		// ライブラリ
		r.Route("/api/library", func(r chi.Router) {
			r.Post("/refresh", libraryHandler.Refresh)
			r.Get("/", libraryHandler.List)
			r.Get("/thumbnail", libraryHandler.Thumbnail)
		})

		// 検索（検索専用レート制限を追加）
		r.Route("/api/search", func(r chi.Router) {
			r.With(deps.RateLimiter.SearchMiddleware()).Get("/", searchHandler.Search)
			r.With(deps.RateLimiter.SearchMiddleware()).Post("/typed", searchHandler.Typed)
			r.Get("/results", searchHandler.LastResults)
		})

		// 音声キャプチャ
		r.Route("/api/voice", func(r chi.Router) {
			r.Post("/start", voiceHandler.Start)
			r.Post("/stop", voiceHandler.Stop)
			r.Post("/event", voiceHandler.Event)
			r.Get("/transcript", voiceHandler.Transcript)
		})
	})

	return r
}

// healthHandler はサーバーの生存確認に応答する。
func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
