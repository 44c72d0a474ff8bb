// Package auth はOAuth認証フロー、セッション管理、認可状態機械を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/canvas/internal/model"
	"github.com/hitoshi/canvas/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// Configured はプロバイダーの設定が利用可能かを検証する。
	Configured() error
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報と
	// ストレージスコープのトークンを取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, *model.AuthSession, error)
	// RefreshAccessToken はリフレッシュトークンで新しいアクセストークンを取得する。
	RefreshAccessToken(ctx context.Context, refreshToken string) (*model.AuthSession, error)
}

// StorageChecker はストレージクライアントのブートストラップ検証ポート。
type StorageChecker interface {
	Configured() error
}

// LibraryRefresher はライブラリ再構築のトリガーポート。
// フォルダ選択の確定時とサインイン時のフォルダ復元時に呼び出される。
type LibraryRefresher interface {
	Refresh(ctx context.Context, sessionID, folderID string) error
}

// SessionStateDropper はセッションに紐づくインメモリ状態の破棄ポート。
// ライブラリ、検索結果、音声キャプチャがログアウト時に破棄される。
type SessionStateDropper interface {
	Drop(sessionID string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// Service は認証と認可フローに関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	storage     StorageChecker
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	folderRepo  repository.FolderRepository
	flows       *FlowRegistry
	refresher   LibraryRefresher
	droppers    []SessionStateDropper
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	storage StorageChecker,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	folderRepo repository.FolderRepository,
	flows *FlowRegistry,
	refresher LibraryRefresher,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		storage:     storage,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		folderRepo:  folderRepo,
		flows:       flows,
		refresher:   refresher,
		config:      config,
	}
}

// RegisterDropper はログアウト時に破棄すべきセッション状態の保持者を登録する。
// 構築順序の都合でコンストラクタではなく後付けで登録する。
func (s *Service) RegisterDropper(d SessionStateDropper) {
	s.droppers = append(s.droppers, d)
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行して認可フローを進める。
// 未登録ユーザーの場合はusersレコードとidentitiesレコードを同時に自動作成する。
// 永続化されたフォルダ選択が存在する場合は復元し、ライブラリの再構築をトリガーする。
func (s *Service) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	// 1. 認可コードをトークンに交換し、ユーザー情報とストレージトークンを取得
	userInfo, token, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	// 2. identitiesテーブルで既存ユーザーを検索
	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}

	var userID string

	if identity != nil {
		// 3a. 既存ユーザー: identityからユーザーIDを取得
		userID = identity.UserID
		slog.Info("existing user logged in",
			slog.String("user_id", userID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		// 3b. 新規ユーザー: usersレコードとidentitiesレコードを同時に作成
		newUserID := uuid.New().String()
		newIdentityID := uuid.New().String()
		now := time.Now()

		newUser := &model.User{
			ID:        newUserID,
			Email:     userInfo.Email,
			Name:      userInfo.Name,
			AvatarURL: userInfo.Picture,
			CreatedAt: now,
			UpdatedAt: now,
		}

		newIdentity := &model.Identity{
			ID:             newIdentityID,
			UserID:         newUserID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      now,
		}

		if err := s.userRepo.CreateWithIdentity(ctx, newUser, newIdentity); err != nil {
			return nil, fmt.Errorf("failed to create user and identity: %w", err)
		}

		userID = newUserID
		slog.Info("new user created",
			slog.String("user_id", userID),
			slog.String("email", userInfo.Email),
			slog.String("provider", userInfo.Provider),
		)
	}

	// 4. セッションを発行
	session, err := s.createSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	// 5. 認可フローを構築: ブートストラップ → サインイン → トークン付与
	flow := NewFlow(s.oauth)
	if err := flow.Bootstrap(s.oauth.Configured(), s.storage.Configured()); err != nil {
		s.flows.Put(session.ID, flow)
		return nil, err
	}

	profile := &model.UserProfile{
		DisplayName: userInfo.Name,
		Email:       userInfo.Email,
		AvatarURL:   userInfo.Picture,
	}
	if err := flow.SignIn(profile); err != nil {
		return nil, err
	}
	if err := flow.GrantToken(token); err != nil {
		return nil, err
	}
	s.flows.Put(session.ID, flow)

	// 6. 永続化されたフォルダ選択を復元し、ライブラリを再構築
	saved, err := s.folderRepo.FindByUserID(ctx, userID)
	if err != nil {
		slog.Error("failed to load saved folder selection",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	if saved != nil {
		if err := flow.SelectFolder(saved); err == nil {
			if err := s.refresher.Refresh(ctx, session.ID, saved.FolderID); err != nil {
				// 復元時のリスティング失敗はログインを妨げない
				slog.Warn("failed to refresh library for saved folder",
					slog.String("session_id", session.ID),
					slog.String("folder_id", saved.FolderID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	return session, nil
}

// SelectFolder はフォルダ選択を確定し、永続化してライブラリの再構築をトリガーする。
// Authorized状態でのみ許可される。
func (s *Service) SelectFolder(ctx context.Context, sessionID, userID, folderID, name string) error {
	flow := s.flows.Get(sessionID)
	if flow == nil {
		return model.NewNotAuthorizedError()
	}

	selection := &model.FolderSelection{
		UserID:    userID,
		FolderID:  folderID,
		Name:      name,
		UpdatedAt: time.Now(),
	}

	if err := flow.SelectFolder(selection); err != nil {
		return err
	}

	if err := s.folderRepo.Save(ctx, selection); err != nil {
		return fmt.Errorf("failed to persist folder selection: %w", err)
	}

	slog.Info("folder selected",
		slog.String("session_id", sessionID),
		slog.String("folder_id", folderID),
		slog.String("folder_name", name),
	)

	return s.refresher.Refresh(ctx, sessionID, folderID)
}

// ClearFolder はフォルダ選択を解除し、永続レコードを削除する。
func (s *Service) ClearFolder(ctx context.Context, sessionID, userID string) error {
	if err := s.folderRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete folder selection: %w", err)
	}

	if flow := s.flows.Get(sessionID); flow != nil && flow.State() == StateAuthorized {
		// フォルダのみ解除する。トークンと認証状態は維持される。
		_ = flow.SelectFolder(nil)
	}

	return nil
}

// Logout はセッションとクレデンシャルを破棄する。
// UserProfile、FolderSelection、AuthSession、永続化されたフォルダレコードを
// すべてクリアし、保留中のリスティングの結果は破棄される。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("failed to find session: %w", err)
	}

	if session != nil {
		if err := s.folderRepo.DeleteByUserID(ctx, session.UserID); err != nil {
			slog.Error("failed to delete folder selection on logout",
				slog.String("user_id", session.UserID),
				slog.String("error", err.Error()),
			)
		}
	}

	if flow := s.flows.Get(sessionID); flow != nil {
		flow.Logout()
	}
	s.flows.Delete(sessionID)

	// ライブラリ・検索結果・音声キャプチャを破棄する。
	// 進行中のリスティングの結果は公開先を失い、破棄される。
	for _, d := range s.droppers {
		d.Drop(sessionID)
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のユーザーを取得する。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, fmt.Errorf("session not found or expired")
	}

	user, err := s.userRepo.FindByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user not found")
	}

	return user, nil
}

// CurrentFolder はセッションの現在のフォルダ選択を返す。未選択またはフロー不在の場合はnil。
func (s *Service) CurrentFolder(sessionID string) *model.FolderSelection {
	flow := s.flows.Get(sessionID)
	if flow == nil {
		return nil
	}
	return flow.Folder()
}

// FlowSnapshot はセッションの認可フローの現在の状態を返す。
// フローが存在しない場合はUninitialized扱いとなる。
func (s *Service) FlowSnapshot(sessionID string) (State, *model.UserProfile, *model.FolderSelection, string) {
	flow := s.flows.Get(sessionID)
	if flow == nil {
		return StateUninitialized, nil, nil, ""
	}
	return flow.State(), flow.Profile(), flow.Folder(), flow.LastError()
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, userID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
