package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/canvas/internal/model"
)

// State は認可フローの状態を表す。
type State string

const (
	// StateUninitialized は外部サービスの初期化前の状態。
	StateUninitialized State = "uninitialized"
	// StateUnauthenticated はサインイン前の状態。
	StateUnauthenticated State = "unauthenticated"
	// StateAuthenticated はサインイン済みでフォルダアクセス未認可の状態。
	StateAuthenticated State = "authenticated"
	// StateAuthorized はフォルダが選択されトークンが有効な状態。
	StateAuthorized State = "authorized"
	// StateError はブートストラップ失敗による回復不能な状態。
	// ユーザーによる再読み込みが必要で、自動リトライは行わない。
	StateError State = "error"
)

// TokenRefresher はストレージスコープのトークン再取得ポート。
type TokenRefresher interface {
	RefreshAccessToken(ctx context.Context, refreshToken string) (*model.AuthSession, error)
}

// Flow は1セッション分の認可状態機械。
// Uninitialized → Unauthenticated → Authenticated → Authorized と遷移し、
// UserProfile / AuthSession / FolderSelection を排他的に所有するクレデンシャルストアを兼ねる。
// 全メソッドはスレッドセーフ。
type Flow struct {
	mu sync.Mutex

	state   State
	profile *model.UserProfile
	token   model.AuthSession
	folder  *model.FolderSelection

	// lastError はユーザーに提示する短いエラーメッセージ。状態遷移で上書きされる。
	lastError string

	refresher TokenRefresher
}

// NewFlow はUninitialized状態のFlowを生成する。
func NewFlow(refresher TokenRefresher) *Flow {
	return &Flow{
		state:     StateUninitialized,
		token:     model.AuthSession{State: model.TokenAbsent},
		refresher: refresher,
	}
}

// Bootstrap は外部サービスの初期化結果を反映する。
// identityとstorageの両方が成功した場合のみUnauthenticatedに遷移する。
// いずれかが失敗した場合はError状態となり、以後の遷移を受け付けない。
func (f *Flow) Bootstrap(identityErr, storageErr error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateUninitialized {
		return nil
	}

	if identityErr != nil || storageErr != nil {
		f.state = StateError
		apiErr := model.NewBootstrapFailedError()
		f.lastError = apiErr.Message
		return apiErr
	}

	f.state = StateUnauthenticated
	return nil
}

// SignIn はデコード済みのIDアサーション（UserProfile）を受け取りAuthenticatedに遷移する。
// profileがnil（デコード失敗）の場合はUnauthenticatedに留まり、エラーを表面化する。
func (f *Flow) SignIn(profile *model.UserProfile) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateError {
		return model.NewBootstrapFailedError()
	}

	if profile == nil {
		apiErr := model.NewLoginDecodeFailedError()
		f.lastError = apiErr.Message
		return apiErr
	}

	f.profile = profile
	f.state = StateAuthenticated
	f.lastError = ""
	return nil
}

// GrantToken はストレージスコープのアクセストークン付与を反映しAuthorizedに遷移する。
// Authorized状態での再付与はトークンの置き換えのみを行う。
func (f *Flow) GrantToken(token *model.AuthSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAuthenticated && f.state != StateAuthorized {
		return model.NewNotAuthorizedError()
	}

	f.token = *token
	f.token.State = model.TokenPresent
	f.state = StateAuthorized
	f.lastError = ""
	return nil
}

// DenyAuthorization は認可の拒否・失敗を反映する。
// 状態はAuthenticatedに留まり、プロバイダーのエラー説明を表面化する。
func (f *Flow) DenyAuthorization(description string) *model.APIError {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state == StateAuthorized {
		f.state = StateAuthenticated
	}
	f.token = model.AuthSession{State: model.TokenAbsent}
	apiErr := model.NewAuthorizationDeniedError(description)
	f.lastError = apiErr.Message
	return apiErr
}

// SelectFolder はフォルダ選択を反映する。Authorized状態でのみ許可され、
// 既存の選択を置き換える（自己ループ遷移）。永続化は呼び出し元が行う。
func (f *Flow) SelectFolder(selection *model.FolderSelection) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.state != StateAuthorized {
		return model.NewNotAuthorizedError()
	}

	f.folder = selection
	return nil
}

// RetryAuthorization は401系の失敗を受けてトークンを1回だけ再取得する。
// 成功するとAuthorizedのまま新しいトークンを返す。
// 失敗するとAuthenticatedに退行し、エラーを返す（無限ループはしない）。
func (f *Flow) RetryAuthorization(ctx context.Context) (*model.AuthSession, error) {
	f.mu.Lock()
	if f.state != StateAuthorized {
		f.mu.Unlock()
		return nil, model.NewNotAuthorizedError()
	}
	f.token.State = model.TokenExpired
	refreshToken := f.token.RefreshToken
	f.mu.Unlock()

	// ネットワーク呼び出し中はロックを保持しない
	renewed, err := f.refresher.RefreshAccessToken(ctx, refreshToken)

	f.mu.Lock()
	defer f.mu.Unlock()

	if err != nil {
		f.state = StateAuthenticated
		f.token = model.AuthSession{State: model.TokenAbsent}
		apiErr := model.NewAuthorizationDeniedError("アクセス権の更新に失敗しました")
		f.lastError = apiErr.Message
		return nil, apiErr
	}

	f.token = *renewed
	f.token.State = model.TokenPresent
	return renewed, nil
}

// Logout は全クレデンシャルを破棄しUnauthenticatedに遷移する。
// 任意の状態から遷移可能。永続レコードの削除は呼び出し元が行う。
func (f *Flow) Logout() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.profile = nil
	f.folder = nil
	f.token = model.AuthSession{State: model.TokenAbsent}
	f.state = StateUnauthenticated
	f.lastError = ""
}

// State は現在の状態を返す。
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Profile は現在のユーザープロフィールを返す。未サインインの場合はnil。
func (f *Flow) Profile() *model.UserProfile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.profile
}

// Folder は現在のフォルダ選択を返す。未選択の場合はnil。
func (f *Flow) Folder() *model.FolderSelection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.folder
}

// AccessToken は現在のアクセストークンを返す。
// トークンを保持していない場合は空文字列を返す。
func (f *Flow) AccessToken() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.token.State != model.TokenPresent {
		return ""
	}
	return f.token.AccessToken
}

// LastError は直近に表面化したユーザー向けエラーメッセージを返す。
func (f *Flow) LastError() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastError
}
