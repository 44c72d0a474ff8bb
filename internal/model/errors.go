// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。生のプロバイダーエラーは露出しない。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, library, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeBootstrapFailed     = "BOOTSTRAP_FAILED"
	ErrCodeLoginDecodeFailed   = "LOGIN_DECODE_FAILED"
	ErrCodeAuthorizationDenied = "AUTHORIZATION_DENIED"
	ErrCodeListingFailed       = "LISTING_FAILED"
	ErrCodeFolderNotSelected   = "FOLDER_NOT_SELECTED"
	ErrCodeFolderNotFound      = "FOLDER_NOT_FOUND"
	ErrCodeNotAuthorized       = "NOT_AUTHORIZED"
	ErrCodeVoiceUnavailable    = "VOICE_UNAVAILABLE"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
)

// NewBootstrapFailedError は外部サービスの初期化失敗エラーを生成する。
// セッションに対して致命的であり、自動リトライは行わない。
func NewBootstrapFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeBootstrapFailed,
		Message:  "外部サービスの初期化に失敗しました。",
		Category: "system",
		Action:   "ネットワーク接続とAPIキーの設定を確認し、ページを再読み込みしてください。",
	}
}

// NewLoginDecodeFailedError はIDアサーションのデコード失敗エラーを生成する。
// 未認証状態に留まる回復可能なエラー。
func NewLoginDecodeFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeLoginDecodeFailed,
		Message:  "ログイン情報の処理に失敗しました。",
		Category: "auth",
		Action:   "もう一度サインインしてください。",
	}
}

// NewAuthorizationDeniedError は認可の拒否・失敗エラーを生成する。
// プロバイダーのエラー説明を人間可読な形で含める。
func NewAuthorizationDeniedError(description string) *APIError {
	return &APIError{
		Code:     ErrCodeAuthorizationDenied,
		Message:  fmt.Sprintf("フォルダへのアクセス許可が得られませんでした: %s", description),
		Category: "auth",
		Action:   "フォルダの接続をもう一度お試しください。",
	}
}

// NewListingFailedError はファイル一覧取得の失敗エラーを生成する。
// 直前のアイテムセットは維持される。
func NewListingFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeListingFailed,
		Message:  "選択されたフォルダからファイル一覧を取得できませんでした。",
		Category: "library",
		Action:   "フォルダの選択をやり直すか、しばらく待ってから再度お試しください。",
	}
}

// NewFolderNotSelectedError はフォルダ未選択エラーを生成する。
func NewFolderNotSelectedError() *APIError {
	return &APIError{
		Code:     ErrCodeFolderNotSelected,
		Message:  "検索対象のフォルダが選択されていません。",
		Category: "validation",
		Action:   "フォルダを接続してからお試しください。",
	}
}

// NewFolderNotFoundError は選択フォルダが存在しないかアクセス不能な場合のエラーを生成する。
// フォルダの削除や共有解除がこれに該当し、リトライでは回復しない。
func NewFolderNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeFolderNotFound,
		Message:  "選択されたフォルダが見つからないか、アクセスできません。",
		Category: "library",
		Action:   "別のフォルダを選択してください。",
	}
}

// NewNotAuthorizedError はストレージアクセス未認可エラーを生成する。
func NewNotAuthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeNotAuthorized,
		Message:  "ストレージへのアクセスが許可されていません。",
		Category: "auth",
		Action:   "フォルダの接続からアクセスを許可してください。",
	}
}

// NewVoiceUnavailableError は音声認識機能が利用できない場合のエラーを生成する。
func NewVoiceUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeVoiceUnavailable,
		Message:  "音声認識機能が利用できません。",
		Category: "system",
		Action:   "テキスト入力で検索してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
