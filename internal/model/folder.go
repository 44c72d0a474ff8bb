// Package model はドメインモデルを定義する。
package model

import "time"

// FolderSelection は検索対象として選択されたリモートフォルダを表す。
// ユーザーごとに高々1件、セッションをまたいで永続化される。
type FolderSelection struct {
	UserID    string
	FolderID  string
	Name      string
	UpdatedAt time.Time
}

// TokenState はストレージAPI用アクセストークンのライフサイクル状態を表す。
type TokenState string

const (
	// TokenAbsent はトークン未取得の状態。
	TokenAbsent TokenState = "absent"
	// TokenPending はトークン取得要求中の状態。
	TokenPending TokenState = "pending"
	// TokenPresent は使用可能なトークンを保持している状態。
	TokenPresent TokenState = "present"
	// TokenExpired は401系の失敗により期限切れが検出された状態。
	TokenExpired TokenState = "expired"
)

// AuthSession はストレージAPIへのアクセストークンとその状態を保持する。
// トークンは事前更新しない。期限切れは失敗したAPI呼び出しから反応的に検出される。
type AuthSession struct {
	State        TokenState
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}
