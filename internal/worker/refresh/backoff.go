// Package refresh はライブラリのバックグラウンド再構築処理を提供する。
// スケジューラと失敗時のリトライ/バックオフ戦略を含む。
package refresh

import (
	"errors"
	"time"

	"github.com/hitoshi/canvas/internal/drive"
	"github.com/hitoshi/canvas/internal/model"
)

// Result は再構築失敗の分類。
type Result int

const (
	// ResultOK は再構築成功。
	ResultOK Result = iota
	// ResultStop は自動再構築の停止が必要な失敗（フォルダ削除・アクセス権剥奪）。
	// フォルダが選び直されるまで再試行しない。
	ResultStop
	// ResultBackoff はバックオフが必要な一時的失敗（429/5xx、ネットワーク）。
	ResultBackoff
	// ResultAuth は認可の失敗。トークン再取得の失敗を含み、
	// ユーザーの再認可が必要なためバックオフで様子を見る。
	ResultAuth
)

const (
	// initialBackoff は指数バックオフの初回遅延（10分）。
	initialBackoff = 10 * time.Minute
	// maxBackoff は指数バックオフの最大遅延（2時間）。
	maxBackoff = 2 * time.Hour
)

// Classify は再構築エラーを結果に分類する。
func Classify(err error) Result {
	if err == nil {
		return ResultOK
	}

	switch {
	case drive.IsPermanent(err):
		return ResultStop
	case drive.IsRetryable(err):
		return ResultBackoff
	}

	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeFolderNotFound:
			return ResultStop
		case model.ErrCodeAuthorizationDenied, model.ErrCodeNotAuthorized:
			return ResultAuth
		}
	}

	return ResultBackoff
}

// CalculateBackoff は連続エラー回数に基づいて指数バックオフ遅延を計算する。
// 初回10分、2倍ずつ増加、最大2時間。
func CalculateBackoff(consecutiveErrors int) time.Duration {
	delay := initialBackoff
	for i := 1; i < consecutiveErrors; i++ {
		delay *= 2
		if delay > maxBackoff {
			return maxBackoff
		}
	}
	return delay
}
