package refresh

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/hitoshi/canvas/internal/drive"
	"github.com/hitoshi/canvas/internal/model"
)

// TestClassify はエラーの分類をテストする。
func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Result
	}{
		{"エラーなしは成功", nil, ResultOK},
		{"404は停止", &drive.StatusError{StatusCode: http.StatusNotFound}, ResultStop},
		{"403は停止", &drive.StatusError{StatusCode: http.StatusForbidden}, ResultStop},
		{"429はバックオフ", &drive.StatusError{StatusCode: http.StatusTooManyRequests}, ResultBackoff},
		{"500はバックオフ", &drive.StatusError{StatusCode: http.StatusInternalServerError}, ResultBackoff},
		{"503はバックオフ", &drive.StatusError{StatusCode: http.StatusServiceUnavailable}, ResultBackoff},
		{"フォルダ不明エラーは停止", model.NewFolderNotFoundError(), ResultStop},
		{"認可拒否エラーは認可失敗", model.NewAuthorizationDeniedError("denied"), ResultAuth},
		{"未認可エラーは認可失敗", model.NewNotAuthorizedError(), ResultAuth},
		{"一覧取得失敗エラーはバックオフ", model.NewListingFailedError(), ResultBackoff},
		{"ネットワークエラーはバックオフ", errors.New("dial tcp: connection refused"), ResultBackoff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

// TestCalculateBackoff は指数バックオフの計算をテストする。
func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		consecutiveErrors int
		want              time.Duration
	}{
		{1, 10 * time.Minute},
		{2, 20 * time.Minute},
		{3, 40 * time.Minute},
		{4, 80 * time.Minute},
		{5, 2 * time.Hour},  // 160分は上限2時間でキャップ
		{10, 2 * time.Hour}, // それ以上も常に上限
	}

	for _, tt := range tests {
		got := CalculateBackoff(tt.consecutiveErrors)
		if got != tt.want {
			t.Errorf("CalculateBackoff(%d) = %v, want %v", tt.consecutiveErrors, got, tt.want)
		}
	}
}
