package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/canvas/internal/middleware"
	"github.com/hitoshi/canvas/internal/model"
)

// FolderServiceInterface はフォルダハンドラーが必要とするサービスインターフェース。
type FolderServiceInterface interface {
	SelectFolder(ctx context.Context, sessionID, userID, folderID, name string) error
	ClearFolder(ctx context.Context, sessionID, userID string) error
}

// FolderFinder は永続化されたフォルダ選択の参照ポート。
type FolderFinder interface {
	FindByUserID(ctx context.Context, userID string) (*model.FolderSelection, error)
}

// FolderHandler はフォルダ選択関連のHTTPハンドラー。
type FolderHandler struct {
	service FolderServiceInterface
	finder  FolderFinder
}

// NewFolderHandler はFolderHandlerを生成する。
func NewFolderHandler(service FolderServiceInterface, finder FolderFinder) *FolderHandler {
	return &FolderHandler{
		service: service,
		finder:  finder,
	}
}

// selectFolderRequest はフォルダ選択リクエストのボディ。
type selectFolderRequest struct {
	FolderID string `json:"folder_id"`
	Name     string `json:"name"`
}

// SelectFolder は検索対象フォルダを選択する。
// POST /api/folder
func (h *FolderHandler) SelectFolder(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	var req selectFolderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "リクエスト内容を確認してください。",
		})
		return
	}

	if strings.TrimSpace(req.FolderID) == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewFolderNotSelectedError())
		return
	}

	if err := h.service.SelectFolder(r.Context(), sessionID, userID, req.FolderID, req.Name); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"folder_id": req.FolderID,
		"name":      req.Name,
	})
}

// GetFolder は現在のフォルダ選択を返す。未選択の場合は404を返す。
// GET /api/folder
func (h *FolderHandler) GetFolder(w http.ResponseWriter, r *http.Request) {
	userID, _, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	selection, err := h.finder.FindByUserID(r.Context(), userID)
	if err != nil {
		slog.Error("failed to find folder selection",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}
	if selection == nil {
		writeAPIErrorResponse(w, http.StatusNotFound, model.NewFolderNotSelectedError())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"folder_id": selection.FolderID,
		"name":      selection.Name,
	})
}

// ClearFolder はフォルダ選択を解除する。
// DELETE /api/folder
func (h *FolderHandler) ClearFolder(w http.ResponseWriter, r *http.Request) {
	userID, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	if err := h.service.ClearFolder(r.Context(), sessionID, userID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// identityFromContext はコンテキストからユーザーIDとセッションIDを取り出す。
// いずれかが欠けている場合は401を書き込みfalseを返す。
func identityFromContext(w http.ResponseWriter, r *http.Request) (userID, sessionID string, ok bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", "", false
	}

	sessionID, err = middleware.SessionIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", "", false
	}

	return userID, sessionID, true
}

// apiErrorResponse はAPIエラーレスポンスのJSONフォーマット。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// writeServiceError はサービス層のエラーを適切なHTTPステータスにマッピングして書き込む。
// APIError以外のエラーは詳細をログのみに記録し、500を返す。
func writeServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unexpected service error", slog.String("error", err.Error()))
		middleware.WriteInternalServerError(w)
		return
	}

	writeAPIErrorResponse(w, statusForAPIError(apiErr), apiErr)
}

// statusForAPIError はエラーコードに対応するHTTPステータスコードを返す。
func statusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeLoginDecodeFailed, model.ErrCodeUserNotFound:
		return http.StatusUnauthorized
	case model.ErrCodeAuthorizationDenied, model.ErrCodeNotAuthorized:
		return http.StatusForbidden
	case model.ErrCodeFolderNotSelected:
		return http.StatusBadRequest
	case model.ErrCodeFolderNotFound:
		return http.StatusNotFound
	case model.ErrCodeListingFailed:
		return http.StatusBadGateway
	case model.ErrCodeBootstrapFailed, model.ErrCodeVoiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
