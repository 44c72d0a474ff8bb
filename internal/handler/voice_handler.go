package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/canvas/internal/model"
	"github.com/hitoshi/canvas/internal/voice"
)

// VoiceServiceInterface は音声ハンドラーが必要とするサービスインターフェース。
type VoiceServiceInterface interface {
	Start(ctx context.Context, sessionID string) error
	Stop(sessionID string)
	Push(sessionID string, ev voice.Event) bool
	EndStream(sessionID string)
	Transcript(sessionID string) (transcript string, listening bool)
	TakeError(sessionID string) *model.APIError
}

// VoiceHandler は音声キャプチャ関連のHTTPハンドラー。
type VoiceHandler struct {
	service VoiceServiceInterface
}

// NewVoiceHandler はVoiceHandlerを生成する。
func NewVoiceHandler(service VoiceServiceInterface) *VoiceHandler {
	return &VoiceHandler{service: service}
}

// Start は音声キャプチャを開始する。既に開始済みの場合も200を返す。
// POST /api/voice/start
func (h *VoiceHandler) Start(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	if err := h.service.Start(r.Context(), sessionID); err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"listening": true})
}

// Stop は音声キャプチャを停止する。
// POST /api/voice/stop
func (h *VoiceHandler) Stop(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	h.service.Stop(sessionID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"listening": false})
}

// voiceEventRequest はトランスクリプトイベントのボディ。
type voiceEventRequest struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
	// End が真の場合、クライアント側の認識セッション終了を意味する。
	End bool `json:"end"`
}

// Event はクライアント側の認識結果イベントを受け取る。
// POST /api/voice/event
// リスニング中でない場合は409を返す。
func (h *VoiceHandler) Event(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	var req voiceEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの形式が不正です。",
			Category: "validation",
			Action:   "リクエスト内容を確認してください。",
		})
		return
	}

	if req.End {
		h.service.EndStream(sessionID)
		w.WriteHeader(http.StatusNoContent)
		return
	}

	delivered := h.service.Push(sessionID, voice.Event{
		Transcript: req.Transcript,
		Final:      req.Final,
	})
	if !delivered {
		http.Error(w, "voice capture is not active", http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Transcript は現在のトランスクリプトとリスニング状態を返す。
// キャプチャエラー（ストリーム再開失敗など）はここで一度だけ表面化する。
// GET /api/voice/transcript
func (h *VoiceHandler) Transcript(w http.ResponseWriter, r *http.Request) {
	_, sessionID, ok := identityFromContext(w, r)
	if !ok {
		return
	}

	transcript, listening := h.service.Transcript(sessionID)

	resp := map[string]interface{}{
		"transcript": transcript,
		"listening":  listening,
	}
	if captureErr := h.service.TakeError(sessionID); captureErr != nil {
		resp["error"] = map[string]string{
			"code":    captureErr.Code,
			"message": captureErr.Message,
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}
