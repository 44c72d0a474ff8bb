package voice

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/canvas/internal/metrics"
	"github.com/hitoshi/canvas/internal/model"
	"github.com/hitoshi/canvas/internal/search"
)

// RecognizerFactory はセッションごとのRecognizerを生成する。
type RecognizerFactory func() Recognizer

// Manager はセッション別の音声キャプチャを管理する。
// 確定トランスクリプトはデバウンス（音声用の長い遅延）を経て検索に流れる。
type Manager struct {
	newRecognizer RecognizerFactory
	engine        *search.Engine
	metrics       metrics.MetricsCollector
	logger        *slog.Logger
	delay         time.Duration

	mu          sync.Mutex
	captures    map[string]*Capture
	recognizers map[string]Recognizer
	debounce    map[string]*search.Debouncer
}

// NewManager はManagerを生成する。
// factoryがnilの場合、Startは常に音声機能利用不可エラーを返す。
func NewManager(
	factory RecognizerFactory,
	engine *search.Engine,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	delay time.Duration,
) *Manager {
	return &Manager{
		newRecognizer: factory,
		engine:        engine,
		metrics:       collector,
		logger:        logger,
		delay:         delay,
		captures:      make(map[string]*Capture),
		recognizers:   make(map[string]Recognizer),
		debounce:      make(map[string]*search.Debouncer),
	}
}

// Start はセッションの音声キャプチャを開始する。
// 確定トランスクリプトが届くたびに、デバウンス後に蓄積全文で検索が実行される。
func (m *Manager) Start(ctx context.Context, sessionID string) error {
	if m.newRecognizer == nil {
		return model.NewVoiceUnavailableError()
	}

	capture, debouncer := m.captureFor(sessionID)

	if err := capture.Start(ctx); err != nil {
		return err
	}
	debouncer.Stop()

	m.logger.Info("音声キャプチャを開始しました", slog.String("session_id", sessionID))
	return nil
}

// Stop はセッションの音声キャプチャを停止する。
// 保留中のデバウンス検索はそのまま実行される（発話の最後の断片を取りこぼさない）。
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	capture := m.captures[sessionID]
	m.mu.Unlock()

	if capture != nil {
		capture.Stop()
		m.logger.Info("音声キャプチャを停止しました", slog.String("session_id", sessionID))
	}
}

// Push はクライアントから届いたトランスクリプトイベントを配送する。
// アクティブなキャプチャがない、またはRecognizerがプッシュ非対応の場合はfalseを返す。
func (m *Manager) Push(sessionID string, ev Event) bool {
	m.mu.Lock()
	rec := m.recognizers[sessionID]
	m.mu.Unlock()

	pr, ok := rec.(*PushRecognizer)
	if !ok {
		return false
	}
	return pr.Push(ev)
}

// EndStream はクライアント側の認識セッション終了を反映する。
// キャプチャがリスニング中であればストリームは自動再開される。
func (m *Manager) EndStream(sessionID string) {
	m.mu.Lock()
	rec := m.recognizers[sessionID]
	m.mu.Unlock()

	if pr, ok := rec.(*PushRecognizer); ok {
		pr.EndStream()
	}
}

// Transcript はセッションの現在のトランスクリプトを返す。
func (m *Manager) Transcript(sessionID string) (transcript string, listening bool) {
	m.mu.Lock()
	capture := m.captures[sessionID]
	m.mu.Unlock()

	if capture == nil {
		return "", false
	}
	return capture.Transcript(), capture.Listening()
}

// TakeError はセッションの直近のキャプチャエラーを返し、クリアする。
// エラーがない、またはキャプチャが存在しない場合はnilを返す。
func (m *Manager) TakeError(sessionID string) *model.APIError {
	m.mu.Lock()
	capture := m.captures[sessionID]
	m.mu.Unlock()

	if capture == nil {
		return nil
	}
	return capture.TakeError()
}

// Drop はセッションの音声キャプチャを破棄する。ログアウト時に呼ばれる。
func (m *Manager) Drop(sessionID string) {
	m.mu.Lock()
	capture := m.captures[sessionID]
	debouncer := m.debounce[sessionID]
	delete(m.captures, sessionID)
	delete(m.recognizers, sessionID)
	delete(m.debounce, sessionID)
	m.mu.Unlock()

	if capture != nil {
		capture.Stop()
	}
	if debouncer != nil {
		debouncer.Stop()
	}
}

// captureFor はセッションのキャプチャとデバウンサーを取得または生成する。
func (m *Manager) captureFor(sessionID string) (*Capture, *search.Debouncer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	capture, ok := m.captures[sessionID]
	if ok {
		return capture, m.debounce[sessionID]
	}

	recognizer := m.newRecognizer()
	debouncer := search.NewDebouncer(m.delay)
	capture = NewCapture(recognizer, m.metrics, func(transcript string) {
		debouncer.Trigger(func() {
			// 音声検索はHTTPリクエストに紐づかないためバックグラウンドで実行する
			if _, _, err := m.engine.Search(context.Background(), sessionID, transcript); err != nil {
				m.logger.Warn("音声検索の実行に失敗しました",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
			}
		})
	})

	m.captures[sessionID] = capture
	m.recognizers[sessionID] = recognizer
	m.debounce[sessionID] = debouncer
	return capture, debouncer
}
