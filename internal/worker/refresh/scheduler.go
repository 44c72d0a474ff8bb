package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/canvas/internal/model"
)

// LibraryRefresher はライブラリ再構築の実行インターフェース。
type LibraryRefresher interface {
	Refresh(ctx context.Context, sessionID, folderID string) error
}

// SessionSource は再構築対象セッションの列挙ポート。
// Authorized状態でフォルダを選択済みのセッションのみが対象となる。
type SessionSource interface {
	ListAuthorized() []string
}

// FolderResolver はセッションの現在のフォルダ選択の参照ポート。
type FolderResolver interface {
	CurrentFolder(sessionID string) *model.FolderSelection
}

// sessionState はセッションごとの再構築の失敗状態。
type sessionState struct {
	consecutiveErrors int
	nextAttempt       time.Time
	// stoppedFolder が空でない場合、そのフォルダIDへの自動再構築は停止中。
	// フォルダが選び直されると解除される。
	stoppedFolder string
}

// Scheduler はライブラリ再構築のスケジューリングと並列制御を行う。
// 定期ティッカーで認可済みセッションを列挙し、
// semaphoreパターンで最大並列数を制御しながら再構築を実行する。
type Scheduler struct {
	sessions       SessionSource
	folders        FolderResolver
	refresher      LibraryRefresher
	logger         *slog.Logger
	maxConcurrency int

	mu     sync.Mutex
	states map[string]*sessionState
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewScheduler(
	sessions SessionSource,
	folders FolderResolver,
	refresher LibraryRefresher,
	logger *slog.Logger,
	maxConcurrency int,
) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	return &Scheduler{
		sessions:       sessions,
		folders:        folders,
		refresher:      refresher,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		states:         make(map[string]*sessionState),
	}
}

// Start は定期ティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("再構築スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("再構築スケジューラを停止しました")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce は認可済みセッションを1回列挙し、並列で再構築を実行する。
// semaphoreパターンで最大並列数を制御する。
func (s *Scheduler) RunOnce(ctx context.Context) {
	sessionIDs := s.sessions.ListAuthorized()
	if len(sessionIDs) == 0 {
		return
	}

	s.logger.Info("再構築サイクルを開始します",
		slog.Int("session_count", len(sessionIDs)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, sessionID := range sessionIDs {
		folder := s.folders.CurrentFolder(sessionID)
		if folder == nil || !s.shouldAttempt(sessionID, folder.FolderID) {
			continue
		}

		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(sessionID, folderID string) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			err := s.refresher.Refresh(ctx, sessionID, folderID)
			s.applyResult(sessionID, folderID, err)
		}(sessionID, folder.FolderID)
	}

	wg.Wait()
}

// shouldAttempt はセッションの再構築を実行すべきかを判定する。
// バックオフ期間中、またはフォルダが停止中の場合はスキップする。
// フォルダが選び直されている場合は停止状態を解除する。
func (s *Scheduler) shouldAttempt(sessionID, folderID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[sessionID]
	if !ok {
		return true
	}

	if state.stoppedFolder != "" {
		if state.stoppedFolder == folderID {
			return false
		}
		// フォルダが選び直された: 停止状態を解除
		state.stoppedFolder = ""
		state.consecutiveErrors = 0
		state.nextAttempt = time.Time{}
		return true
	}

	return !time.Now().Before(state.nextAttempt)
}

// applyResult は再構築結果に応じてセッションの失敗状態を更新する。
func (s *Scheduler) applyResult(sessionID, folderID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch Classify(err) {
	case ResultOK:
		delete(s.states, sessionID)

	case ResultStop:
		s.logger.Warn("フォルダが利用不能のため自動再構築を停止します",
			slog.String("session_id", sessionID),
			slog.String("folder_id", folderID),
		)
		s.states[sessionID] = &sessionState{stoppedFolder: folderID}

	default: // ResultBackoff, ResultAuth
		state, ok := s.states[sessionID]
		if !ok {
			state = &sessionState{}
			s.states[sessionID] = state
		}
		state.consecutiveErrors++
		delay := CalculateBackoff(state.consecutiveErrors)
		state.nextAttempt = time.Now().Add(delay)

		s.logger.Warn("再構築に失敗したためバックオフします",
			slog.String("session_id", sessionID),
			slog.String("folder_id", folderID),
			slog.Int("consecutive_errors", state.consecutiveErrors),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)
	}
}
