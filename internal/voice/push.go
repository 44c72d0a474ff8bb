package voice

import (
	"context"
	"sync"
)

// eventBufferSize はプッシュイベントのバッファサイズ。
// 消費が追いつかない場合、超過分の中間結果は破棄される。
const eventBufferSize = 16

// PushRecognizer はクライアントから送信されるトランスクリプトイベントを
// 認識ストリームとして中継するRecognizer実装。
// 実際の音声認識はクライアント側で行われ、サーバーはその結果を受け取る。
type PushRecognizer struct {
	mu      sync.Mutex
	current *pushStream
}

// NewPushRecognizer はPushRecognizerを生成する。
func NewPushRecognizer() *PushRecognizer {
	return &PushRecognizer{}
}

// Start は新しいストリームを開始し、以後のPushの配送先とする。
func (r *PushRecognizer) Start(ctx context.Context) (Stream, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := newPushStream()
	r.current = s
	return s, nil
}

// Push はイベントを現在のストリームに配送する。
// アクティブなストリームがない場合はfalseを返す。
func (r *PushRecognizer) Push(ev Event) bool {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()

	if s == nil {
		return false
	}
	return s.push(ev)
}

// EndStream は現在のストリームを終了させる。
// クライアント側の認識セッション終了（無音タイムアウト等）を反映する。
// キャプチャがリスニング中であれば自動再開される。
func (r *PushRecognizer) EndStream() {
	r.mu.Lock()
	s := r.current
	r.current = nil
	r.mu.Unlock()

	if s != nil {
		_ = s.Close()
	}
}

// pushStream はチャネルベースのStream実装。
type pushStream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func newPushStream() *pushStream {
	return &pushStream{
		ch: make(chan Event, eventBufferSize),
	}
}

// Events はイベントチャネルを返す。ストリーム終了時にクローズされる。
func (s *pushStream) Events() <-chan Event {
	return s.ch
}

// push はイベントをチャネルに送る。バッファ満杯時は破棄してfalseを返す。
func (s *pushStream) push(ev Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- ev:
		return true
	default:
		return false
	}
}

// Close はストリームを終了する。冪等。
func (s *pushStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	return nil
}

// compile-time interface check
var _ Recognizer = (*PushRecognizer)(nil)
var _ Stream = (*pushStream)(nil)
