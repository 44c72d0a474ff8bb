// Package voice は音声入力による検索のためのトランスクリプト収集を提供する。
// 認識ストリームのライフサイクル管理（自動再開・明示停止）を含む。
package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/hitoshi/canvas/internal/metrics"
	"github.com/hitoshi/canvas/internal/model"
)

// Event は認識ストリームから届く1件のトランスクリプトイベント。
type Event struct {
	Transcript string
	Final      bool // 確定結果か中間結果か
}

// Stream は進行中の認識ストリーム。
// Eventsチャネルはストリーム終了時にクローズされる。
type Stream interface {
	Events() <-chan Event
	Close() error
}

// Recognizer は音声認識ストリームを開始するポート。
type Recognizer interface {
	Start(ctx context.Context) (Stream, error)
}

// Capture は1セッション分の音声キャプチャ。
// 確定トランスクリプトを蓄積し、確定のたびにonFinalコールバックを呼ぶ。
// 明示的なStopなしにストリームが終了した場合は自動的に再開する。
type Capture struct {
	recognizer Recognizer
	onFinal    func(transcript string)
	metrics    metrics.MetricsCollector

	mu            sync.Mutex
	listening     bool
	stopRequested bool
	stream        Stream
	finals        []string
	interim       string
	lastErr       *model.APIError
}

// NewCapture はCaptureを生成する。
// onFinal は確定トランスクリプト到着のたびに、蓄積済み全文を引数に呼ばれる。
func NewCapture(recognizer Recognizer, collector metrics.MetricsCollector, onFinal func(transcript string)) *Capture {
	return &Capture{
		recognizer: recognizer,
		onFinal:    onFinal,
		metrics:    collector,
	}
}

// Start は認識ストリームを開始する。
// 既にリスニング中の場合は何もしない（多重ストリームは作らない）。
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.listening {
		return nil
	}
	if c.recognizer == nil {
		return model.NewVoiceUnavailableError()
	}

	stream, err := c.recognizer.Start(ctx)
	if err != nil {
		return model.NewVoiceUnavailableError()
	}

	c.stream = stream
	c.listening = true
	c.stopRequested = false
	c.finals = nil
	c.interim = ""
	c.lastErr = nil

	go c.consume(ctx, stream)
	return nil
}

// Stop は認識ストリームを停止する。以後の自動再開は抑止される。
// 蓄積済みのトランスクリプトは保持される。
func (c *Capture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.listening {
		return
	}

	c.stopRequested = true
	c.listening = false
	if c.stream != nil {
		_ = c.stream.Close()
		c.stream = nil
	}
}

// Listening はリスニング中かを返す。
func (c *Capture) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// TakeError は直近のキャプチャエラーを返し、クリアする。
// エラーは一度だけ表面化し、2回目以降の呼び出しはnilを返す。
func (c *Capture) TakeError() *model.APIError {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.lastErr
	c.lastErr = nil
	return err
}

// Transcript は蓄積済みの確定トランスクリプトと最新の中間結果を結合して返す。
func (c *Capture) Transcript() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	parts := make([]string, 0, len(c.finals)+1)
	parts = append(parts, c.finals...)
	if c.interim != "" {
		parts = append(parts, c.interim)
	}
	return strings.Join(parts, " ")
}

// consume はストリームのイベントを読み切り、終了時に再開を判断する。
func (c *Capture) consume(ctx context.Context, stream Stream) {
	for ev := range stream.Events() {
		c.mu.Lock()
		if ev.Final {
			c.finals = append(c.finals, ev.Transcript)
			c.interim = ""
			full := strings.Join(c.finals, " ")
			onFinal := c.onFinal
			c.mu.Unlock()

			if onFinal != nil {
				onFinal(full)
			}
			continue
		}
		c.interim = ev.Transcript
		c.mu.Unlock()
	}

	// ストリーム終了: 明示的なStopでなければ再開する
	c.mu.Lock()
	if !c.listening || c.stopRequested || c.stream != stream {
		c.mu.Unlock()
		return
	}

	next, err := c.recognizer.Start(ctx)
	if err != nil {
		// 再開失敗はキャプチャエラーとして一度だけ表面化する
		c.listening = false
		c.stream = nil
		c.lastErr = model.NewVoiceUnavailableError()
		c.mu.Unlock()
		return
	}

	c.stream = next
	c.metrics.RecordVoiceRestart()
	c.mu.Unlock()

	go c.consume(ctx, next)
}
