package search

import (
	"sync"
	"time"
)

// Debouncer は連続した入力イベントを合流させ、最後のイベントから
// 一定時間経過後に1回だけコールバックを実行する。
// テキスト入力（短い遅延）と音声入力（長い遅延）で別インスタンスを使う。
type Debouncer struct {
	delay time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewDebouncer はDebouncerを生成する。
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Trigger はコールバックの実行を予約する。
// 遅延時間内に再度呼ばれた場合、前の予約は取り消され、遅延が仕切り直される。
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, fn)
}

// Stop は保留中の予約を取り消す。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
