package voice

import (
	"context"
	"testing"
)

// TestPushRecognizer_PushBeforeStart はストリーム開始前のPushが拒否されることをテストする。
func TestPushRecognizer_PushBeforeStart(t *testing.T) {
	r := NewPushRecognizer()
	if r.Push(Event{Transcript: "beach"}) {
		t.Error("Push before Start should return false")
	}
}

// TestPushRecognizer_PushDelivery はPushされたイベントがストリームに届くことをテストする。
func TestPushRecognizer_PushDelivery(t *testing.T) {
	r := NewPushRecognizer()
	stream, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	if !r.Push(Event{Transcript: "beach", Final: true}) {
		t.Fatal("Push should succeed with an active stream")
	}

	ev := <-stream.Events()
	if ev.Transcript != "beach" || !ev.Final {
		t.Errorf("received %+v, want final beach", ev)
	}
}

// TestPushRecognizer_EndStream はEndStreamでチャネルがクローズされ、
// 以後のPushが拒否されることをテストする。
func TestPushRecognizer_EndStream(t *testing.T) {
	r := NewPushRecognizer()
	stream, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	r.EndStream()

	if _, ok := <-stream.Events(); ok {
		t.Error("Events channel should be closed after EndStream")
	}
	if r.Push(Event{Transcript: "late"}) {
		t.Error("Push after EndStream should return false")
	}

	// EndStreamは冪等
	r.EndStream()
}

// TestPushRecognizer_Restart は再Start後のPushが新しいストリームに届くことをテストする。
func TestPushRecognizer_Restart(t *testing.T) {
	r := NewPushRecognizer()
	if _, err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	r.EndStream()

	second, err := r.Start(context.Background())
	if err != nil {
		t.Fatalf("second Start returned error: %v", err)
	}

	if !r.Push(Event{Transcript: "sunset"}) {
		t.Fatal("Push should succeed after restart")
	}
	ev := <-second.Events()
	if ev.Transcript != "sunset" {
		t.Errorf("Transcript = %q, want %q", ev.Transcript, "sunset")
	}
}

// TestPushStream_BufferOverflow はバッファ満杯時のPushが破棄されることをテストする。
func TestPushStream_BufferOverflow(t *testing.T) {
	r := NewPushRecognizer()
	if _, err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start returned error: %v", err)
	}

	for i := 0; i < eventBufferSize; i++ {
		if !r.Push(Event{Transcript: "中間結果"}) {
			t.Fatalf("Push %d should succeed within buffer", i)
		}
	}
	if r.Push(Event{Transcript: "あふれた"}) {
		t.Error("Push beyond buffer should be dropped")
	}
}
