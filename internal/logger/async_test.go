package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler collects records for assertions. An optional delay per
// record simulates a slow sink.
type captureHandler struct {
	mu      sync.Mutex
	records []slog.Record
	delay   time.Duration
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // hugeParam: slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.records = append(h.records, rec)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

func record(msg string) slog.Record {
	return slog.NewRecord(time.Now(), slog.LevelInfo, msg, 0)
}

func TestAsyncHandlerDelivers(t *testing.T) {
	inner := &captureHandler{}
	h := NewAsyncHandler(inner, 16, 1)

	if err := h.Handle(context.Background(), record("one")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	h.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("delivered %d records, want 1", got)
	}
	if inner.records[0].Message != "one" {
		t.Errorf("message = %q", inner.records[0].Message)
	}
}

func TestAsyncHandlerConcurrent(t *testing.T) {
	const writers = 50
	const perWriter = 40

	inner := &captureHandler{}
	h := NewAsyncHandler(inner, writers*perWriter, 4)

	var wg sync.WaitGroup
	for range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range perWriter {
				_ = h.Handle(context.Background(), record("burst"))
			}
		}()
	}
	wg.Wait()
	h.Close()

	if got := inner.count(); got != writers*perWriter {
		t.Fatalf("delivered %d records, want %d", got, writers*perWriter)
	}
}

func TestAsyncHandlerDropsWhenFull(t *testing.T) {
	inner := &captureHandler{delay: 10 * time.Millisecond}
	h := NewAsyncHandler(inner, 1, 1)

	for range 30 {
		_ = h.Handle(context.Background(), record("flood"))
	}
	h.Close()

	if h.Dropped() == 0 {
		t.Fatal("expected drops with a full queue and a slow sink")
	}
	if h.Dropped()+int64(inner.count()) != 30 {
		t.Errorf("dropped %d + delivered %d != 30", h.Dropped(), inner.count())
	}
}

func TestAsyncHandlerCloseDrainsQueue(t *testing.T) {
	inner := &captureHandler{}
	h := NewAsyncHandler(inner, 256, 2)

	const total = 128
	for range total {
		_ = h.Handle(context.Background(), record("drain"))
	}
	h.Close()

	if got := inner.count(); got != total {
		t.Fatalf("delivered %d records after Close, want %d", got, total)
	}
}

func TestAsyncHandlerWithAttrsSharesQueue(t *testing.T) {
	inner := &captureHandler{}
	h := NewAsyncHandler(inner, 16, 1)

	child := h.WithAttrs([]slog.Attr{slog.String("k", "v")})
	_ = child.Handle(context.Background(), record("via child"))
	h.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("delivered %d records via child handler, want 1", got)
	}
}
