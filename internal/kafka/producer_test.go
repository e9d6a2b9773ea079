package kafka

import (
	"context"
	"errors"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap/zaptest"
	"sync"
	"testing"
	"time"
)

type memWriter struct {
	mu      sync.Mutex
	written []kafka.Message
	closed  bool
}

func (w *memWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written = append(w.written, msgs...)
	return nil
}

func (w *memWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func waitClosed(t *testing.T, p *Producer) {
	t.Helper()
	done := make(chan struct{})
	go func() { p.WaitClosed(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("producer goroutine did not exit")
	}
}

func TestProducerFlushesOnClose(t *testing.T) {
	w := &memWriter{}
	p := newProducer(w, 16, zaptest.NewLogger(t))
	p.Start(context.Background())
	for _, k := range []string{"a", "b", "c"} {
		if err := p.Publish([]byte(k), []byte("v")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	p.Close()
	waitClosed(t, p)

	if len(w.written) != 3 || !w.closed {
		t.Fatalf("written=%d closed=%v", len(w.written), w.closed)
	}
	if err := p.Publish([]byte("d"), []byte("v")); !errors.Is(err, ErrProducerClosed) {
		t.Fatalf("publish after close: %v", err)
	}
	p.Close()
}

func TestProducerCancelThenCloseWritesNoEmptyMessages(t *testing.T) {
	w := &memWriter{}
	p := newProducer(w, 16, zaptest.NewLogger(t))
	// buffer before the writer starts so the drain path sees a closed inbox
	for _, k := range []string{"a", "b"} {
		if err := p.Publish([]byte(k), []byte("v")); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	p.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)
	waitClosed(t, p)

	for _, m := range w.written {
		if len(m.Key) == 0 {
			t.Fatalf("empty message written: %+v", w.written)
		}
	}
	if len(w.written) != 2 {
		t.Fatalf("written=%d, want 2", len(w.written))
	}
}

func TestProducerInboxFull(t *testing.T) {
	p := newProducer(&memWriter{}, 1, zaptest.NewLogger(t))
	if err := p.Publish([]byte("a"), nil); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := p.Publish([]byte("b"), nil); !errors.Is(err, ErrInboxFull) {
		t.Fatalf("want ErrInboxFull, got %v", err)
	}
}
