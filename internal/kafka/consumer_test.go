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

type memReader struct {
	mu      sync.Mutex
	pending []kafka.Message
	commits []kafka.Message
}

func (r *memReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		m := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return m, nil
	}
	r.mu.Unlock()
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *memReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commits = append(r.commits, msgs...)
	return nil
}

func (r *memReader) Close() error { return nil }

func (r *memReader) committed() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.commits...)
}

func runUntilCommitted(t *testing.T, c *Consumer, r *memReader, n int, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx, h) }()

	deadline := time.Now().Add(5 * time.Second)
	for len(r.committed()) < n && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("start: %v", err)
	}
}

func TestConsumerRetriesFailedMessageBeforeCommittingLater(t *testing.T) {
	r := &memReader{pending: []kafka.Message{
		{Partition: 0, Offset: 5, Value: []byte("a")},
		{Partition: 0, Offset: 6, Value: []byte("b")},
	}}
	c := newConsumer(r, 4, zaptest.NewLogger(t))
	c.retryMin = time.Millisecond

	var mu sync.Mutex
	var seen []int64
	failures := 2
	runUntilCommitted(t, c, r, 2, func(_ context.Context, m kafka.Message) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, m.Offset)
		if m.Offset == 5 && failures > 0 {
			failures--
			return errors.New("downstream unavailable")
		}
		return nil
	})

	commits := r.committed()
	if len(commits) != 2 || commits[0].Offset != 5 || commits[1].Offset != 6 {
		t.Fatalf("commits=%v", commits)
	}
	want := []int64{5, 5, 5, 6}
	if len(seen) != len(want) {
		t.Fatalf("handled offsets %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("handled offsets %v, want %v", seen, want)
		}
	}
}

func TestConsumerKeepsPartitionOrder(t *testing.T) {
	var msgs []kafka.Message
	for off := int64(0); off < 20; off++ {
		for p := 0; p < 3; p++ {
			msgs = append(msgs, kafka.Message{Partition: p, Offset: off})
		}
	}
	r := &memReader{pending: msgs}
	c := newConsumer(r, 2, zaptest.NewLogger(t))
	c.retryMin = time.Millisecond

	runUntilCommitted(t, c, r, len(msgs), func(context.Context, kafka.Message) error { return nil })

	last := map[int]int64{0: -1, 1: -1, 2: -1}
	commits := r.committed()
	if len(commits) != len(msgs) {
		t.Fatalf("%d commits, want %d", len(commits), len(msgs))
	}
	for _, m := range commits {
		if m.Offset != last[m.Partition]+1 {
			t.Fatalf("partition %d committed %d after %d", m.Partition, m.Offset, last[m.Partition])
		}
		last[m.Partition] = m.Offset
	}
}

func TestConsumerStopsRetryingOnShutdown(t *testing.T) {
	r := &memReader{pending: []kafka.Message{{Partition: 0, Offset: 1}}}
	c := newConsumer(r, 1, zaptest.NewLogger(t))
	c.retryMin = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	calls := make(chan struct{}, 100)
	done := make(chan error, 1)
	go func() {
		done <- c.Start(ctx, func(context.Context, kafka.Message) error {
			select {
			case calls <- struct{}{}:
			default:
			}
			return errors.New("always failing")
		})
	}()
	<-calls
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("start: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
	if n := len(r.committed()); n != 0 {
		t.Fatalf("%d commits of a failing message", n)
	}
}
