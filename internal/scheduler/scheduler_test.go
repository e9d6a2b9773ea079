package scheduler

import (
	"context"
	"errors"
	"go.uber.org/zap/zaptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRunsJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, zaptest.NewLogger(t))

	var runs atomic.Int32
	done := make(chan struct{}, 1)
	if err := s.Every("tick", time.Second, func(context.Context) error {
		if runs.Add(1) == 1 {
			done <- struct{}{}
		}
		return errors.New("ignored")
	}); err != nil {
		t.Fatalf("every: %v", err)
	}
	s.Start()
	defer s.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("job did not run")
	}
}

func TestEveryRejectsBadInterval(t *testing.T) {
	s := New(context.Background(), zaptest.NewLogger(t))
	if err := s.Every("bad", 0, func(context.Context) error { return nil }); err == nil {
		t.Fatal("want error for zero interval")
	}
}

func TestRunNowSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := New(ctx, zaptest.NewLogger(t))
	var runs int
	s.RunNow("once", func(context.Context) error { runs++; return nil })
	cancel()
	s.RunNow("once", func(context.Context) error { runs++; return nil })
	if runs != 1 {
		t.Fatalf("runs=%d want 1", runs)
	}
}
