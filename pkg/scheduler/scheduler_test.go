package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerRunsAndStops(t *testing.T) {
	s := New(nil)
	var runs int64
	s.Add("tick", 10*time.Millisecond, func(ctx context.Context) {
		atomic.AddInt64(&runs, 1)
	})

	s.Start(context.Background())
	time.Sleep(100 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	got := atomic.LoadInt64(&runs)
	if got == 0 {
		t.Fatal("task never ran")
	}

	time.Sleep(50 * time.Millisecond)
	if after := atomic.LoadInt64(&runs); after != got {
		t.Fatalf("task ran after stop: %d -> %d", got, after)
	}
}

func TestSchedulerIgnoresInvalidTasks(t *testing.T) {
	s := New(nil)
	s.Add("no-interval", 0, func(ctx context.Context) { t.Error("must not run") })
	s.Add("no-fn", 10*time.Millisecond, nil)

	s.Start(context.Background())
	time.Sleep(30 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(stopCtx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}
