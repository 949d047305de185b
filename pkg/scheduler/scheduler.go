package scheduler

import (
	"context"
	"sync"
	"time"

	applogger "ModelGate/pkg/logger"
)

// Task is a named periodic job. Run receives a context cancelled when the
// scheduler stops.
type Task struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context)
}

// Scheduler drives periodic tasks owned by the host process. Core services
// never embed their own timers; re-evaluation cadence is decided here.
type Scheduler struct {
	mu      sync.Mutex
	tasks   []Task
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
	l       *applogger.Logger
}

func New(l *applogger.Logger) *Scheduler {
	return &Scheduler{l: l}
}

// Add registers a task. Tasks added after Start are ignored until restart.
func (s *Scheduler) Add(name string, interval time.Duration, run func(ctx context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, Task{Name: name, Interval: interval, Run: run})
}

// Start launches one goroutine per task.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tasks {
		if t.Interval <= 0 || t.Run == nil {
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, t)
	}
}

func (s *Scheduler) loop(ctx context.Context, t Task) {
	defer s.wg.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	if s.l != nil {
		s.l.Debug("scheduler task started",
			applogger.String("task", t.Name),
			applogger.Duration("interval", t.Interval),
		)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Run(ctx)
		}
	}
}

// Stop cancels all tasks and waits for them to return, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	cancel := s.cancel
	s.mu.Unlock()

	cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
