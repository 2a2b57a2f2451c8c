package session

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

var baseLogAttr = slog.String("component", "session")

func errAttr(err error) slog.Attr { return slog.String("err", err.Error()) }

// Scheduler runs a task at a fixed interval until stopped. A task error
// is logged and the schedule keeps going; one failed tick must never
// silently kill the renewal loop. Start is idempotent while the
// schedule is active, and Stop only prevents future ticks, it does not
// interrupt a tick already in flight.
type Scheduler struct {
	mu   sync.Mutex
	stop chan struct{}
}

// Start installs the recurring task. If a schedule is already active
// this is a no-op, so callers can never end up with two timers. The
// context is passed to each tick; cancelling it also ends the schedule.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration, task func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				s.reset(stop)
				return
			case <-ticker.C:
				if err := task(ctx); err != nil {
					slog.ErrorContext(ctx, "scheduled task failed", baseLogAttr, errAttr(err))
				}
			}
		}
	}()
}

// reset clears the schedule state when the goroutine exits on context
// cancellation, so a later Start installs a fresh schedule instead of
// seeing a stale one. It only clears its own channel; a Stop/Start pair
// may already have installed a new schedule.
func (s *Scheduler) reset(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == stop {
		s.stop = nil
	}
}

// Stop cancels the schedule if one is active.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

// Active reports whether a schedule is currently installed.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}
