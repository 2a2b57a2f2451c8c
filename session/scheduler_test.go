package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestSchedulerSingleTimer(t *testing.T) {
	var ticks atomic.Int32

	s := &Scheduler{}
	task := func(context.Context) error {
		ticks.Add(1)
		return nil
	}

	s.Start(t.Context(), 10*time.Millisecond, task)
	// second start while active must not install a second timer
	s.Start(t.Context(), time.Millisecond, task)

	time.Sleep(55 * time.Millisecond)
	s.Stop()

	got := ticks.Load()
	if got < 2 || got > 7 {
		t.Errorf("want roughly 5 ticks from a single 10ms timer, got %d", got)
	}
}

func TestSchedulerStopPreventsFutureTicks(t *testing.T) {
	var ticks atomic.Int32

	s := &Scheduler{}
	s.Start(t.Context(), 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	})

	time.Sleep(20 * time.Millisecond)
	s.Stop()
	if s.Active() {
		t.Error("scheduler still active after Stop")
	}

	at := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	if ticks.Load() != at {
		t.Error("task ran after Stop")
	}

	// a second Stop is a no-op
	s.Stop()
}

func TestSchedulerRestartAfterContextCancel(t *testing.T) {
	var ticks atomic.Int32

	s := &Scheduler{}
	ctx, cancel := context.WithCancel(t.Context())
	s.Start(ctx, 5*time.Millisecond, func(context.Context) error { return nil })

	cancel()
	// the goroutine clears the schedule state once it observes the
	// cancellation
	deadline := time.Now().Add(time.Second)
	for s.Active() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler still active after context cancellation")
		}
		time.Sleep(time.Millisecond)
	}

	s.Start(t.Context(), 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return nil
	})
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	if ticks.Load() == 0 {
		t.Error("restart after cancellation never ticked")
	}
}

func TestSchedulerSurvivesTaskFailure(t *testing.T) {
	var ticks atomic.Int32

	s := &Scheduler{}
	s.Start(t.Context(), 5*time.Millisecond, func(context.Context) error {
		ticks.Add(1)
		return errors.New("transient")
	})
	defer s.Stop()

	time.Sleep(30 * time.Millisecond)
	if ticks.Load() < 2 {
		t.Error("schedule died after a failed tick")
	}
}
