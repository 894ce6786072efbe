package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func quietLogger() Option {
	return WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNew_InvalidArgs(t *testing.T) {
	t.Parallel()

	if _, err := New(0, func(context.Context) error { return nil }); err == nil {
		t.Fatalf("expected error for zero interval")
	}
	if _, err := New(time.Second, nil); err == nil {
		t.Fatalf("expected error for nil tick func")
	}
}

func TestScheduler_LastTickRecordsErrors(t *testing.T) {
	var calls atomic.Int64

	s, err := New(time.Hour, func(context.Context) error {
		calls.Add(1)
		return errors.New("sheet unavailable")
	}, quietLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	if s.LastTick() != nil {
		t.Fatalf("expected no tick result before Start()")
	}

	if ok := s.Start(); !ok {
		t.Fatalf("expected Start() true")
	}
	waitForAtLeast(t, &calls, 1, 500*time.Millisecond)

	// Stop waits for the in-flight tick, so the result is stored by then.
	s.Stop()

	last := s.LastTick()
	if last == nil {
		t.Fatalf("expected a tick result")
	}
	if last.Error != "sheet unavailable" {
		t.Fatalf("unexpected tick error %q", last.Error)
	}
	if last.StartedAt.IsZero() {
		t.Fatalf("expected tick start time to be set")
	}
}

func TestScheduler_SuccessfulTickClearsError(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("first tick fails")
		}
		return nil
	}, quietLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s.Start()
	waitForAtLeast(t, &calls, 3, time.Second)
	s.Stop()

	last := s.LastTick()
	if last == nil || last.Error != "" {
		t.Fatalf("expected clean last tick, got %+v", last)
	}
}

func TestScheduler_LastTickRecordsPanicAndKeepsTicking(t *testing.T) {
	var calls atomic.Int64

	s, err := New(10*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		panic("boom")
	}, quietLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s.Start()
	waitForAtLeast(t, &calls, 2, time.Second)
	s.Stop()

	if s.IsRunning() {
		t.Fatalf("expected scheduler stopped")
	}
	last := s.LastTick()
	if last == nil || !strings.Contains(last.Error, "panic: boom") {
		t.Fatalf("expected panic recorded, got %+v", last)
	}
}

func TestScheduler_StopCancelsTickContext(t *testing.T) {
	started := make(chan struct{})
	var calls atomic.Int64

	s, err := New(time.Hour, func(ctx context.Context) error {
		calls.Add(1)
		close(started)
		<-ctx.Done()
		return ctx.Err()
	}, quietLogger())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	s.Start()
	select {
	case <-started:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("tick did not start")
	}

	if ok := s.Stop(); !ok {
		t.Fatalf("expected Stop() true")
	}

	last := s.LastTick()
	if last == nil || !strings.Contains(last.Error, context.Canceled.Error()) {
		t.Fatalf("expected canceled tick recorded, got %+v", last)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected a single tick, got %d", calls.Load())
	}
}

func waitForAtLeast(t *testing.T, calls *atomic.Int64, n int64, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for calls.Load() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for calls >= %d (got %d)", n, calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
