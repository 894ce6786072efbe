package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// TickFunc is one unit of scheduled work.
type TickFunc func(ctx context.Context) error

// TickResult describes the most recent completed tick.
type TickResult struct {
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"durationNs"`
	Error     string        `json:"error,omitempty"`
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) { s.log = l }
}

type Scheduler struct {
	interval time.Duration
	tickFn   TickFunc
	log      *slog.Logger

	running atomic.Bool
	last    atomic.Pointer[TickResult]

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(interval time.Duration, tickFn TickFunc, opts ...Option) (*Scheduler, error) {
	if interval <= 0 {
		return nil, errors.New("interval must be > 0")
	}
	if tickFn == nil {
		return nil, errors.New("tickFn must not be nil")
	}
	s := &Scheduler{
		interval: interval,
		tickFn:   tickFn,
		log:      slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Start launches the tick loop. The first tick runs immediately.
func (s *Scheduler) Start() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running.Store(true)

	go func() {
		defer close(s.done)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.log.Info("scheduler started", "interval", s.interval.String())

		s.safeTick(ctx)

		for {
			select {
			case <-ctx.Done():
				s.log.Info("scheduler stopping")
				return
			case <-ticker.C:
				s.safeTick(ctx)
			}
		}
	}()

	return true
}

// Stop cancels the loop and waits for an in-flight tick to return.
func (s *Scheduler) Stop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running.Load() {
		return false
	}

	s.cancel()
	<-s.done
	s.running.Store(false)

	s.log.Info("scheduler stopped")
	return true
}

func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// LastTick returns the most recent tick result, or nil before the first one.
func (s *Scheduler) LastTick() *TickResult {
	return s.last.Load()
}

func (s *Scheduler) safeTick(ctx context.Context) {
	start := time.Now()
	var err error

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick panic recovered", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}

		res := &TickResult{StartedAt: start, Duration: time.Since(start)}
		if err != nil {
			res.Error = err.Error()
		}
		s.last.Store(res)
	}()

	err = s.tickFn(ctx)
	if err != nil {
		s.log.Error("scheduler tick failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return
	}
	s.log.Info("scheduler tick completed", "duration_ms", time.Since(start).Milliseconds())
}
