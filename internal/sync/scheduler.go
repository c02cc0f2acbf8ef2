package sync

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// IterationFunc runs one sync pass. alive reports whether the scheduler that
// started the pass is still running; the pass must check it before writing
// locally.
type IterationFunc func(ctx context.Context, alive func() bool) error

// Scheduler runs an [IterationFunc] in a sequential loop:
// iterate → sleep(interval) → iterate, until stopped. Iterations never
// overlap. A failed iteration is logged and the loop carries on at the next
// interval.
type Scheduler struct {
	name string
	fn   IterationFunc
	log  *slog.Logger

	force chan struct{}
	reset chan struct{}

	mu       sync.Mutex
	interval time.Duration
	running  bool
	gen      uint64
	stop     chan struct{}
	done     chan struct{}
}

// NewScheduler creates a stopped Scheduler.
func NewScheduler(name string, interval time.Duration, fn IterationFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		name:     name,
		fn:       fn,
		log:      logger.With("resource", name),
		force:    make(chan struct{}, 1),
		reset:    make(chan struct{}, 1),
		interval: interval,
	}
}

// Start launches the loop. The first iteration runs immediately, or as soon
// as a loop stopped earlier has finished its last pass. Calling Start on a
// running scheduler does nothing. The loop also ends when ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.gen++
	prev := s.done
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(ctx, s.gen, prev, s.stop, s.done)
	s.log.Info("scheduler started", "interval", s.interval)
}

// Stop ends the loop. It takes effect before the next remote call; a pass
// already in flight may finish its remote call but its result is discarded.
// Stop does not wait; see [Scheduler.Wait].
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.gen++
	close(s.stop)
	s.log.Info("scheduler stopped")
}

// Wait blocks until the most recently started loop has exited.
func (s *Scheduler) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// ForceSyncNow skips the pending sleep and runs one iteration immediately.
// A request made while an iteration is in progress runs right after it.
func (s *Scheduler) ForceSyncNow() {
	select {
	case s.force <- struct{}{}:
	default:
	}
}

// SetInterval changes the sleep between iterations. The pending sleep is
// restarted with the new interval right away.
func (s *Scheduler) SetInterval(d time.Duration) {
	s.mu.Lock()
	changed := d != s.interval
	s.interval = d
	s.mu.Unlock()
	if !changed {
		return
	}
	s.log.Info("poll interval changed", "interval", d)
	select {
	case s.reset <- struct{}{}:
	default:
	}
}

// Interval returns the current sleep between iterations.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

func (s *Scheduler) alive(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && s.gen == gen
}

func (s *Scheduler) loop(ctx context.Context, gen uint64, prev, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer s.markExited(gen)

	// Iterations never overlap, across restarts too.
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		case <-stop:
			return
		}
	}

	alive := func() bool { return ctx.Err() == nil && s.alive(gen) }

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-s.reset:
			timer.Reset(s.Interval())
			continue
		case <-s.force:
			s.log.Debug("forced sync")
		case <-timer.C:
		}

		if !alive() {
			return
		}
		if err := s.fn(ctx, alive); err != nil && ctx.Err() == nil {
			s.log.Error("sync iteration failed", "error", err)
		}
		timer.Reset(s.Interval())
	}
}

// markExited flips the state to stopped when the loop ends because its
// context was cancelled rather than through Stop.
func (s *Scheduler) markExited(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && s.running {
		s.running = false
	}
}
