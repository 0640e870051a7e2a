package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the scheduler's lifecycle state.
type State string

const (
	// StateWarming covers the fixed warm-up delay after process start,
	// before the first pass.
	StateWarming State = "warming"

	// StateRunning means the recurring fixed-interval trigger is
	// armed.
	StateRunning State = "running"

	// StateStopped is reached only on shutdown.
	StateStopped State = "stopped"
)

// Scheduler drives the ingestor on a fixed cadence from a single
// background goroutine, so no two passes ever run concurrently. Ticks
// fire on a strict period measured from the previous fire; a tick that
// arrives while a pass is still executing is deferred until the pass
// completes.
type Scheduler struct {
	log      logrus.FieldLogger
	runner   PassRunner
	warmup   time.Duration
	interval time.Duration

	done chan struct{}
	wg   sync.WaitGroup

	mu         sync.RWMutex
	state      State
	lastReport *PassReport
	lastErr    error
}

// NewScheduler creates a Scheduler driving the given runner.
func NewScheduler(
	log logrus.FieldLogger,
	runner PassRunner,
	warmup, interval time.Duration,
) *Scheduler {
	return &Scheduler{
		log:      log.WithField("component", "scheduler"),
		runner:   runner,
		warmup:   warmup,
		interval: interval,
		done:     make(chan struct{}),
		state:    StateWarming,
	}
}

// Start launches the background goroutine. It returns immediately; the
// first pass runs after the warm-up delay.
func (s *Scheduler) Start(ctx context.Context) error {
	s.log.WithFields(logrus.Fields{
		"warmup":   s.warmup.String(),
		"interval": s.interval.String(),
	}).Info("Starting scheduler")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer s.setState(StateStopped)

		warmup := time.NewTimer(s.warmup)
		defer warmup.Stop()

		select {
		case <-warmup.C:
		case <-s.done:
			return
		case <-ctx.Done():
			return
		}

		s.setState(StateRunning)
		s.runPass(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				// The ticker channel buffers one tick, so a trigger
				// that fired mid-pass runs as soon as the pass
				// finishes; later triggers during the same pass are
				// dropped, never queued.
				s.runPass(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the scheduler goroutine to stop and waits for it. An
// in-flight pass finishes first.
func (s *Scheduler) Stop() error {
	close(s.done)
	s.wg.Wait()

	s.log.Info("Scheduler stopped")

	return nil
}

// State returns the scheduler's current state.
func (s *Scheduler) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

// LastPass returns the most recent pass report and the error of the
// most recent pass, either of which may be unset.
func (s *Scheduler) LastPass() (*PassReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastReport, s.lastErr
}

func (s *Scheduler) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = state
}

// runPass executes one pass and records its outcome. Pass failures are
// logged and retried on the next trigger; they never stop the
// scheduler.
func (s *Scheduler) runPass(ctx context.Context) {
	report, err := s.runner.RunPass(ctx)

	s.mu.Lock()
	s.lastErr = err

	if report != nil {
		s.lastReport = report
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).Warn("Scan pass failed, will retry next interval")
	}
}
