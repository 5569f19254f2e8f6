package refresh

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"aircraft_registry/internal/store"
)

// minInterval floors the scheduler period so a misconfigured interval can't
// hammer the dataset source.
const minInterval = time.Minute

// Scheduler triggers scheduled refreshes at a fixed interval. An interval
// shorter than one minute is raised to one minute. Start and Stop are
// idempotent; after Stop returns no further refreshes are triggered.
type Scheduler struct {
	service    *Service
	interval   time.Duration
	runOnStart bool
	logger     *log.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewScheduler builds a scheduler around the service.
func NewScheduler(svc *Service, interval time.Duration, runOnStart bool, logger *log.Logger) *Scheduler {
	if interval < minInterval {
		interval = minInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Scheduler{
		service:    svc,
		interval:   interval,
		runOnStart: runOnStart,
		logger:     logger,
	}
}

// Start launches the ticker loop. Calling Start on a running scheduler is a
// no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	s.logger.Printf("[scheduler] starting with interval %s", s.interval)
	go s.loop(s.stop, s.done)
}

// Stop halts the loop and waits for it to exit. Calling Stop on a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	s.logger.Printf("[scheduler] stopped")
}

func (s *Scheduler) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if s.runOnStart {
		s.tick()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Scheduler) tick() {
	_, err := s.service.Refresh(context.Background(), store.TriggerScheduled)
	switch {
	case errors.Is(err, ErrRefreshInProgress):
		s.logger.Printf("[scheduler] refresh already in progress, skipping this tick")
	case err != nil:
		s.logger.Printf("[scheduler] scheduled refresh failed: %v", err)
	}
}
