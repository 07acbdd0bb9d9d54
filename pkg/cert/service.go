package cert

import (
	"context"
	"sync"
	"time"

	"github.com/gantryhq/gantry/pkg/log"
)

// Service runs the engine's background schedules: the renewal sweep
// every RenewInterval and cleanup daily at local midnight. The sweep
// requests a local reload when it finishes so new material reaches the
// proxy without waiting for the next reconciliation tick.
type Service struct {
	engine        *Engine
	renewInterval time.Duration
	requestReload func()

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewService creates the schedule runner. requestReload may be nil.
func NewService(engine *Engine, renewInterval time.Duration, requestReload func()) *Service {
	if renewInterval == 0 {
		renewInterval = 12 * time.Hour
	}
	return &Service{
		engine:        engine,
		renewInterval: renewInterval,
		requestReload: requestReload,
		stopCh:        make(chan struct{}),
	}
}

// Start launches the renewal and cleanup timers
func (s *Service) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.renewLoop()
	go s.cleanupLoop()
}

// Stop halts the timers and waits for in-flight passes
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

func (s *Service) renewLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.renewInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runSweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Service) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), s.renewInterval)
	defer cancel()

	if err := s.engine.RenewAll(ctx); err != nil {
		log.WithComponent("cert").Error().Err(err).Msg("renewal sweep failed")
		return
	}
	if s.requestReload != nil {
		s.requestReload()
	}
}

func (s *Service) cleanupLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-time.After(untilNextMidnight(time.Now())):
			ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
			if err := s.engine.Cleanup(ctx); err != nil {
				log.WithComponent("cert").Error().Err(err).Msg("certificate cleanup failed")
			}
			cancel()
		case <-s.stopCh:
			return
		}
	}
}

// untilNextMidnight returns the wait to the next local midnight
func untilNextMidnight(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, now.Location())
	return next.Sub(now)
}
