package sweeper

import (
	"context"
	"log"
	"sync"
	"time"
)

// Scheduler runs the sweeper on a fixed interval
type Scheduler struct {
	sweeper    *Sweeper
	interval   time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}
	mu         sync.Mutex
	running    bool
	lastSweep  time.Time
	lastResult *SweepResult
	sweepCount int64
	errorCount int64
}

// NewScheduler creates a new scheduler
func NewScheduler(sweeper *Sweeper, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the periodic sweep loop. It blocks until the context is
// cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		log.Println("[sweeper] Already running")
		return
	}
	s.running = true
	s.mu.Unlock()

	log.Printf("[sweeper] Starting with interval: %v", s.interval)

	// Run an initial sweep immediately
	s.runSweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[sweeper] Context cancelled, stopping")
			s.markStopped()
			return

		case <-s.stopCh:
			log.Println("[sweeper] Stop signal received")
			s.markStopped()
			return

		case <-ticker.C:
			s.runSweep(ctx)
		}
	}
}

// Stop signals the scheduler to stop
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	log.Println("[sweeper] Stopping...")
	close(s.stopCh)

	select {
	case <-s.doneCh:
		log.Println("[sweeper] Stopped gracefully")
	case <-time.After(30 * time.Second):
		log.Println("[sweeper] Stop timed out")
	}
}

// markStopped marks the scheduler as stopped
func (s *Scheduler) markStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	close(s.doneCh)
}

// runSweep executes a single sweep pass. Sweep failures are logged and
// swallowed so they can never propagate anywhere near a request path.
func (s *Scheduler) runSweep(ctx context.Context) {
	start := time.Now()

	result, err := s.sweeper.RunOnce(ctx)

	s.mu.Lock()
	s.lastSweep = start
	s.sweepCount++
	if err != nil {
		s.errorCount++
		log.Printf("[sweeper] Sweep failed: %v", err)
	} else {
		s.lastResult = result
	}
	s.mu.Unlock()

	if result != nil && result.Due > 0 {
		log.Printf("[sweeper] Sweep completed: reset %d/%d users (%d errors) in %v",
			result.Reset, result.Due, result.Errors, result.Duration.Round(time.Millisecond))
	}
}

// IsRunning returns whether the scheduler is currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats contains scheduler statistics
type Stats struct {
	Running    bool          `json:"running"`
	Interval   time.Duration `json:"interval"`
	LastSweep  time.Time     `json:"last_sweep"`
	SweepCount int64         `json:"sweep_count"`
	ErrorCount int64         `json:"error_count"`
	LastReset  int           `json:"last_reset"`
	LastErrors int           `json:"last_errors"`
}

// GetStats returns scheduler statistics
func (s *Scheduler) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Running:    s.running,
		Interval:   s.interval,
		LastSweep:  s.lastSweep,
		SweepCount: s.sweepCount,
		ErrorCount: s.errorCount,
	}
	if s.lastResult != nil {
		stats.LastReset = s.lastResult.Reset
		stats.LastErrors = s.lastResult.Errors
	}
	return stats
}
