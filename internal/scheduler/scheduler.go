package scheduler

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"rentalshop-backend/internal/logger"
)

// Scheduler runs interval jobs, one cron entry per registered key (a key is
// one tenant of one service, e.g. "late-fee:alpha"). Ticks for a key never
// overlap: an interval firing while the previous tick is still waiting on a
// provider call is skipped, so a slow pass can never double-charge or
// double-refund.
type Scheduler struct {
	cron *cron.Cron

	mu       sync.Mutex
	entries  map[string]cron.EntryID
	inflight map[string]bool
	stopped  bool
}

// New creates a stopped scheduler; call Start after registering jobs.
func New() *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		entries:  make(map[string]cron.EntryID),
		inflight: make(map[string]bool),
	}
}

// AddJob registers an interval job under a unique key.
func (s *Scheduler) AddJob(key string, every time.Duration, job func()) error {
	if every <= 0 {
		return fmt.Errorf("scheduler: non-positive interval for %s", key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("scheduler: already stopped")
	}
	if _, exists := s.entries[key]; exists {
		return fmt.Errorf("scheduler: job %s already registered", key)
	}
	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", every), func() {
		if !s.begin(key) {
			logger.Debug("tick skipped, previous still in flight", "job", key)
			return
		}
		defer s.end(key)
		job()
	})
	if err != nil {
		return fmt.Errorf("scheduler: register %s: %w", key, err)
	}
	s.entries[key] = id
	return nil
}

// Remove unregisters one job.
func (s *Scheduler) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[key]; ok {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
}

// Jobs returns the registered job keys.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	return keys
}

// Start begins ticking.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts all timers and waits for in-flight ticks to finish. Idempotent;
// an in-progress provider call is never cancelled mid-flight, it runs to
// completion or failure.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	for key, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, key)
	}
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Scheduler) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight[key] {
		return false
	}
	s.inflight[key] = true
	return true
}

func (s *Scheduler) end(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
