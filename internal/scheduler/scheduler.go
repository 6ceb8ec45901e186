// Package scheduler drives the dashboard's fixed-interval refresh jobs.
// Each job runs on its own independent interval; the owner decides when to
// look for due work, so tests can step virtual time instead of sleeping.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc is the body of a scheduled job
type JobFunc func(ctx context.Context)

type job struct {
	name     string
	interval time.Duration
	schedule cron.Schedule
	fn       JobFunc
	next     time.Time
	lastRun  time.Time
	running  bool
}

// Scheduler manages named interval jobs
type Scheduler struct {
	clock Clock
	jobs  map[string]*job
	order []string
	mu    sync.Mutex
}

// New creates a Scheduler reading time from clock. A nil clock uses the wall clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = RealClock{}
	}
	return &Scheduler{
		clock: clock,
		jobs:  make(map[string]*job),
	}
}

// Clock returns the scheduler's time source
func (s *Scheduler) Clock() Clock {
	return s.clock
}

// Add registers a job that is due immediately and then every interval.
// Intervals below one second are rounded up to one second.
func (s *Scheduler) Add(name string, interval time.Duration, fn JobFunc) error {
	if name == "" {
		return fmt.Errorf("job name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("job %s already registered", name)
	}
	s.jobs[name] = &job{
		name:     name,
		interval: interval,
		schedule: cron.Every(interval),
		fn:       fn,
		next:     s.clock.Now(),
	}
	s.order = append(s.order, name)
	return nil
}

// SetInterval changes a job's interval. The next run is recomputed from
// the last run so a shorter interval takes effect without waiting out the old one.
func (s *Scheduler) SetInterval(name string, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, interval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("job %s not registered", name)
	}
	if j.interval == interval {
		return nil
	}
	j.interval = interval
	j.schedule = cron.Every(interval)
	if !j.lastRun.IsZero() {
		j.next = j.schedule.Next(j.lastRun)
	}
	return nil
}

// Interval returns the current interval of a job
func (s *Scheduler) Interval(name string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		return j.interval
	}
	return 0
}

// NextRun returns the next time a job becomes due
func (s *Scheduler) NextRun(name string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		return j.next
	}
	return time.Time{}
}

// Trigger makes a job due now, outside its regular cadence
func (s *Scheduler) Trigger(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.next = s.clock.Now()
	}
}

// Due returns the jobs due at now in registration order, marking each one
// running and scheduling its next run. A job still running from an earlier
// firing is skipped until MarkComplete.
func (s *Scheduler) Due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []string
	for _, name := range s.order {
		j := s.jobs[name]
		if j.running || now.Before(j.next) {
			continue
		}
		j.running = true
		j.lastRun = now
		j.next = j.schedule.Next(now)
		due = append(due, name)
	}
	return due
}

// MarkComplete clears the running flag set by Due
func (s *Scheduler) MarkComplete(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if j, ok := s.jobs[name]; ok {
		j.running = false
	}
}

// Running reports whether a job is between Due and MarkComplete
func (s *Scheduler) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[name]
	return ok && j.running
}

// Jobs returns the registered job names in registration order
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// Tick runs every due job to completion, one after another
func (s *Scheduler) Tick(ctx context.Context) int {
	due := s.Due(s.clock.Now())
	for _, name := range due {
		s.mu.Lock()
		fn := s.jobs[name].fn
		s.mu.Unlock()

		if fn != nil {
			fn(ctx)
		}
		s.MarkComplete(name)
	}
	return len(due)
}

// Run calls Tick every resolution until ctx is done
func (s *Scheduler) Run(ctx context.Context, resolution time.Duration) {
	if resolution <= 0 {
		resolution = 100 * time.Millisecond
	}
	ticker := time.NewTicker(resolution)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
