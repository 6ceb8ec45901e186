package api

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/taskstore"
	"github.com/sirupsen/logrus"
)

const progressStep = 25

// Simulator advances the queue one transition per step: start the oldest
// queueing task, or move the running one forward until it finishes.
// A request with an odd number fails one test per component.
type Simulator struct {
	store    *taskstore.Store
	interval time.Duration
	log      *logrus.Entry
	mu       sync.Mutex
	now      func() time.Time
}

// NewSimulator creates a Simulator stepping every interval
func NewSimulator(store *taskstore.Store, interval time.Duration, log *logrus.Entry) *Simulator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Simulator{store: store, interval: interval, log: log, now: time.Now}
}

// Interval returns the step interval
func (s *Simulator) Interval() time.Duration {
	return s.interval
}

// Step performs one transition
func (s *Simulator) Step() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	running, err := s.store.Running()
	if err != nil {
		return err
	}
	if running == nil {
		started, err := s.store.Start()
		if err != nil {
			return err
		}
		if started != nil {
			s.log.WithField("task_id", started.ID).Info("task started")
		}
		return nil
	}

	progress := running.Progress + progressStep
	if progress < 100 {
		return s.store.SetProgress(running.ID, progress)
	}
	result := outcome(*running, s.now())
	if err := s.store.Finish(result); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"task_id": running.ID, "result": result.Status}).Info("task finished")
	return nil
}

// Drain steps until the queue is empty or limit steps were taken
func (s *Simulator) Drain(limit int) error {
	for i := 0; i < limit; i++ {
		queue, err := s.store.Queue()
		if err != nil {
			return err
		}
		if len(queue) == 0 {
			return nil
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Remaining estimates the seconds left for a running task
func (s *Simulator) Remaining(progress int) int {
	steps := (100 - progress + progressStep - 1) / progressStep
	return steps * int(s.interval/time.Second)
}

func outcome(t taskstore.QueuedTask, now time.Time) taskstore.Result {
	r := taskstore.Result{
		TaskID:     t.ID,
		TaskName:   t.Name(),
		Status:     domain.StatusSuccess,
		Params:     t.Params,
		FinishedAt: now,
	}

	var passed []string
	for _, p := range t.Params {
		n, _ := strconv.Atoi(p.RequestNumber)
		if n%2 == 1 {
			name := fmt.Sprintf("Test%s_PR%d", strings.ToUpper(p.Component), n)
			r.FailedTests = append(r.FailedTests, name)
			r.Logs = append(r.Logs, fmt.Sprintf("=== RUN   %s\r\n    %s: assertion failed\r\n--- FAIL: %s", name, p.Component, name))
			continue
		}
		passed = append(passed, p.Line())
	}

	if len(r.FailedTests) > 0 {
		r.Status = domain.StatusFailed
		return r
	}
	r.Logs = []string{"PASS: " + strings.Join(passed, ", ")}
	return r
}
