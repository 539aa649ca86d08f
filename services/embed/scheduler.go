package embed

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type scheduledTask struct {
	timer *time.Timer
}

// Scheduler keeps at most one pending task per key. Tasks run on their
// own goroutine, independent of the request that scheduled them.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]*scheduledTask
	stopped bool
	pending prometheus.Gauge
	logger  *zap.Logger
}

// NewScheduler creates a Scheduler. pending may be nil.
func NewScheduler(pending prometheus.Gauge, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		tasks:   make(map[string]*scheduledTask),
		pending: pending,
		logger:  logger,
	}
}

// Schedule runs fn after delay, replacing any task pending for key
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	if prev, ok := s.tasks[key]; ok {
		prev.timer.Stop()
	}

	task := &scheduledTask{}
	task.timer = time.AfterFunc(delay, func() {
		if !s.release(key, task) {
			return
		}
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("scheduled task panicked",
					zap.String("resource_id", key),
					zap.Any("panic", r))
			}
		}()
		fn()
	})
	s.tasks[key] = task
	s.updateGauge()
}

// Cancel stops the task pending for key, if any
func (s *Scheduler) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task, ok := s.tasks[key]; ok {
		task.timer.Stop()
		delete(s.tasks, key)
		s.updateGauge()
	}
}

// Stop cancels every pending task and refuses new ones
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, task := range s.tasks {
		task.timer.Stop()
		delete(s.tasks, key)
	}
	s.stopped = true
	s.updateGauge()
}

// Pending returns the number of scheduled tasks
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// release removes task from the map if it is still the current one for key.
// A replaced or cancelled task that already fired loses the race and is skipped.
func (s *Scheduler) release(key string, task *scheduledTask) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || s.tasks[key] != task {
		return false
	}
	delete(s.tasks, key)
	s.updateGauge()
	return true
}

func (s *Scheduler) updateGauge() {
	if s.pending != nil {
		s.pending.Set(float64(len(s.tasks)))
	}
}
