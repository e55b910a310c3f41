package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/i474232898/dam-monitoring/internal/prediction"
)

// HealthChecker is implemented by the prediction client.
type HealthChecker interface {
	Health(ctx context.Context) prediction.HealthStatus
}

// UpRecorder receives the outcome of each probe.
type UpRecorder interface {
	SetServiceUp(up bool)
}

// Scheduler periodically probes the prediction service health.
type Scheduler struct {
	scheduler *gocron.Scheduler
	checker   HealthChecker
	recorder  UpRecorder
	interval  time.Duration

	mu   sync.Mutex
	last *bool
}

// New creates a new Scheduler. recorder may be nil.
func New(interval time.Duration, checker HealthChecker, recorder UpRecorder) *Scheduler {
	s := gocron.NewScheduler(time.UTC)
	return &Scheduler{
		scheduler: s,
		checker:   checker,
		recorder:  recorder,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler.
// The first probe runs immediately.
func (s *Scheduler) Start() error {
	seconds := int(s.interval.Seconds())
	if seconds <= 0 {
		seconds = 300
	}

	_, err := s.scheduler.Every(seconds).Seconds().Do(s.Probe)
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Probe runs one health check and logs availability transitions.
func (s *Scheduler) Probe() {
	h := s.checker.Health(context.Background())
	if s.recorder != nil {
		s.recorder.SetServiceUp(h.ServiceAvailable)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && *s.last == h.ServiceAvailable {
		return
	}
	up := h.ServiceAvailable
	s.last = &up

	if up {
		log.Println("INFO: scheduler: prediction service is available")
	} else {
		log.Printf("ERROR: scheduler: prediction service unavailable: %s", h.Error)
	}
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
