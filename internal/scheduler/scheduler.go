// Package scheduler runs named periodic jobs on cron, skipping a tick
// while the previous run of the same job is still going.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

type Job func(ctx context.Context)

type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:     cron.New(),
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		inflight: map[string]struct{}{},
	}
}

// Every registers job to run at the given interval. A non-positive
// interval leaves the job unscheduled.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return nil
	}
	return s.Add(name, fmt.Sprintf("@every %s", interval), job)
}

// Add registers job under a cron spec.
func (s *Scheduler) Add(name, spec string, job Job) error {
	_, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling, cancels running jobs and waits for them up to
// grace.
func (s *Scheduler) Stop(grace time.Duration) {
	stopped := s.cron.Stop()
	s.cancel()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn("scheduled jobs still running after grace period", "grace", grace)
	}
}

// RunNow runs job once on the calling goroutine, honouring the in-flight
// guard. It reports whether the job ran.
func (s *Scheduler) RunNow(name string, job Job) bool {
	return s.run(name, job)
}

func (s *Scheduler) run(name string, job Job) (ran bool) {
	s.mu.Lock()
	if _, ok := s.inflight[name]; ok {
		s.mu.Unlock()
		s.logger.Debug("skipping job, previous run still in flight", "job", name)
		return false
	}
	s.inflight[name] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.inflight, name)
		s.mu.Unlock()
		s.wg.Done()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "job", name, "panic", fmt.Sprint(r))
		}
	}()
	ran = true
	job(s.ctx)
	return ran
}
