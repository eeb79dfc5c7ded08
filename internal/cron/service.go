package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/autoescrow-backend/pkg/logger"
	"github.com/angelmondragon/autoescrow-backend/pkg/metrics"
)

const defaultInterval = time.Minute

var errLockHeld = errors.New("cron lock held by another instance")

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
	// Location evaluates schedules; defaults to UTC.
	Location *time.Location
	Now      func() time.Time
}

// Service ticks every Interval and runs each job whose schedule fell due
// since the previous tick. Only the replica holding Lock runs anything.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	last     time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Lock == nil:
		return nil, fmt.Errorf("lock required")
	}
	s := &Service{
		logg:     params.Logger,
		registry: params.Registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: params.Interval,
		loc:      params.Location,
		now:      params.Now,
	}
	if s.registry == nil {
		s.registry = NewRegistry()
	}
	if s.interval <= 0 {
		s.interval = defaultInterval
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run blocks until ctx is canceled. A failing cycle is logged and the loop
// carries on.
func (s *Service) Run(ctx context.Context) error {
	s.last = s.now().In(s.loc)
	for name, at := range s.registry.NextRuns(s.last) {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{"job": name, "next_run": at}), "job scheduled")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service stopping")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	now := s.now().In(s.loc)
	due := s.registry.Due(s.last, now)
	s.last = now
	if len(due) == 0 {
		return nil
	}
	err := s.withLock(ctx, func() error {
		for _, job := range due {
			_ = s.runJob(ctx, job)
		}
		return nil
	})
	if errors.Is(err, errLockHeld) {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		s.metrics.IncSkipped()
		return nil
	}
	return err
}

// RunNow executes one job by name outside its schedule, still under the lock.
func (s *Service) RunNow(ctx context.Context, name string) error {
	job, ok := s.registry.Lookup(name)
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.withLock(ctx, func() error { return s.runJob(ctx, job) })
}

func (s *Service) withLock(ctx context.Context, fn func() error) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		return errLockHeld
	}
	defer func() {
		if err := s.lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()
	return fn()
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Info(ctx, "job start")
	start := time.Now()
	err := job.Run(ctx)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, err)

	ctx = s.logg.WithField(ctx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return err
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
