package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	robfig "github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
)

const defaultInterval = time.Hour

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	// Interval spaces cycles evenly. Ignored when Schedule is set.
	Interval time.Duration
	// Schedule is an optional five-field cron expression or descriptor such
	// as "@daily".
	Schedule string
}

// Service runs the registered maintenance jobs. Only the holder of Lock runs
// a cycle; other instances skip it.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	schedule robfig.Schedule
	now      func() time.Time
}

// everySchedule is a fixed delay without robfig's one second floor.
type everySchedule time.Duration

func (e everySchedule) Next(t time.Time) time.Time { return t.Add(time.Duration(e)) }

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Lock == nil {
		return nil, errors.New("lock required")
	}

	var schedule robfig.Schedule
	if params.Schedule != "" {
		parsed, err := robfig.ParseStandard(params.Schedule)
		if err != nil {
			return nil, fmt.Errorf("parse cron schedule %q: %w", params.Schedule, err)
		}
		schedule = parsed
	} else {
		interval := params.Interval
		if interval <= 0 {
			interval = defaultInterval
		}
		schedule = everySchedule(interval)
	}

	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		schedule: schedule,
		now:      time.Now,
	}, nil
}

// Run executes a cycle immediately and then on every schedule tick until ctx
// is canceled.
func (s *Service) Run(ctx context.Context) error {
	for {
		if err := s.RunOnce(ctx); err != nil {
			s.logg.Error(ctx, "scheduled run failed", err)
		}

		next := s.schedule.Next(s.now())
		s.logg.Debug(s.logg.WithField(ctx, "next_run", next), "cron cycle scheduled")
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce executes a single cycle if the lock is free.
func (s *Service) RunOnce(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another cron instance is running; skipping this cycle")
		return nil
	}
	defer func() {
		if err := s.lock.Release(ctx); err != nil {
			s.logg.Error(ctx, "failed to release cron lock", err)
		}
	}()

	jobs := s.registry.Jobs()
	s.logg.Info(s.logg.WithField(ctx, "jobs", len(jobs)), "scheduled run starting")
	failed := 0
	for _, job := range jobs {
		if !s.runJob(ctx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "jobs_failed", failed), "scheduled run complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "cron.job"})
	s.logg.Debug(jobCtx, "job start")

	start := time.Now()
	err := job.Run(jobCtx)
	took := time.Since(start)
	s.metrics.Record(job.Name(), took, err)

	jobCtx = s.logg.WithField(jobCtx, "duration_ms", took.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "job failed", err)
		return false
	}
	s.logg.Info(jobCtx, "job completed")
	return true
}
