package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/machawaste/wastelink-backend/pkg/logger"
)

const (
	heartbeatInterval = 30 * time.Second
	readyRetries      = 4
)

type pinger interface {
	Ping(ctx context.Context) error
}

type consumer interface {
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger   *logger.Logger
	DB       pinger
	PubSub   pinger
	Consumer consumer
}

type dependency struct {
	name string
	ping pinger
}

// Service runs the lifecycle event consumers once their dependencies answer.
type Service struct {
	logg     *logger.Logger
	deps     []dependency
	consumer consumer
	// readyPolicy builds the retry schedule used while dependencies warm up.
	readyPolicy func() backoff.BackOff
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Consumer == nil {
		return nil, errors.New("consumer is required")
	}
	deps := []dependency{{"database", params.DB}, {"pubsub", params.PubSub}}
	for _, dep := range deps {
		if dep.ping == nil {
			return nil, fmt.Errorf("%s client is required", dep.name)
		}
	}
	return &Service{
		logg:        params.Logger,
		deps:        deps,
		consumer:    params.Consumer,
		readyPolicy: defaultReadyPolicy,
	}, nil
}

func defaultReadyPolicy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return backoff.WithMaxRetries(b, readyRetries)
}

// awaitReady pings every dependency, retrying transient failures before the
// consumer is started.
func (s *Service) awaitReady(ctx context.Context) error {
	for _, dep := range s.deps {
		attempt := 0
		ping := func() error {
			attempt++
			err := dep.ping.Ping(ctx)
			if err != nil && ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		notify := func(err error, wait time.Duration) {
			s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
				"dependency": dep.name,
				"attempt":    attempt,
				"retry_in":   wait.String(),
				"error":      err.Error(),
			}), "worker dependency not ready")
		}
		if err := backoff.RetryNotify(ping, backoff.WithContext(s.readyPolicy(), ctx), notify); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "dependency", dep.name), "worker dependency unavailable", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.awaitReady(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.consumer.Run(ctx) }()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()
	started := time.Now()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(ctx, "consumer stopped unexpectedly", err)
			}
			return err
		case <-heartbeat.C:
			s.logg.Debug(s.logg.WithField(ctx, "uptime", time.Since(started).Round(time.Second).String()), "worker.heartbeat")
		}
	}
}
