package cron

import (
	"context"
	"sync"
)

// Lock coordinates exclusive cron runs. *redis.Lock satisfies it for
// multi-instance deployments.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// LocalLock keeps cycles from overlapping inside a single process.
type LocalLock struct {
	mu sync.Mutex
}

func (l *LocalLock) Acquire(context.Context) (bool, error) {
	return l.mu.TryLock(), nil
}

func (l *LocalLock) Release(context.Context) error {
	l.mu.Unlock()
	return nil
}
