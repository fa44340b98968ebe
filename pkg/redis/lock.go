package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

const (
	defaultLockTTL      = 30 * time.Second
	defaultPollInterval = 25 * time.Millisecond
)

// ErrLockNotAcquired is returned when a lock stays held past the wait budget.
var ErrLockNotAcquired = errors.New("lock not acquired")

// lockStore defines the operations used by Lock.
type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
}

// Lock is a single-holder lease on a key using SETNX + TTL. Only the holder's
// token can release it.
type Lock struct {
	store        lockStore
	key          string
	ttl          time.Duration
	pollInterval time.Duration
	token        string
}

// NewLock constructs a Redis-backed lock.
func NewLock(store lockStore, key string, ttl time.Duration) (*Lock, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if key == "" {
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Lock{store: store, key: key, ttl: ttl, pollInterval: defaultPollInterval}, nil
}

// Key returns the lock key.
func (l *Lock) Key() string { return l.key }

// Acquire tries once to own the lock for the configured TTL.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("setnx: %w", err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Wait polls Acquire until it succeeds, wait elapses, or ctx ends.
func (l *Lock) Wait(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: %s", ErrLockNotAcquired, l.key)
		}
		pause := l.pollInterval + time.Duration(rand.Int63n(int64(l.pollInterval)))
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// Release frees the lock only if this holder still owns it.
func (l *Lock) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if _, err := l.store.ReleaseIfOwner(ctx, l.key, l.token); err != nil {
		return fmt.Errorf("release lock: %w", err)
	}
	l.token = ""
	return nil
}
