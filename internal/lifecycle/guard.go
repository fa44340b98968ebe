package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/redis"
)

// ListingGuard serializes lifecycle operations on one listing across
// processes before the database transaction starts. The returned release
// func must be called once the transaction has finished.
type ListingGuard interface {
	Acquire(ctx context.Context, listingID uuid.UUID) (release func(), err error)
}

// NoopGuard relies on database row locks alone.
type NoopGuard struct{}

func (NoopGuard) Acquire(context.Context, uuid.UUID) (func(), error) {
	return func() {}, nil
}

type lockClient interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	ReleaseIfOwner(ctx context.Context, key, token string) (bool, error)
	LockKey(scope, id string) string
}

// RedisGuard holds a per-listing Redis lease while an operation runs.
type RedisGuard struct {
	client lockClient
	wait   time.Duration
	ttl    time.Duration
	logg   *logger.Logger
}

// NewRedisGuard builds a guard that waits at most wait for the listing lease
// and holds it for at most ttl.
func NewRedisGuard(client lockClient, wait, ttl time.Duration, logg *logger.Logger) (*RedisGuard, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("guard ttl must be positive")
	}
	return &RedisGuard{client: client, wait: wait, ttl: ttl, logg: logg}, nil
}

func (g *RedisGuard) Acquire(ctx context.Context, listingID uuid.UUID) (func(), error) {
	lock, err := redis.NewLock(g.client, g.client.LockKey("listing", listingID.String()), g.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build listing guard")
	}
	if err := lock.Wait(ctx, g.wait); err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "listing is busy, retry shortly")
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire listing guard")
	}
	return func() {
		if err := lock.Release(context.Background()); err != nil && g.logg != nil {
			g.logg.Error(g.logg.WithListingID(ctx, listingID.String()), "listing guard release failed", err)
		}
	}, nil
}
