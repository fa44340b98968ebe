package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machawaste/wastelink-backend/pkg/config"
)

func TestClientSetNXAndRelease(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)
	ctx := context.Background()

	mock.ExpectSetNX("wl:lock:listing:abc", "token-1", 10*time.Second).SetVal(true)
	ok, err := client.SetNX(ctx, "wl:lock:listing:abc", "token-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectEval(compareAndDelete, []string{"wl:lock:listing:abc"}, "token-1").SetVal(int64(1))
	released, err := client.ReleaseIfOwner(ctx, "wl:lock:listing:abc", "token-1")
	require.NoError(t, err)
	assert.True(t, released)

	mock.ExpectEval(compareAndDelete, []string{"wl:lock:listing:abc"}, "stale").SetVal(int64(0))
	released, err = client.ReleaseIfOwner(ctx, "wl:lock:listing:abc", "stale")
	require.NoError(t, err)
	assert.False(t, released)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientPing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	client := Wrap(db)

	mock.ExpectPing().SetVal("PONG")
	require.NoError(t, client.Ping(context.Background()))
	mock.ExpectPing().SetErr(errors.New("down"))
	assert.Error(t, client.Ping(context.Background()))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClientNotInitialized(t *testing.T) {
	client := &Client{}
	ctx := context.Background()

	_, err := client.SetNX(ctx, "k", "v", time.Second)
	assert.Error(t, err)
	_, err = client.ReleaseIfOwner(ctx, "k", "v")
	assert.Error(t, err)
	assert.Error(t, client.Ping(ctx))
	assert.NoError(t, client.Close())
}

func TestLockKey(t *testing.T) {
	client := &Client{}
	assert.Equal(t, "wl:lock:listing:123", client.LockKey("listing", "123"))
	assert.Equal(t, "wl:lock:cron", client.LockKey("cron", ""))
	assert.Equal(t, "wl:lock:cron-worker:prod", client.LockKey(" cron-worker ", "prod"))
}

func TestOptionsFromConfig(t *testing.T) {
	_, err := optionsFromConfig(config.RedisConfig{})
	require.Error(t, err)

	opts, err := optionsFromConfig(config.RedisConfig{URL: "redis://localhost:6379/2", PoolSize: 7})
	require.NoError(t, err)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 7, opts.PoolSize)

	opts, err = optionsFromConfig(config.RedisConfig{Address: "cache:6379", DB: 3, DialTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", opts.Addr)
	assert.Equal(t, 3, opts.DB)
	assert.Equal(t, time.Second, opts.DialTimeout)
}
