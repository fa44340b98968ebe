package cron

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
)

type testJob struct {
	name string
	err  error
	runs int
}

func (t *testJob) Name() string { return t.name }

func (t *testJob) Run(context.Context) error {
	t.runs++
	return t.err
}

type memoryLockStore struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemoryLockStore() *memoryLockStore {
	return &memoryLockStore{held: map[string]string{}}
}

func (m *memoryLockStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.held[key]; ok {
		return false, nil
	}
	m.held[key] = value.(string)
	return true, nil
}

func (m *memoryLockStore) ReleaseIfOwner(_ context.Context, key, token string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[key] != token {
		return false, nil
	}
	delete(m.held, key)
	return true, nil
}

type failingLock struct{}

func (failingLock) Acquire(context.Context) (bool, error) { return false, errors.New("redis down") }
func (failingLock) Release(context.Context) error         { return nil }

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func newCronService(t *testing.T, lock Lock, jobs ...Job) *Service {
	t.Helper()
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(jobs...),
		Lock:     lock,
	})
	require.NoError(t, err)
	return service
}

func TestServiceRunCycleRunsAllJobsEvenOnFailure(t *testing.T) {
	reg := prometheus.NewRegistry()
	success := &testJob{name: "outbox-retention"}
	failure := &testJob{name: "ledger-reconcile", err: errors.New("boom")}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(success, failure),
		Lock:     &LocalLock{},
		Metrics:  metrics.NewCronJobMetrics(reg),
	})
	require.NoError(t, err)

	require.NoError(t, service.RunOnce(context.Background()))
	assert.Equal(t, 1, success.runs)
	assert.Equal(t, 1, failure.runs)

	count, err := testutil.GatherAndCount(reg, "wastelink_cron_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	count, err = testutil.GatherAndCount(reg, "wastelink_cron_last_success_timestamp_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestServiceRunCycleReportsLockErrors(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	service := newCronService(t, failingLock{}, job)

	err := service.RunOnce(context.Background())
	require.Error(t, err)
	assert.Zero(t, job.runs)
}

func TestServiceRunStopsOnCancel(t *testing.T) {
	job := &testJob{name: "outbox-retention"}
	service, err := NewService(ServiceParams{
		Logger:   testLogger(),
		Registry: NewRegistry(job),
		Lock:     &LocalLock{},
		Interval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	err = service.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, job.runs, 1)
}

func TestNewServiceValidation(t *testing.T) {
	_, err := NewService(ServiceParams{Lock: &LocalLock{}})
	assert.Error(t, err)
	_, err = NewService(ServiceParams{Logger: testLogger()})
	assert.Error(t, err)
}

func TestNewServiceSchedule(t *testing.T) {
	_, err := NewService(ServiceParams{Logger: testLogger(), Lock: &LocalLock{}, Schedule: "not a schedule"})
	require.Error(t, err)

	service, err := NewService(ServiceParams{Logger: testLogger(), Lock: &LocalLock{}, Schedule: "0 3 * * *"})
	require.NoError(t, err)
	from := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), service.schedule.Next(from))

	service, err = NewService(ServiceParams{Logger: testLogger(), Lock: &LocalLock{}, Interval: 5 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, from.Add(5*time.Millisecond), service.schedule.Next(from))

	service, err = NewService(ServiceParams{Logger: testLogger(), Lock: &LocalLock{}})
	require.NoError(t, err)
	assert.Equal(t, from.Add(defaultInterval), service.schedule.Next(from))
}
