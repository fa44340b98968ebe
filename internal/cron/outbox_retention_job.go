package cron

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
	defaultMinAttempts     = 10
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type deadLetterPruner interface {
	PurgeBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger *logger.Logger
	DB     txRunner
	Outbox outboxPruner
	// DeadLetters is optional; without it only outbox rows are pruned.
	DeadLetters deadLetterPruner
	// Retention bounds how long published or exhausted outbox rows live.
	Retention time.Duration
	// DLQRetention bounds how long dead-letter rows live.
	DLQRetention time.Duration
	// MinAttempts is the attempt count at which an unpublished row counts
	// as exhausted.
	MinAttempts int
}

type outboxRetentionJob struct {
	logg         *logger.Logger
	db           txRunner
	outbox       outboxPruner
	deadLetters  deadLetterPruner
	retention    time.Duration
	dlqRetention time.Duration
	minAttempts  int
	now          func() time.Time
}

// NewOutboxRetentionJob prunes delivered outbox rows and stale dead letters
// in one transaction.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("logger required")
	case params.DB == nil:
		return nil, errors.New("db runner required")
	case params.Outbox == nil:
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		db:           params.DB,
		outbox:       params.Outbox,
		deadLetters:  params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		minAttempts:  params.MinAttempts,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDLQRetention
	}
	if job.minAttempts <= 0 {
		job.minAttempts = defaultMinAttempts
	}
	return job, nil
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	outboxCutoff := now.Add(-j.retention)
	dlqCutoff := now.Add(-j.dlqRetention)

	var outboxRows, dlqRows int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if outboxRows, err = j.outbox.DeletePublishedBefore(ctx, tx, outboxCutoff, j.minAttempts); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "prune outbox events")
		}
		if j.deadLetters == nil {
			return nil
		}
		dlqRows, err = j.deadLetters.PurgeBefore(ctx, tx, dlqCutoff)
		return err
	})
	if err != nil {
		return err
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"outbox_cutoff":       outboxCutoff,
		"dlq_cutoff":          dlqCutoff,
		"outbox_rows_deleted": outboxRows,
		"dlq_rows_deleted":    dlqRows,
	}), "outbox retention cleanup complete")
	return nil
}
