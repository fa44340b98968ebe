package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

const defaultReconcileBatchSize = 200

type LedgerReconcileJobParams struct {
	Logger    *logger.Logger
	Ledger    ledgerReconciler
	BatchSize int
}

type ledgerReconciler interface {
	AccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error)
}

// NewLedgerReconcileJob sweeps every account and compares its cached balance
// with the sum of its ledger entries. Mismatches are logged and fail the job;
// the cache is never rewritten here.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	return &ledgerReconcileJob{logg: params.Logger, ledger: params.Ledger, batchSize: batch}, nil
}

type ledgerReconcileJob struct {
	logg      *logger.Logger
	ledger    ledgerReconciler
	batchSize int
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	checked, mismatched := 0, 0
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := j.ledger.AccountIDs(ctx, after, j.batchSize)
		if err != nil {
			return fmt.Errorf("list accounts: %w", err)
		}
		for _, id := range ids {
			rec, err := j.ledger.Reconcile(ctx, id)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", id, err)
			}
			checked++
			if !rec.Consistent {
				mismatched++
				logCtx := j.logg.WithFields(j.logg.WithAccountID(ctx, id.String()), map[string]any{
					"cached_total": rec.CachedTotal.StringFixed(2),
					"ledger_total": rec.LedgerTotal.StringFixed(2),
					"entry_count":  rec.EntryCount,
				})
				j.logg.Warn(logCtx, "ledger.reconcile.mismatch")
			}
		}
		if len(ids) < j.batchSize {
			break
		}
		after = ids[len(ids)-1]
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"accounts_checked": checked,
		"mismatched":       mismatched,
	})
	j.logg.Info(logCtx, "ledger reconcile complete")
	if mismatched > 0 {
		return fmt.Errorf("%d of %d accounts have a balance cache mismatch", mismatched, checked)
	}
	return nil
}
