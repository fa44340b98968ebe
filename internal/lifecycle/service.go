package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/internal/listings"
	"github.com/machawaste/wastelink-backend/internal/matches"
	"github.com/machawaste/wastelink-backend/pkg/config"
	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the single entry point for stateful listing, match and credit
// operations. Every mutating call runs as one transaction that locks the
// listing row, then match rows, then account rows.
type Service interface {
	OpenAccount(ctx context.Context, input ledger.OpenAccountInput) (*models.Account, error)
	PostListing(ctx context.Context, posterID uuid.UUID, input listings.PostInput) (*models.WasteListing, error)
	RecycleListing(ctx context.Context, listingID, actorID uuid.UUID) (*RecycleResult, error)
	CreateMatch(ctx context.Context, input matches.CreateInput) (*CreateMatchResult, error)
	AcceptMatch(ctx context.Context, matchID, actorID uuid.UUID) (*models.Match, error)
	RejectMatch(ctx context.Context, matchID, actorID uuid.UUID) (*models.Match, error)
	CompleteMatch(ctx context.Context, matchID, actorID uuid.UUID) (*CompleteResult, error)
	Debit(ctx context.Context, input DebitInput) (*models.LedgerEntry, error)

	EstimateReward(ctx context.Context, listingID uuid.UUID) (decimal.Decimal, error)
	BalanceOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error)
	HistoryOf(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error)
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error)
	GetListing(ctx context.Context, listingID uuid.UUID) (*models.WasteListing, error)
	GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error)
	ListingsAvailable(ctx context.Context, excludePoster uuid.UUID, limit int) ([]models.WasteListing, error)
	ListingsByPoster(ctx context.Context, posterID uuid.UUID, limit int) ([]models.WasteListing, error)
	MatchesForListing(ctx context.Context, listingID uuid.UUID) ([]models.Match, error)
	MatchesForCollector(ctx context.Context, collectorID uuid.UUID, limit int) ([]models.Match, error)
}

// ServiceParams bundles the orchestrator dependencies. Guard and Metrics are optional.
type ServiceParams struct {
	DB       txRunner
	Ledger   ledger.Service
	Listings listings.Repository
	Matches  matches.Repository
	Outbox   outboxPublisher
	Guard    ListingGuard
	Metrics  *metrics.LifecycleMetrics
	Logger   *logger.Logger
	Config   config.LifecycleConfig
}

type service struct {
	db       txRunner
	ledger   ledger.Service
	listings listings.Repository
	matches  matches.Repository
	outbox   outboxPublisher
	guard    ListingGuard
	metrics  *metrics.LifecycleMetrics
	logg     *logger.Logger
	cfg      config.LifecycleConfig
}

// NewService validates the dependencies and builds the orchestrator.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Listings == nil {
		return nil, fmt.Errorf("listings repository required")
	}
	if params.Matches == nil {
		return nil, fmt.Errorf("matches repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	cfg := params.Config
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	guard := params.Guard
	if guard == nil {
		guard = NoopGuard{}
	}
	return &service{
		db:       params.DB,
		ledger:   params.Ledger,
		listings: params.Listings,
		matches:  params.Matches,
		outbox:   params.Outbox,
		guard:    guard,
		metrics:  params.Metrics,
		logg:     params.Logger,
		cfg:      cfg,
	}, nil
}

// run executes fn in a fresh transaction, retrying Conflict outcomes with
// exponential backoff up to the configured attempt budget. listingID selects
// the distributed guard; uuid.Nil skips it.
func (s *service) run(ctx context.Context, operation string, listingID uuid.UUID, fn func(tx *gorm.DB) error) error {
	start := time.Now()
	attempt := 0
	op := func() error {
		attempt++
		err := s.attempt(ctx, listingID, fn)
		if err == nil {
			return nil
		}
		if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
			s.metrics.IncConflict(operation)
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"operation": operation,
			"attempt":   attempt,
			"wait_ms":   wait.Milliseconds(),
			"error":     err.Error(),
		})
		s.logg.Warn(logCtx, "lifecycle.retry")
	}

	err := backoff.RetryNotify(op, s.retryPolicy(ctx), notify)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.ObserveDuration(operation, outcome, time.Since(start))
	return err
}

func (s *service) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if s.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = s.cfg.RetryInitialInterval
	}
	if s.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = s.cfg.RetryMaxInterval
	}
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.cfg.MaxAttempts-1)), ctx)
}

func (s *service) attempt(ctx context.Context, listingID uuid.UUID, fn func(tx *gorm.DB) error) error {
	if listingID != uuid.Nil {
		release, err := s.guard.Acquire(ctx, listingID)
		if err != nil {
			return err
		}
		defer release()
	}

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := dbpkg.SetLockTimeout(tx, s.cfg.LockTimeout); err != nil {
			return dbpkg.Classify(err, "set lock timeout")
		}
		return fn(tx)
	})
	if err != nil {
		return dbpkg.Classify(err, "lifecycle transaction failed")
	}
	return nil
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "emit lifecycle event")
	}
	return nil
}

func (s *service) OpenAccount(ctx context.Context, input ledger.OpenAccountInput) (*models.Account, error) {
	account, err := s.ledger.OpenAccount(ctx, input)
	if err != nil {
		return nil, err
	}
	logCtx := s.logg.WithAccountID(ctx, account.ID.String())
	s.logg.Info(s.logg.WithField(logCtx, "account_type", account.Type), "account.opened")
	return account, nil
}

func (s *service) EstimateReward(ctx context.Context, listingID uuid.UUID) (decimal.Decimal, error) {
	listing, err := s.GetListing(ctx, listingID)
	if err != nil {
		return decimal.Zero, err
	}
	return listings.EstimateReward(listing), nil
}

func (s *service) BalanceOf(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, error) {
	return s.ledger.BalanceOf(ctx, accountID)
}

func (s *service) HistoryOf(ctx context.Context, accountID uuid.UUID, limit int) ([]models.LedgerEntry, error) {
	return s.ledger.HistoryOf(ctx, accountID, limit)
}

func (s *service) Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error) {
	report, err := s.ledger.Reconcile(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !report.Consistent {
		logCtx := s.logg.WithFields(s.logg.WithAccountID(ctx, accountID.String()), map[string]any{
			"cached_total": report.CachedTotal.StringFixed(2),
			"ledger_total": report.LedgerTotal.StringFixed(2),
		})
		s.logg.Warn(logCtx, "ledger.reconcile.mismatch")
	}
	return report, nil
}

func (s *service) GetListing(ctx context.Context, listingID uuid.UUID) (*models.WasteListing, error) {
	listing, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		return nil, dbpkg.Classify(err, "listing not found")
	}
	return listing, nil
}

func (s *service) GetMatch(ctx context.Context, matchID uuid.UUID) (*models.Match, error) {
	match, err := s.matches.FindByID(ctx, matchID)
	if err != nil {
		return nil, dbpkg.Classify(err, "match not found")
	}
	return match, nil
}

// ListingsAvailable returns open listings newest first. A non-nil
// excludePoster hides that account's own listings.
func (s *service) ListingsAvailable(ctx context.Context, excludePoster uuid.UUID, limit int) ([]models.WasteListing, error) {
	rows, err := s.listings.List(ctx, listings.ListFilter{
		Status:        enums.ListingStatusAvailable,
		ExcludePoster: excludePoster,
		Limit:         limit,
	})
	if err != nil {
		return nil, dbpkg.Classify(err, "list listings")
	}
	return rows, nil
}

// ListingsByPoster returns every listing an account posted, newest first,
// whatever its status.
func (s *service) ListingsByPoster(ctx context.Context, posterID uuid.UUID, limit int) ([]models.WasteListing, error) {
	if _, err := s.ledger.BalanceOf(ctx, posterID); err != nil {
		return nil, err
	}
	rows, err := s.listings.ListByPoster(ctx, posterID, limit)
	if err != nil {
		return nil, dbpkg.Classify(err, "list listings")
	}
	return rows, nil
}

func (s *service) MatchesForListing(ctx context.Context, listingID uuid.UUID) ([]models.Match, error) {
	if _, err := s.GetListing(ctx, listingID); err != nil {
		return nil, err
	}
	rows, err := s.matches.ListByListing(ctx, listingID)
	if err != nil {
		return nil, dbpkg.Classify(err, "list matches")
	}
	return rows, nil
}

func (s *service) MatchesForCollector(ctx context.Context, collectorID uuid.UUID, limit int) ([]models.Match, error) {
	rows, err := s.matches.ListByCollector(ctx, collectorID, limit)
	if err != nil {
		return nil, dbpkg.Classify(err, "list matches")
	}
	return rows, nil
}
