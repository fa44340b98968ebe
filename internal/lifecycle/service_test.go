package lifecycle

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/internal/listings"
	"github.com/machawaste/wastelink-backend/internal/matches"
	"github.com/machawaste/wastelink-backend/pkg/config"
	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/dbtest"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
)

type fixture struct {
	svc       Service
	conn      *gorm.DB
	ledger    ledger.Service
	registry  *prometheus.Registry
	logs      *syncBuffer
	poster    *models.Account
	collector *models.Account
}

// syncBuffer lets concurrent operations share one log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() config.LifecycleConfig {
	return config.LifecycleConfig{
		LockTimeout:          time.Second,
		MaxAttempts:          3,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
		GuardTTL:             time.Second,
	}
}

func newFixture(t *testing.T, mutate ...func(*ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.Open(t,
		&models.Account{},
		&models.WasteListing{},
		&models.Match{},
		&models.LedgerEntry{},
		&models.OutboxEvent{},
	)
	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn))
	require.NoError(t, err)

	logs := &syncBuffer{}
	logg := logger.New(logger.Options{ServiceName: "lifecycle-test", Output: logs})
	registry := prometheus.NewRegistry()
	lifecycleMetrics := metrics.NewLifecycleMetrics(registry)

	params := ServiceParams{
		DB:       dbpkg.Wrap(conn),
		Ledger:   ledgerSvc,
		Listings: listings.NewRepository(conn),
		Matches:  matches.NewRepository(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), logg),
		Metrics:  lifecycleMetrics,
		Logger:   logg,
		Config:   testConfig(),
	}
	for _, fn := range mutate {
		fn(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)

	f := &fixture{svc: svc, conn: conn, ledger: ledgerSvc, registry: registry, logs: logs}
	f.poster = f.openAccount(t, "Wanjiru", enums.AccountTypeHousehold)
	f.collector = f.openAccount(t, "GreenCycle", enums.AccountTypeCollector)
	return f
}

func (f *fixture) openAccount(t *testing.T, name string, accountType enums.AccountType) *models.Account {
	t.Helper()
	account, err := f.svc.OpenAccount(context.Background(), ledger.OpenAccountInput{
		DisplayName: name,
		Type:        accountType,
		Location:    "Nakuru",
	})
	require.NoError(t, err)
	return account
}

func (f *fixture) postPlastic(t *testing.T, quantity string) *models.WasteListing {
	t.Helper()
	listing, err := f.svc.PostListing(context.Background(), f.poster.ID, listings.PostInput{
		Title:        "PET bottles",
		MaterialKind: enums.MaterialPlastic,
		Quantity:     decimal.RequireFromString(quantity),
	})
	require.NoError(t, err)
	return listing
}

func (f *fixture) requestMatch(t *testing.T, listing *models.WasteListing, collector *models.Account) *models.Match {
	t.Helper()
	result, err := f.svc.CreateMatch(context.Background(), matches.CreateInput{
		ListingID:   listing.ID,
		CollectorID: collector.ID,
		Message:     "can pick up on Friday",
	})
	require.NoError(t, err)
	require.False(t, result.Duplicate)
	return result.Match
}

func (f *fixture) acceptedMatch(t *testing.T) (*models.WasteListing, *models.Match) {
	t.Helper()
	listing := f.postPlastic(t, "10.00")
	match := f.requestMatch(t, listing, f.collector)
	_, err := f.svc.AcceptMatch(context.Background(), match.ID, f.poster.ID)
	require.NoError(t, err)
	return listing, match
}

func (f *fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (f *fixture) countEntries(t *testing.T, accountID uuid.UUID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.conn.Model(&models.LedgerEntry{}).Where("account_id = ?", accountID).Count(&count).Error)
	return count
}

func (f *fixture) assertBalanceInvariant(t *testing.T, accounts ...*models.Account) {
	t.Helper()
	for _, account := range accounts {
		report, err := f.svc.Reconcile(context.Background(), account.ID)
		require.NoError(t, err)
		assert.True(t, report.Consistent, "account %s cache %s ledger %s", account.ID, report.CachedTotal, report.LedgerTotal)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)

	f := newFixture(t)
	_, err = NewService(ServiceParams{DB: dbpkg.Wrap(f.conn), Ledger: f.ledger})
	require.Error(t, err)
}

func TestScenarioFullLifecycleAwardsReward(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "10.00")
	estimate, err := f.svc.EstimateReward(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", estimate.StringFixed(2))
	assert.True(t, estimate.Equal(decimal.NewFromInt(20)))

	match := f.requestMatch(t, listing, f.collector)
	assert.Equal(t, enums.MatchStatusPending, match.Status)

	accepted, err := f.svc.AcceptMatch(ctx, match.ID, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusAccepted, accepted.Status)
	stored, err := f.svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusClaimed, stored.Status)

	result, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, enums.MatchStatusCompleted, result.Match.Status)
	assert.Equal(t, enums.ListingStatusCollected, result.Listing.Status)
	assert.Equal(t, "20.00", result.RewardAwarded.StringFixed(2))
	require.NotNil(t, result.Entry)
	assert.Equal(t, "reward: PET bottles", result.Entry.Reason)

	stored, err = f.svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusCollected, stored.Status)
	assert.True(t, stored.AwardedReward.Equal(decimal.NewFromInt(20)))

	balance, err := f.svc.BalanceOf(ctx, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", balance.StringFixed(2))

	history, err := f.svc.HistoryOf(ctx, f.poster.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.LedgerEntryCredit, history[0].Kind)
	assert.Equal(t, "reward: PET bottles", history[0].Reason)

	collectorBalance, err := f.svc.BalanceOf(ctx, f.collector.ID)
	require.NoError(t, err)
	assert.True(t, collectorBalance.IsZero())

	assert.EqualValues(t, 1, f.countEvents(t, enums.EventListingPosted))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventMatchRequested))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventMatchAccepted))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventMatchCompleted))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventRewardAwarded))
	assert.Contains(t, f.logs.String(), "match.completed")
	assert.Contains(t, f.logs.String(), "reward.awarded")
	f.assertBalanceInvariant(t, f.poster, f.collector)
}

func TestScenarioRejectLeavesListingAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "4.00")
	match := f.requestMatch(t, listing, f.collector)

	rejected, err := f.svc.RejectMatch(ctx, match.ID, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusRejected, rejected.Status)

	stored, err := f.svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusAvailable, stored.Status)
	assert.True(t, stored.AwardedReward.IsZero())

	assert.Zero(t, f.countEntries(t, f.poster.ID))
	assert.Zero(t, f.countEntries(t, f.collector.ID))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventMatchRejected))

	_, err = f.svc.AcceptMatch(ctx, match.ID, f.poster.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
}

func TestScenarioNonPosterCannotAccept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "3.00")
	match := f.requestMatch(t, listing, f.collector)

	_, err := f.svc.AcceptMatch(ctx, match.ID, f.collector.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	stranger := f.openAccount(t, "Otieno", enums.AccountTypeRecycler)
	_, err = f.svc.RejectMatch(ctx, match.ID, stranger.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	stored, err := f.svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusPending, stored.Status)
	storedListing, err := f.svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusAvailable, storedListing.Status)
	assert.Zero(t, f.countEvents(t, enums.EventMatchAccepted))
}

func TestScenarioCompletePendingMatchIsInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "10.00")
	match := f.requestMatch(t, listing, f.collector)

	_, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	stored, err := f.svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusPending, stored.Status)
	storedListing, err := f.svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusAvailable, storedListing.Status)
	assert.True(t, storedListing.AwardedReward.IsZero())
	assert.Zero(t, f.countEntries(t, f.poster.ID))
}

func TestCompleteByPosterIsForbidden(t *testing.T) {
	f := newFixture(t)
	_, match := f.acceptedMatch(t)

	_, err := f.svc.CompleteMatch(context.Background(), match.ID, f.poster.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestCreateMatchDuplicateReturnsExisting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "2.50")
	first := f.requestMatch(t, listing, f.collector)

	second, err := f.svc.CreateMatch(ctx, matches.CreateInput{ListingID: listing.ID, CollectorID: f.collector.ID})
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.ID, second.Match.ID)

	rows, err := f.svc.MatchesForListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventMatchRequested))
	assert.Equal(t, float64(1), f.counterValue(t, "wastelink_match_duplicates_total", "create_match"))
}

func (f *fixture) counterValue(t *testing.T, name, label string) float64 {
	t.Helper()
	families, err := f.registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetValue() == label {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestCreateMatchValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.postPlastic(t, "1.00")

	_, err := f.svc.CreateMatch(ctx, matches.CreateInput{ListingID: listing.ID, CollectorID: f.poster.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "poster requesting own listing")

	farmer := f.openAccount(t, "Kamau", enums.AccountTypeFarmer)
	_, err = f.svc.CreateMatch(ctx, matches.CreateInput{ListingID: listing.ID, CollectorID: farmer.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden), "farmers cannot collect")

	_, err = f.svc.CreateMatch(ctx, matches.CreateInput{ListingID: uuid.New(), CollectorID: f.collector.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreateMatch(ctx, matches.CreateInput{ListingID: listing.ID, CollectorID: uuid.New()})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreateMatch(ctx, matches.CreateInput{CollectorID: f.collector.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestCreateMatchOnClaimedListingFails(t *testing.T) {
	f := newFixture(t)
	listing, _ := f.acceptedMatch(t)
	late := f.openAccount(t, "LateCollector", enums.AccountTypeCollector)

	_, err := f.svc.CreateMatch(context.Background(), matches.CreateInput{ListingID: listing.ID, CollectorID: late.ID})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestAcceptRejectsCompetingRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "5.00")
	winner := f.requestMatch(t, listing, f.collector)
	other := f.openAccount(t, "Recycla", enums.AccountTypeRecycler)
	loser := f.requestMatch(t, listing, other)

	_, err := f.svc.AcceptMatch(ctx, winner.ID, f.poster.ID)
	require.NoError(t, err)

	storedLoser, err := f.svc.GetMatch(ctx, loser.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusRejected, storedLoser.Status)

	_, err = f.svc.AcceptMatch(ctx, loser.ID, f.poster.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.AcceptMatch(ctx, winner.ID, f.poster.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	collectorMatches, err := f.svc.MatchesForCollector(ctx, other.ID, 10)
	require.NoError(t, err)
	require.Len(t, collectorMatches, 1)
	assert.Equal(t, enums.MatchStatusRejected, collectorMatches[0].Status)
}

func TestCompleteTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, match := f.acceptedMatch(t)

	first, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.True(t, second.RewardAwarded.IsZero())
	assert.Nil(t, second.Entry)

	assert.EqualValues(t, 1, f.countEntries(t, f.poster.ID))
	balance, err := f.svc.BalanceOf(ctx, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", balance.StringFixed(2))
	assert.Contains(t, f.logs.String(), "match.complete.duplicate")
}

func TestConcurrentCompleteAwardsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, match := f.acceptedMatch(t)

	const workers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results []*CompleteResult
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			result, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			results = append(results, result)
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, results, workers)
	awarded, duplicates := 0, 0
	for _, result := range results {
		if result.Duplicate {
			duplicates++
			continue
		}
		awarded++
		assert.Equal(t, "20.00", result.RewardAwarded.StringFixed(2))
	}
	assert.Equal(t, 1, awarded)
	assert.Equal(t, workers-1, duplicates)
	assert.Equal(t, float64(1), f.counterValue(t, "wastelink_match_transitions_total", "complete"))
	assert.Equal(t, float64(workers-1), f.counterValue(t, "wastelink_match_duplicates_total", "complete_match"))

	assert.EqualValues(t, 1, f.countEntries(t, f.poster.ID))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventMatchCompleted))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventRewardAwarded))
	balance, err := f.svc.BalanceOf(ctx, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", balance.StringFixed(2))
	f.assertBalanceInvariant(t, f.poster, f.collector)
}

func TestConcurrentCreateMatchStoresOneRow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.postPlastic(t, "6.00")

	const workers = 6
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		created    int
		duplicates int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := f.svc.CreateMatch(ctx, matches.CreateInput{ListingID: listing.ID, CollectorID: f.collector.ID})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if result.Duplicate {
				duplicates++
			} else {
				created++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Equal(t, workers-1, duplicates)
	rows, err := f.svc.MatchesForListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestRecycleListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	listing := f.postPlastic(t, "7.00")
	pending := f.requestMatch(t, listing, f.collector)

	_, err := f.svc.RecycleListing(ctx, listing.ID, f.collector.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))

	result, err := f.svc.RecycleListing(ctx, listing.ID, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusRecycled, result.Listing.Status)
	assert.Equal(t, []uuid.UUID{pending.ID}, result.RejectedMatches)

	storedMatch, err := f.svc.GetMatch(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusRejected, storedMatch.Status)

	_, err = f.svc.RecycleListing(ctx, listing.ID, f.poster.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventListingRecycled))

	available, err := f.svc.ListingsAvailable(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	assert.Empty(t, available)
}

func TestListingsAvailableHidesOwnListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing := f.postPlastic(t, "3.00")

	all, err := f.svc.ListingsAvailable(ctx, uuid.Nil, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)

	forCollector, err := f.svc.ListingsAvailable(ctx, f.collector.ID, 10)
	require.NoError(t, err)
	require.Len(t, forCollector, 1)
	assert.Equal(t, listing.ID, forCollector[0].ID)

	forPoster, err := f.svc.ListingsAvailable(ctx, f.poster.ID, 10)
	require.NoError(t, err)
	assert.Empty(t, forPoster)
}

func TestRecycleClaimedListingBlocksCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	listing, match := f.acceptedMatch(t)

	_, err := f.svc.RecycleListing(ctx, listing.ID, f.poster.ID)
	require.NoError(t, err)

	_, err = f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	stored, err := f.svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusAccepted, stored.Status)
	assert.Zero(t, f.countEntries(t, f.poster.ID))
}

func TestDebit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, match := f.acceptedMatch(t)
	_, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.NoError(t, err)

	entry, err := f.svc.Debit(ctx, DebitInput{AccountID: f.poster.ID, Amount: decimal.RequireFromString("7.50"), Reason: "seedlings voucher"})
	require.NoError(t, err)
	assert.Equal(t, enums.LedgerEntryDebit, entry.Kind)
	assert.Equal(t, "-7.50", entry.Amount.StringFixed(2))

	_, err = f.svc.Debit(ctx, DebitInput{AccountID: f.poster.ID, Amount: decimal.RequireFromString("100"), Reason: "bicycle"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInsufficientBalance))

	_, err = f.svc.Debit(ctx, DebitInput{AccountID: f.poster.ID, Amount: decimal.Zero, Reason: "nothing"})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	balance, err := f.svc.BalanceOf(ctx, f.poster.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", balance.StringFixed(2))

	history, err := f.svc.HistoryOf(ctx, f.poster.ID, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.LedgerEntryDebit, history[0].Kind)
	assert.EqualValues(t, 1, f.countEvents(t, enums.EventCreditsDebited))
	f.assertBalanceInvariant(t, f.poster)
}

func TestPostListingValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PostListing(ctx, f.poster.ID, listings.PostInput{
		Title:        "Cans",
		MaterialKind: enums.MaterialMetal,
		Quantity:     decimal.RequireFromString("-1"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.PostListing(ctx, uuid.New(), listings.PostInput{
		Title:        "Cans",
		MaterialKind: enums.MaterialMetal,
		Quantity:     decimal.RequireFromString("1"),
	})
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))

	var count int64
	require.NoError(t, f.conn.Model(&models.WasteListing{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestUnknownMatchIsNotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.AcceptMatch(context.Background(), uuid.New(), f.poster.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
	_, err = f.svc.CompleteMatch(context.Background(), uuid.Nil, f.collector.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.EstimateReward(context.Background(), uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

type flakyRunner struct {
	inner    txRunner
	failures int
	mu       sync.Mutex
	calls    int
}

func (r *flakyRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	r.mu.Lock()
	r.calls++
	fail := r.calls <= r.failures
	r.mu.Unlock()
	if fail {
		return pkgerrors.New(pkgerrors.CodeConflict, "could not obtain lock")
	}
	return r.inner.WithTx(ctx, fn)
}

func TestConflictIsRetried(t *testing.T) {
	f := newFixture(t)
	listing := f.postPlastic(t, "1.00")

	runner := &flakyRunner{inner: dbpkg.Wrap(f.conn), failures: 2}
	svc, err := NewService(ServiceParams{
		DB:       runner,
		Ledger:   f.ledger,
		Listings: listings.NewRepository(f.conn),
		Matches:  matches.NewRepository(f.conn),
		Outbox:   outbox.NewService(outbox.NewRepository(f.conn), nil),
		Logger:   logger.New(logger.Options{Output: f.logs}),
		Config:   testConfig(),
	})
	require.NoError(t, err)

	result, err := svc.CreateMatch(context.Background(), matches.CreateInput{ListingID: listing.ID, CollectorID: f.collector.ID})
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.Equal(t, 3, runner.calls)
	assert.Contains(t, f.logs.String(), "lifecycle.retry")
}

func TestConflictExhaustsAttempts(t *testing.T) {
	f := newFixture(t)
	listing := f.postPlastic(t, "1.00")

	runner := &flakyRunner{inner: dbpkg.Wrap(f.conn), failures: 10}
	svc, err := NewService(ServiceParams{
		DB:       runner,
		Ledger:   f.ledger,
		Listings: listings.NewRepository(f.conn),
		Matches:  matches.NewRepository(f.conn),
		Outbox:   outbox.NewService(outbox.NewRepository(f.conn), nil),
		Logger:   logger.New(logger.Options{Output: f.logs}),
		Config:   testConfig(),
	})
	require.NoError(t, err)

	_, err = svc.CreateMatch(context.Background(), matches.CreateInput{ListingID: listing.ID, CollectorID: f.collector.ID})
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeConflict))
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, 3, runner.calls)
}

func TestPermanentErrorsAreNotRetried(t *testing.T) {
	f := newFixture(t)
	listing := f.postPlastic(t, "1.00")
	match := f.requestMatch(t, listing, f.collector)

	runner := &flakyRunner{inner: dbpkg.Wrap(f.conn)}
	svc, err := NewService(ServiceParams{
		DB:       runner,
		Ledger:   f.ledger,
		Listings: listings.NewRepository(f.conn),
		Matches:  matches.NewRepository(f.conn),
		Outbox:   outbox.NewService(outbox.NewRepository(f.conn), nil),
		Logger:   logger.New(logger.Options{Output: f.logs}),
		Config:   testConfig(),
	})
	require.NoError(t, err)

	_, err = svc.CompleteMatch(context.Background(), match.ID, f.collector.ID)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
	assert.Equal(t, 1, runner.calls)
}

// failingOutbox rejects one event type until disarmed.
type failingOutbox struct {
	next    outboxPublisher
	failOn  enums.OutboxEventType
	mu      sync.Mutex
	armed   bool
	refused int
}

func (o *failingOutbox) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.armed && event.EventType == o.failOn {
		o.refused++
		return pkgerrors.New(pkgerrors.CodeDependency, "outbox unavailable")
	}
	return o.next.Emit(ctx, tx, event)
}

func (o *failingOutbox) disarm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.armed = false
}

func TestCompleteMatchRollsBackWhenLateStepFails(t *testing.T) {
	var events *failingOutbox
	f := newFixture(t, func(params *ServiceParams) {
		events = &failingOutbox{next: params.Outbox, failOn: enums.EventRewardAwarded}
		params.Outbox = events
	})
	ctx := context.Background()
	listing, match := f.acceptedMatch(t)
	events.armed = true

	_, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, 1, events.refused)

	storedMatch, err := f.svc.GetMatch(ctx, match.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusAccepted, storedMatch.Status)
	storedListing, err := f.svc.GetListing(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusClaimed, storedListing.Status)
	assert.True(t, storedListing.AwardedReward.IsZero())
	balance, err := f.svc.BalanceOf(ctx, f.poster.ID)
	require.NoError(t, err)
	assert.True(t, balance.IsZero(), "balance %s", balance)
	assert.Zero(t, f.countEntries(t, f.poster.ID))
	assert.Zero(t, f.countEvents(t, enums.EventMatchCompleted))

	events.disarm()
	result, err := f.svc.CompleteMatch(ctx, match.ID, f.collector.ID)
	require.NoError(t, err)
	assert.False(t, result.Duplicate)
	assert.True(t, result.RewardAwarded.Equal(listing.EstimatedReward), "reward %s", result.RewardAwarded)
	assert.Equal(t, int64(1), f.countEntries(t, f.poster.ID))
	assert.Equal(t, int64(1), f.countEvents(t, enums.EventRewardAwarded))
	f.assertBalanceInvariant(t, f.poster, f.collector)
}
