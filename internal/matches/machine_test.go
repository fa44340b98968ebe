package matches

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

type fixture struct {
	poster    uuid.UUID
	collector uuid.UUID
	listing   *models.WasteListing
	match     *models.Match
}

func newFixture(status enums.MatchStatus) fixture {
	poster := uuid.New()
	collector := uuid.New()
	listing := &models.WasteListing{ID: uuid.New(), PosterID: poster, Status: enums.ListingStatusAvailable}
	return fixture{
		poster:    poster,
		collector: collector,
		listing:   listing,
		match:     &models.Match{ID: uuid.New(), ListingID: listing.ID, CollectorID: collector, Status: status},
	}
}

func TestApplyTable(t *testing.T) {
	statuses := []enums.MatchStatus{
		enums.MatchStatusPending,
		enums.MatchStatusAccepted,
		enums.MatchStatusRejected,
		enums.MatchStatusCompleted,
	}
	legal := map[Event]enums.MatchStatus{
		EventAccept:   enums.MatchStatusPending,
		EventReject:   enums.MatchStatusPending,
		EventComplete: enums.MatchStatusAccepted,
	}

	for event, from := range legal {
		for _, status := range statuses {
			f := newFixture(status)
			actor := f.poster
			if event == EventComplete {
				actor = f.collector
			}
			tr, err := Apply(f.match, f.listing, event, actor)
			if status == from {
				require.NoErrorf(t, err, "%s from %s", event, status)
				assert.Equal(t, from, tr.From)
				assert.Equal(t, f.match.Status, tr.To)
				continue
			}
			require.Errorf(t, err, "%s from %s", event, status)
			assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))
			assert.Equal(t, status, f.match.Status)
		}
	}
}

func TestApplySideEffects(t *testing.T) {
	f := newFixture(enums.MatchStatusPending)
	tr, err := Apply(f.match, f.listing, EventAccept, f.poster)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusAccepted, f.match.Status)
	assert.Equal(t, enums.ListingStatusClaimed, tr.ListingStatus)
	assert.False(t, tr.AwardReward)
	assert.Equal(t, enums.ListingStatusAvailable, f.listing.Status, "listing is not mutated")

	tr, err = Apply(f.match, f.listing, EventComplete, f.collector)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusCompleted, f.match.Status)
	assert.Equal(t, enums.ListingStatusCollected, tr.ListingStatus)
	assert.True(t, tr.AwardReward)

	r := newFixture(enums.MatchStatusPending)
	tr, err = Apply(r.match, r.listing, EventReject, r.poster)
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusRejected, r.match.Status)
	assert.Empty(t, tr.ListingStatus)
}

func TestApplyWrongActor(t *testing.T) {
	stranger := uuid.New()

	f := newFixture(enums.MatchStatusPending)
	_, err := Apply(f.match, f.listing, EventAccept, stranger)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	_, err = Apply(f.match, f.listing, EventReject, f.collector)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, enums.MatchStatusPending, f.match.Status)

	c := newFixture(enums.MatchStatusAccepted)
	_, err = Apply(c.match, c.listing, EventComplete, c.poster)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
	assert.Equal(t, enums.MatchStatusAccepted, c.match.Status)
}

func TestApplyActorCheckedBeforeState(t *testing.T) {
	f := newFixture(enums.MatchStatusCompleted)
	_, err := Apply(f.match, f.listing, EventAccept, uuid.New())
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden))
}

func TestApplyGuards(t *testing.T) {
	f := newFixture(enums.MatchStatusPending)
	_, err := Apply(f.match, f.listing, "cancel", f.poster)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	other := &models.WasteListing{ID: uuid.New(), PosterID: f.poster}
	_, err = Apply(f.match, other, EventAccept, f.poster)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeInternal))
}

func TestNewMatch(t *testing.T) {
	poster := uuid.New()
	listing := &models.WasteListing{ID: uuid.New(), PosterID: poster, Status: enums.ListingStatusAvailable}
	collector := &models.Account{ID: uuid.New(), Type: enums.AccountTypeCollector}

	match, err := New(listing, collector, "  can pick up Friday ")
	require.NoError(t, err)
	assert.Equal(t, enums.MatchStatusPending, match.Status)
	assert.Equal(t, "can pick up Friday", match.Message)
	assert.Equal(t, listing.ID, match.ListingID)

	recycler := &models.Account{ID: uuid.New(), Type: enums.AccountTypeRecycler}
	_, err = New(listing, recycler, "")
	require.NoError(t, err)
}

func TestNewMatchValidation(t *testing.T) {
	poster := uuid.New()
	listing := &models.WasteListing{ID: uuid.New(), PosterID: poster, Status: enums.ListingStatusAvailable}

	_, err := New(listing, &models.Account{ID: poster, Type: enums.AccountTypeCollector}, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "self match")

	_, err = New(listing, &models.Account{ID: uuid.New(), Type: enums.AccountTypeHousehold}, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeForbidden), "household cannot collect")

	claimed := *listing
	claimed.Status = enums.ListingStatusClaimed
	_, err = New(&claimed, &models.Account{ID: uuid.New(), Type: enums.AccountTypeCollector}, "")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "listing not available")

	long := make([]byte, maxMessageLen+1)
	for i := range long {
		long[i] = 'a'
	}
	_, err = New(listing, &models.Account{ID: uuid.New(), Type: enums.AccountTypeCollector}, string(long))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), "message too long")
}
