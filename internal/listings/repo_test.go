package listings

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/machawaste/wastelink-backend/pkg/db/dbtest"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
)

func TestRepositoryRoundTripAndSaveState(t *testing.T) {
	conn := dbtest.Open(t, &models.WasteListing{})
	repo := NewRepository(conn)
	ctx := context.Background()

	listing, err := New(uuid.New(), validInput())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, listing))

	loaded, err := repo.FindByIDForUpdate(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bottles from the market", loaded.Title)
	assert.True(t, loaded.Quantity.Equal(decimal.RequireFromString("10")))
	assert.True(t, loaded.EstimatedReward.Equal(decimal.RequireFromString("20")))

	require.NoError(t, TransitionStatus(loaded, enums.ListingStatusClaimed))
	require.NoError(t, TransitionStatus(loaded, enums.ListingStatusCollected))
	AwardReward(loaded)
	require.NoError(t, repo.SaveState(ctx, loaded))

	reloaded, err := repo.FindByID(ctx, listing.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ListingStatusCollected, reloaded.Status)
	assert.Equal(t, "20.00", reloaded.AwardedReward.StringFixed(2))
}

func TestRepositoryListings(t *testing.T) {
	conn := dbtest.Open(t, &models.WasteListing{})
	repo := NewRepository(conn)
	ctx := context.Background()
	poster := uuid.New()

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		listing, err := New(poster, validInput())
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, listing))
		ids = append(ids, listing.ID)
		time.Sleep(5 * time.Millisecond)
	}

	claimed, err := repo.FindByID(ctx, ids[0])
	require.NoError(t, err)
	require.NoError(t, TransitionStatus(claimed, enums.ListingStatusClaimed))
	require.NoError(t, repo.SaveState(ctx, claimed))

	available, err := repo.List(ctx, ListFilter{Status: enums.ListingStatusAvailable})
	require.NoError(t, err)
	require.Len(t, available, 2)
	assert.Equal(t, ids[2], available[0].ID, "newest first")

	limited, err := repo.List(ctx, ListFilter{Status: enums.ListingStatusAvailable, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	other, err := New(uuid.New(), validInput())
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, other))
	forPoster, err := repo.List(ctx, ListFilter{Status: enums.ListingStatusAvailable, ExcludePoster: poster})
	require.NoError(t, err)
	require.Len(t, forPoster, 1)
	assert.Equal(t, other.ID, forPoster[0].ID)

	mine, err := repo.ListByPoster(ctx, poster, 0)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}
