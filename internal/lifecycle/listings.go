package lifecycle

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/internal/listings"
	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
	"github.com/machawaste/wastelink-backend/pkg/outbox/payloads"
)

// RecycleResult reports a withdrawn listing and the pending matches it closed.
type RecycleResult struct {
	Listing         *models.WasteListing `json:"listing"`
	RejectedMatches []uuid.UUID          `json:"rejected_matches"`
}

// DebitInput describes an explicit spend of credits.
type DebitInput struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func (s *service) PostListing(ctx context.Context, posterID uuid.UUID, input listings.PostInput) (*models.WasteListing, error) {
	listing, err := listings.New(posterID, input)
	if err != nil {
		return nil, err
	}

	err = s.run(ctx, "post_listing", uuid.Nil, func(tx *gorm.DB) error {
		poster, err := s.ledger.Account(ctx, tx, posterID)
		if err != nil {
			return err
		}
		listing.ID = uuid.Nil
		if err := s.listings.WithTx(tx).Create(ctx, listing); err != nil {
			return dbpkg.Classify(err, "create listing")
		}
		return s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingPosted,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			Actor:         &outbox.ActorRef{AccountID: poster.ID, Role: string(poster.Type)},
			Data: payloads.ListingPostedEvent{
				ListingID:       listing.ID,
				PosterID:        poster.ID,
				MaterialKind:    listing.MaterialKind,
				Quantity:        listing.Quantity,
				EstimatedReward: listing.EstimatedReward,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithListingID(ctx, listing.ID.String()), map[string]any{
		"poster_id":        posterID.String(),
		"material_kind":    listing.MaterialKind,
		"estimated_reward": listing.EstimatedReward.StringFixed(2),
	})
	s.logg.Info(logCtx, "listing.posted")
	return listing, nil
}

// RecycleListing withdraws an available or claimed listing. Pending matches
// are rejected; an accepted match stays as is and can no longer complete.
func (s *service) RecycleListing(ctx context.Context, listingID, actorID uuid.UUID) (*RecycleResult, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}

	var result *RecycleResult
	err := s.run(ctx, "recycle_listing", listingID, func(tx *gorm.DB) error {
		listing, err := s.listings.WithTx(tx).FindByIDForUpdate(ctx, listingID)
		if err != nil {
			return dbpkg.Classify(err, "listing not found")
		}
		if listing.PosterID != actorID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the listing poster may recycle a listing")
		}
		previous := listing.Status
		if err := listings.TransitionStatus(listing, enums.ListingStatusRecycled); err != nil {
			return err
		}
		if err := s.listings.WithTx(tx).SaveState(ctx, listing); err != nil {
			return dbpkg.Classify(err, "save listing")
		}
		rejected, err := s.rejectPending(ctx, tx, listing, actorID)
		if err != nil {
			return err
		}
		if err := s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventListingRecycled,
			AggregateType: enums.AggregateListing,
			AggregateID:   listing.ID,
			Actor:         &outbox.ActorRef{AccountID: actorID, Role: "poster"},
			Data: payloads.ListingRecycledEvent{
				ListingID:       listing.ID,
				PosterID:        listing.PosterID,
				PreviousStatus:  previous,
				RejectedMatches: rejected,
			},
		}); err != nil {
			return err
		}
		result = &RecycleResult{Listing: listing, RejectedMatches: rejected}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithField(s.logg.WithListingID(ctx, listingID.String()), "rejected_matches", len(result.RejectedMatches))
	s.logg.Info(logCtx, "listing.recycled")
	return result, nil
}

func (s *service) Debit(ctx context.Context, input DebitInput) (*models.LedgerEntry, error) {
	if input.AccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account id is required")
	}
	reason := strings.TrimSpace(input.Reason)

	var entry *models.LedgerEntry
	err := s.run(ctx, "debit", uuid.Nil, func(tx *gorm.DB) error {
		var err error
		entry, err = s.ledger.Debit(ctx, tx, input.AccountID, input.Amount, reason)
		if err != nil {
			return err
		}
		return s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditsDebited,
			AggregateType: enums.AggregateAccount,
			AggregateID:   input.AccountID,
			Actor:         &outbox.ActorRef{AccountID: input.AccountID},
			Data: payloads.CreditsDebitedEvent{
				AccountID:     input.AccountID,
				LedgerEntryID: entry.ID,
				Amount:        entry.Amount,
				Reason:        entry.Reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithAccountID(ctx, input.AccountID.String()), map[string]any{
		"amount":          input.Amount.StringFixed(2),
		"ledger_entry_id": entry.ID.String(),
	})
	s.logg.Info(logCtx, "credits.debited")
	return entry, nil
}
