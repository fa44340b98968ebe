package lifecycle

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/internal/listings"
	"github.com/machawaste/wastelink-backend/internal/matches"
	dbpkg "github.com/machawaste/wastelink-backend/pkg/db"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
	"github.com/machawaste/wastelink-backend/pkg/outbox/payloads"
)

const rewardReasonPrefix = "reward: "

// CreateMatchResult carries the stored match. Duplicate is set when the pair
// already had a match and no row was written.
type CreateMatchResult struct {
	Match     *models.Match `json:"match"`
	Duplicate bool          `json:"duplicate"`
}

// CompleteResult reports the outcome of a completion. Duplicate is set when
// the match was already completed and nothing changed.
type CompleteResult struct {
	Match         *models.Match        `json:"match"`
	Listing       *models.WasteListing `json:"listing"`
	RewardAwarded decimal.Decimal      `json:"reward_awarded"`
	Entry         *models.LedgerEntry  `json:"entry,omitempty"`
	Duplicate     bool                 `json:"duplicate"`
}

func (s *service) CreateMatch(ctx context.Context, input matches.CreateInput) (*CreateMatchResult, error) {
	if input.ListingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	if input.CollectorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "collector id is required")
	}

	var result *CreateMatchResult
	err := s.run(ctx, "create_match", input.ListingID, func(tx *gorm.DB) error {
		result = nil
		listing, err := s.listings.WithTx(tx).FindByIDForUpdate(ctx, input.ListingID)
		if err != nil {
			return dbpkg.Classify(err, "listing not found")
		}

		matchRepo := s.matches.WithTx(tx)
		existing, err := matchRepo.FindByListingAndCollector(ctx, listing.ID, input.CollectorID)
		switch {
		case err == nil:
			result = &CreateMatchResult{Match: existing, Duplicate: true}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return dbpkg.Classify(err, "lookup match")
		}

		collector, err := s.ledger.Account(ctx, tx, input.CollectorID)
		if err != nil {
			return err
		}
		match, err := matches.New(listing, collector, input.Message)
		if err != nil {
			return err
		}
		if err := matchRepo.Create(ctx, match); err != nil {
			if dbpkg.IsUniqueViolation(err, matches.UniqueConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "match request raced another request")
			}
			return dbpkg.Classify(err, "create match")
		}

		if err := s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMatchRequested,
			AggregateType: enums.AggregateMatch,
			AggregateID:   match.ID,
			Actor:         &outbox.ActorRef{AccountID: collector.ID, Role: string(collector.Type)},
			Data: payloads.MatchRequestedEvent{
				MatchID:     match.ID,
				ListingID:   listing.ID,
				CollectorID: collector.ID,
				PosterID:    listing.PosterID,
			},
		}); err != nil {
			return err
		}
		result = &CreateMatchResult{Match: match}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.matchLogContext(ctx, result.Match)
	if result.Duplicate {
		s.metrics.IncDuplicate("create_match")
		s.logg.Info(logCtx, "match.request.duplicate")
		return result, nil
	}
	s.metrics.IncTransition("create")
	s.logg.Info(logCtx, "match.requested")
	return result, nil
}

func (s *service) AcceptMatch(ctx context.Context, matchID, actorID uuid.UUID) (*models.Match, error) {
	listingID, err := s.listingOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var (
		accepted *models.Match
		rejected []uuid.UUID
	)
	err = s.run(ctx, "accept_match", listingID, func(tx *gorm.DB) error {
		rejected = nil
		listing, match, err := s.lockListingAndMatch(ctx, tx, listingID, matchID)
		if err != nil {
			return err
		}
		transition, err := matches.Apply(match, listing, matches.EventAccept, actorID)
		if err != nil {
			return err
		}
		if err := listings.TransitionStatus(listing, transition.ListingStatus); err != nil {
			return err
		}

		matchRepo := s.matches.WithTx(tx)
		if err := s.listings.WithTx(tx).SaveState(ctx, listing); err != nil {
			return dbpkg.Classify(err, "save listing")
		}
		if err := matchRepo.UpdateStatus(ctx, match); err != nil {
			return dbpkg.Classify(err, "save match")
		}

		rejected, err = s.rejectPending(ctx, tx, listing, actorID)
		if err != nil {
			return err
		}

		if err := s.emit(ctx, tx, decisionEvent(enums.EventMatchAccepted, match, listing, actorID)); err != nil {
			return err
		}
		accepted = match
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(matches.EventAccept))
	logCtx := s.logg.WithFields(s.matchLogContext(ctx, accepted), map[string]any{
		"actor_id":          actorID.String(),
		"listing_status":    enums.ListingStatusClaimed,
		"competing_rejects": len(rejected),
	})
	s.logg.Info(logCtx, "match.accepted")
	return accepted, nil
}

func (s *service) RejectMatch(ctx context.Context, matchID, actorID uuid.UUID) (*models.Match, error) {
	listingID, err := s.listingOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var rejected *models.Match
	err = s.run(ctx, "reject_match", listingID, func(tx *gorm.DB) error {
		listing, match, err := s.lockListingAndMatch(ctx, tx, listingID, matchID)
		if err != nil {
			return err
		}
		if _, err := matches.Apply(match, listing, matches.EventReject, actorID); err != nil {
			return err
		}
		if err := s.matches.WithTx(tx).UpdateStatus(ctx, match); err != nil {
			return dbpkg.Classify(err, "save match")
		}
		if err := s.emit(ctx, tx, decisionEvent(enums.EventMatchRejected, match, listing, actorID)); err != nil {
			return err
		}
		rejected = match
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncTransition(string(matches.EventReject))
	s.logg.Info(s.logg.WithField(s.matchLogContext(ctx, rejected), "actor_id", actorID.String()), "match.rejected")
	return rejected, nil
}

// CompleteMatch finishes an accepted match, collects the listing and credits
// the poster with the reward in one transaction. A repeated call by the
// collector after the match completed is reported as a duplicate.
func (s *service) CompleteMatch(ctx context.Context, matchID, actorID uuid.UUID) (*CompleteResult, error) {
	listingID, err := s.listingOf(ctx, matchID)
	if err != nil {
		return nil, err
	}

	var result *CompleteResult
	err = s.run(ctx, "complete_match", listingID, func(tx *gorm.DB) error {
		result = nil
		listing, match, err := s.lockListingAndMatch(ctx, tx, listingID, matchID)
		if err != nil {
			return err
		}
		if match.Status == enums.MatchStatusCompleted && actorID == match.CollectorID {
			result = &CompleteResult{Match: match, Listing: listing, RewardAwarded: decimal.Zero, Duplicate: true}
			return nil
		}

		transition, err := matches.Apply(match, listing, matches.EventComplete, actorID)
		if err != nil {
			return err
		}
		if err := listings.TransitionStatus(listing, transition.ListingStatus); err != nil {
			return err
		}
		amount := decimal.Zero
		if transition.AwardReward {
			amount = listings.AwardReward(listing)
		}

		if _, err := s.ledger.LockAccounts(ctx, tx, listing.PosterID, match.CollectorID); err != nil {
			return err
		}
		if err := s.listings.WithTx(tx).SaveState(ctx, listing); err != nil {
			return dbpkg.Classify(err, "save listing")
		}
		if err := s.matches.WithTx(tx).UpdateStatus(ctx, match); err != nil {
			return dbpkg.Classify(err, "save match")
		}

		var entry *models.LedgerEntry
		if amount.IsPositive() {
			entry, err = s.ledger.Credit(ctx, tx, listing.PosterID, amount, rewardReasonPrefix+listing.Title)
			if err != nil {
				return err
			}
		}

		actor := &outbox.ActorRef{AccountID: actorID, Role: "collector"}
		if err := s.emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMatchCompleted,
			AggregateType: enums.AggregateMatch,
			AggregateID:   match.ID,
			Actor:         actor,
			Data: payloads.MatchCompletedEvent{
				MatchID:       match.ID,
				ListingID:     listing.ID,
				CollectorID:   match.CollectorID,
				PosterID:      listing.PosterID,
				RewardAwarded: amount,
			},
		}); err != nil {
			return err
		}
		if entry != nil {
			if err := s.emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventRewardAwarded,
				AggregateType: enums.AggregateAccount,
				AggregateID:   listing.PosterID,
				Actor:         actor,
				Data: payloads.RewardAwardedEvent{
					AccountID:     listing.PosterID,
					ListingID:     listing.ID,
					LedgerEntryID: entry.ID,
					Amount:        entry.Amount,
					Reason:        entry.Reason,
				},
			}); err != nil {
				return err
			}
		}

		result = &CompleteResult{Match: match, Listing: listing, RewardAwarded: amount, Entry: entry}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.matchLogContext(ctx, result.Match), map[string]any{
		"actor_id":       actorID.String(),
		"reward_awarded": result.RewardAwarded.StringFixed(2),
	})
	if result.Duplicate {
		s.metrics.IncDuplicate("complete_match")
		s.logg.Info(logCtx, "match.complete.duplicate")
		return result, nil
	}
	s.metrics.IncTransition(string(matches.EventComplete))
	s.logg.Info(logCtx, "match.completed")
	if result.Entry != nil {
		s.metrics.ObserveReward(result.RewardAwarded.InexactFloat64())
		rewardCtx := s.logg.WithFields(s.logg.WithAccountID(logCtx, result.Listing.PosterID.String()), map[string]any{
			"ledger_entry_id": result.Entry.ID.String(),
		})
		s.logg.Info(rewardCtx, "reward.awarded")
	}
	return result, nil
}

// listingOf resolves a match's listing outside the transaction so the listing
// row can be locked first inside it.
func (s *service) listingOf(ctx context.Context, matchID uuid.UUID) (uuid.UUID, error) {
	if matchID == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "match id is required")
	}
	match, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return uuid.Nil, err
	}
	return match.ListingID, nil
}

func (s *service) lockListingAndMatch(ctx context.Context, tx *gorm.DB, listingID, matchID uuid.UUID) (*models.WasteListing, *models.Match, error) {
	listing, err := s.listings.WithTx(tx).FindByIDForUpdate(ctx, listingID)
	if err != nil {
		return nil, nil, dbpkg.Classify(err, "listing not found")
	}
	match, err := s.matches.WithTx(tx).FindByIDForUpdate(ctx, matchID)
	if err != nil {
		return nil, nil, dbpkg.Classify(err, "match not found")
	}
	if match.ListingID != listing.ID {
		return nil, nil, pkgerrors.New(pkgerrors.CodeConflict, "match moved to another listing")
	}
	return listing, match, nil
}

// rejectPending closes every pending match of the listing. The caller holds
// the listing lock.
func (s *service) rejectPending(ctx context.Context, tx *gorm.DB, listing *models.WasteListing, actorID uuid.UUID) ([]uuid.UUID, error) {
	repo := s.matches.WithTx(tx)
	pending, err := repo.LockByListingAndStatus(ctx, listing.ID, enums.MatchStatusPending)
	if err != nil {
		return nil, dbpkg.Classify(err, "lock pending matches")
	}
	ids := make([]uuid.UUID, 0, len(pending))
	for i := range pending {
		match := &pending[i]
		match.Status = enums.MatchStatusRejected
		if err := repo.UpdateStatus(ctx, match); err != nil {
			return nil, dbpkg.Classify(err, "reject pending match")
		}
		if err := s.emit(ctx, tx, decisionEvent(enums.EventMatchRejected, match, listing, actorID)); err != nil {
			return nil, err
		}
		ids = append(ids, match.ID)
	}
	return ids, nil
}

func decisionEvent(eventType enums.OutboxEventType, match *models.Match, listing *models.WasteListing, actorID uuid.UUID) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateMatch,
		AggregateID:   match.ID,
		Actor:         &outbox.ActorRef{AccountID: actorID, Role: "poster"},
		Data: payloads.MatchDecisionEvent{
			MatchID:       match.ID,
			ListingID:     listing.ID,
			CollectorID:   match.CollectorID,
			Status:        match.Status,
			ListingStatus: listing.Status,
		},
	}
}

func (s *service) matchLogContext(ctx context.Context, match *models.Match) context.Context {
	ctx = s.logg.WithMatchID(ctx, match.ID.String())
	ctx = s.logg.WithListingID(ctx, match.ListingID.String())
	return s.logg.WithFields(ctx, map[string]any{
		"collector_id": match.CollectorID.String(),
		"status":       match.Status,
	})
}
