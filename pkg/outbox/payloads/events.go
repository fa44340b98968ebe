package payloads

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// ListingPostedEvent announces a new available listing.
type ListingPostedEvent struct {
	ListingID       uuid.UUID          `json:"listing_id"`
	PosterID        uuid.UUID          `json:"poster_id"`
	MaterialKind    enums.MaterialKind `json:"material_kind"`
	Quantity        decimal.Decimal    `json:"quantity"`
	EstimatedReward decimal.Decimal    `json:"estimated_reward"`
}

// ListingRecycledEvent is emitted when a poster withdraws a listing.
type ListingRecycledEvent struct {
	ListingID       uuid.UUID           `json:"listing_id"`
	PosterID        uuid.UUID           `json:"poster_id"`
	PreviousStatus  enums.ListingStatus `json:"previous_status"`
	RejectedMatches []uuid.UUID         `json:"rejected_matches,omitempty"`
}

// MatchRequestedEvent is emitted when a collector asks for a listing.
type MatchRequestedEvent struct {
	MatchID     uuid.UUID `json:"match_id"`
	ListingID   uuid.UUID `json:"listing_id"`
	CollectorID uuid.UUID `json:"collector_id"`
	PosterID    uuid.UUID `json:"poster_id"`
}

// MatchDecisionEvent is emitted when a poster accepts or rejects a match.
type MatchDecisionEvent struct {
	MatchID       uuid.UUID           `json:"match_id"`
	ListingID     uuid.UUID           `json:"listing_id"`
	CollectorID   uuid.UUID           `json:"collector_id"`
	Status        enums.MatchStatus   `json:"status"`
	ListingStatus enums.ListingStatus `json:"listing_status"`
}

// MatchCompletedEvent is emitted once per completed match.
type MatchCompletedEvent struct {
	MatchID       uuid.UUID       `json:"match_id"`
	ListingID     uuid.UUID       `json:"listing_id"`
	CollectorID   uuid.UUID       `json:"collector_id"`
	PosterID      uuid.UUID       `json:"poster_id"`
	RewardAwarded decimal.Decimal `json:"reward_awarded"`
}

// RewardAwardedEvent mirrors the ledger credit posted for a completed listing.
type RewardAwardedEvent struct {
	AccountID     uuid.UUID       `json:"account_id"`
	ListingID     uuid.UUID       `json:"listing_id"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}

// CreditsDebitedEvent mirrors an explicit debit.
type CreditsDebitedEvent struct {
	AccountID     uuid.UUID       `json:"account_id"`
	LedgerEntryID uuid.UUID       `json:"ledger_entry_id"`
	Amount        decimal.Decimal `json:"amount"`
	Reason        string          `json:"reason"`
}
