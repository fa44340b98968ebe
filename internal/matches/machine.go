package matches

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

const maxMessageLen = 1000

// Event is something that can happen to a match.
type Event string

const (
	EventAccept   Event = "accept"
	EventReject   Event = "reject"
	EventComplete Event = "complete"
)

// role names who may fire an event.
type role int

const (
	rolePoster role = iota
	roleCollector
)

type edge struct {
	from  enums.MatchStatus
	to    enums.MatchStatus
	actor role
	// listing status the caller must apply alongside the match change.
	listing enums.ListingStatus
	award   bool
}

var edges = map[Event]edge{
	EventAccept:   {from: enums.MatchStatusPending, to: enums.MatchStatusAccepted, actor: rolePoster, listing: enums.ListingStatusClaimed},
	EventReject:   {from: enums.MatchStatusPending, to: enums.MatchStatusRejected, actor: rolePoster},
	EventComplete: {from: enums.MatchStatusAccepted, to: enums.MatchStatusCompleted, actor: roleCollector, listing: enums.ListingStatusCollected, award: true},
}

// Transition describes an applied match event and the side effects it requests.
type Transition struct {
	Event Event
	From  enums.MatchStatus
	To    enums.MatchStatus
	// ListingStatus is empty when the listing is left alone.
	ListingStatus enums.ListingStatus
	AwardReward   bool
}

// Apply validates event for actor against the match state machine and moves
// the match on success. The listing is read to resolve its poster; it is not
// modified. An unauthorized actor is reported before an illegal state.
func Apply(match *models.Match, listing *models.WasteListing, event Event, actorID uuid.UUID) (*Transition, error) {
	if match == nil || listing == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "match and listing are required")
	}
	if match.ListingID != listing.ID {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "match does not belong to listing")
	}
	e, ok := edges[event]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown match event %q", event))
	}

	switch e.actor {
	case rolePoster:
		if actorID != listing.PosterID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("only the listing poster may %s a match", event))
		}
	case roleCollector:
		if actorID != match.CollectorID {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("only the match collector may %s a match", event))
		}
	}

	if match.Status != e.from {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("cannot %s a %s match", event, match.Status)).
			WithDetails(map[string]any{
				"match_id": match.ID.String(),
				"status":   match.Status,
				"event":    event,
			})
	}

	match.Status = e.to
	return &Transition{
		Event:         event,
		From:          e.from,
		To:            e.to,
		ListingStatus: e.listing,
		AwardReward:   e.award,
	}, nil
}

// CreateInput carries a collector's request for a listing.
type CreateInput struct {
	ListingID   uuid.UUID `json:"listing_id"`
	CollectorID uuid.UUID `json:"collector_id"`
	Message     string    `json:"message"`
}

// New validates a request against the listing and the requesting account and
// returns the pending match to persist. Duplicate detection belongs to the caller.
func New(listing *models.WasteListing, collector *models.Account, message string) (*models.Match, error) {
	if listing == nil || collector == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "listing and collector are required")
	}
	if listing.Status != enums.ListingStatusAvailable {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("listing is %s, not available", listing.Status))
	}
	if collector.ID == listing.PosterID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "posters cannot request their own listing")
	}
	if !collector.Type.CanCollect() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("%s accounts cannot request matches", collector.Type))
	}
	message = strings.TrimSpace(message)
	if len(message) > maxMessageLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("message must be at most %d characters", maxMessageLen))
	}
	return &models.Match{
		ListingID:   listing.ID,
		CollectorID: collector.ID,
		Status:      enums.MatchStatusPending,
		Message:     message,
	}, nil
}
