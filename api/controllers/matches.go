package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/api/responses"
	"github.com/machawaste/wastelink-backend/api/validators"
	"github.com/machawaste/wastelink-backend/internal/lifecycle"
	"github.com/machawaste/wastelink-backend/internal/matches"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

const (
	defaultMatchesLimit = 50
	maxMatchesLimit     = 200
)

type createMatchPayload struct {
	Message string `json:"message" validate:"max=1000"`
}

// MatchCreate requests a listing on behalf of the acting collector. A repeat
// request returns the existing match with 200 instead of 201.
func MatchCreate(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload createMatchPayload
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &payload); err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
		}

		result, err := svc.CreateMatch(ctx, matches.CreateInput{
			ListingID:   listingID,
			CollectorID: actor,
			Message:     validators.SanitizeString(payload.Message, 1000),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Duplicate {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, CreateMatchResponse{
			Match:     toMatchDTO(result.Match),
			Duplicate: result.Duplicate,
		})
	}
}

func MatchGet(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		matchID, err := validators.ParseUUIDParam(r, "matchID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		match, err := svc.GetMatch(ctx, matchID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toMatchDTO(match))
	}
}

// MatchAccept lets the listing poster accept a pending request.
func MatchAccept(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return matchTransition(logg, svc.AcceptMatch)
}

// MatchReject lets the listing poster reject a pending request.
func MatchReject(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return matchTransition(logg, svc.RejectMatch)
}

type transitionFunc func(ctx context.Context, matchID, actorID uuid.UUID) (*models.Match, error)

func matchTransition(logg *logger.Logger, apply transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		matchID, err := validators.ParseUUIDParam(r, "matchID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		match, err := apply(ctx, matchID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toMatchDTO(match))
	}
}

// MatchComplete lets the collector confirm pickup and receive the reward.
// Completing twice answers 200 with duplicate set and no second reward.
func MatchComplete(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		matchID, err := validators.ParseUUIDParam(r, "matchID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.CompleteMatch(ctx, matchID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toCompleteMatchResponse(result))
	}
}

// CollectorMatches lists the acting collector's requests, newest first.
func CollectorMatches(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultMatchesLimit, 1, maxMatchesLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := svc.MatchesForCollector(ctx, actor, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toMatchDTOs(items))
	}
}
