package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/machawaste/wastelink-backend/api/responses"
	"github.com/machawaste/wastelink-backend/api/validators"
	"github.com/machawaste/wastelink-backend/internal/lifecycle"
	"github.com/machawaste/wastelink-backend/internal/listings"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

const (
	defaultListingsLimit = 20
	maxListingsLimit     = 100
)

type postListingPayload struct {
	Title        string          `json:"title" validate:"required,max=200"`
	Description  string          `json:"description" validate:"max=2000"`
	MaterialKind string          `json:"material_kind" validate:"required,material_kind"`
	Quantity     decimal.Decimal `json:"quantity"`
	Unit         string          `json:"unit" validate:"max=16"`
	Location     string          `json:"location" validate:"max=255"`
}

// ListingPost publishes a listing owned by the acting account.
func ListingPost(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		actor, err := actorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload postListingPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		listing, err := svc.PostListing(ctx, actor, listings.PostInput{
			Title:        validators.SanitizeString(payload.Title, 200),
			Description:  validators.SanitizeString(payload.Description, 2000),
			MaterialKind: enums.MaterialKind(payload.MaterialKind),
			Quantity:     payload.Quantity,
			Unit:         validators.SanitizeString(payload.Unit, 16),
			Location:     validators.SanitizeString(payload.Location, 255),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toListingDTO(listing))
	}
}

func ListingGet(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		listing, err := svc.GetListing(ctx, listingID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toListingDTO(listing))
	}
}

// ListingsAvailable returns open listings, newest first. The caller's own
// listings are left out unless include_own=true.
func ListingsAvailable(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", defaultListingsLimit, 1, maxListingsLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		includeOwn, err := validators.ParseQueryBool(r, "include_own", false)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		exclude, err := actorFromContext(ctx)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if includeOwn {
			exclude = uuid.Nil
		}

		items, err := svc.ListingsAvailable(ctx, exclude, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toListingDTOs(items))
	}
}

// PosterListings lists the listings an account has posted.
func PosterListings(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		posterID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultListingsLimit, 1, maxListingsLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := svc.ListingsByPoster(ctx, posterID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toListingDTOs(items))
	}
}

// ListingEstimate reports the reward the listing would earn today.
func ListingEstimate(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		estimate, err := svc.EstimateReward(ctx, listingID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, EstimateResponse{ListingID: listingID, EstimatedReward: money(estimate)})
	}
}

func ListingRecycle(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
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

		result, err := svc.RecycleListing(ctx, listingID, actor)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		rejected := result.RejectedMatches
		if rejected == nil {
			rejected = []uuid.UUID{}
		}
		responses.WriteSuccess(w, RecycleListingResponse{
			Listing:         toListingDTO(result.Listing),
			RejectedMatches: rejected,
		})
	}
}

// ListingMatches lists every match request on a listing.
func ListingMatches(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		listingID, err := validators.ParseUUIDParam(r, "listingID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		items, err := svc.MatchesForListing(ctx, listingID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toMatchDTOs(items))
	}
}
