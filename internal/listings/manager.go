package listings

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

const (
	rewardScale   = 2
	quantityScale = 2
	maxTitleLen   = 200
	defaultUnit   = "kg"
)

// maxQuantity keeps quantities inside numeric(10,2).
var maxQuantity = decimal.New(1, 8)

// allowedTransitions lists the legal listing status edges.
var allowedTransitions = map[enums.ListingStatus][]enums.ListingStatus{
	enums.ListingStatusAvailable: {enums.ListingStatusClaimed, enums.ListingStatusRecycled},
	enums.ListingStatusClaimed:   {enums.ListingStatusCollected, enums.ListingStatusRecycled},
}

// PostInput carries the poster-supplied fields of a new listing.
type PostInput struct {
	Title        string             `json:"title"`
	Description  string             `json:"description"`
	MaterialKind enums.MaterialKind `json:"material_kind"`
	Quantity     decimal.Decimal    `json:"quantity"`
	Unit         string             `json:"unit"`
	Location     string             `json:"location"`
}

// New validates input and builds an available listing with its reward estimate.
func New(posterID uuid.UUID, input PostInput) (*models.WasteListing, error) {
	if posterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "poster id is required")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if len(title) > maxTitleLen {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("title must be at most %d characters", maxTitleLen))
	}
	if !input.MaterialKind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid material kind %q", input.MaterialKind))
	}
	if input.Quantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must not be negative")
	}
	if !input.Quantity.Round(quantityScale).Equal(input.Quantity) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must have at most two decimal places")
	}
	if input.Quantity.GreaterThanOrEqual(maxQuantity) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity is too large")
	}

	unit := strings.TrimSpace(input.Unit)
	if unit == "" {
		unit = defaultUnit
	}

	listing := &models.WasteListing{
		PosterID:      posterID,
		Title:         title,
		Description:   strings.TrimSpace(input.Description),
		MaterialKind:  input.MaterialKind,
		Quantity:      input.Quantity,
		Unit:          unit,
		Location:      strings.TrimSpace(input.Location),
		Status:        enums.ListingStatusAvailable,
		AwardedReward: decimal.Zero,
	}
	listing.EstimatedReward = EstimateReward(listing)
	return listing, nil
}

// EstimateReward returns quantity × rate(material kind), rounded to cents.
func EstimateReward(listing *models.WasteListing) decimal.Decimal {
	if listing == nil {
		return decimal.Zero
	}
	return listing.Quantity.Mul(listing.MaterialKind.Rate()).Round(rewardScale)
}

// AwardReward finalizes the reward of a collected listing exactly once and
// returns the amount to post. It returns zero without touching the listing
// when the listing is not collected or already carries an award. Callers
// persist the listing and post the ledger entry.
func AwardReward(listing *models.WasteListing) decimal.Decimal {
	if listing == nil {
		return decimal.Zero
	}
	if listing.Status != enums.ListingStatusCollected || !listing.AwardedReward.IsZero() {
		return decimal.Zero
	}
	amount := decimal.Max(listing.EstimatedReward, EstimateReward(listing))
	listing.AwardedReward = amount
	return amount
}

// TransitionStatus moves the listing to next when the edge is allowed.
func TransitionStatus(listing *models.WasteListing, next enums.ListingStatus) error {
	if listing == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "listing is required")
	}
	if !CanTransition(listing.Status, next) {
		return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("listing cannot move from %s to %s", listing.Status, next)).
			WithDetails(map[string]any{
				"listing_id": listing.ID.String(),
				"from":       listing.Status,
				"to":         next,
			})
	}
	listing.Status = next
	return nil
}

// CanTransition reports whether from → to is a legal listing edge.
func CanTransition(from, to enums.ListingStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
