package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/internal/lifecycle"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
)

// Amounts and quantities are rendered as fixed two-decimal strings.
func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type AccountDTO struct {
	ID          uuid.UUID         `json:"id"`
	DisplayName string            `json:"display_name"`
	Type        enums.AccountType `json:"type"`
	Location    string            `json:"location"`
	Balance     string            `json:"balance"`
	CreatedAt   time.Time         `json:"created_at"`
}

func toAccountDTO(a *models.Account) AccountDTO {
	return AccountDTO{
		ID:          a.ID,
		DisplayName: a.DisplayName,
		Type:        a.Type,
		Location:    a.Location,
		Balance:     money(a.BalanceCache),
		CreatedAt:   a.CreatedAt,
	}
}

type ListingDTO struct {
	ID              uuid.UUID           `json:"id"`
	PosterID        uuid.UUID           `json:"poster_id"`
	Title           string              `json:"title"`
	Description     string              `json:"description"`
	MaterialKind    enums.MaterialKind  `json:"material_kind"`
	Quantity        string              `json:"quantity"`
	Unit            string              `json:"unit"`
	Location        string              `json:"location"`
	Status          enums.ListingStatus `json:"status"`
	EstimatedReward string              `json:"estimated_reward"`
	AwardedReward   string              `json:"awarded_reward"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

func toListingDTO(l *models.WasteListing) ListingDTO {
	return ListingDTO{
		ID:              l.ID,
		PosterID:        l.PosterID,
		Title:           l.Title,
		Description:     l.Description,
		MaterialKind:    l.MaterialKind,
		Quantity:        money(l.Quantity),
		Unit:            l.Unit,
		Location:        l.Location,
		Status:          l.Status,
		EstimatedReward: money(l.EstimatedReward),
		AwardedReward:   money(l.AwardedReward),
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func toListingDTOs(items []models.WasteListing) []ListingDTO {
	out := make([]ListingDTO, 0, len(items))
	for i := range items {
		out = append(out, toListingDTO(&items[i]))
	}
	return out
}

type MatchDTO struct {
	ID          uuid.UUID         `json:"id"`
	ListingID   uuid.UUID         `json:"listing_id"`
	CollectorID uuid.UUID         `json:"collector_id"`
	Status      enums.MatchStatus `json:"status"`
	Message     string            `json:"message"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func toMatchDTO(m *models.Match) MatchDTO {
	return MatchDTO{
		ID:          m.ID,
		ListingID:   m.ListingID,
		CollectorID: m.CollectorID,
		Status:      m.Status,
		Message:     m.Message,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func toMatchDTOs(items []models.Match) []MatchDTO {
	out := make([]MatchDTO, 0, len(items))
	for i := range items {
		out = append(out, toMatchDTO(&items[i]))
	}
	return out
}

type LedgerEntryDTO struct {
	ID        uuid.UUID             `json:"id"`
	AccountID uuid.UUID             `json:"account_id"`
	Amount    string                `json:"amount"`
	Kind      enums.LedgerEntryKind `json:"kind"`
	Reason    string                `json:"reason"`
	CreatedAt time.Time             `json:"created_at"`
}

func toLedgerEntryDTO(e *models.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		ID:        e.ID,
		AccountID: e.AccountID,
		Amount:    money(e.Amount),
		Kind:      e.Kind,
		Reason:    e.Reason,
		CreatedAt: e.CreatedAt,
	}
}

func toLedgerEntryDTOs(items []models.LedgerEntry) []LedgerEntryDTO {
	out := make([]LedgerEntryDTO, 0, len(items))
	for i := range items {
		out = append(out, toLedgerEntryDTO(&items[i]))
	}
	return out
}

type CreateMatchResponse struct {
	Match     MatchDTO `json:"match"`
	Duplicate bool     `json:"duplicate"`
}

type CompleteMatchResponse struct {
	Match         MatchDTO        `json:"match"`
	Listing       ListingDTO      `json:"listing"`
	RewardAwarded string          `json:"reward_awarded"`
	Entry         *LedgerEntryDTO `json:"entry,omitempty"`
	Duplicate     bool            `json:"duplicate"`
}

func toCompleteMatchResponse(r *lifecycle.CompleteResult) CompleteMatchResponse {
	resp := CompleteMatchResponse{
		Match:         toMatchDTO(r.Match),
		RewardAwarded: money(r.RewardAwarded),
		Duplicate:     r.Duplicate,
	}
	if r.Listing != nil {
		resp.Listing = toListingDTO(r.Listing)
	}
	if r.Entry != nil {
		entry := toLedgerEntryDTO(r.Entry)
		resp.Entry = &entry
	}
	return resp
}

type RecycleListingResponse struct {
	Listing         ListingDTO  `json:"listing"`
	RejectedMatches []uuid.UUID `json:"rejected_matches"`
}

type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   string    `json:"balance"`
}

type EstimateResponse struct {
	ListingID       uuid.UUID `json:"listing_id"`
	EstimatedReward string    `json:"estimated_reward"`
}

type ReconciliationResponse struct {
	AccountID   uuid.UUID `json:"account_id"`
	CachedTotal string    `json:"cached_total"`
	Credits     string    `json:"credits"`
	Debits      string    `json:"debits"`
	LedgerTotal string    `json:"ledger_total"`
	EntryCount  int       `json:"entry_count"`
	Consistent  bool      `json:"consistent"`
}

func toReconciliationResponse(r *ledger.Reconciliation) ReconciliationResponse {
	return ReconciliationResponse{
		AccountID:   r.AccountID,
		CachedTotal: money(r.CachedTotal),
		Credits:     money(r.Credits),
		Debits:      money(r.Debits),
		LedgerTotal: money(r.LedgerTotal),
		EntryCount:  r.EntryCount,
		Consistent:  r.Consistent,
	}
}
