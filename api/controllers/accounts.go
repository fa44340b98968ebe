package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/machawaste/wastelink-backend/api/responses"
	"github.com/machawaste/wastelink-backend/api/validators"
	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/internal/lifecycle"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type openAccountPayload struct {
	DisplayName string `json:"display_name" validate:"required,max=120"`
	Type        string `json:"type" validate:"required,account_type"`
	Location    string `json:"location" validate:"max=255"`
}

type debitPayload struct {
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason" validate:"required,max=255"`
}

// AccountOpen registers a participant with a zero balance.
func AccountOpen(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "lifecycle service unavailable"))
			return
		}

		var payload openAccountPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		account, err := svc.OpenAccount(ctx, ledger.OpenAccountInput{
			DisplayName: validators.SanitizeString(payload.DisplayName, 120),
			Type:        enums.AccountType(payload.Type),
			Location:    validators.SanitizeString(payload.Location, 255),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toAccountDTO(account))
	}
}

// AccountBalance returns the cached balance of the acting account.
func AccountBalance(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := requireSelf(ctx, accountID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		balance, err := svc.BalanceOf(ctx, accountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, BalanceResponse{AccountID: accountID, Balance: money(balance)})
	}
}

// AccountHistory lists ledger entries of the acting account, newest first.
func AccountHistory(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := requireSelf(ctx, accountID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entries, err := svc.HistoryOf(ctx, accountID, limit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toLedgerEntryDTOs(entries))
	}
}

func AccountReconcile(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := requireSelf(ctx, accountID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		report, err := svc.Reconcile(ctx, accountID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, toReconciliationResponse(report))
	}
}

// AccountDebit spends credits from the acting account.
func AccountDebit(svc lifecycle.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		accountID, err := validators.ParseUUIDParam(r, "accountID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if err := requireSelf(ctx, accountID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		var payload debitPayload
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		entry, err := svc.Debit(ctx, lifecycle.DebitInput{
			AccountID: accountID,
			Amount:    payload.Amount,
			Reason:    validators.SanitizeString(payload.Reason, 255),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, toLedgerEntryDTO(entry))
	}
}
