package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/api/responses"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

// AccountIDHeader carries the acting account id, set by the upstream
// authentication layer.
const AccountIDHeader = "X-Account-Id"

// AccountID requires a well-formed acting account on every request.
func AccountID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			raw := strings.TrimSpace(r.Header.Get(AccountIDHeader))
			if raw == "" {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "acting account required"))
				return
			}
			accountID, err := uuid.Parse(raw)
			if err != nil || accountID == uuid.Nil {
				responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "acting account is malformed"))
				return
			}

			ctx = WithAccountID(ctx, accountID)
			if logg != nil {
				ctx = logg.WithField(ctx, "actor_id", accountID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
