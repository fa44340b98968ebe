package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxAccountID contextKey = "account_id"

// AccountIDFromContext returns the acting account set by AccountID.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if ctx == nil {
		return uuid.Nil, false
	}
	id, ok := ctx.Value(ctxAccountID).(uuid.UUID)
	return id, ok && id != uuid.Nil
}

// WithAccountID injects the acting account into the context.
func WithAccountID(ctx context.Context, accountID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxAccountID, accountID)
}
