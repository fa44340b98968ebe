package controllers

import (
	"context"

	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/api/middleware"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
)

func actorFromContext(ctx context.Context) (uuid.UUID, error) {
	id, ok := middleware.AccountIDFromContext(ctx)
	if !ok {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "acting account required")
	}
	return id, nil
}

// requireSelf restricts account-scoped reads and writes to the account itself.
func requireSelf(ctx context.Context, accountID uuid.UUID) error {
	actor, err := actorFromContext(ctx)
	if err != nil {
		return err
	}
	if actor != accountID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "account belongs to another participant")
	}
	return nil
}
