package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/api/responses"
	"github.com/machawaste/wastelink-backend/api/validators"
	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
)

const (
	defaultDeadLetterLimit = 50
	maxDeadLetterLimit     = 500
)

// DeadLetterReader exposes parked outbox events to operators.
type DeadLetterReader interface {
	Get(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	Recent(ctx context.Context, filter outbox.DLQFilter) ([]models.OutboxDLQ, error)
}

type DeadLetterDTO struct {
	EventID       uuid.UUID                  `json:"event_id"`
	EventType     enums.OutboxEventType      `json:"event_type"`
	AggregateType enums.OutboxAggregateType  `json:"aggregate_type"`
	AggregateID   uuid.UUID                  `json:"aggregate_id"`
	Reason        enums.OutboxDLQErrorReason `json:"reason"`
	ErrorMessage  string                     `json:"error_message,omitempty"`
	AttemptCount  int                        `json:"attempt_count"`
	FailedAt      time.Time                  `json:"failed_at"`
	Payload       json.RawMessage            `json:"payload,omitempty"`
}

func toDeadLetterDTO(row *models.OutboxDLQ, withPayload bool) DeadLetterDTO {
	dto := DeadLetterDTO{
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Reason:        row.ErrorReason,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
	}
	if row.ErrorMessage != nil {
		dto.ErrorMessage = *row.ErrorMessage
	}
	if withPayload {
		dto.Payload = row.Payload
	}
	return dto
}

// DeadLetterList returns parked events newest first, optionally filtered by
// event_type and reason.
func DeadLetterList(reader DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", defaultDeadLetterLimit, 1, maxDeadLetterLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		filter := outbox.DLQFilter{Limit: limit}
		query := r.URL.Query()
		if raw := strings.TrimSpace(query.Get("event_type")); raw != "" {
			if filter.EventType, err = enums.ParseOutboxEventType(raw); err != nil {
				responses.WriteError(ctx, logg, w, queryError("event_type", err))
				return
			}
		}
		if raw := strings.TrimSpace(query.Get("reason")); raw != "" {
			if filter.Reason, err = enums.ParseOutboxDLQErrorReason(raw); err != nil {
				responses.WriteError(ctx, logg, w, queryError("reason", err))
				return
			}
		}

		rows, err := reader.Recent(ctx, filter)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		out := make([]DeadLetterDTO, 0, len(rows))
		for i := range rows {
			out = append(out, toDeadLetterDTO(&rows[i], false))
		}
		responses.WriteSuccess(w, out)
	}
}

// DeadLetterGet returns one parked event with its stored envelope.
func DeadLetterGet(reader DeadLetterReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		eventID, err := validators.ParseUUIDParam(r, "eventID")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		row, err := reader.Get(ctx, eventID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, toDeadLetterDTO(row, true))
	}
}

func queryError(field string, err error) error {
	return pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).
		WithDetails(map[string]any{"field": field})
}
