package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/machawaste/wastelink-backend/pkg/db/models"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
)

// DomainEvent is what lifecycle code hands to Emit. Data is the typed
// payload from the payloads package.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	Version       int
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	switch {
	case !e.EventType.IsValid():
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown outbox event type "+string(e.EventType))
	case !e.AggregateType.IsValid():
		return pkgerrors.New(pkgerrors.CodeInternal, "unknown outbox aggregate type "+string(e.AggregateType))
	case e.AggregateID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox event needs an aggregate id")
	}
	return nil
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Emit stores the event in the caller's transaction so it commits or rolls
// back together with the state change it describes. The outbox row id doubles
// as the envelope event id that consumers deduplicate on.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "outbox emit needs a transaction")
	}
	if err := event.validate(); err != nil {
		return err
	}
	rowID := uuid.New()
	envelope, stored, err := sealEnvelope(rowID, event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "seal outbox event")
	}

	if err := s.repo.Insert(tx, models.OutboxEvent{
		ID:            rowID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       stored,
	}); err != nil {
		return err
	}

	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}
