// Package audit re-checks ledger balances as credit and debit events arrive
// from the lifecycle subscription.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/machawaste/wastelink-backend/internal/ledger"
	"github.com/machawaste/wastelink-backend/pkg/enums"
	pkgerrors "github.com/machawaste/wastelink-backend/pkg/errors"
	"github.com/machawaste/wastelink-backend/pkg/logger"
	"github.com/machawaste/wastelink-backend/pkg/metrics"
	"github.com/machawaste/wastelink-backend/pkg/outbox"
)

const (
	resultConsistent = "consistent"
	resultMismatch   = "mismatch"
	resultSkipped    = "skipped"
	resultMalformed  = "malformed"
	resultError      = "error"
)

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type reconciler interface {
	Reconcile(ctx context.Context, accountID uuid.UUID) (*ledger.Reconciliation, error)
}

// Consumer reconciles the account named by every reward_awarded and
// credits_debited event. Reconciling is read only, so redelivery is harmless.
type Consumer struct {
	subscription receiver
	ledger       reconciler
	metrics      *metrics.LedgerAuditMetrics
	logg         *logger.Logger
}

func NewConsumer(subscription receiver, ledgerSvc reconciler, m *metrics.LedgerAuditMetrics, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, fmt.Errorf("lifecycle subscription required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{subscription: subscription, ledger: ledgerSvc, metrics: m, logg: logg}, nil
}

// Run receives until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// accountPayload covers the account-bearing fields of reward_awarded and
// credits_debited.
type accountPayload struct {
	AccountID     uuid.UUID `json:"account_id"`
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
}

// process reports whether the message should be acked.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := attrs["event_type"]
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
		"event_id":   attrs["event_id"],
	})

	switch enums.OutboxEventType(eventType) {
	case enums.EventRewardAwarded, enums.EventCreditsDebited:
	default:
		c.metrics.Inc(eventType, resultSkipped)
		c.logg.Debug(logCtx, "ledger.audit.skipped")
		return true
	}

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.metrics.Inc(eventType, resultMalformed)
		c.logg.Error(logCtx, "ledger.audit.decode_envelope", err)
		return true
	}
	var payload accountPayload
	if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.AccountID == uuid.Nil {
		if err == nil {
			err = fmt.Errorf("account id missing")
		}
		c.metrics.Inc(eventType, resultMalformed)
		c.logg.Error(logCtx, "ledger.audit.decode_payload", err)
		return true
	}

	logCtx = c.logg.WithFields(c.logg.WithAccountID(logCtx, payload.AccountID.String()), map[string]any{
		"ledger_entry_id": payload.LedgerEntryID.String(),
	})

	report, err := c.ledger.Reconcile(ctx, payload.AccountID)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
			c.metrics.Inc(eventType, resultMalformed)
			c.logg.Warn(logCtx, "ledger.audit.unknown_account")
			return true
		}
		c.metrics.Inc(eventType, resultError)
		c.logg.Error(logCtx, "ledger.audit.failed", err)
		return false
	}

	if !report.Consistent {
		c.metrics.Inc(eventType, resultMismatch)
		c.logg.Warn(c.logg.WithFields(logCtx, map[string]any{
			"cached_total": report.CachedTotal.StringFixed(2),
			"ledger_total": report.LedgerTotal.StringFixed(2),
		}), "ledger.audit.mismatch")
		return true
	}

	c.metrics.Inc(eventType, resultConsistent)
	c.logg.Debug(logCtx, "ledger.audit.consistent")
	return true
}
