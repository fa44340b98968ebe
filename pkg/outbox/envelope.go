package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const currentEnvelopeVersion = 1

// ActorRef names the account whose request produced a lifecycle event.
type ActorRef struct {
	AccountID uuid.UUID `json:"accountId"`
	Role      string    `json:"role,omitempty"`
}

// PayloadEnvelope wraps every listing, match and credit event in
// outbox_events.payload_json and on the wire. EventID is the outbox row id,
// so consumers can deduplicate redeliveries on it.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

func sealEnvelope(eventID uuid.UUID, event DomainEvent) (PayloadEnvelope, []byte, error) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode event payload: %w", err)
	}
	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    eventID.String(),
		OccurredAt: event.OccurredAt,
		Actor:      event.Actor,
		Data:       data,
	}
	if envelope.Version <= 0 {
		envelope.Version = currentEnvelopeVersion
	}
	if envelope.OccurredAt.IsZero() {
		envelope.OccurredAt = time.Now().UTC()
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return PayloadEnvelope{}, nil, fmt.Errorf("encode event envelope: %w", err)
	}
	return envelope, raw, nil
}

// DecodeEnvelope parses a stored or delivered envelope. An absent or null
// data field is an error.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return PayloadEnvelope{}, errors.New("envelope carries no data")
	}
	return envelope, nil
}
