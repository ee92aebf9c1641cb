package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const currentEnvelopeVersion = 1

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and shipped as
// the Pub/Sub message body. EventID equals the outbox row id.
type PayloadEnvelope struct {
	Version       int                       `json:"version"`
	EventID       string                    `json:"eventId"`
	EventType     enums.OutboxEventType     `json:"eventType,omitempty"`
	AggregateType enums.OutboxAggregateType `json:"aggregateType,omitempty"`
	AggregateID   string                    `json:"aggregateId,omitempty"`
	OccurredAt    time.Time                 `json:"occurredAt"`
	Actor         *ActorRef                 `json:"actor,omitempty"`
	Data          json.RawMessage           `json:"data"`
}

// newEnvelope validates event and wraps its data for storage under id.
func newEnvelope(id uuid.UUID, event DomainEvent) (PayloadEnvelope, error) {
	if !event.EventType.IsValid() {
		return PayloadEnvelope{}, fmt.Errorf("unknown event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return PayloadEnvelope{}, fmt.Errorf("unknown aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return PayloadEnvelope{}, errors.New("aggregate id required")
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return PayloadEnvelope{}, fmt.Errorf("encode %s data: %w", event.EventType, err)
	}

	env := PayloadEnvelope{
		Version:       event.Version,
		EventID:       id.String(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID.String(),
		OccurredAt:    event.OccurredAt.UTC(),
		Actor:         event.Actor,
		Data:          data,
	}
	if env.Version == 0 {
		env.Version = currentEnvelopeVersion
	}
	if event.OccurredAt.IsZero() {
		env.OccurredAt = time.Now().UTC()
	}
	return env, nil
}

// DecodeEnvelope parses a stored payload and requires a non-null data body.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	data := bytes.TrimSpace(env.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, errors.New("envelope data missing")
	}
	return env, nil
}
