package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/google/uuid"
)

// EventDescriptor links an event type to its aggregate, topic and payload type.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Topic          string
	PayloadFactory func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that can never be published as stored; the
// dispatcher dead-letters it instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func describe[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string) EventDescriptor {
	return EventDescriptor{
		EventType:      eventType,
		AggregateType:  aggregate,
		Topic:          topic,
		PayloadFactory: func() any { return new(T) },
	}
}

// NewEventRegistry routes payout requests to the payouts topic and every other
// workflow event to the orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	orders, payouts := cfg.OrdersTopic, cfg.PayoutsTopic
	if orders == "" || payouts == "" {
		return nil, fmt.Errorf("orders and payouts topics are required (orders=%q payouts=%q)", orders, payouts)
	}

	descriptors := []EventDescriptor{
		describe[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder, orders),
		describe[payloads.OrderStateChangedEvent](enums.EventOrderStateChanged, enums.AggregateOrder, orders),
		describe[payloads.OrderReconciliationFlaggedEvent](enums.EventOrderReconciliationFlagged, enums.AggregateOrder, orders),
		describe[payloads.OrderReconciliationResolvedEvent](enums.EventOrderReconciliationResolved, enums.AggregateOrder, orders),
		describe[payloads.IntentReconciliationFlaggedEvent](enums.EventIntentReconciliationFlagged, enums.AggregatePaymentIntent, orders),
		describe[payloads.CancellationRequestedEvent](enums.EventCancellationRequested, enums.AggregateCancellationRequest, orders),
		describe[payloads.CancellationResolvedEvent](enums.EventCancellationResolved, enums.AggregateCancellationRequest, orders),
		describe[payloads.RefundEvent](enums.EventRefundInitiated, enums.AggregateRefund, orders),
		describe[payloads.RefundEvent](enums.EventRefundFailed, enums.AggregateRefund, orders),
		describe[payloads.RefundPayoutRequestedEvent](enums.EventRefundPayoutRequested, enums.AggregateRefund, payouts),
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(descriptors))}
	for _, desc := range descriptors {
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Topics lists the distinct topics events can be routed to, sorted.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	topics := []string{}
	for _, desc := range r.entries {
		if _, dup := seen[desc.Topic]; dup {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	if envelope.EventType != "" && envelope.EventType != event.EventType {
		return nil, NewNonRetryableError(fmt.Errorf("envelope type %s does not match row type %s", envelope.EventType, event.EventType))
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
