// Package registry maps outbox event types to their Pub/Sub topic and typed
// payload, and classifies rows that can never be published.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/lankacart-backend/pkg/config"
	"github.com/angelmondragon/lankacart-backend/pkg/db/models"
	"github.com/angelmondragon/lankacart-backend/pkg/enums"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox"
	"github.com/angelmondragon/lankacart-backend/pkg/outbox/payloads"
)

// MaxEnvelopeVersion is the newest envelope layout this build can decode.
const MaxEnvelopeVersion = 1

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	NewPayload    func() any
}

// ResolvedEvent is an outbox row decoded against its descriptor.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row that should go straight to the DLQ. Reason
// is stored on the DLQ entry; it defaults to non_retryable.
type NonRetryableError struct {
	Reason enums.OutboxDLQErrorReason
	Err    error
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

// DLQReason returns the reason to record for this failure.
func (e NonRetryableError) DLQReason() enums.OutboxDLQErrorReason {
	if e.Reason.IsValid() {
		return e.Reason
	}
	return enums.OutboxDLQReasonNonRetryable
}

// NewNonRetryableError wraps a permanent publish failure.
func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Reason: enums.OutboxDLQReasonNonRetryable, Err: err}
}

func unroutable(format string, args ...any) NonRetryableError {
	return NonRetryableError{Reason: enums.OutboxDLQReasonUnroutable, Err: fmt.Errorf(format, args...)}
}

func malformed(format string, args ...any) NonRetryableError {
	return NonRetryableError{Reason: enums.OutboxDLQReasonMalformedPayload, Err: fmt.Errorf(format, args...)}
}

// NewEventRegistry routes every order lifecycle and payment event to the
// orders topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.OrdersTopic == "" {
		return nil, fmt.Errorf("orders topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.register(enums.EventOrderCreated, enums.AggregateOrder, cfg.OrdersTopic, func() any { return &payloads.OrderCreatedEvent{} })
	reg.register(enums.EventOrderPaid, enums.AggregateOrder, cfg.OrdersTopic, func() any { return &payloads.OrderPaidEvent{} })
	reg.register(enums.EventOrderStatusChanged, enums.AggregateOrder, cfg.OrdersTopic, func() any { return &payloads.OrderStatusChangedEvent{} })
	reg.register(enums.EventPaymentFailed, enums.AggregateCheckoutSession, cfg.OrdersTopic, func() any { return &payloads.PaymentFailedEvent{} })
	return reg, nil
}

func (r *EventRegistry) register(eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType, topic string, newPayload func() any) {
	r.entries[eventType] = EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		Topic:         topic,
		NewPayload:    newPayload,
	}
}

// Topics lists the distinct topics the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.entries))
	var topics []string
	for _, desc := range r.entries {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve checks routing first, then decodes the envelope and payload.
// Every error it returns is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, unroutable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, unroutable("%s expects aggregate %s, got %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, unroutable("%s has no aggregate_id", event.EventType)
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, malformed("decode envelope: %w", err)
	}
	if envelope.Version < 1 || envelope.Version > MaxEnvelopeVersion {
		return nil, malformed("unsupported envelope version %d", envelope.Version)
	}
	data := bytes.TrimSpace(envelope.Data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, malformed("%s envelope has no data", event.EventType)
	}

	payload := desc.NewPayload()
	if err := json.Unmarshal(data, payload); err != nil {
		return nil, malformed("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
