package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-order-progress/pkg/db/models"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/enums"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox"
	"github.com/angelmondragon/packfinderz-order-progress/pkg/outbox/payloads"
)

// EventDescriptor links an event type to its aggregate, channel and payload schema.
type EventDescriptor struct {
	EventType      enums.OutboxEventType
	AggregateType  enums.OutboxAggregateType
	Channel        string
	PayloadFactory func() any
}

// ResolvedEvent is the result of decoding an outbox row.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry maps each supported event type to its descriptor.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError signals the relay should stop retrying a row.
type NonRetryableError struct {
	Err error
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

// NewEventRegistry builds the registry publishing under channelPrefix.
func NewEventRegistry(channelPrefix string) (*EventRegistry, error) {
	channelPrefix = strings.TrimRight(strings.TrimSpace(channelPrefix), ":")
	if channelPrefix == "" {
		return nil, fmt.Errorf("channel prefix is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor)}
	reg.register(EventDescriptor{
		EventType:      enums.EventVendorOrderCanceled,
		AggregateType:  enums.AggregateVendorOrder,
		Channel:        channelPrefix + ":orders",
		PayloadFactory: func() any { return &payloads.VendorOrderCanceledEvent{} },
	})
	reg.register(EventDescriptor{
		EventType:      enums.EventOrderCanceled,
		AggregateType:  enums.AggregateOrder,
		Channel:        channelPrefix + ":orders",
		PayloadFactory: func() any { return &payloads.OrderCanceledEvent{} },
	})
	return reg, nil
}

// Channels lists every distinct channel the registered events publish to.
func (r *EventRegistry) Channels() []string {
	seen := make(map[string]struct{}, len(r.entries))
	channels := make([]string, 0, len(r.entries))
	for _, desc := range r.entries {
		if _, ok := seen[desc.Channel]; ok {
			continue
		}
		seen[desc.Channel] = struct{}{}
		channels = append(channels, desc.Channel)
	}
	sort.Strings(channels)
	return channels
}

func (r *EventRegistry) register(desc EventDescriptor) {
	if desc.PayloadFactory == nil {
		return
	}
	r.entries[desc.EventType] = desc
}

// Resolve validates the row and decodes its typed payload.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NonRetryableError{Err: fmt.Errorf("unsupported event type %s", event.EventType)}
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NonRetryableError{Err: fmt.Errorf("aggregate mismatch: expected %s got %s", desc.AggregateType, event.AggregateType)}
	}
	if event.AggregateID == uuid.Nil {
		return nil, NonRetryableError{Err: fmt.Errorf("missing aggregate_id")}
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode envelope: %w", err)}
	}

	trimmed := bytes.TrimSpace(envelope.Data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, NonRetryableError{Err: fmt.Errorf("payload missing for %s", event.EventType)}
	}

	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("decode %s payload: %w", event.EventType, err)}
	}

	return &ResolvedEvent{
		Descriptor: desc,
		Envelope:   envelope,
		Payload:    payload,
	}, nil
}
