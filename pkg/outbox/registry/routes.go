// Package registry routes outbox rows to their Pub/Sub topic and decodes the
// typed payload inside the envelope.
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/flagit/flagit-backend/pkg/config"
	"github.com/flagit/flagit-backend/pkg/db/models"
	"github.com/flagit/flagit-backend/pkg/enums"
	"github.com/flagit/flagit-backend/pkg/outbox"
	"github.com/flagit/flagit-backend/pkg/outbox/payloads"
)

// CertificationsCompletedVersion is the newest envelope version the publisher understands.
const CertificationsCompletedVersion = 1

// Route says where an event type is published and how its payload is read.
type Route struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	MaxVersion    int
	decode        func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that passed routing and decoding.
type ResolvedEvent struct {
	Route    Route
	Envelope outbox.PayloadEnvelope
	Payload  any
}

type EventRegistry struct {
	routes map[enums.OutboxEventType]Route
}

// NonRetryableError marks a row that will never publish, so it goes straight to the DLQ.
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

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topic := strings.TrimSpace(cfg.CertificationTopic)
	if topic == "" {
		return nil, errors.New("certification topic is required")
	}
	return &EventRegistry{routes: map[enums.OutboxEventType]Route{
		enums.EventCertificationsCompleted: {
			EventType:     enums.EventCertificationsCompleted,
			AggregateType: enums.AggregateStore,
			Topic:         topic,
			MaxVersion:    CertificationsCompletedVersion,
			decode:        decodeCertificationsCompleted,
		},
	}}, nil
}

// Topics lists the distinct topics in a stable order.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]struct{}, len(r.routes))
	topics := make([]string, 0, len(r.routes))
	for _, route := range r.routes {
		if _, ok := seen[route.Topic]; ok {
			continue
		}
		seen[route.Topic] = struct{}{}
		topics = append(topics, route.Topic)
	}
	sort.Strings(topics)
	return topics
}

// Resolve routes the row and decodes its payload. Every failure is non-retryable
// because a malformed row stays malformed.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	route, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("no route for event type %q", event.EventType))
	case route.AggregateType != event.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("%s rows belong to %s aggregates, got %s", event.EventType, route.AggregateType, event.AggregateType))
	case event.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	if envelope.Version > route.MaxVersion {
		return nil, NewNonRetryableError(fmt.Errorf("%s envelope version %d is newer than %d", event.EventType, envelope.Version, route.MaxVersion))
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, NewNonRetryableError(fmt.Errorf("%s envelope has no data", event.EventType))
	}

	payload, err := route.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}
	return &ResolvedEvent{Route: route, Envelope: envelope, Payload: payload}, nil
}

func decodeCertificationsCompleted(data json.RawMessage) (any, error) {
	var event payloads.CertificationsCompletedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	if event.StoreID == uuid.Nil {
		return nil, errors.New("store_id is required")
	}
	if len(event.CertificationIDs) == 0 {
		return nil, errors.New("a completed batch names at least one certification")
	}
	return &event, nil
}
