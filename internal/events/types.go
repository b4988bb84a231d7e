// Package events provides RabbitMQ event publishing and subscription for allocdesk.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Routing keys published by allocdesk. Session event types double as routing keys.
const (
	RoutingKeySessionCreated       = "session.created"
	RoutingKeyStrategySelected     = "strategy.selected"
	RoutingKeyAllocationCalculated = "allocation.calculated"
	RoutingKeyAllocationFailed     = "allocation.failed"
	RoutingKeyPerformanceLoaded    = "performance.loaded"
	RoutingKeyPerformanceFailed    = "performance.failed"
	RoutingKeySessionReset         = "session.reset"
	RoutingKeySessionClosed        = "session.closed"
	RoutingKeyBackendStatusChanged = "backend.status_changed"
)

// Routing keys published by the remote allocation service.
const (
	RoutingKeyPerformanceRefreshed = "performance.refreshed"
	RoutingKeyStrategiesUpdated    = "strategies.updated"
)

// RemoteRoutingKeys are the keys the subscriber binds to.
var RemoteRoutingKeys = []string{
	RoutingKeyPerformanceRefreshed,
	RoutingKeyStrategiesUpdated,
}

// EventSource identifies events published by this service.
const EventSource = "allocdesk"

// BaseEvent contains common fields for all events.
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with auto-generated event_id.
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Source:    EventSource,
	}
}

// SessionEvent wraps a session state transition.
type SessionEvent struct {
	BaseEvent
	SessionID uuid.UUID   `json:"session_id"`
	Payload   interface{} `json:"payload,omitempty"`
}

// NewSessionEvent creates a SessionEvent.
func NewSessionEvent(sessionID uuid.UUID, eventType string, payload interface{}) *SessionEvent {
	return &SessionEvent{
		BaseEvent: NewBaseEvent(eventType),
		SessionID: sessionID,
		Payload:   payload,
	}
}

// BackendStatusEvent is published when the remote service becomes reachable or unreachable.
type BackendStatusEvent struct {
	BaseEvent
	Available bool   `json:"available"`
	BaseURL   string `json:"base_url"`
}

// NewBackendStatusEvent creates a BackendStatusEvent.
func NewBackendStatusEvent(available bool, baseURL string) *BackendStatusEvent {
	return &BackendStatusEvent{
		BaseEvent: NewBaseEvent(RoutingKeyBackendStatusChanged),
		Available: available,
		BaseURL:   baseURL,
	}
}

// RemoteNotice is a notification from the remote service. It never changes session state.
type RemoteNotice struct {
	Type       string    `json:"type"`
	StrategyID string    `json:"strategy_id,omitempty"`
	AsOf       string    `json:"as_of,omitempty"`
	Strategies []string  `json:"strategies,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// ParseRemoteNotice decodes a message from the remote service.
func ParseRemoteNotice(routingKey string, body []byte) (*RemoteNotice, error) {
	var raw struct {
		StrategyID string   `json:"strategy_id"`
		AsOf       string   `json:"as_of"`
		Strategies []string `json:"strategies"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse %s notice: %w", routingKey, err)
	}

	switch routingKey {
	case RoutingKeyPerformanceRefreshed:
		if raw.StrategyID == "" {
			return nil, fmt.Errorf("%s notice without strategy_id", routingKey)
		}
	case RoutingKeyStrategiesUpdated:
	default:
		return nil, fmt.Errorf("unknown routing key: %s", routingKey)
	}

	return &RemoteNotice{
		Type:       routingKey,
		StrategyID: raw.StrategyID,
		AsOf:       raw.AsOf,
		Strategies: raw.Strategies,
		ReceivedAt: time.Now().UTC(),
	}, nil
}
