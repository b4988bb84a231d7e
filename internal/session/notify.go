package session

import "github.com/google/uuid"

// Event types emitted by sessions.
const (
	EventSessionCreated       = "session.created"
	EventStrategySelected     = "strategy.selected"
	EventAllocationCalculated = "allocation.calculated"
	EventAllocationFailed     = "allocation.failed"
	EventPerformanceLoaded    = "performance.loaded"
	EventPerformanceFailed    = "performance.failed"
	EventSessionReset         = "session.reset"
	EventSessionClosed        = "session.closed"
)

// Notifier receives session events. Implementations must not block for long.
type Notifier interface {
	Notify(sessionID uuid.UUID, eventType string, data interface{})
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(sessionID uuid.UUID, eventType string, data interface{})

// Notify implements Notifier.
func (f NotifierFunc) Notify(sessionID uuid.UUID, eventType string, data interface{}) {
	f(sessionID, eventType, data)
}

// MultiNotifier fans events out to several notifiers in order.
type MultiNotifier []Notifier

// Notify implements Notifier.
func (m MultiNotifier) Notify(sessionID uuid.UUID, eventType string, data interface{}) {
	for _, n := range m {
		if n != nil {
			n.Notify(sessionID, eventType, data)
		}
	}
}

type nopNotifier struct{}

func (nopNotifier) Notify(uuid.UUID, string, interface{}) {}

// pendingEvent is collected under the lock and emitted after it is released.
type pendingEvent struct {
	eventType string
	data      interface{}
}
