package events

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SessionNotifier forwards session transitions to a Publisher.
// Publish failures are logged and never reach the session.
type SessionNotifier struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewSessionNotifier creates a SessionNotifier.
func NewSessionNotifier(publisher Publisher, logger *zap.Logger) *SessionNotifier {
	return &SessionNotifier{publisher: publisher, logger: logger}
}

// Notify publishes the event under its type as routing key.
func (n *SessionNotifier) Notify(sessionID uuid.UUID, eventType string, data interface{}) {
	if err := n.publisher.PublishSessionEvent(sessionID, eventType, data); err != nil {
		n.logger.Warn("Failed to publish session event",
			zap.String("session_id", sessionID.String()),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}

// Broadcaster pushes an event to connected clients.
type Broadcaster interface {
	BroadcastEvent(eventType string, data interface{})
}

// NewRemoteNoticeHandler returns an EventHandler that relays remote notices to b.
// Malformed notices are acked and dropped so they are not redelivered forever.
func NewRemoteNoticeHandler(b Broadcaster, logger *zap.Logger) EventHandler {
	return func(routingKey string, body []byte) error {
		notice, err := ParseRemoteNotice(routingKey, body)
		if err != nil {
			logger.Warn("Dropping remote notice",
				zap.String("routing_key", routingKey),
				zap.Error(err),
			)
			return nil
		}
		b.BroadcastEvent(notice.Type, notice)
		return nil
	}
}
