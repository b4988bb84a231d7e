package events

import (
	"time"

	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/config"
)

// backoff returns the initial and maximum reconnect delays from config.
func backoff(cfg *config.RabbitMQConfig) (time.Duration, time.Duration) {
	reconnectDelay := 5 * time.Second
	maxReconnectWait := 30 * time.Second

	if d, err := time.ParseDuration(cfg.ReconnectDelay); err == nil && d > 0 {
		reconnectDelay = d
	}
	if d, err := time.ParseDuration(cfg.MaxReconnectWait); err == nil && d > 0 {
		maxReconnectWait = d
	}
	if maxReconnectWait < reconnectDelay {
		maxReconnectWait = reconnectDelay
	}
	return reconnectDelay, maxReconnectWait
}

// reconnectLoop calls connect with exponential backoff until it succeeds or closed reports true.
func reconnectLoop(cfg *config.RabbitMQConfig, logger *zap.Logger, closed func() bool, connect func() error) bool {
	delay, maxWait := backoff(cfg)

	for {
		if closed() {
			return false
		}

		logger.Info("Attempting to reconnect to RabbitMQ", zap.Duration("delay", delay))
		time.Sleep(delay)

		if err := connect(); err != nil {
			next := delay * 2
			if next > maxWait {
				next = maxWait
			}
			logger.Warn("Reconnection failed",
				zap.Error(err),
				zap.Duration("next_attempt", next),
			)
			delay = next
			continue
		}
		return true
	}
}
