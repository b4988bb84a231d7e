package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/saltfish/allocdesk/internal/config"
)

const defaultPrefetch = 10

// EventHandler processes a received message. A non-nil error requeues it.
type EventHandler func(routingKey string, body []byte) error

// Subscriber provides event subscription from RabbitMQ.
type Subscriber interface {
	// Subscribe binds the routing keys and starts consuming in the background.
	Subscribe(ctx context.Context, routingKeys []string, handler EventHandler) error

	// Close closes the subscriber connection.
	Close() error
}

// RabbitMQSubscriber implements Subscriber using RabbitMQ.
type RabbitMQSubscriber struct {
	config   *config.RabbitMQConfig
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	queue    string
	prefetch int
	logger   *zap.Logger

	mu           sync.RWMutex
	closed       bool
	reconnecting bool
	handler      EventHandler
	routingKeys  []string
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewRabbitMQSubscriber dials the broker and declares the configured queue.
func NewRabbitMQSubscriber(cfg *config.RabbitMQConfig, logger *zap.Logger) (*RabbitMQSubscriber, error) {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	s := &RabbitMQSubscriber{
		config:   cfg,
		exchange: cfg.Exchange,
		queue:    cfg.Queue,
		prefetch: prefetch,
		logger:   logger.Named("subscriber"),
	}

	if err := s.connect(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *RabbitMQSubscriber) connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("subscriber is closed")
	}

	conn, err := amqp.Dial(s.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	fail := func(err error) error {
		channel.Close()
		conn.Close()
		return err
	}

	if err := declareExchange(channel, s.exchange); err != nil {
		return fail(err)
	}

	_, err = channel.QueueDeclare(
		s.queue, // name
		false,   // durable
		true,    // auto-delete when no consumers
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fail(fmt.Errorf("failed to declare queue: %w", err))
	}

	// Rebind after a reconnect.
	if err := bindKeys(channel, s.queue, s.exchange, s.routingKeys); err != nil {
		return fail(err)
	}

	if err := channel.Qos(s.prefetch, 0, false); err != nil {
		return fail(fmt.Errorf("failed to set QoS: %w", err))
	}

	s.conn = conn
	s.channel = channel

	closeChan := make(chan *amqp.Error, 1)
	conn.NotifyClose(closeChan)
	go s.handleClose(closeChan)

	s.logger.Info("Connected to RabbitMQ for subscription",
		zap.String("exchange", s.exchange),
		zap.String("queue", s.queue),
		zap.Int("prefetch", s.prefetch),
	)

	return nil
}

func bindKeys(channel *amqp.Channel, queue, exchange string, routingKeys []string) error {
	for _, routingKey := range routingKeys {
		if err := channel.QueueBind(queue, routingKey, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to routing key %s: %w", routingKey, err)
		}
	}
	return nil
}

func (s *RabbitMQSubscriber) handleClose(closeChan chan *amqp.Error) {
	err := <-closeChan
	if err == nil {
		return
	}

	s.logger.Warn("RabbitMQ subscriber connection closed", zap.Error(err))

	s.mu.Lock()
	if s.closed || s.reconnecting {
		s.mu.Unlock()
		return
	}
	s.reconnecting = true
	s.channel = nil
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.reconnecting = false
		s.mu.Unlock()
	}()

	if !reconnectLoop(s.config, s.logger, s.isClosed, s.connect) {
		return
	}

	s.mu.RLock()
	handler := s.handler
	ctx := s.ctx
	s.mu.RUnlock()

	if handler != nil && ctx != nil {
		go s.consume(ctx, handler)
	}

	s.logger.Info("Subscriber reconnected to RabbitMQ")
}

func (s *RabbitMQSubscriber) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Subscribe binds the routing keys and starts consuming in the background.
func (s *RabbitMQSubscriber) Subscribe(ctx context.Context, routingKeys []string, handler EventHandler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("subscriber is closed")
	}
	if s.channel == nil {
		s.mu.Unlock()
		return fmt.Errorf("channel not available")
	}

	if err := bindKeys(s.channel, s.queue, s.exchange, routingKeys); err != nil {
		s.mu.Unlock()
		return err
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.handler = handler
	s.routingKeys = routingKeys
	consumeCtx := s.ctx
	s.mu.Unlock()

	s.logger.Info("Subscribed to routing keys",
		zap.Strings("routing_keys", routingKeys),
		zap.String("queue", s.queue),
	)

	go s.consume(consumeCtx, handler)

	return nil
}

func (s *RabbitMQSubscriber) consume(ctx context.Context, handler EventHandler) {
	s.mu.RLock()
	if s.closed || s.channel == nil {
		s.mu.RUnlock()
		return
	}
	channel := s.channel
	s.mu.RUnlock()

	msgs, err := channel.Consume(
		s.queue, // queue
		"",      // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		s.logger.Error("Failed to start consuming", zap.Error(err))
		return
	}

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Info("Message channel closed")
				return
			}

			if err := dispatch(msg.RoutingKey, msg.Body, handler); err != nil {
				s.logger.Error("Failed to process message",
					zap.Error(err),
					zap.String("routing_key", msg.RoutingKey),
				)
				msg.Nack(false, true)
			} else {
				msg.Ack(false)
			}

		case <-ctx.Done():
			s.logger.Info("Subscriber context cancelled, stopping consumption")
			return
		}
	}
}

// dispatch validates the body and hands it to the handler.
func dispatch(routingKey string, body []byte, handler EventHandler) error {
	if !json.Valid(body) {
		return fmt.Errorf("invalid JSON in message body")
	}
	if err := handler(routingKey, body); err != nil {
		return fmt.Errorf("handler error: %w", err)
	}
	return nil
}

// Close closes the subscriber connection.
func (s *RabbitMQSubscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.cancel != nil {
		s.cancel()
	}

	var errs []error
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.logger.Info("RabbitMQ subscriber closed")

	if len(errs) > 0 {
		return fmt.Errorf("errors closing subscriber: %v", errs)
	}
	return nil
}

// NoOpSubscriber is used when RabbitMQ is not configured.
type NoOpSubscriber struct{}

// NewNoOpSubscriber creates a new no-op subscriber.
func NewNoOpSubscriber() *NoOpSubscriber {
	return &NoOpSubscriber{}
}

func (s *NoOpSubscriber) Subscribe(ctx context.Context, routingKeys []string, handler EventHandler) error {
	return nil
}

func (s *NoOpSubscriber) Close() error {
	return nil
}

var _ Subscriber = (*RabbitMQSubscriber)(nil)
var _ Subscriber = (*NoOpSubscriber)(nil)
