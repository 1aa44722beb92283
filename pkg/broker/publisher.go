// Package broker publishes JSON events to a RabbitMQ topic exchange.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"whalecycle/backend/pkg/logger"
)

const (
	reconnectDelay  = 5 * time.Second
	publishTimeout  = 5 * time.Second
	contentTypeJSON = "application/json"
)

// Channel is the part of an AMQP channel the publisher needs
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// Dialer opens a channel with exchange declared on it
type Dialer func(url, exchange string) (Channel, error)

// Publisher keeps one channel open and redials when the broker drops it
type Publisher struct {
	url      string
	exchange string
	dial     Dialer
	log      *logger.Logger
	now      func() time.Time

	channel  Channel
	lastDial time.Time
	mu       sync.Mutex
	closed   bool
}

// RoutingKey joins parts with dots, e.g. RoutingKey("cycle", "cycle_started")
func RoutingKey(parts ...string) string {
	return strings.Join(parts, ".")
}

// NewPublisher dials url and declares a durable topic exchange
func NewPublisher(url, exchange string, log *logger.Logger) (*Publisher, error) {
	return NewPublisherWithDialer(url, exchange, DialAMQP, log)
}

// NewPublisherWithDialer connects through dial instead of amqp.Dial
func NewPublisherWithDialer(url, exchange string, dial Dialer, log *logger.Logger) (*Publisher, error) {
	p := &Publisher{
		url:      url,
		exchange: exchange,
		dial:     dial,
		log:      log,
		now:      time.Now,
	}

	if err := p.connect(); err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	return p, nil
}

func (p *Publisher) connect() error {
	p.lastDial = p.now()
	ch, err := p.dial(p.url, p.exchange)
	if err != nil {
		return err
	}
	p.channel = ch

	p.log.WithField("exchange", p.exchange).Info("connected to RabbitMQ")
	return nil
}

// Publish sends payload as JSON with the given routing key
func (p *Publisher) Publish(ctx context.Context, routingKey string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return fmt.Errorf("publisher is closed")
	}
	if p.channel == nil || p.channel.IsClosed() {
		if err := p.reconnect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  contentTypeJSON,
			DeliveryMode: amqp.Persistent,
			Timestamp:    p.now(),
			Body:         body,
		},
	)
}

// reconnect must be called with mu held. Dials at most once per reconnectDelay.
func (p *Publisher) reconnect() error {
	if wait := reconnectDelay - p.now().Sub(p.lastDial); wait > 0 {
		return fmt.Errorf("RabbitMQ unavailable, retrying in %s", wait.Round(time.Second))
	}
	if p.channel != nil {
		p.channel.Close()
	}
	p.channel = nil

	if err := p.connect(); err != nil {
		p.log.Warnf("RabbitMQ reconnect failed: %v", err)
		return err
	}
	return nil
}

// Close shuts the channel and connection
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}

// session owns the connection behind its channel
type session struct {
	*amqp.Channel
	conn *amqp.Connection
}

func (s *session) IsClosed() bool {
	return s.Channel.IsClosed() || s.conn.IsClosed()
}

func (s *session) Close() error {
	s.Channel.Close()
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}

// DialAMQP dials url, opens a channel and declares exchange as a durable topic exchange
func DialAMQP(url, exchange string) (Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return &session{Channel: ch, conn: conn}, nil
}
