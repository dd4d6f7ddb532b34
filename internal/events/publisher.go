// Package events publishes sync lifecycle notifications to a RabbitMQ topic
// exchange so dashboards and other services can react to finished runs.
package events

import (
	"context"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys published by the sync engine.
const (
	TopicSyncCompleted     = "sync.completed"
	TopicBackfillCompleted = "backfill.completed"
)

// Publisher sends a JSON payload under a routing key.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) error
}

// Nop discards every event. Used when no broker is configured.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, string, any) error { return nil }

// AMQP publishes to a durable topic exchange.
type AMQP struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(url, exchange string) (*AMQP, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Properties: amqp.NewConnectionProperties(),
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-delete
		false,    // internal
		false,    // noWait
		nil,      // arguments
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &AMQP{conn: conn, exchange: exchange, ch: ch}, nil
}

// Publish implements Publisher. The channel is reopened if the broker closed it.
func (p *AMQP) Publish(ctx context.Context, topic string, payload any) error {
	body, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.conn.Channel()
		if err != nil {
			return fmt.Errorf("reopen channel: %w", err)
		}
		p.ch = ch
	}

	return p.ch.PublishWithContext(ctx,
		p.exchange, // exchange
		topic,      // routing key
		false,      // mandatory
		false,      // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// Close closes the channel and connection.
func (p *AMQP) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		p.ch.Close()
	}
	return p.conn.Close()
}
