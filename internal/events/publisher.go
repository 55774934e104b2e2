// Package events publishes audit entries to a message bus after they are committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"talent-match/internal/storage"
)

// Publisher delivers committed audit entries. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, e storage.AuditEntry) error
	Close() error
}

// RoutingKey is the topic a given audit entry is published under.
func RoutingKey(e storage.AuditEntry) string {
	return fmt.Sprintf("%s.%s", e.EntityType, e.Action)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, storage.AuditEntry) error { return nil }
func (Nop) Close() error                                      { return nil }

// AMQPPublisher publishes JSON audit entries to a topic exchange.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zap.Logger
}

func NewAMQPPublisher(url, exchange string, log *zap.Logger) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange, log: log.Named("events")}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e storage.AuditEntry) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	// amqp.Channel is not safe for concurrent publishing.
	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.Publish(
		p.exchange,
		RoutingKey(e),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    e.ID,
			Timestamp:    e.CreatedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKey(e), err)
	}
	p.log.Debug("published", zap.String("routing_key", RoutingKey(e)), zap.String("entity_id", e.EntityID))
	return nil
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch.Close()
	return p.conn.Close()
}

// Recorder keeps published entries in memory.
type Recorder struct {
	mu      sync.Mutex
	entries []storage.AuditEntry
	Err     error
}

func (r *Recorder) Publish(_ context.Context, e storage.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *Recorder) Close() error { return nil }

// Entries returns a copy of everything published so far.
func (r *Recorder) Entries() []storage.AuditEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]storage.AuditEntry(nil), r.entries...)
}
