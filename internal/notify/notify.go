package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"vaulttrust/internal/storage"

	amqp "github.com/rabbitmq/amqp091-go"
)

type AuditEvent struct {
	ID            string    `json:"id"`
	Action        string    `json:"action"`
	PerformedBy   string    `json:"performedBy"`
	TargetAddress *string   `json:"targetAddress,omitempty"`
	Details       *string   `json:"details,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func FromAuditLog(auditLog *storage.AuditLog) AuditEvent {
	return AuditEvent{
		ID:            auditLog.ID,
		Action:        auditLog.Action,
		PerformedBy:   auditLog.PerformedBy,
		TargetAddress: auditLog.TargetAddress,
		Details:       auditLog.Details,
		Timestamp:     auditLog.Timestamp,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event AuditEvent) error
	Close() error
}

type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, AuditEvent) error { return nil }

func (NopPublisher) Close() error { return nil }

// AMQPPublisher sends audit events as persistent JSON messages, routed by
// action.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
}

func NewAMQPPublisher(url string, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	err = channel.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare amqp exchange %s: %w", exchange, err)
	}

	return &AMQPPublisher{
		conn:     conn,
		channel:  channel,
		exchange: exchange,
	}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, event AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(
		ctx,
		p.exchange,
		event.Action,
		false, false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    event.ID,
			Body:         body,
			Timestamp:    event.Timestamp,
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.Close(); err != nil {
		_ = p.conn.Close()
		return err
	}
	return p.conn.Close()
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (r *Recorder) Publish(_ context.Context, event AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() error { return nil }

func (r *Recorder) Events() []AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]AuditEvent(nil), r.events...)
}
