package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// AMQPPublisher sends each event to a durable queue named after its type.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	declared map[string]bool
}

func NewAMQPPublisher(url string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return &AMQPPublisher{conn: conn, channel: channel, declared: map[string]bool{}}, nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}
	// amqp channels are not safe for concurrent publishing
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.declared[e.Type] {
		if _, err := p.channel.QueueDeclare(
			e.Type,
			true,  // durable
			false, // delete when unused
			false, // exclusive
			false, // no-wait
			nil,   // arguments
		); err != nil {
			return fmt.Errorf("failed to declare queue: %w", err)
		}
		p.declared[e.Type] = true
	}
	return p.channel.PublishWithContext(
		ctx,
		"",     // exchange
		e.Type, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%s:%s", e.Type, e.Key),
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// Source is the read side of the event log.
type Source interface {
	Pending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, seq int64) error
}

// Relay publishes pending events every interval until ctx is done. An event that
// fails to publish stays pending and is retried on the next pass; later events
// wait behind it so order is kept.
func Relay(ctx context.Context, src Source, pub Publisher, interval time.Duration) {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		if err := RelayOnce(ctx, src, pub); err != nil && ctx.Err() == nil {
			log.Printf("events: relay: %v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// RelayOnce publishes one batch of pending events.
func RelayOnce(ctx context.Context, src Source, pub Publisher) error {
	pending, err := src.Pending(ctx, 100)
	if err != nil {
		return err
	}
	for _, e := range pending {
		if err := pub.Publish(ctx, e); err != nil {
			return fmt.Errorf("publish %d: %w", e.Seq, err)
		}
		if err := src.MarkPublished(ctx, e.Seq); err != nil {
			return fmt.Errorf("mark %d: %w", e.Seq, err)
		}
	}
	return nil
}
