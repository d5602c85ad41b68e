package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/iliyamo/shift-signup/internal/queue"
)

// EventPublisher delivers booking events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.BookingEvent) error
}

// AMQPPublisher publishes each event as a persistent message to the queue
// named by the event type, on the default exchange.  A connection is opened
// per publish; booking volume is low and this keeps the publisher free of
// reconnect state.
type AMQPPublisher struct {
	URL string
	// DialTimeout caps the TCP dial when ctx carries no deadline.
	DialTimeout time.Duration
}

func NewAMQPPublisher(url string) *AMQPPublisher {
	return &AMQPPublisher{URL: url, DialTimeout: publishTimeout}
}

// Publish delivers ev within ctx's deadline.  Errors are returned, not
// logged; the caller decides how loud a lost event is.
func (p *AMQPPublisher) Publish(ctx context.Context, ev queue.BookingEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	conn, err := amqp.DialConfig(p.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(dialTimeout(ctx, p.DialTimeout)),
	})
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("rabbitmq channel: %w", err)
	}
	defer func() { _ = ch.Close() }()

	// Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(ev.Type, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq declare %s: %w", ev.Type, err)
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", ev.Type, false, false, pub); err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", ev.Type, err)
	}
	return nil
}

// dialTimeout returns the time left before ctx's deadline, or fallback when
// ctx has none.  An expired deadline still yields a positive timeout so the
// dial fails fast instead of blocking.
func dialTimeout(ctx context.Context, fallback time.Duration) time.Duration {
	dl, ok := ctx.Deadline()
	if !ok {
		if fallback <= 0 {
			return publishTimeout
		}
		return fallback
	}
	if left := time.Until(dl); left > 0 {
		return left
	}
	return time.Millisecond
}

// NopPublisher drops every event.  Used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, queue.BookingEvent) error { return nil }
