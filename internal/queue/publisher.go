package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/eventease/booking-service/internal/model"
)

// Publisher sends booking audit events to the booking.confirmed queue.  It
// dials per publish; the booking rate does not justify a pooled channel.
type Publisher struct {
	url string
}

// NewPublisher returns a Publisher for the broker at url.
func NewPublisher(url string) *Publisher { return &Publisher{url: url} }

// BookingConfirmed publishes rec as a persistent JSON message.
func (p *Publisher) BookingConfirmed(ctx context.Context, rec model.AuditRecord) error {
	body, err := json.Marshal(NewBookingConfirmedEvent(rec))
	if err != nil {
		return fmt.Errorf("marshal booking event: %w", err)
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = ch.PublishWithContext(ctx, "", BookingConfirmedQueue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish booking event: %w", err)
	}
	return nil
}
