package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"guidebook/internal/domain/entity"
)

// StartBookingConsumer consumes booking.events and runs handle for each one,
// reconnecting with backoff until ctx is cancelled.
func StartBookingConsumer(ctx context.Context, url string, handle Handler) {
	go func() {
		backoff := time.Second
		for {
			if ctx.Err() != nil {
				return
			}

			conn, err := amqp.Dial(url)
			if err != nil {
				log.Printf("booking-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
				if !sleep(ctx, backoff) {
					return
				}
				if backoff < 30*time.Second {
					backoff *= 2
				}
				continue
			}
			backoff = time.Second

			if err := consumeLoop(ctx, conn, handle); err != nil {
				log.Printf("booking-consumer: consume loop ended: %v; reconnecting", err)
			}
			_ = conn.Close()
			if !sleep(ctx, 2*time.Second) {
				return
			}
		}
	}()
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, handle Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("booking-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(BookingEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(BookingEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := deliver(ctx, d.Body, handle); err != nil {
				log.Printf("booking-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func deliver(ctx context.Context, body []byte, handle Handler) error {
	var event entity.BookingEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	return handle(ctx, event)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
