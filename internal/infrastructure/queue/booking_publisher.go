package queue

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"guidebook/internal/domain/entity"
)

const BookingEventsQueue = "booking.events"

// Handler processes one booking event.
type Handler func(ctx context.Context, event entity.BookingEvent) error

// BookingPublisher publishes booking events to a durable RabbitMQ queue.
// The connection is opened lazily and re-opened after a failed publish.
type BookingPublisher struct {
	url  string
	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewBookingPublisher(url string) *BookingPublisher {
	return &BookingPublisher{url: url}
}

func (p *BookingPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.closeLocked()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		log.Printf("rabbitmq: dial failed: %v", err)
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		log.Printf("rabbitmq: channel open failed: %v", err)
		_ = conn.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(BookingEventsQueue, true, false, false, false, nil); err != nil {
		log.Printf("rabbitmq: queue declare failed: %v", err)
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}

	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *BookingPublisher) Publish(ctx context.Context, event entity.BookingEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		log.Printf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         event.Type,
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx, "", BookingEventsQueue, false, false, pub); err != nil {
		log.Printf("rabbitmq: publish failed: %v", err)
		p.closeLocked()
		return err
	}
	return nil
}

func (p *BookingPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closeLocked()
	return nil
}

func (p *BookingPublisher) closeLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

// DirectPublisher hands events straight to a handler. It stands in for the
// broker when RABBITMQ_URL is not set.
type DirectPublisher struct {
	handle Handler
}

func NewDirectPublisher(handle Handler) *DirectPublisher {
	return &DirectPublisher{handle: handle}
}

func (p *DirectPublisher) Publish(ctx context.Context, event entity.BookingEvent) error {
	if p.handle == nil {
		return nil
	}
	return p.handle(ctx, event)
}
