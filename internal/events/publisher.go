// Package events emits cart and checkout lifecycle events for the
// analytics pipeline. Publishing is fire-and-forget: a full buffer drops
// the event rather than ever blocking a cart mutation.
package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

type EventType string

const (
	CartMutated       EventType = "cart.mutated"
	CartAttached      EventType = "cart.attached"
	CartCleared       EventType = "cart.cleared"
	CheckoutStarted   EventType = "checkout.started"
	CheckoutCompleted EventType = "checkout.completed"
)

type Event struct {
	Type      EventType `json:"type"`
	CartToken string    `json:"cart_token,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Sink receives lifecycle events. Record must never block.
type Sink interface {
	Record(ev Event)
}

// NopSink discards everything; the default when no broker is configured.
type NopSink struct{}

func (NopSink) Record(Event) {}

// KafkaPublisher buffers events and writes them to a kafka topic from a
// single background loop.
type KafkaPublisher struct {
	writer *kafka.Writer
	buf    chan Event
	logger *slog.Logger
}

func NewKafkaPublisher(logger *slog.Logger, brokers ...string) *KafkaPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "storefront-cart-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{
		writer: w,
		buf:    make(chan Event, 256),
		logger: logger,
	}
}

func (p *KafkaPublisher) Record(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	select {
	case p.buf <- ev:
	default:
		p.logger.Warn("event buffer full, dropping event", "type", string(ev.Type))
	}
}

// Run drains the buffer until ctx is cancelled.
func (p *KafkaPublisher) Run(ctx context.Context) {
	defer p.writer.Close()
	for {
		select {
		case ev := <-p.buf:
			p.publish(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

func (p *KafkaPublisher) publish(ctx context.Context, ev Event) {
	value, err := json.Marshal(ev)
	if err != nil {
		p.logger.Error("failed to marshal event", "error", err)
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.CartToken),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("failed to publish event", "type", string(ev.Type), "error", err)
	}
}
