package ticket

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ashureev/support-hub/internal/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventTypeTicketCreated is the event name published for new tickets.
const EventTypeTicketCreated = "tickets.created.v1"

// EventMeta identifies a published event.
type EventMeta struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	Producer string    `json:"producer,omitempty"`
	Time     time.Time `json:"time"`
}

// Envelope wraps an event payload with its metadata.
type Envelope struct {
	Meta EventMeta     `json:"meta"`
	Data domain.Ticket `json:"data"`
}

// AMQPConfig configures the broker notifier.
type AMQPConfig struct {
	URL         string
	Exchange    string
	RoutingKey  string
	Producer    string
	DialTimeout time.Duration
}

// AMQP publishes ticket-created events to a topic exchange.
type AMQP struct {
	cfg  AMQPConfig
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex
}

// NewAMQP dials the broker and declares the exchange.
func NewAMQP(cfg AMQPConfig) (*AMQP, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "support"
	}
	if cfg.RoutingKey == "" {
		cfg.RoutingKey = EventTypeTicketCreated
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(cfg.DialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
	}
	return &AMQP{cfg: cfg, conn: conn, ch: ch}, nil
}

// NewEnvelope wraps t in a ticket-created event.
func NewEnvelope(t domain.Ticket, producer string, now time.Time) Envelope {
	return Envelope{
		Meta: EventMeta{
			ID:       uuid.NewString(),
			Type:     EventTypeTicketCreated,
			Producer: producer,
			Time:     now.UTC(),
		},
		Data: t,
	}
}

// Notify publishes a persistent JSON envelope for t.
func (a *AMQP) Notify(ctx context.Context, t domain.Ticket) error {
	env := NewEnvelope(t, a.cfg.Producer, time.Now())
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ch.PublishWithContext(ctx, a.cfg.Exchange, a.cfg.RoutingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		Body:          body,
		DeliveryMode:  amqp.Persistent,
		MessageId:     env.Meta.ID,
		CorrelationId: t.TicketID,
		Type:          env.Meta.Type,
		Timestamp:     env.Meta.Time,
		AppId:         a.cfg.Producer,
	})
}

// Close closes the channel and the connection.
func (a *AMQP) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.ch.Close(); err != nil {
		_ = a.conn.Close()
		return fmt.Errorf("close channel: %w", err)
	}
	return a.conn.Close()
}
