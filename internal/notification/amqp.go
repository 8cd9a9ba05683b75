package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const defaultExchange = "bond_events"

// eventPayload is the JSON document published for each ledger event.
type eventPayload struct {
	Kind        string    `json:"kind"`
	Destination string    `json:"destination"`
	Body        string    `json:"body"`
	EventID     string    `json:"event_id,omitempty"`
	EventType   string    `json:"event_type,omitempty"`
	BondID      string    `json:"bond_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	TxHash      string    `json:"tx_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitempty"`
}

func encodeMessage(message Message) ([]byte, string, error) {
	payload := eventPayload{Kind: message.Kind, Destination: message.Destination, Body: message.Body}
	routingKey := "bond.notification"
	if e := message.Event; e != nil {
		payload.EventID = e.ID
		payload.EventType = string(e.Type)
		payload.BondID = e.BondID
		payload.UserID = e.UserID
		payload.TxHash = e.TxHash
		payload.CreatedAt = e.CreatedAt
		routingKey = "bond." + string(e.Type)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, "", fmt.Errorf("encode notification: %w", err)
	}
	return body, routingKey, nil
}

// publishChannel is the part of *amqp.Channel the notifier uses.
type publishChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

// AMQPNotifier publishes notifications to a durable RabbitMQ topic exchange.
type AMQPNotifier struct {
	mu       sync.Mutex
	open     func() (publishChannel, error)
	channel  publishChannel
	exchange string
}

// NewAMQPNotifier wraps an open connection and declares the exchange.
func NewAMQPNotifier(conn *amqp.Connection, exchange string) (*AMQPNotifier, error) {
	if conn == nil {
		return nil, errors.New("amqp connection is required")
	}
	return newAMQPNotifier(func() (publishChannel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}, exchange)
}

func newAMQPNotifier(open func() (publishChannel, error), exchange string) (*AMQPNotifier, error) {
	if exchange == "" {
		exchange = defaultExchange
	}
	n := &AMQPNotifier{open: open, exchange: exchange}
	if err := n.reopen(); err != nil {
		return nil, err
	}
	return n, nil
}

// reopen swaps in a fresh channel. The previous one is closed first.
func (n *AMQPNotifier) reopen() error {
	if n.channel != nil {
		if !n.channel.IsClosed() {
			_ = n.channel.Close()
		}
		n.channel = nil
	}
	ch, err := n.open()
	if err != nil {
		return fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(n.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("declare exchange %s: %w", n.exchange, err)
	}
	n.channel = ch
	return nil
}

// Send publishes the message as persistent JSON. A closed channel is
// reopened once before giving up.
func (n *AMQPNotifier) Send(ctx context.Context, message Message) error {
	body, routingKey, err := encodeMessage(message)
	if err != nil {
		return err
	}
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.channel == nil || n.channel.IsClosed() {
		if err := n.reopen(); err != nil {
			return err
		}
	}
	if err := n.channel.PublishWithContext(ctx, n.exchange, routingKey, false, false, publishing); err != nil {
		if reopenErr := n.reopen(); reopenErr != nil {
			return fmt.Errorf("publish %s: %w", routingKey, err)
		}
		if err := n.channel.PublishWithContext(ctx, n.exchange, routingKey, false, false, publishing); err != nil {
			return fmt.Errorf("publish %s: %w", routingKey, err)
		}
	}
	return nil
}

// Close releases the channel. The connection belongs to the caller.
func (n *AMQPNotifier) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.channel == nil {
		return nil
	}
	return n.channel.Close()
}
