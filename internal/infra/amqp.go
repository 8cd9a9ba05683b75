package infra

import (
	"fmt"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const amqpDialTimeout = 10 * time.Second

// NewAMQPConnection dials RabbitMQ with a bounded connect timeout.
func NewAMQPConnection(rawURL string) (*amqp.Connection, error) {
	if rawURL == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	conn, err := amqp.DialConfig(rawURL, amqp.Config{
		Dial:       amqp.DefaultDial(amqpDialTimeout),
		Properties: amqp.Table{"connection_name": "bondify"},
	})
	if err != nil {
		return nil, fmt.Errorf("connect rabbitmq %s: %w", redactURL(rawURL), err)
	}
	return conn, nil
}

// redactURL strips credentials before a URL reaches logs or errors.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}
