package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher forwards messages as persistent JSON to a topic exchange so
// downstream consumers (mailers, analytics) can bind by routing key.
type AMQPPublisher struct {
	conn     *amqp.Connection
	channel  amqpChannel
	exchange string
}

func NewAMQPPublisher(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify: amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("notify: amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("notify: declare exchange %s: %w", exchange, err)
	}

	slog.Info("AMQP publisher initialized", "exchange", exchange)
	return &AMQPPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, channel string, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("notify: marshal %s: %w", msg.Type(), err)
	}

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(msg),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Headers:      amqp.Table{"channel": channel},
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("notify: amqp publish %s: %w", msg.Type(), err)
	}
	return nil
}

func (p *AMQPPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// RoutingKey maps a message to its topic: ticket.issued, ticket.redeemed,
// ticket.rejected, or the raw type for anything else.
func RoutingKey(msg Message) string {
	switch msg.Type() {
	case TypeTicketsIssued:
		return "ticket.issued"
	case TypeGateScan:
		if outcome, _ := msg["outcome"].(string); outcome == "ACCEPTED" {
			return "ticket.redeemed"
		}
		return "ticket.rejected"
	default:
		return msg.Type()
	}
}
