package rabbitmq

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher owns a dedicated channel on a shared connection.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

func NewPublisher(conn *amqp.Connection, exchange string) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publisher channel: %w", err)
	}
	return &Publisher{channel: ch, exchange: exchange}, nil
}

func (p *Publisher) Close() error {
	return p.channel.Close()
}

func persistentJSON(body []byte, headers amqp.Table) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Headers:      headers,
	}
}

// StatusPublisher emits run outcome events on the exchange.
type StatusPublisher struct {
	pub        *Publisher
	routingKey string
}

func NewStatusPublisher(pub *Publisher, routingKey string) *StatusPublisher {
	return &StatusPublisher{pub: pub, routingKey: routingKey}
}

func (sp *StatusPublisher) PublishStatus(ctx context.Context, msg []byte) error {
	err := sp.pub.channel.PublishWithContext(ctx, sp.pub.exchange, sp.routingKey, false, false, persistentJSON(msg, nil))
	if err != nil {
		return fmt.Errorf("publish status: %w", err)
	}
	return nil
}

// DLQPublisher parks triggers that can never start a run.
type DLQPublisher struct {
	pub   *Publisher
	queue string
}

func NewDLQPublisher(pub *Publisher, dlqQueue string) *DLQPublisher {
	return &DLQPublisher{pub: pub, queue: dlqQueue}
}

func (dp *DLQPublisher) PublishToDLQ(ctx context.Context, msg []byte, reason string) error {
	err := dp.pub.channel.PublishWithContext(ctx, "", dp.queue, false, false,
		persistentJSON(msg, amqp.Table{"x-dlq-reason": reason}))
	if err != nil {
		return fmt.Errorf("publish to dlq %s: %w", dp.queue, err)
	}
	return nil
}
