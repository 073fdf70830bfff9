package rabbitmq

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const maxBackoff = 60 * time.Second

// TriggerConsumer feeds upload-completed messages to a TriggerHandler. The
// handler only launches a run, so workers stay free for the next trigger.
type TriggerConsumer struct {
	conn        *amqp.Connection
	channel     *amqp.Channel
	queue       string
	workerCount int
	baseDelay   time.Duration
	handler     port.TriggerHandler
	logger      *zap.Logger
	wg          sync.WaitGroup
}

type ConsumerConfig struct {
	URL              string
	Exchange         string
	Queue            string
	RoutingKey       string
	DLQ              string
	StatusQueue      string
	StatusRoutingKey string
	Prefetch         int
	WorkerCount      int
	BaseDelay        time.Duration
}

// NewTriggerConsumer dials the broker and declares the topology: one topic
// exchange, the trigger queue, the DLQ and the status queue.
func NewTriggerConsumer(cfg ConsumerConfig, handler port.TriggerHandler, logger *zap.Logger) (*TriggerConsumer, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, cfg); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	workers := cfg.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	return &TriggerConsumer{
		conn:        conn,
		channel:     ch,
		queue:       cfg.Queue,
		workerCount: workers,
		baseDelay:   cfg.BaseDelay,
		handler:     handler,
		logger:      logger,
	}, nil
}

func declareTopology(ch *amqp.Channel, cfg ConsumerConfig) error {
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	for _, q := range []string{cfg.Queue, cfg.DLQ, cfg.StatusQueue} {
		if q == "" {
			continue
		}
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	if err := ch.QueueBind(cfg.Queue, cfg.RoutingKey, cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind trigger queue: %w", err)
	}
	if cfg.StatusQueue != "" {
		if err := ch.QueueBind(cfg.StatusQueue, cfg.StatusRoutingKey, cfg.Exchange, false, nil); err != nil {
			return fmt.Errorf("bind status queue: %w", err)
		}
	}
	return nil
}

// Conn exposes the connection so publishers can share it.
func (c *TriggerConsumer) Conn() *amqp.Connection { return c.conn }

// Start blocks until ctx is cancelled and all workers have drained.
func (c *TriggerConsumer) Start(ctx context.Context) error {
	deliveries, err := c.channel.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	c.logger.Info("consuming upload triggers",
		zap.Int("workers", c.workerCount),
		zap.String("queue", c.queue),
	)

	for i := 0; i < c.workerCount; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, deliveries)
	}

	<-ctx.Done()
	c.logger.Info("context cancelled, waiting for trigger workers")
	c.wg.Wait()
	return nil
}

func (c *TriggerConsumer) worker(ctx context.Context, id int, deliveries <-chan amqp.Delivery) {
	defer c.wg.Done()
	log := c.logger.With(zap.Int("worker_id", id))

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				log.Info("delivery channel closed")
				return
			}
			c.handle(ctx, d, log)
		}
	}
}

func (c *TriggerConsumer) handle(ctx context.Context, d amqp.Delivery, log *zap.Logger) {
	if err := c.handler(ctx, d.Body); err != nil {
		attempt := attemptOf(d.Headers, d.Redelivered)
		delay := backoff(c.baseDelay, attempt)
		log.Warn("trigger failed, requeueing",
			zap.Error(err),
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
		)

		select {
		case <-time.After(delay):
			_ = d.Nack(false, true)
		case <-ctx.Done():
			_ = d.Nack(false, true)
		}
		return
	}
	_ = d.Ack(false)
}

// attemptOf counts prior deliveries from x-death, or 2 for a bare redelivery.
func attemptOf(headers amqp.Table, redelivered bool) int {
	if xDeath, ok := headers["x-death"]; ok {
		if deaths, ok := xDeath.([]interface{}); ok && len(deaths) > 0 {
			return len(deaths) + 1
		}
	}
	if redelivered {
		return 2
	}
	return 1
}

func backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base * time.Duration(math.Pow(2, float64(attempt-1)))
	if delay > maxBackoff || delay < 0 {
		delay = maxBackoff
	}
	return delay
}

func (c *TriggerConsumer) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
