package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sane-Sunil/Human-detection/internal/domain/port"
	natsgo "github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

type ConsumerConfig struct {
	URL     string
	Stream  string
	Subject string
	Durable string
}

// TriggerConsumer is a durable JetStream push subscription on the
// upload-completed subject.
type TriggerConsumer struct {
	nc      *natsgo.Conn
	js      natsgo.JetStreamContext
	cfg     ConsumerConfig
	handler port.TriggerHandler
	logger  *zap.Logger
	sub     *natsgo.Subscription
}

func NewTriggerConsumer(cfg ConsumerConfig, handler port.TriggerHandler, logger *zap.Logger) (*TriggerConsumer, error) {
	nc, err := natsgo.Connect(cfg.URL, natsgo.Name("person-detector"))
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}

	return &TriggerConsumer{nc: nc, js: js, cfg: cfg, handler: handler, logger: logger}, nil
}

// EnsureStream creates the stream capturing the trigger subject if missing.
func (c *TriggerConsumer) EnsureStream() error {
	_, err := c.js.StreamInfo(c.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, natsgo.ErrStreamNotFound) {
		return fmt.Errorf("stream info %s: %w", c.cfg.Stream, err)
	}
	_, err = c.js.AddStream(&natsgo.StreamConfig{
		Name:     c.cfg.Stream,
		Subjects: []string{c.cfg.Subject},
		Storage:  natsgo.FileStorage,
	})
	if err != nil {
		return fmt.Errorf("add stream %s: %w", c.cfg.Stream, err)
	}
	return nil
}

// Listen subscribes and returns; messages are handled on the client's
// goroutine until Close.
func (c *TriggerConsumer) Listen(ctx context.Context) error {
	sub, err := c.js.Subscribe(c.cfg.Subject, func(m *natsgo.Msg) {
		c.handle(ctx, m)
	}, natsgo.Durable(c.cfg.Durable), natsgo.ManualAck(), natsgo.AckWait(30*time.Second))
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", c.cfg.Subject, err)
	}
	c.sub = sub

	c.logger.Info("subscribed to upload triggers",
		zap.String("subject", c.cfg.Subject),
		zap.String("durable", c.cfg.Durable),
	)
	return nil
}

func (c *TriggerConsumer) handle(ctx context.Context, m *natsgo.Msg) {
	if err := c.handler(ctx, m.Data); err != nil {
		c.logger.Warn("trigger failed, requesting redelivery", zap.String("subject", m.Subject), zap.Error(err))
		if nerr := m.NakWithDelay(time.Second); nerr != nil {
			c.logger.Error("failed to nak trigger", zap.Error(nerr))
		}
		return
	}
	if err := m.Ack(); err != nil {
		c.logger.Error("failed to ack trigger", zap.Error(err))
	}
}

// Publish is used by tests and tooling to emit a trigger.
func (c *TriggerConsumer) Publish(body []byte) error {
	if _, err := c.js.Publish(c.cfg.Subject, body); err != nil {
		return fmt.Errorf("publish %s: %w", c.cfg.Subject, err)
	}
	return nil
}

func (c *TriggerConsumer) Close() error {
	if c.sub != nil {
		if err := c.sub.Drain(); err != nil {
			c.logger.Warn("failed to drain subscription", zap.Error(err))
		}
	}
	c.nc.Close()
	return nil
}
