package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
	"time"
)

// Handler processes one message body. A nil return acks the delivery.
type Handler func(ctx context.Context, body []byte) error

// Consume reads queue until ctx ends, redialing with backoff when the
// connection drops. Failed messages are requeued once, then dropped.
func Consume(ctx context.Context, url, queue string, prefetch int, log *zap.Logger, h Handler) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("rabbitmq dial failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, prefetch, log, h)
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		log.Warn("rabbitmq consume loop ended; reconnecting", zap.Error(err))
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, prefetch int, log *zap.Logger, h Handler) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Warn("rabbitmq qos failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := h(ctx, d.Body); err != nil {
				log.Warn("rabbitmq handler failed", zap.String("queue", queue), zap.Bool("redelivered", d.Redelivered), zap.Error(err))
				_ = d.Nack(false, !d.Redelivered)
				continue
			}
			_ = d.Ack(false)
		}
	}
}
