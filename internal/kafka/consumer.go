package kafka

import (
	"context"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"sync"
	"time"
)

// Handler returns nil only when the message was processed and its offset may be committed.
type Handler func(ctx context.Context, m kafka.Message) error

type reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

const (
	retryMin = 200 * time.Millisecond
	retryMax = 10 * time.Second
)

type Consumer struct {
	r        reader
	workers  int
	log      *zap.Logger
	retryMin time.Duration
}

func NewConsumer(brokers []string, group, topic string, workers int, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        group,
		Topic:          topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // manual commit
	})
	return newConsumer(r, workers, log.With(zap.String("topic", topic), zap.String("group", group)))
}

func newConsumer(r reader, workers int, log *zap.Logger) *Consumer {
	if workers <= 0 {
		workers = 1
	}
	return &Consumer{r: r, workers: workers, log: log, retryMin: retryMin}
}

// Start fetches messages and hands each partition to one worker, so a
// partition is processed and committed in offset order. A failing message is
// retried in place until it succeeds or ctx ends; nothing after it is
// committed meanwhile. It returns nil on shutdown.
func (c *Consumer) Start(ctx context.Context, h Handler) error {
	defer c.r.Close()

	lanes := make([]chan kafka.Message, c.workers)
	var wg sync.WaitGroup
	for i := range lanes {
		lanes[i] = make(chan kafka.Message, 128)
		wg.Add(1)
		go func(id int, lane <-chan kafka.Message) {
			defer wg.Done()
			for m := range lane {
				if !c.process(ctx, id, h, m) {
					return
				}
			}
		}(i, lanes[i])
	}
	defer wg.Wait()
	defer func() {
		for _, l := range lanes {
			close(l)
		}
	}()

	for {
		m, err := c.r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case lanes[m.Partition%c.workers] <- m:
		case <-ctx.Done():
			return nil
		}
	}
}

// process reports false when ctx ended before m was committed.
func (c *Consumer) process(ctx context.Context, worker int, h Handler, m kafka.Message) bool {
	wait := c.retryMin
	for {
		err := h(ctx, m)
		if err == nil {
			break
		}
		c.log.Warn("handler failed, retrying",
			zap.Int("worker", worker), zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset),
			zap.Duration("backoff", wait), zap.Error(err))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return false
		}
		if wait *= 2; wait > retryMax {
			wait = retryMax
		}
	}
	if err := c.r.CommitMessages(ctx, m); err != nil {
		if ctx.Err() != nil {
			return false
		}
		c.log.Warn("commit failed", zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.Error(err))
	}
	return true
}
