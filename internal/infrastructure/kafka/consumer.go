package kafka

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// MessageHandler processes one message. A returned error is retried; once
// the retries run out the message is requeued.
type MessageHandler func(ctx context.Context, key, value []byte) error

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Consumer struct {
	reader        messageReader
	topic         string
	handler       MessageHandler
	requeue       KafkaProducer
	maxAttempts   int
	retryInterval time.Duration
}

type ConsumerOption func(*Consumer)

// WithRequeue republishes messages that still fail after every attempt to
// the end of the same topic.
func WithRequeue(p KafkaProducer) ConsumerOption {
	return func(c *Consumer) { c.requeue = p }
}

func WithHandlerRetry(maxAttempts int, interval time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if interval > 0 {
			c.retryInterval = interval
		}
	}
}

func NewConsumer(brokers []string, topic, groupID string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, topic, handler, opts...)
}

func newConsumer(reader messageReader, topic string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		reader:        reader,
		topic:         topic,
		handler:       handler,
		maxAttempts:   5,
		retryInterval: 200 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Consume reads until ctx is cancelled. A message is committed only after
// it was handled or requeued. If neither worked Consume stops without
// committing, so the group redelivers the message on the next start.
func (c *Consumer) Consume(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || stderrors.Is(err, context.Canceled) {
				slog.Info("Kafka consumer stopped", "topic", c.topic)
				return nil
			}
			slog.Error("failed to read Kafka message", "topic", c.topic, "error", err)
			continue
		}

		if err := c.process(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Error("Kafka consumer halted on unprocessed message", "topic", msg.Topic, "key", string(msg.Key),
				"offset", msg.Offset, "error", err)
			return err
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			slog.Error("failed to commit Kafka message", "topic", msg.Topic, "offset", msg.Offset, "error", err)
		}
	}
}

func (c *Consumer) process(ctx context.Context, msg kafka.Message) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	handle := func() error {
		return c.handler(ctx, msg.Key, msg.Value)
	}
	onRetry := func(err error, wait time.Duration) {
		slog.Warn("retrying Kafka message", "topic", msg.Topic, "offset", msg.Offset, "wait", wait.String(), "error", err)
	}

	err := backoff.RetryNotify(handle, policy, onRetry)
	if err == nil {
		return nil
	}
	if c.requeue == nil {
		return err
	}
	if sendErr := c.requeue.Send(context.WithoutCancel(ctx), c.topic, string(msg.Key), msg.Value); sendErr != nil {
		return fmt.Errorf("requeue after %w: %w", err, sendErr)
	}
	slog.Warn("Kafka message requeued", "topic", c.topic, "key", string(msg.Key), "offset", msg.Offset, "error", err)
	return nil
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
