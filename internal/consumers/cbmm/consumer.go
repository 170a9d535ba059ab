package cbmm

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"

	"github.com/cobrehq/cbmm-accounts/internal/events"
	"github.com/cobrehq/cbmm-accounts/pkg/config"
	pkgerrors "github.com/cobrehq/cbmm-accounts/pkg/errors"
	"github.com/cobrehq/cbmm-accounts/pkg/logger"
)

// messageReader is the slice of kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer pulls CBMM events off Kafka and feeds them to the event
// processor one at a time. Commit policy: a message is committed after the
// processor succeeds or reports a duplicate; every other failure leaves the
// offset uncommitted so the broker redelivers.
type Consumer struct {
	reader    messageReader
	processor events.Processor
	log       *logger.Logger
}

// NewConsumer builds a consumer over a group reader for the configured topic.
func NewConsumer(cfg config.KafkaConfig, processor events.Processor, log *logger.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic required")
	}
	if cfg.GroupID == "" {
		return nil, errors.New("kafka group id required")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		MinBytes:       cfg.MinBytes,
		MaxBytes:       cfg.MaxBytes,
		CommitInterval: cfg.CommitInterval,
	})
	return newConsumer(reader, processor, log)
}

func newConsumer(reader messageReader, processor events.Processor, log *logger.Logger) (*Consumer, error) {
	if reader == nil {
		return nil, errors.New("kafka reader required")
	}
	if processor == nil {
		return nil, errors.New("event processor required")
	}
	if log == nil {
		return nil, errors.New("logger required")
	}
	return &Consumer{reader: reader, processor: processor, log: log}, nil
}

// Run consumes until the context is cancelled or the reader is closed.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info(ctx, "cbmm consumer started")
	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				c.log.Info(ctx, "cbmm consumer stopping")
				return nil
			}
			return err
		}
		c.handle(ctx, message)
	}
}

func (c *Consumer) handle(ctx context.Context, message kafka.Message) {
	var event events.Event
	if err := json.Unmarshal(message.Value, &event); err != nil {
		// A payload that cannot be decoded will never succeed; commit it
		// so it does not wedge the partition.
		c.log.Error(ctx, "discarding undecodable message", err)
		c.commit(ctx, message)
		return
	}

	ctx = c.log.WithEventID(ctx, event.EventID)
	err := c.processor.ProcessEvent(ctx, event)
	switch {
	case err == nil:
		c.commit(ctx, message)
	case pkgerrors.HasCode(err, pkgerrors.CodeDuplicateEvent):
		c.log.Warn(ctx, "duplicate event, acknowledging without reprocessing")
		c.commit(ctx, message)
	default:
		// Leave the offset uncommitted; the broker redelivers and the
		// idempotency guard keeps the retry safe.
		c.log.Error(ctx, "event processing failed, leaving message for redelivery", err)
	}
}

func (c *Consumer) commit(ctx context.Context, message kafka.Message) {
	if err := c.reader.CommitMessages(ctx, message); err != nil {
		c.log.Error(ctx, "failed to commit kafka offset", err)
	}
}

// Close shuts the underlying reader down.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
