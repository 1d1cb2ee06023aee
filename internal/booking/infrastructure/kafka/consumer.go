package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/dmehra2102/test-booking-service/internal/booking/domain"
	"github.com/dmehra2102/test-booking-service/pkg/outbox"
	"github.com/dmehra2102/test-booking-service/pkg/retry"
	"github.com/dmehra2102/test-booking-service/pkg/tracing"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Deduper is satisfied by idempotency.Store.
type Deduper interface {
	Key(topic string, partition int, offset int64) string
	Seen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type ReleaseHandler interface {
	Handle(ctx context.Context, req domain.ReservationReleaseRequested) error
}

// DefaultReleasePolicy spaces out retries of a queued release while the
// provider recovers.
var DefaultReleasePolicy = retry.Policy{MaxRetries: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}

// ReleaseConsumer drains ReservationReleaseRequested events and ignores the
// rest of the topic.
type ReleaseConsumer struct {
	log     *slog.Logger
	reader  MessageReader
	handler ReleaseHandler
	idem    Deduper
	policy  retry.Policy
	tracer  trace.Tracer
}

func NewReader(brokers []string, topic, group string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: group,
	})
}

func NewReleaseConsumer(log *slog.Logger, reader MessageReader, handler ReleaseHandler, idem Deduper, policy retry.Policy) *ReleaseConsumer {
	return &ReleaseConsumer{
		log:     log,
		reader:  reader,
		handler: handler,
		idem:    idem,
		policy:  policy,
		tracer:  otel.Tracer("release-consumer"),
	}
}

func (c *ReleaseConsumer) Run(ctx context.Context) error {
	defer c.reader.Close()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("release consumer stopping")
				return nil
			}
			return err
		}
		c.consume(ctx, msg)
	}
}

func (c *ReleaseConsumer) consume(ctx context.Context, msg kafka.Message) {
	defer c.commit(ctx, msg)

	if outbox.HeaderValue(msg.Headers, outbox.HeaderEventType) != domain.EventReservationReleaseRequested {
		return
	}
	key := c.idem.Key(msg.Topic, msg.Partition, msg.Offset)
	seen, err := c.idem.Seen(ctx, key)
	if err != nil {
		// Releases are safe to repeat, so carry on without the claim.
		c.log.Warn("idempotency check failed", "key", key, "err", err)
	}
	if seen {
		c.log.Info("duplicate message skipped", "key", key)
		return
	}

	msgCtx := tracing.ExtractKafkaHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeReservationReleaseRequested")
	defer span.End()

	var req domain.ReservationReleaseRequested
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		c.log.Error("unmarshal failed", "key", key, "err", err)
		return
	}

	err = retry.Do(msgCtx, c.policy, func(ctx context.Context) error {
		err := c.handler.Handle(ctx, req)
		if err != nil && transient(err) {
			return retry.Retryable(err)
		}
		return err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		// Leave the claim free so a redelivery gets another go.
		if ferr := c.idem.Forget(context.WithoutCancel(ctx), key); ferr != nil {
			c.log.Error("release idempotency key failed", "key", key, "err", ferr)
		}
		c.log.Error("queued reservation release failed",
			"reservation_id", req.ReservationID,
			"booking_id", req.BookingID,
			"region", req.Region,
			"err", err,
		)
	}
}

func (c *ReleaseConsumer) commit(ctx context.Context, msg kafka.Message) {
	if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error("commit failed", "topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
	}
}

func transient(err error) bool {
	return domain.KindOf(err).Retryable()
}
