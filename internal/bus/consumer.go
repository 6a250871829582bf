// Consumer pulls messages back off JetStream — currently exercised by
// internal/server's DLQ monitor, which subscribes to "dlq.>" to surface
// messages Producer.PublishToDLQ gave up retrying.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deltran/clearing-core/internal/observability"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// MessageHandler processes one message pulled off a subscription.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message is a bus message as the consumer side sees it: headers decoded
// back into fields, payload left raw for the handler to unmarshal.
type Message struct {
	ID             string            `json:"id"`
	Type           string            `json:"type"`
	CorridorID     string            `json:"corridor_id"`
	BankID         string            `json:"bank_id"`
	Payload        json.RawMessage   `json:"payload"`
	IdempotencyKey string            `json:"idempotency_key"`
	Timestamp      time.Time         `json:"timestamp"`
	Headers        map[string]string `json:"headers"`
}

const (
	fetchBatchSize    = 10
	fetchWait         = 5 * time.Second
	ackWait           = 30 * time.Second
	handlerTimeout    = 25 * time.Second
	defaultMaxRetries = 5
)

// Consumer pull-subscribes to a JetStream subject and retries failed
// handler calls up to maxRetries before routing to the DLQ. A message
// that still fails on its maxRetries'th delivery is acked anyway and
// handed to producer.PublishToDLQ instead of redelivered forever.
type Consumer struct {
	js         nats.JetStreamContext
	logger     *zap.Logger
	producer   *Producer
	metrics    *observability.Metrics
	maxRetries int
}

// NewConsumer wraps an existing NATS connection's JetStream context,
// routing exhausted deliveries to producer's DLQ. metrics may be nil.
func NewConsumer(nc *nats.Conn, logger *zap.Logger, producer *Producer, metrics *observability.Metrics) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream context: %w", err)
	}

	return &Consumer{
		js:         js,
		logger:     logger,
		producer:   producer,
		metrics:    metrics,
		maxRetries: defaultMaxRetries,
	}, nil
}

// Subscribe binds a durable pull consumer to filterSubject on streamName,
// creating the consumer if it doesn't already exist, then runs handler
// against every message until ctx is cancelled.
func (c *Consumer) Subscribe(
	ctx context.Context,
	streamName string,
	consumerName string,
	filterSubject string,
	handler MessageHandler,
) error {
	c.logger.Info("binding durable consumer",
		zap.String("stream", streamName),
		zap.String("consumer", consumerName),
		zap.String("filter", filterSubject),
	)

	sub, err := c.js.PullSubscribe(filterSubject, consumerName, nats.Bind(streamName, consumerName))
	if err != nil {
		consumerConfig := &nats.ConsumerConfig{
			Durable:       consumerName,
			FilterSubject: filterSubject,
			AckPolicy:     nats.AckExplicitPolicy,
			AckWait:       ackWait,
			MaxDeliver:    c.maxRetries,
			DeliverPolicy: nats.DeliverAllPolicy,
		}
		if _, err = c.js.AddConsumer(streamName, consumerConfig); err != nil {
			return fmt.Errorf("create consumer %s: %w", consumerName, err)
		}

		sub, err = c.js.PullSubscribe(filterSubject, consumerName, nats.Bind(streamName, consumerName))
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", consumerName, err)
		}
	}

	c.logger.Info("consumer subscribed", zap.String("consumer", consumerName))
	go c.consumeLoop(ctx, sub, handler)
	return nil
}

// consumeLoop pulls fetchBatchSize messages at a time until ctx is done,
// draining the subscription on exit so in-flight fetches finish cleanly.
func (c *Consumer) consumeLoop(ctx context.Context, sub *nats.Subscription, handler MessageHandler) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer stopping")
			sub.Drain()
			return
		default:
			msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchWait))
			if err != nil {
				if err == nats.ErrTimeout {
					continue
				}
				c.logger.Error("fetch failed", zap.Error(err))
				time.Sleep(time.Second)
				continue
			}
			for _, natsMsg := range msgs {
				c.processMessage(ctx, natsMsg, handler)
			}
		}
	}
}

// decodeMessage rebuilds a Message from the headers Producer.publish
// attached and the raw NATS payload.
func decodeMessage(natsMsg *nats.Msg) *Message {
	msg := &Message{
		ID:             natsMsg.Header.Get("Nats-Msg-Id"),
		CorridorID:     natsMsg.Header.Get("Corridor-Id"),
		BankID:         natsMsg.Header.Get("Bank-Id"),
		IdempotencyKey: natsMsg.Header.Get("Nats-Msg-Id"),
		Payload:        natsMsg.Data,
		Headers:        make(map[string]string),
	}
	for key := range natsMsg.Header {
		msg.Headers[key] = natsMsg.Header.Get(key)
	}
	return msg
}

// processMessage runs handler against one delivery, routing to the DLQ
// once metadata.NumDelivered reaches maxRetries instead of nak'ing forever.
func (c *Consumer) processMessage(ctx context.Context, natsMsg *nats.Msg, handler MessageHandler) {
	metadata, err := natsMsg.Metadata()
	if err != nil {
		c.logger.Error("read message metadata failed", zap.Error(err))
		natsMsg.Nak()
		return
	}

	msg := decodeMessage(natsMsg)

	c.logger.Debug("processing message",
		zap.String("msg_id", msg.ID),
		zap.String("subject", natsMsg.Subject),
		zap.Uint64("sequence", metadata.Sequence.Stream),
		zap.Uint64("delivery_count", metadata.NumDelivered),
	)

	handlerCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if err := handler(handlerCtx, msg); err != nil {
		if c.metrics != nil {
			c.metrics.RecordNATSConsume(natsMsg.Subject, "error")
		}
		c.logger.Error("handler failed",
			zap.String("msg_id", msg.ID),
			zap.Error(err),
			zap.Uint64("delivery_count", metadata.NumDelivered),
		)

		if metadata.NumDelivered >= uint64(c.maxRetries) {
			c.logger.Warn("max retries exhausted, routing to dlq", zap.String("msg_id", msg.ID))
			if dlqErr := c.producer.PublishToDLQ(ctx, msg, err.Error(), int(metadata.NumDelivered)); dlqErr != nil {
				c.logger.Error("publish to dlq failed", zap.Error(dlqErr))
			}
			natsMsg.Ack()
		} else {
			natsMsg.Nak()
		}
		return
	}

	if c.metrics != nil {
		c.metrics.RecordNATSConsume(natsMsg.Subject, "ok")
	}
	if err := natsMsg.Ack(); err != nil {
		c.logger.Error("ack failed", zap.Error(err))
	}
	c.logger.Debug("message processed", zap.String("msg_id", msg.ID))
}

// Close is a no-op; consumeLoop's own goroutine exits when its Subscribe
// caller cancels the context it was given.
func (c *Consumer) Close() error {
	c.logger.Info("closing consumer")
	return nil
}
