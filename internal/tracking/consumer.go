package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/segmentio/kafka-go"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
)

// Processor runs one hit through the tracking pipeline.
type Processor interface {
	Process(ctx context.Context, hit domain.Hit) Outcome
}

// SQSConsumer drains deferred hits from SQS. A hit whose outcome is
// retryable is left on the queue for redelivery; gating makes the replay
// harmless.
type SQSConsumer struct {
	client    SQSAPI
	queueURL  string
	processor Processor
	backoff   time.Duration
	done      chan struct{}
	stopped   chan struct{}
}

func NewSQSConsumer(client SQSAPI, queueURL string, processor Processor) *SQSConsumer {
	return &SQSConsumer{
		client:    client,
		queueURL:  queueURL,
		processor: processor,
		backoff:   5 * time.Second,
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

func (c *SQSConsumer) Start(ctx context.Context) {
	logger.Info("SQS tracking consumer started", "queue", c.queueURL)
	go c.poll(ctx)
}

// Stop ends polling and waits for the in-flight batch.
func (c *SQSConsumer) Stop() {
	close(c.done)
	<-c.stopped
}

func (c *SQSConsumer) poll(ctx context.Context) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:            aws.String(c.queueURL),
			MaxNumberOfMessages: 10,
			WaitTimeSeconds:     20,
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("SQS receive failed", "error", err)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			case <-c.done:
				return
			}
			continue
		}

		for _, msg := range out.Messages {
			if c.handle(ctx, aws.ToString(msg.Body)) {
				c.deleteMessage(ctx, msg.ReceiptHandle)
			}
		}
	}
}

// handle reports whether the message is finished with.
func (c *SQSConsumer) handle(ctx context.Context, body string) bool {
	hit, err := decodeHit([]byte(body))
	if err != nil {
		logger.Warn("dropping malformed SQS message", "error", err)
		return true
	}
	out := c.processor.Process(ctx, hit)
	if out.Retryable {
		logger.Warn("hit left for redelivery", "event_type", hit.EventType, "reason", out.Reason, "error", out.Err)
		return false
	}
	return true
}

func (c *SQSConsumer) deleteMessage(ctx context.Context, handle *string) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: handle,
	})
	if err != nil {
		logger.Warn("SQS delete failed", "error", err)
	}
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer drains deferred hits from a Kafka topic using a consumer
// group. Retryable outcomes are retried in place a bounded number of times
// before the offset is committed.
type KafkaConsumer struct {
	reader     messageReader
	processor  Processor
	maxRetries int
	backoff    time.Duration
	stopped    chan struct{}
	cancel     context.CancelFunc
}

func NewKafkaConsumer(brokers []string, groupID, topic string, processor Processor) (*KafkaConsumer, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka consumer requires at least one broker")
	}
	if groupID == "" {
		return nil, fmt.Errorf("kafka consumer requires group id")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka consumer requires a topic")
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return newKafkaConsumer(reader, processor), nil
}

func newKafkaConsumer(reader messageReader, processor Processor) *KafkaConsumer {
	return &KafkaConsumer{
		reader:     reader,
		processor:  processor,
		maxRetries: 3,
		backoff:    time.Second,
		stopped:    make(chan struct{}),
	}
}

func (c *KafkaConsumer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	logger.Info("Kafka tracking consumer started")
	go c.poll(ctx)
}

// Stop ends consumption, waits for the in-flight message and closes the reader.
func (c *KafkaConsumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	<-c.stopped
	if err := c.reader.Close(); err != nil {
		logger.Warn("kafka reader close failed", "error", err)
	}
}

func (c *KafkaConsumer) poll(ctx context.Context) {
	defer close(c.stopped)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("kafka fetch failed", "error", err)
			select {
			case <-time.After(c.backoff):
				continue
			case <-ctx.Done():
				return
			}
		}

		c.handle(ctx, msg)
		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Warn("kafka commit failed", "offset", msg.Offset, "error", err)
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) {
	hit, err := decodeHit(msg.Value)
	if err != nil {
		logger.Warn("dropping malformed Kafka message", "offset", msg.Offset, "error", err)
		return
	}
	for attempt := 0; ; attempt++ {
		out := c.processor.Process(ctx, hit)
		if !out.Retryable {
			return
		}
		if attempt >= c.maxRetries {
			logger.Error("giving up on hit", "event_type", hit.EventType, "reason", out.Reason, "error", out.Err)
			return
		}
		select {
		case <-time.After(c.backoff * time.Duration(attempt+1)):
		case <-ctx.Done():
			return
		}
	}
}

func decodeHit(body []byte) (domain.Hit, error) {
	var hit domain.Hit
	if err := json.Unmarshal(body, &hit); err != nil {
		return hit, err
	}
	if !hit.EventType.Valid() || hit.TrackingID == "" {
		return hit, fmt.Errorf("invalid hit: type=%q", hit.EventType)
	}
	return hit, nil
}
