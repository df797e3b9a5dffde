package app

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/ignite/engagement-tracker/internal/config"
	"github.com/ignite/engagement-tracker/internal/tracking"
)

// Consumer drains deferred hits until stopped.
type Consumer interface {
	Start(ctx context.Context)
	Stop()
}

func newSQSClient(ctx context.Context) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg), nil
}

// NewPublisher builds the queue publisher selected by cfg.Driver.
func NewPublisher(ctx context.Context, cfg config.QueueConfig) (tracking.Publisher, error) {
	switch cfg.Driver {
	case "kafka":
		pub, err := tracking.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return nil, err
		}
		return pub, nil
	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, fmt.Errorf("SQS_TRACKING_QUEUE_URL is required")
		}
		client, err := newSQSClient(ctx)
		if err != nil {
			return nil, err
		}
		return tracking.NewSQSPublisher(client, cfg.SQSQueueURL), nil
	}
	return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
}

// NewConsumer builds the queue consumer selected by cfg.Driver.
func NewConsumer(ctx context.Context, cfg config.QueueConfig, processor tracking.Processor) (Consumer, error) {
	switch cfg.Driver {
	case "kafka":
		consumer, err := tracking.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaGroup, cfg.KafkaTopic, processor)
		if err != nil {
			return nil, err
		}
		return consumer, nil
	case "sqs":
		if cfg.SQSQueueURL == "" {
			return nil, fmt.Errorf("SQS_TRACKING_QUEUE_URL is required")
		}
		client, err := newSQSClient(ctx)
		if err != nil {
			return nil, err
		}
		return tracking.NewSQSConsumer(client, cfg.SQSQueueURL, processor), nil
	}
	return nil, fmt.Errorf("unsupported queue driver %q", cfg.Driver)
}
