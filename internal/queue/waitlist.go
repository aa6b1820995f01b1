// Package queue provides the SQS plumbing for the slot-freed waitlist queue:
// the publisher the booking flow uses when an appointment slot opens up, and
// the consumer the waitlist worker long-polls.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"puppyday/internal/config"
	"puppyday/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSReceiver abstracts the SQS operations the consumer loop uses.
type SQSReceiver interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

const (
	// receiveWaitSeconds is the SQS long-poll duration per receive call.
	receiveWaitSeconds = 20
	receiveBatchSize   = 10
)

// WaitlistPublisher serializes SlotFreedMessages onto the waitlist queue.
type WaitlistPublisher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewWaitlistPublisher creates a WaitlistPublisher. The queue URL comes from
// the AWSConfig.
func NewWaitlistPublisher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *WaitlistPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitlistPublisher{
		client:   client,
		queueURL: awsCfg.WaitlistQueueURL,
		logger:   logger,
	}
}

// PublishSlotFreed enqueues a slot-freed event. A missing TraceID is filled
// in so the worker can always correlate its log lines with the publish.
func (p *WaitlistPublisher) PublishSlotFreed(ctx context.Context, msg types.SlotFreedMessage) error {
	if msg.TraceID == "" {
		msg.TraceID = uuid.New().String()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal SlotFreedMessage: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"event": {
				DataType:    aws.String("String"),
				StringValue: aws.String("slot_freed"),
			},
		},
	}

	if _, err := p.client.SendMessage(ctx, input); err != nil {
		return fmt.Errorf("queue: failed to send SlotFreedMessage to %s: %w", p.queueURL, err)
	}

	p.logger.InfoContext(ctx, "slot freed message sent",
		"queue_url", p.queueURL,
		"trace_id", msg.TraceID,
		"service_name", msg.ServiceName,
		"slot_at", msg.SlotAt,
	)

	return nil
}

// SlotFreedHandler processes one decoded slot-freed event. Returning an
// error leaves the message on the queue for redelivery.
type SlotFreedHandler func(ctx context.Context, msg types.SlotFreedMessage) error

// WaitlistConsumer long-polls the waitlist queue and hands decoded messages
// to a handler.
type WaitlistConsumer struct {
	client   SQSReceiver
	queueURL string
	logger   *slog.Logger
}

// NewWaitlistConsumer creates a WaitlistConsumer.
func NewWaitlistConsumer(client SQSReceiver, awsCfg config.AWSConfig, logger *slog.Logger) *WaitlistConsumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &WaitlistConsumer{
		client:   client,
		queueURL: awsCfg.WaitlistQueueURL,
		logger:   logger,
	}
}

// Poll performs one long-poll receive and processes the batch. Messages that
// fail to decode are deleted immediately: redelivery cannot fix a malformed
// body. Messages whose handler fails are left on the queue so SQS redelivers
// them after the visibility timeout.
//
// Poll returns the number of messages processed successfully. A receive
// error is returned as-is so the caller's loop can decide whether to back
// off.
func (c *WaitlistConsumer) Poll(ctx context.Context, handle SlotFreedHandler) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: receiveBatchSize,
		WaitTimeSeconds:     receiveWaitSeconds,
	})
	if err != nil {
		return 0, fmt.Errorf("queue: failed to receive from %s: %w", c.queueURL, err)
	}

	processed := 0
	for _, raw := range out.Messages {
		var msg types.SlotFreedMessage
		if err := json.Unmarshal([]byte(aws.ToString(raw.Body)), &msg); err != nil {
			c.logger.ErrorContext(ctx, "discarding malformed slot freed message",
				"message_id", aws.ToString(raw.MessageId),
				"error", err,
			)
			c.delete(ctx, raw)
			continue
		}

		if err := handle(ctx, msg); err != nil {
			c.logger.ErrorContext(ctx, "slot freed handler failed, message will be redelivered",
				"message_id", aws.ToString(raw.MessageId),
				"trace_id", msg.TraceID,
				"error", err,
			)
			continue
		}

		c.delete(ctx, raw)
		processed++
	}

	return processed, nil
}

func (c *WaitlistConsumer) delete(ctx context.Context, raw sqsTypes.Message) {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: raw.ReceiptHandle,
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to delete processed message",
			"message_id", aws.ToString(raw.MessageId),
			"error", err,
		)
	}
}
