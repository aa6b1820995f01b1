package external

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"

	"puppyday/internal/types"
)

// SNSAPI defines the subset of the SNS client used by SNSClient.
type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSClient implements SMSProvider using AWS SNS direct-to-phone publishing.
type SNSClient struct {
	api      SNSAPI
	senderID string
	logger   *slog.Logger
}

// NewSNSClient creates a new SNSClient from an AWS config. senderID is the
// alphanumeric originator shown on the recipient's phone where carriers
// support it; empty means the AWS default.
func NewSNSClient(awsCfg aws.Config, senderID string, logger *slog.Logger) *SNSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSClient{
		api:      sns.NewFromConfig(awsCfg),
		senderID: senderID,
		logger:   logger,
	}
}

// NewSNSClientWithAPI creates an SNSClient with a pre-configured SNSAPI.
// Useful for testing with a mock SNS interface.
func NewSNSClientWithAPI(api SNSAPI, senderID string, logger *slog.Logger) *SNSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SNSClient{api: api, senderID: senderID, logger: logger}
}

// Send publishes an SMS directly to a phone number. Messages are sent as
// Transactional so carriers prioritize them over promotional traffic.
func (s *SNSClient) Send(ctx context.Context, to string, body string) (string, error) {
	attrs := map[string]snstypes.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = snstypes.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	result, err := s.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", types.NewAppError(
			types.ErrCodeUpstreamSMS,
			fmt.Sprintf("SNS publish failed: %v", err),
			err,
		)
	}

	msgID := ""
	if result.MessageId != nil {
		msgID = *result.MessageId
	}

	return msgID, nil
}

// Compile-time assertion that SNSClient satisfies SMSProvider.
var _ SMSProvider = (*SNSClient)(nil)
