package external

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"

	"puppyday/internal/types"
)

// SESAPI defines the subset of the SES client used by SESClient.
// Extracted for testability; tests provide a mock implementation.
type SESAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESClient implements EmailProvider using AWS SES.
// Authentication is handled via IAM roles (no API key required).
type SESClient struct {
	api    SESAPI
	logger *slog.Logger
}

// NewSESClient creates a new SESClient from an AWS config.
func NewSESClient(awsCfg aws.Config, logger *slog.Logger) *SESClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{
		api:    ses.NewFromConfig(awsCfg),
		logger: logger,
	}
}

// NewSESClientWithAPI creates an SESClient with a pre-configured SESAPI.
// Useful for testing with a mock SES interface.
func NewSESClientWithAPI(api SESAPI, logger *slog.Logger) *SESClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SESClient{api: api, logger: logger}
}

// Send transmits an email using SES SendEmail with a plaintext body.
//
// Error mapping:
//   - MessageRejected → ErrCodeUpstreamEmail (address-level rejection)
//   - AccountSendingPausedException → ErrCodeUpstreamUnavailable
//   - Other → ErrCodeUpstreamEmail
func (s *SESClient) Send(ctx context.Context, input EmailInput) (string, error) {
	fromAddr := input.FromAddress
	if input.FromName != "" {
		fromAddr = fmt.Sprintf("%s <%s>", input.FromName, input.FromAddress)
	}

	emailInput := &ses.SendEmailInput{
		Source: aws.String(fromAddr),
		Destination: &sestypes.Destination{
			ToAddresses: []string{input.To},
		},
		Message: &sestypes.Message{
			Subject: &sestypes.Content{
				Data:    aws.String(input.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &sestypes.Body{
				Text: &sestypes.Content{
					Data:    aws.String(input.BodyText),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if input.ReferenceID != "" {
		emailInput.Tags = []sestypes.MessageTag{
			{
				Name:  aws.String("ReferenceID"),
				Value: aws.String(input.ReferenceID),
			},
		}
	}

	result, err := s.api.SendEmail(ctx, emailInput)
	if err != nil {
		return "", mapSESError(err)
	}

	msgID := ""
	if result.MessageId != nil {
		msgID = *result.MessageId
	}

	return msgID, nil
}

// mapSESError translates AWS SES errors into domain AppErrors.
func mapSESError(err error) error {
	var sendingPaused *sestypes.AccountSendingPausedException
	if errors.As(err, &sendingPaused) {
		return types.NewAppError(
			types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("SES account sending paused: %v", err),
			err,
		)
	}

	return types.NewAppError(
		types.ErrCodeUpstreamEmail,
		fmt.Sprintf("SES error: %v", err),
		err,
	)
}

// Compile-time assertion that SESClient satisfies EmailProvider.
var _ EmailProvider = (*SESClient)(nil)
