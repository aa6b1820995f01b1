package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	sestypes "github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puppyday/internal/types"
)

// mockSESAPI records SendEmail calls for verification.
type mockSESAPI struct {
	calls  []*ses.SendEmailInput
	result *ses.SendEmailOutput
	err    error
}

func (m *mockSESAPI) SendEmail(_ context.Context, params *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestSESClient_Send(t *testing.T) {
	api := &mockSESAPI{
		result: &ses.SendEmailOutput{MessageId: aws.String("ses-msg-1")},
	}
	client := NewSESClientWithAPI(api, nil)

	msgID, err := client.Send(context.Background(), EmailInput{
		To:          "maria@example.com",
		Subject:     "Reminder: Buddy's grooming appointment",
		BodyText:    "Hi Maria, Buddy is booked for tomorrow.",
		FromAddress: "hello@thepuppyday.com",
		FromName:    "The Puppy Day",
		ReferenceID: "trk_abc",
	})
	require.NoError(t, err)
	assert.Equal(t, "ses-msg-1", msgID)

	require.Len(t, api.calls, 1)
	input := api.calls[0]
	assert.Equal(t, "The Puppy Day <hello@thepuppyday.com>", *input.Source)
	assert.Equal(t, []string{"maria@example.com"}, input.Destination.ToAddresses)
	require.Len(t, input.Tags, 1)
	assert.Equal(t, "trk_abc", *input.Tags[0].Value)
}

func TestSESClient_Send_NoFromName(t *testing.T) {
	api := &mockSESAPI{result: &ses.SendEmailOutput{MessageId: aws.String("ses-msg-2")}}
	client := NewSESClientWithAPI(api, nil)

	_, err := client.Send(context.Background(), EmailInput{
		To:          "maria@example.com",
		Subject:     "s",
		BodyText:    "b",
		FromAddress: "hello@thepuppyday.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "hello@thepuppyday.com", *api.calls[0].Source)
}

func TestSESClient_Send_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		sdkErr   error
		wantCode types.ErrorCode
	}{
		{"sending paused", &sestypes.AccountSendingPausedException{}, types.ErrCodeUpstreamUnavailable},
		{"generic failure", errors.New("network unreachable"), types.ErrCodeUpstreamEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &mockSESAPI{err: tt.sdkErr}
			client := NewSESClientWithAPI(api, nil)

			_, err := client.Send(context.Background(), EmailInput{To: "x@example.com"})
			require.Error(t, err)

			var appErr *types.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.wantCode, appErr.Code)
		})
	}
}
