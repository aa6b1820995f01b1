package external

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"puppyday/internal/types"
)

// mockSNSAPI records Publish calls for verification.
type mockSNSAPI struct {
	calls  []*sns.PublishInput
	result *sns.PublishOutput
	err    error
}

func (m *mockSNSAPI) Publish(_ context.Context, params *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls = append(m.calls, params)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func TestSNSClient_Send(t *testing.T) {
	api := &mockSNSAPI{result: &sns.PublishOutput{MessageId: aws.String("sns-msg-1")}}
	client := NewSNSClientWithAPI(api, "PuppyDay", nil)

	msgID, err := client.Send(context.Background(), "+15551234567", "Buddy is due for a groom!")
	require.NoError(t, err)
	assert.Equal(t, "sns-msg-1", msgID)

	require.Len(t, api.calls, 1)
	input := api.calls[0]
	assert.Equal(t, "+15551234567", *input.PhoneNumber)
	assert.Equal(t, "Transactional", *input.MessageAttributes["AWS.SNS.SMS.SMSType"].StringValue)
	assert.Equal(t, "PuppyDay", *input.MessageAttributes["AWS.SNS.SMS.SenderID"].StringValue)
}

func TestSNSClient_Send_NoSenderID(t *testing.T) {
	api := &mockSNSAPI{result: &sns.PublishOutput{MessageId: aws.String("sns-msg-2")}}
	client := NewSNSClientWithAPI(api, "", nil)

	_, err := client.Send(context.Background(), "+15551234567", "hi")
	require.NoError(t, err)

	_, hasSender := api.calls[0].MessageAttributes["AWS.SNS.SMS.SenderID"]
	assert.False(t, hasSender)
}

func TestSNSClient_Send_Error(t *testing.T) {
	api := &mockSNSAPI{err: errors.New("throttled")}
	client := NewSNSClientWithAPI(api, "", nil)

	_, err := client.Send(context.Background(), "+15551234567", "hi")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeUpstreamSMS, appErr.Code)
}
