package core

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"puppyday/internal/types"
)

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics implements Metrics by emitting to AWS CloudWatch.
//
// Metrics emitted:
//   - DeliveryAttempt: Dims {Channel, Result} -- on every delivery outcome
//   - DeliveryLatency: Dims {Channel} -- transport call duration
//   - RetryExhausted: Dims {NotificationType} -- on terminal failure
//
// Publish errors are logged and swallowed; telemetry never fails a dispatch.
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    types.Logger
}

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the service
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, logger types.Logger) *CloudWatchMetrics {
	return &CloudWatchMetrics{
		client:    client,
		namespace: types.MetricNamespace,
		logger:    logger,
	}
}

// RecordDelivery emits a DeliveryAttempt metric with Channel and Result
// dimensions.
func (m *CloudWatchMetrics) RecordDelivery(ctx context.Context, channel types.Channel, result MetricResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDeliveryAttempt),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimChannel),
						Value: aws.String(string(channel)),
					},
					{
						Name:  aws.String(types.DimResult),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record delivery metric",
			"error", err.Error(),
			"channel", string(channel),
			"result", string(result),
		)
	}
}

// RecordLatency emits a DeliveryLatency metric with the Channel dimension.
// Duration is recorded in milliseconds for CloudWatch precision.
func (m *CloudWatchMetrics) RecordLatency(ctx context.Context, channel types.Channel, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricDeliveryLatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimChannel),
						Value: aws.String(string(channel)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record latency metric",
			"error", err.Error(),
			"channel", string(channel),
			"duration_ms", duration.Milliseconds(),
		)
	}
}

// RecordExhausted emits a RetryExhausted metric when a row runs out of
// retries. This is the alerting signal for persistent provider trouble.
func (m *CloudWatchMetrics) RecordExhausted(ctx context.Context, notifType types.NotificationType) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricRetryExhausted),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimType),
						Value: aws.String(string(notifType)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record exhausted metric",
			"error", err.Error(),
			"type", string(notifType),
		)
	}
}

// RecordRequest emits an APILatency metric with Endpoint and Result
// dimensions. Implements the HTTP chassis MetricsCollector so API telemetry
// shares one publisher with delivery telemetry.
func (m *CloudWatchMetrics) RecordRequest(method, endpoint, status string, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String(types.MetricAPILatency),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String(types.DimEndpoint),
						Value: aws.String(method + " " + endpoint),
					},
					{
						Name:  aws.String(types.DimResult),
						Value: aws.String(status),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(context.Background(), input); err != nil {
		m.logger.Error("failed to record api latency metric",
			"error", err.Error(),
			"endpoint", endpoint,
			"status", status,
		)
	}
}

// Compile-time assertion that CloudWatchMetrics implements Metrics.
var _ Metrics = (*CloudWatchMetrics)(nil)
