package types

// Telemetry metric names for CloudWatch.
// All components MUST use these constants.
const (
	// Metric Names
	MetricDeliveryAttempt = "DeliveryAttempt"
	MetricDeliverySuccess = "DeliverySuccess"
	MetricDeliveryFailed  = "DeliveryFailed"
	MetricDeliveryLatency = "DeliveryLatency"
	MetricRetryExhausted  = "RetryExhausted"
	MetricJobDuration     = "JobDuration"
	MetricAPILatency      = "APILatency"
	MetricExternalFailure = "ExternalAPIFailure"
	MetricWaitlistOffer   = "WaitlistOffer"

	// Dimension Keys
	DimChannel  = "Channel"
	DimType     = "NotificationType"
	DimJob      = "Job"
	DimProvider = "Provider"
	DimEndpoint = "Endpoint"
	DimResult   = "Result"

	// Metric Namespace
	MetricNamespace = "PuppyDay"
)
