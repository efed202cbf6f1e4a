package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"

	"duepoint/internal/types"
)

// SendResult labels the outcome of one reminder send attempt.
type SendResult string

const (
	SendSuccess SendResult = "success"
	SendFailure SendResult = "failure"
)

// Metrics receives scheduler delivery observations. Emission failures are
// logged and swallowed; metrics never affect delivery outcomes.
type Metrics interface {
	RecordSend(ctx context.Context, kind types.ReminderKind, result SendResult)
	RecordProcess(ctx context.Context, processed, sent int, duration time.Duration)
}

// NoopMetrics discards all observations. Wired when metrics are disabled.
type NoopMetrics struct{}

func (NoopMetrics) RecordSend(context.Context, types.ReminderKind, SendResult) {}
func (NoopMetrics) RecordProcess(context.Context, int, int, time.Duration)     {}

// CloudWatchClient abstracts the CloudWatch PutMetricData operation for
// testability.
type CloudWatchClient interface {
	PutMetricData(ctx context.Context, params *cloudwatch.PutMetricDataInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.PutMetricDataOutput, error)
}

// CloudWatchMetrics emits scheduler metrics to AWS CloudWatch.
//
// Metrics emitted:
//   - ReminderSend: Dims {ReminderType, Result} -- on every send attempt
//   - ProcessExamined / ProcessSent: per Process invocation
//   - ProcessDuration: wall time of one Process invocation in milliseconds
type CloudWatchMetrics struct {
	client    CloudWatchClient
	namespace string
	logger    *slog.Logger
}

var _ Metrics = (*CloudWatchMetrics)(nil)

// NewCloudWatchMetrics creates a CloudWatchMetrics publishing to the given
// namespace.
func NewCloudWatchMetrics(client CloudWatchClient, namespace string, logger *slog.Logger) *CloudWatchMetrics {
	if logger == nil {
		logger = slog.Default()
	}
	return &CloudWatchMetrics{
		client:    client,
		namespace: namespace,
		logger:    logger,
	}
}

// RecordSend emits a ReminderSend metric with ReminderType and Result
// dimensions.
func (m *CloudWatchMetrics) RecordSend(ctx context.Context, kind types.ReminderKind, result SendResult) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("ReminderSend"),
				Value:      aws.Float64(1),
				Unit:       cwtypes.StandardUnitCount,
				Dimensions: []cwtypes.Dimension{
					{
						Name:  aws.String("ReminderType"),
						Value: aws.String(string(kind)),
					},
					{
						Name:  aws.String("Result"),
						Value: aws.String(string(result)),
					},
				},
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record send metric",
			"error", err,
			"reminder_type", string(kind),
			"result", string(result),
		)
	}
}

// RecordProcess emits the examined and sent counts plus the wall time of one
// Process invocation.
func (m *CloudWatchMetrics) RecordProcess(ctx context.Context, processed, sent int, duration time.Duration) {
	input := &cloudwatch.PutMetricDataInput{
		Namespace: aws.String(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: aws.String("ProcessExamined"),
				Value:      aws.Float64(float64(processed)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("ProcessSent"),
				Value:      aws.Float64(float64(sent)),
				Unit:       cwtypes.StandardUnitCount,
			},
			{
				MetricName: aws.String("ProcessDuration"),
				Value:      aws.Float64(float64(duration.Milliseconds())),
				Unit:       cwtypes.StandardUnitMilliseconds,
			},
		},
	}

	if _, err := m.client.PutMetricData(ctx, input); err != nil {
		m.logger.Error("failed to record process metrics",
			"error", err,
			"processed", processed,
			"sent", sent,
		)
	}
}
