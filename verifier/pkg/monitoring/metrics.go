package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/smartcontractkit/chainlink-common/pkg/beholder"
	"github.com/smartcontractkit/chainlink-common/pkg/metrics"

	"github.com/tangle-network/layerzero-dvn-template/verifier"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// DVNMetrics provides all metrics for the verification node.
type DVNMetrics struct {
	// E2E Latency
	messageE2ELatencySeconds metric.Float64Histogram

	// Message Counters
	messagesCapturedCounter  metric.Int64Counter
	messagesProcessedCounter metric.Int64Counter
	messagesRejectedCounter  metric.Int64Counter

	// Pipeline Stages
	confirmationWaitDurationSeconds     metric.Float64Histogram
	securityVerificationDurationSeconds metric.Float64Histogram
	submissionDurationSeconds           metric.Float64Histogram

	// Storage
	storageQueryDurationSeconds metric.Float64Histogram
	storageErrorsCounter        metric.Int64Counter

	// Listener
	sourceChainLatestBlockGauge metric.Int64Gauge
	requeueSizeGauge            metric.Int64Gauge

	// Evidence
	evidenceRequestDurationSeconds metric.Float64Histogram
}

// InitMetrics registers all instruments on the beholder meter.
func InitMetrics() (*DVNMetrics, error) {
	dm := &DVNMetrics{}
	meter := beholder.GetMeter()
	var err error

	dm.messageE2ELatencySeconds, err = meter.Float64Histogram(
		"dvn_message_e2e_latency_seconds",
		metric.WithDescription("Time from packet capture to a verification verdict"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register message e2e latency histogram: %w", err)
	}

	dm.messagesCapturedCounter, err = meter.Int64Counter(
		"dvn_messages_captured_total",
		metric.WithDescription("Total number of captured packets"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register messages captured counter: %w", err)
	}

	dm.messagesProcessedCounter, err = meter.Int64Counter(
		"dvn_messages_processed_total",
		metric.WithDescription("Total number of assignments that ended in a verdict"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register messages processed counter: %w", err)
	}

	dm.messagesRejectedCounter, err = meter.Int64Counter(
		"dvn_messages_rejected_total",
		metric.WithDescription("Total number of assignments that ended in an error"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register messages rejected counter: %w", err)
	}

	dm.confirmationWaitDurationSeconds, err = meter.Float64Histogram(
		"dvn_confirmation_wait_duration_seconds",
		metric.WithDescription("Time spent waiting for the required confirmation depth"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register confirmation wait histogram: %w", err)
	}

	dm.securityVerificationDurationSeconds, err = meter.Float64Histogram(
		"dvn_security_verification_duration_seconds",
		metric.WithDescription("Duration of the security strategy check"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register security verification histogram: %w", err)
	}

	dm.submissionDurationSeconds, err = meter.Float64Histogram(
		"dvn_submission_duration_seconds",
		metric.WithDescription("Duration of the destination verify submission"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register submission histogram: %w", err)
	}

	dm.storageQueryDurationSeconds, err = meter.Float64Histogram(
		"dvn_storage_query_duration_seconds",
		metric.WithDescription("Duration of packet store queries"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register storage query histogram: %w", err)
	}

	dm.storageErrorsCounter, err = meter.Int64Counter(
		"dvn_storage_errors_total",
		metric.WithDescription("Total number of failed packet store operations"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register storage errors counter: %w", err)
	}

	dm.sourceChainLatestBlockGauge, err = meter.Int64Gauge(
		"dvn_source_chain_latest_block",
		metric.WithDescription("Latest block number scanned by the listener"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register source chain latest block gauge: %w", err)
	}

	dm.requeueSizeGauge, err = meter.Int64Gauge(
		"dvn_requeue_size",
		metric.WithDescription("Assignments waiting for another processing attempt"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register requeue size gauge: %w", err)
	}

	dm.evidenceRequestDurationSeconds, err = meter.Float64Histogram(
		"dvn_evidence_request_duration_seconds",
		metric.WithDescription("Duration of evidence provider requests"),
		metric.WithUnit("seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register evidence request histogram: %w", err)
	}

	return dm, nil
}

// MetricViews defines histogram bucket boundaries for the node's metrics.
func MetricViews() []sdkmetric.View {
	return []sdkmetric.View{
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "dvn_message_e2e_latency_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120, 300, 600, 900, 1800, 3600},
			}},
		),
		// Confirmation waits follow the 2^k backoff schedule
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "dvn_confirmation_wait_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0, 1, 3, 7, 15, 31, 63, 127, 255, 511, 1023},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "dvn_security_verification_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "dvn_submission_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.1, 0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "dvn_storage_query_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			}},
		),
		sdkmetric.NewView(
			sdkmetric.Instrument{Name: "dvn_evidence_request_duration_seconds"},
			sdkmetric.Stream{Aggregation: sdkmetric.AggregationExplicitBucketHistogram{
				Boundaries: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			}},
		),
	}
}

var _ verifier.MetricLabeler = (*DVNMetricLabeler)(nil)

// DVNMetricLabeler wraps DVNMetrics with label support.
type DVNMetricLabeler struct {
	metrics.Labeler
	dm *DVNMetrics
}

// NewDVNMetricLabeler creates a new metric labeler.
func NewDVNMetricLabeler(labeler metrics.Labeler, dm *DVNMetrics) verifier.MetricLabeler {
	return &DVNMetricLabeler{
		Labeler: labeler,
		dm:      dm,
	}
}

func (v *DVNMetricLabeler) With(keyValues ...string) verifier.MetricLabeler {
	return &DVNMetricLabeler{v.Labeler.With(keyValues...), v.dm}
}

func (v *DVNMetricLabeler) attrs(extra ...string) metric.MeasurementOption {
	labels := v.Labeler
	if len(extra) > 0 {
		labels = labels.With(extra...)
	}
	return metric.WithAttributes(beholder.OtelAttributes(labels.Labels).AsStringAttributes()...)
}

func (v *DVNMetricLabeler) RecordMessageE2ELatency(ctx context.Context, duration time.Duration) {
	v.dm.messageE2ELatencySeconds.Record(ctx, duration.Seconds(), v.attrs())
}

func (v *DVNMetricLabeler) IncrementMessagesCaptured(ctx context.Context) {
	v.dm.messagesCapturedCounter.Add(ctx, 1, v.attrs())
}

func (v *DVNMetricLabeler) IncrementMessagesProcessed(ctx context.Context) {
	v.dm.messagesProcessedCounter.Add(ctx, 1, v.attrs())
}

func (v *DVNMetricLabeler) IncrementMessagesRejected(ctx context.Context) {
	v.dm.messagesRejectedCounter.Add(ctx, 1, v.attrs())
}

func (v *DVNMetricLabeler) RecordConfirmationWaitDuration(ctx context.Context, duration time.Duration) {
	v.dm.confirmationWaitDurationSeconds.Record(ctx, duration.Seconds(), v.attrs())
}

func (v *DVNMetricLabeler) RecordSecurityVerificationDuration(ctx context.Context, duration time.Duration) {
	v.dm.securityVerificationDurationSeconds.Record(ctx, duration.Seconds(), v.attrs())
}

func (v *DVNMetricLabeler) RecordSubmissionDuration(ctx context.Context, duration time.Duration) {
	v.dm.submissionDurationSeconds.Record(ctx, duration.Seconds(), v.attrs())
}

func (v *DVNMetricLabeler) RecordStorageQueryDuration(ctx context.Context, method string, duration time.Duration) {
	v.dm.storageQueryDurationSeconds.Record(ctx, duration.Seconds(), v.attrs("method", method))
}

func (v *DVNMetricLabeler) IncrementStorageErrors(ctx context.Context) {
	v.dm.storageErrorsCounter.Add(ctx, 1, v.attrs())
}

func (v *DVNMetricLabeler) RecordSourceChainLatestBlock(ctx context.Context, blockNum int64) {
	v.dm.sourceChainLatestBlockGauge.Record(ctx, blockNum, v.attrs())
}

func (v *DVNMetricLabeler) RecordRequeueSize(ctx context.Context, size int64) {
	v.dm.requeueSizeGauge.Record(ctx, size, v.attrs())
}

func (v *DVNMetricLabeler) RecordEvidenceRequestDuration(ctx context.Context, duration time.Duration, failed bool) {
	v.dm.evidenceRequestDurationSeconds.Record(ctx, duration.Seconds(), v.attrs("failed", strconv.FormatBool(failed)))
}
