package monitoring

import (
	"context"
	"fmt"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/smartcontractkit/chainlink-common/pkg/beholder"
	"github.com/smartcontractkit/chainlink-common/pkg/metrics"

	"github.com/tangle-network/layerzero-dvn-template/verifier"
)

var _ verifier.Monitoring = (*DVNBeholderMonitoring)(nil)

// DVNBeholderMonitoring provides beholder-based monitoring for the node.
type DVNBeholderMonitoring struct {
	metrics verifier.MetricLabeler
}

// InitMonitoring initializes the beholder client and registers the node's metrics.
func InitMonitoring(config beholder.Config) (verifier.Monitoring, error) {
	// Note: due to OTEL spec, all histogram buckets must be defined when the beholder client is created.
	config.MetricViews = MetricViews()

	client, err := beholder.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create beholder client: %w", err)
	}

	beholder.SetClient(client)
	beholder.SetGlobalOtelProviders()

	dvnMetrics, err := InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}

	return &DVNBeholderMonitoring{
		metrics: NewDVNMetricLabeler(metrics.NewLabeler(), dvnMetrics),
	}, nil
}

func (v *DVNBeholderMonitoring) Metrics() verifier.MetricLabeler {
	return v.metrics
}

// StartProfiling starts continuous profiling against a pyroscope server.
func StartProfiling(serverAddress string) (*pyroscope.Profiler, error) {
	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: "dvn-verifier",
		ServerAddress:   serverAddress,
		Logger:          pyroscope.StandardLogger,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pyroscope client: %w", err)
	}
	return profiler, nil
}

var _ verifier.Monitoring = (*NoopDVNMonitoring)(nil)

// NoopDVNMonitoring provides a no-op implementation of Monitoring.
type NoopDVNMonitoring struct {
	noop verifier.MetricLabeler
}

// NewNoopDVNMonitoring creates a new noop monitoring instance.
func NewNoopDVNMonitoring() verifier.Monitoring {
	return &NoopDVNMonitoring{
		noop: NewNoopDVNMetricLabeler(),
	}
}

func (n *NoopDVNMonitoring) Metrics() verifier.MetricLabeler {
	return n.noop
}

var _ verifier.MetricLabeler = (*NoopDVNMetricLabeler)(nil)

// NoopDVNMetricLabeler provides a no-op implementation of MetricLabeler.
type NoopDVNMetricLabeler struct{}

// NewNoopDVNMetricLabeler creates a new noop metric labeler.
func NewNoopDVNMetricLabeler() verifier.MetricLabeler {
	return &NoopDVNMetricLabeler{}
}

func (n *NoopDVNMetricLabeler) With(keyValues ...string) verifier.MetricLabeler {
	return n
}

func (n *NoopDVNMetricLabeler) RecordMessageE2ELatency(ctx context.Context, duration time.Duration) {}

func (n *NoopDVNMetricLabeler) IncrementMessagesCaptured(ctx context.Context) {}

func (n *NoopDVNMetricLabeler) IncrementMessagesProcessed(ctx context.Context) {}

func (n *NoopDVNMetricLabeler) IncrementMessagesRejected(ctx context.Context) {}

func (n *NoopDVNMetricLabeler) RecordConfirmationWaitDuration(ctx context.Context, duration time.Duration) {
}

func (n *NoopDVNMetricLabeler) RecordSecurityVerificationDuration(ctx context.Context, duration time.Duration) {
}

func (n *NoopDVNMetricLabeler) RecordSubmissionDuration(ctx context.Context, duration time.Duration) {}

func (n *NoopDVNMetricLabeler) RecordStorageQueryDuration(ctx context.Context, method string, duration time.Duration) {
}

func (n *NoopDVNMetricLabeler) IncrementStorageErrors(ctx context.Context) {}

func (n *NoopDVNMetricLabeler) RecordSourceChainLatestBlock(ctx context.Context, blockNum int64) {}

func (n *NoopDVNMetricLabeler) RecordRequeueSize(ctx context.Context, size int64) {}

func (n *NoopDVNMetricLabeler) RecordEvidenceRequestDuration(ctx context.Context, duration time.Duration, failed bool) {
}
