package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/metrics"
)

func TestDVNMetricLabeler_RecordsWithoutPanicking(t *testing.T) {
	dm, err := InitMetrics()
	require.NoError(t, err)

	labeler := NewDVNMetricLabeler(metrics.NewLabeler(), dm).With("dstEid", "2")
	ctx := context.Background()

	require.NotPanics(t, func() {
		labeler.RecordMessageE2ELatency(ctx, time.Second)
		labeler.IncrementMessagesCaptured(ctx)
		labeler.IncrementMessagesProcessed(ctx)
		labeler.IncrementMessagesRejected(ctx)
		labeler.RecordConfirmationWaitDuration(ctx, 3*time.Second)
		labeler.RecordSecurityVerificationDuration(ctx, time.Millisecond)
		labeler.RecordSubmissionDuration(ctx, time.Second)
		labeler.RecordStorageQueryDuration(ctx, "getPacket", time.Millisecond)
		labeler.IncrementStorageErrors(ctx)
		labeler.RecordSourceChainLatestBlock(ctx, 100)
		labeler.RecordRequeueSize(ctx, 2)
		labeler.RecordEvidenceRequestDuration(ctx, time.Millisecond, true)
	})
}

func TestMetricViews_CoverHistograms(t *testing.T) {
	require.Len(t, MetricViews(), 6)
}

func TestFakeMetricLabeler_Counts(t *testing.T) {
	fake := NewFakeDVNMonitoring()
	m := fake.Metrics().With("k", "v")
	ctx := context.Background()

	m.IncrementMessagesCaptured(ctx)
	m.IncrementMessagesCaptured(ctx)
	m.RecordStorageQueryDuration(ctx, "putPacket", time.Millisecond)

	require.Equal(t, 2, fake.Fake.Count("captured"))
	require.Equal(t, 1, fake.Fake.Count("storage_query:putPacket"))
	require.Equal(t, 0, fake.Fake.Count("rejected"))
}

func TestNoopMonitoring(t *testing.T) {
	m := NewNoopDVNMonitoring().Metrics()
	require.Same(t, m, m.With("a", "b"))
}
