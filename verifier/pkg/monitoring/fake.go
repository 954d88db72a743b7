package monitoring

import (
	"context"
	"sync"
	"time"

	"github.com/tangle-network/layerzero-dvn-template/verifier"
)

var _ verifier.Monitoring = (*FakeDVNMonitoring)(nil)

// FakeDVNMonitoring records metric calls in memory so tests can assert on them.
type FakeDVNMonitoring struct {
	Fake *FakeMetricLabeler
}

func NewFakeDVNMonitoring() *FakeDVNMonitoring {
	return &FakeDVNMonitoring{Fake: &FakeMetricLabeler{counts: make(map[string]int)}}
}

func (f *FakeDVNMonitoring) Metrics() verifier.MetricLabeler {
	return f.Fake
}

var _ verifier.MetricLabeler = (*FakeMetricLabeler)(nil)

// FakeMetricLabeler counts calls by metric name. Labels are ignored.
type FakeMetricLabeler struct {
	mu     sync.Mutex
	counts map[string]int
}

// Count returns how many times the named metric was recorded.
func (f *FakeMetricLabeler) Count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

func (f *FakeMetricLabeler) inc(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name]++
}

func (f *FakeMetricLabeler) With(keyValues ...string) verifier.MetricLabeler {
	return f
}

func (f *FakeMetricLabeler) RecordMessageE2ELatency(context.Context, time.Duration) {
	f.inc("e2e_latency")
}

func (f *FakeMetricLabeler) IncrementMessagesCaptured(context.Context) { f.inc("captured") }

func (f *FakeMetricLabeler) IncrementMessagesProcessed(context.Context) { f.inc("processed") }

func (f *FakeMetricLabeler) IncrementMessagesRejected(context.Context) { f.inc("rejected") }

func (f *FakeMetricLabeler) RecordConfirmationWaitDuration(context.Context, time.Duration) {
	f.inc("confirmation_wait")
}

func (f *FakeMetricLabeler) RecordSecurityVerificationDuration(context.Context, time.Duration) {
	f.inc("security_verification")
}

func (f *FakeMetricLabeler) RecordSubmissionDuration(context.Context, time.Duration) {
	f.inc("submission")
}

func (f *FakeMetricLabeler) RecordStorageQueryDuration(_ context.Context, method string, _ time.Duration) {
	f.inc("storage_query:" + method)
}

func (f *FakeMetricLabeler) IncrementStorageErrors(context.Context) { f.inc("storage_errors") }

func (f *FakeMetricLabeler) RecordSourceChainLatestBlock(context.Context, int64) {
	f.inc("source_latest_block")
}

func (f *FakeMetricLabeler) RecordRequeueSize(context.Context, int64) { f.inc("requeue_size") }

func (f *FakeMetricLabeler) RecordEvidenceRequestDuration(context.Context, time.Duration, bool) {
	f.inc("evidence_request")
}
