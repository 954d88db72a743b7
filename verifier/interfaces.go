package verifier

import (
	"context"
	"time"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// Monitoring provides all core monitoring functionality for the verifier.
type Monitoring interface {
	// Metrics returns the metrics labeler for the verifier.
	Metrics() MetricLabeler
}

// MetricLabeler provides all metric recording functionality for the verifier.
type MetricLabeler interface {
	// With returns a new metrics labeler with the given key-value pairs.
	With(keyValues ...string) MetricLabeler

	// RecordMessageE2ELatency records the time from packet capture to a verification verdict.
	RecordMessageE2ELatency(ctx context.Context, duration time.Duration)

	// IncrementMessagesCaptured counts packets stored by the capture phase.
	IncrementMessagesCaptured(ctx context.Context)
	// IncrementMessagesProcessed counts assignments that ended in a verdict.
	IncrementMessagesProcessed(ctx context.Context)
	// IncrementMessagesRejected counts assignments that ended in an error.
	IncrementMessagesRejected(ctx context.Context)

	// RecordConfirmationWaitDuration records how long the confirmation gate blocked a message.
	RecordConfirmationWaitDuration(ctx context.Context, duration time.Duration)
	// RecordSecurityVerificationDuration records the duration of a security strategy run.
	RecordSecurityVerificationDuration(ctx context.Context, duration time.Duration)
	// RecordSubmissionDuration records the duration of the destination submission.
	RecordSubmissionDuration(ctx context.Context, duration time.Duration)

	// RecordStorageQueryDuration records a packet store query duration, labelled by method.
	RecordStorageQueryDuration(ctx context.Context, method string, duration time.Duration)
	// IncrementStorageErrors counts failed packet store operations.
	IncrementStorageErrors(ctx context.Context)

	// RecordSourceChainLatestBlock records the latest block number seen by the listener.
	RecordSourceChainLatestBlock(ctx context.Context, blockNum int64)
	// RecordRequeueSize records how many assignments are waiting for another attempt.
	RecordRequeueSize(ctx context.Context, size int64)

	// RecordEvidenceRequestDuration records an evidence provider round trip.
	RecordEvidenceRequestDuration(ctx context.Context, duration time.Duration, failed bool)
}

// ConfirmationGate blocks until a transaction reached a confirmation depth.
type ConfirmationGate interface {
	AwaitConfirmations(ctx context.Context, chain protocol.ChainID, requiredDepth uint64, ref protocol.TxRef) error
}

// VerifiedStateCache answers the already-verified check and learns from successful submissions.
type VerifiedStateCache interface {
	protocol.VerifiedStateReader
	MarkVerified(id protocol.MessageID)
}
