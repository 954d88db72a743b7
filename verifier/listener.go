package verifier

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/services"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// txMessagesCacheSize bounds how many send transactions a chain cursor
// remembers for pairing assignments with captured packets.
const txMessagesCacheSize = 4096

// EventSource reads LayerZero events from source chains.
type EventSource interface {
	LatestBlock(ctx context.Context, chain protocol.ChainID) (uint64, error)
	PacketSentEvents(ctx context.Context, chain protocol.ChainID, from, to uint64) ([]protocol.PacketSentEvent, error)
	DVNAssignedEvents(ctx context.Context, chain protocol.ChainID, from, to uint64) ([]protocol.DVNAssignedEvent, error)
}

// MessageProcessor runs the two verification phases. *Pipeline implements it.
type MessageProcessor interface {
	Identity() common.Address
	Capture(ctx context.Context, ev protocol.PacketSentEvent) (protocol.MessageID, error)
	Process(ctx context.Context, ev protocol.DVNAssignedEvent, evidence []byte) (Verdict, error)
}

var _ MessageProcessor = (*Pipeline)(nil)

// ListenerChain is a source chain the listener polls.
type ListenerChain struct {
	ID protocol.ChainID
	// StartBlock is the first block scanned. Zero starts at the head seen on the first poll.
	StartBlock    uint64
	MaxBlockRange uint64
}

type ListenerConfig struct {
	Chains             []ListenerChain
	PollInterval       time.Duration
	MaxConcurrentJobs  int
	MaxRequeueAttempts int
	// IsTemporaryEvidenceErr reports whether an evidence error is worth another attempt.
	// When nil every evidence error is.
	IsTemporaryEvidenceErr func(error) bool
}

type assignmentJob struct {
	event     protocol.DVNAssignedEvent
	messageID protocol.MessageID
	attempts  int
}

type chainCursor struct {
	chain   ListenerChain
	next    uint64
	started bool
	// txMessages maps a send transaction to the ids it captured, in log order.
	txMessages *lru.Cache[common.Hash, []protocol.MessageID]

	mu      sync.Mutex
	requeue []assignmentJob
}

func (c *chainCursor) push(job assignmentJob) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requeue = append(c.requeue, job)
}

func (c *chainCursor) drain() []assignmentJob {
	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := c.requeue
	c.requeue = nil
	return jobs
}

func (c *chainCursor) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requeue)
}

// Listener polls every source chain for PacketSent and DVNFeePaid events,
// captures packets and processes the assignments that select this node.
//
// An assignment is paired with the packet captured from the same
// transaction; the n-th DVNFeePaid of a transaction belongs to its n-th
// PacketSent.
//
// Assignments run on a listener wide pool of MaxConcurrentJobs workers that
// polls never wait on. An assignment that finds the pool full, or fails with
// a retryable error, is picked up again by a later poll of its chain.
type Listener struct {
	sync   services.StateMachine
	stopCh services.StopChan
	wg     sync.WaitGroup
	jobs   *errgroup.Group

	lggr        logger.Logger
	cfg         ListenerConfig
	source      EventSource
	evidence    protocol.EvidenceProvider
	processor   MessageProcessor
	metrics     MetricLabeler
	isTemporary func(error) bool
	cursors     []*chainCursor
}

func NewListener(
	cfg ListenerConfig,
	source EventSource,
	evidence protocol.EvidenceProvider,
	processor MessageProcessor,
	metrics MetricLabeler,
	lggr logger.Logger,
) (*Listener, error) {
	if source == nil {
		return nil, errors.New("event source is required")
	}
	if processor == nil {
		return nil, errors.New("message processor is required")
	}
	if metrics == nil {
		return nil, errors.New("metrics labeler is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxConcurrentJobs <= 0 {
		cfg.MaxConcurrentJobs = DefaultMaxConcurrentJobs
	}
	if cfg.MaxRequeueAttempts < 0 {
		cfg.MaxRequeueAttempts = 0
	}

	cursors := make([]*chainCursor, 0, len(cfg.Chains))
	for _, c := range cfg.Chains {
		if c.MaxBlockRange == 0 {
			c.MaxBlockRange = DefaultMaxBlockRange
		}
		txMessages, err := lru.New[common.Hash, []protocol.MessageID](txMessagesCacheSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create tx cache for chain %s: %w", c.ID, err)
		}
		cursors = append(cursors, &chainCursor{chain: c, txMessages: txMessages})
	}

	isTemporary := cfg.IsTemporaryEvidenceErr
	if isTemporary == nil {
		isTemporary = func(error) bool { return true }
	}

	jobs := &errgroup.Group{}
	jobs.SetLimit(cfg.MaxConcurrentJobs)

	return &Listener{
		stopCh:      make(chan struct{}),
		jobs:        jobs,
		lggr:        logger.Named(lggr, "Listener"),
		cfg:         cfg,
		source:      source,
		evidence:    evidence,
		processor:   processor,
		metrics:     metrics,
		isTemporary: isTemporary,
		cursors:     cursors,
	}, nil
}

// Start launches one polling loop per source chain.
func (l *Listener) Start(_ context.Context) error {
	return l.sync.StartOnce("Listener", func() error {
		for _, cur := range l.cursors {
			l.wg.Add(1)
			go func() {
				defer l.wg.Done()
				l.pollLoop(cur)
			}()
		}
		l.lggr.Infow("Listener started", "chains", len(l.cursors), "pollInterval", l.cfg.PollInterval)
		return nil
	})
}

// Close stops every polling loop and waits for in-flight jobs.
func (l *Listener) Close() error {
	return l.sync.StopOnce("Listener", func() error {
		close(l.stopCh)
		l.wg.Wait()
		_ = l.jobs.Wait()
		l.lggr.Infow("Listener stopped")
		return nil
	})
}

// Ready returns nil once the listener is running.
func (l *Listener) Ready() error {
	return l.sync.Ready()
}

func (l *Listener) pollLoop(cur *chainCursor) {
	ctx, cancel := l.stopCh.NewCtx()
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			l.lggr.Errorw("Recovered from panic in poll loop",
				"chain", cur.chain.ID,
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
	}()

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		l.pollOnce(ctx, cur)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pollOnce scans the next block window of one chain and dispatches the new
// and requeued assignments without waiting for them.
func (l *Listener) pollOnce(ctx context.Context, cur *chainCursor) {
	lggr := logger.With(l.lggr, "chain", cur.chain.ID, "pollID", uuid.NewString())
	metrics := l.metrics.With("source_chain", cur.chain.ID.String())

	latest, err := l.source.LatestBlock(ctx, cur.chain.ID)
	if err != nil {
		lggr.Warnw("Failed to read latest block", "error", err)
		return
	}
	metrics.RecordSourceChainLatestBlock(ctx, int64(latest)) //nolint:gosec // block numbers fit in int64

	if !cur.started {
		cur.next = cur.chain.StartBlock
		if cur.next == 0 {
			cur.next = latest
		}
		cur.started = true
		lggr.Infow("Initialized start block", "block", cur.next)
	}

	jobs := cur.drain()

	if cur.next <= latest {
		to := min(latest, cur.next+cur.chain.MaxBlockRange-1)
		fresh, err := l.scan(ctx, lggr, cur, cur.next, to)
		if err != nil {
			lggr.Warnw("Failed to scan block range, retrying next poll", "from", cur.next, "to", to, "error", err)
		} else {
			lggr.Debugw("Scanned block range", "from", cur.next, "to", to, "assignments", len(fresh))
			cur.next = to + 1
			jobs = append(jobs, fresh...)
		}
	}

	l.dispatch(ctx, lggr, cur, jobs)
	metrics.RecordRequeueSize(ctx, int64(cur.pending()))
}

// scan captures every packet in [from, to] and returns the assignments
// in the same range that select this node.
func (l *Listener) scan(ctx context.Context, lggr logger.Logger, cur *chainCursor, from, to uint64) ([]assignmentJob, error) {
	chain := cur.chain.ID

	packets, err := l.source.PacketSentEvents(ctx, chain, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read PacketSent events: %w", err)
	}
	for _, ev := range packets {
		id, err := l.processor.Capture(ctx, ev)
		if err != nil {
			if protocol.IsRetryable(err) {
				return nil, fmt.Errorf("failed to capture packet from tx %s: %w", ev.Tx.Hash.Hex(), err)
			}
			lggr.Errorw("Dropping packet", "tx", ev.Tx.Hash.Hex(), "error", err)
			continue
		}
		ids, _ := cur.txMessages.Get(ev.Tx.Hash)
		if !slices.Contains(ids, id) {
			cur.txMessages.Add(ev.Tx.Hash, append(slices.Clone(ids), id))
		}
	}

	assigned, err := l.source.DVNAssignedEvents(ctx, chain, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read DVNFeePaid events: %w", err)
	}
	identity := l.processor.Identity()
	ordinal := make(map[common.Hash]int)
	jobs := make([]assignmentJob, 0, len(assigned))
	for _, ev := range assigned {
		n := ordinal[ev.Tx.Hash]
		ordinal[ev.Tx.Hash]++
		if !ev.Selects(identity) {
			continue
		}
		ids, ok := cur.txMessages.Get(ev.Tx.Hash)
		if !ok || n >= len(ids) {
			lggr.Warnw("No captured packet for assignment", "tx", ev.Tx.Hash.Hex(), "index", n)
			continue
		}
		ev.Ordinal = n
		jobs = append(jobs, assignmentJob{event: ev, messageID: ids[n]})
	}
	return jobs, nil
}

// dispatch starts every job that finds a free worker. The rest go back to
// the cursor without spending an attempt.
func (l *Listener) dispatch(ctx context.Context, lggr logger.Logger, cur *chainCursor, jobs []assignmentJob) {
	deferred := 0
	for _, job := range jobs {
		started := l.jobs.TryGo(func() error {
			if !l.handle(ctx, lggr, job) {
				return nil
			}
			job.attempts++
			if job.attempts > l.cfg.MaxRequeueAttempts {
				lggr.Errorw("Giving up on assignment", "messageID", job.messageID, "attempts", job.attempts)
				return nil
			}
			cur.push(job)
			return nil
		})
		if !started {
			cur.push(job)
			deferred++
		}
	}
	if deferred > 0 {
		lggr.Debugw("Worker pool full, deferring assignments", "deferred", deferred)
	}
}

// handle fetches evidence and processes one assignment. It reports whether
// the job should be attempted again.
func (l *Listener) handle(ctx context.Context, lggr logger.Logger, job assignmentJob) bool {
	lggr = logger.With(lggr, "messageID", job.messageID, "attempt", job.attempts+1)

	var evidence []byte
	if l.evidence != nil {
		var err error
		evidence, err = l.evidence.Evidence(ctx, job.messageID)
		if err != nil {
			if l.isTemporary(err) {
				lggr.Debugw("Evidence not available yet", "error", err)
				return true
			}
			lggr.Errorw("Failed to fetch evidence", "error", err)
			return false
		}
	}

	verdict, err := l.processor.Process(ctx, job.event, evidence)
	if err != nil {
		if protocol.IsRetryable(err) {
			lggr.Infow("Assignment deferred", "error", err)
			return true
		}
		lggr.Errorw("Assignment failed", "error", err)
		return false
	}
	if verdict.MessageID != (protocol.MessageID{}) && verdict.MessageID != job.messageID {
		lggr.Warnw("Assignment resolved to a different message than the paired packet", "resolvedMessageID", verdict.MessageID)
	}
	lggr.Infow("Assignment processed", "status", verdict.Status, "verified", verdict.Verified)
	return false
}
