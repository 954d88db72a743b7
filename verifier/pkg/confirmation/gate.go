// Package confirmation blocks the pipeline until a transaction reached the
// configured confirmation depth, polling with a bounded exponential backoff.
package confirmation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

const (
	// MaxAttempts is the hard cap on polls per wait.
	MaxAttempts = 10
	// DefaultInitialDelay is the delay before the second poll.
	DefaultInitialDelay = time.Second
)

// errNotConfirmed marks a poll that succeeded but found too few confirmations.
var errNotConfirmed = errors.New("not enough confirmations")

// Config controls the polling schedule.
type Config struct {
	// InitialDelay is the delay before the second poll; the delay doubles afterwards.
	InitialDelay time.Duration
	// MaxAttempts caps the number of polls. Zero or values above MaxAttempts use MaxAttempts.
	MaxAttempts int
}

// Gate waits for confirmation depth using a ConfirmationReader.
type Gate struct {
	reader       protocol.ConfirmationReader
	initialDelay time.Duration
	maxAttempts  int
	lggr         logger.Logger
}

func NewGate(reader protocol.ConfirmationReader, cfg Config, lggr logger.Logger) *Gate {
	delay := cfg.InitialDelay
	if delay <= 0 {
		delay = DefaultInitialDelay
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 || attempts > MaxAttempts {
		attempts = MaxAttempts
	}
	return &Gate{
		reader:       reader,
		initialDelay: delay,
		maxAttempts:  attempts,
		lggr:         logger.With(lggr, "component", "ConfirmationGate"),
	}
}

// AwaitConfirmations returns nil once ref has at least requiredDepth
// confirmations on chain. It polls at most the configured number of times,
// waiting InitialDelay·2^k before poll k+1, and returns protocol.ErrTimeout
// when the depth was not reached. Reader errors abort the wait.
func (g *Gate) AwaitConfirmations(ctx context.Context, chain protocol.ChainID, requiredDepth uint64, ref protocol.TxRef) error {
	lggr := logger.With(g.lggr, "chain", chain, "tx", ref.Hash.Hex(), "requiredDepth", requiredDepth)

	policy := retrypolicy.NewBuilder[protocol.ConfirmationStatus]().
		HandleIf(func(_ protocol.ConfirmationStatus, err error) bool {
			return errors.Is(err, errNotConfirmed)
		}).
		AbortIf(func(_ protocol.ConfirmationStatus, err error) bool {
			return err != nil && !errors.Is(err, errNotConfirmed)
		}).
		WithMaxAttempts(g.maxAttempts).
		WithBackoff(g.initialDelay, g.initialDelay<<max(g.maxAttempts-1, 1)).
		ReturnLastFailure().
		OnRetry(func(e failsafe.ExecutionEvent[protocol.ConfirmationStatus]) {
			lggr.Debugw("Waiting for confirmations", "attempt", e.Attempts(),
				"confirmations", e.LastResult().Confirmations)
		}).
		Build()

	status, err := failsafe.With[protocol.ConfirmationStatus](policy).
		WithContext(ctx).
		Get(func() (protocol.ConfirmationStatus, error) {
			s, err := g.reader.ConfirmationStatus(ctx, chain, ref)
			if err != nil {
				return s, err
			}
			if s.Confirmations < requiredDepth {
				return s, errNotConfirmed
			}
			return s, nil
		})

	switch {
	case err == nil:
		lggr.Debugw("Confirmation depth reached", "confirmations", status.Confirmations, "block", status.CurrentBlock)
		return nil
	case ctx.Err() != nil:
		return fmt.Errorf("confirmation wait on chain %s cancelled: %w", chain, ctx.Err())
	case errors.Is(err, errNotConfirmed):
		lggr.Warnw("Confirmation depth not reached", "confirmations", status.Confirmations, "attempts", g.maxAttempts)
		return fmt.Errorf("%w: %d of %d confirmations on chain %s after %d polls",
			protocol.ErrTimeout, status.Confirmations, requiredDepth, chain, g.maxAttempts)
	default:
		return fmt.Errorf("failed to read confirmations on chain %s: %w", chain, err)
	}
}
