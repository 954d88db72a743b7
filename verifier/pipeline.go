package verifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/singleflight"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier/security"
)

// VerdictStatus is how a processed assignment ended.
type VerdictStatus string

const (
	// VerdictNotSelected means this node is not among the assigned verifiers.
	VerdictNotSelected VerdictStatus = "not_selected"
	// VerdictAlreadyVerified means the destination already holds this node's verification.
	VerdictAlreadyVerified VerdictStatus = "already_verified"
	// VerdictSubmitted means a verification was submitted; Verified carries its outcome.
	VerdictSubmitted VerdictStatus = "submitted"
)

// Verdict is the outcome of Process.
type Verdict struct {
	MessageID protocol.MessageID `json:"messageId"`
	Status    VerdictStatus      `json:"status"`
	Verified  bool               `json:"verified"`
}

// Dependencies are the collaborators of a Pipeline.
type Dependencies struct {
	Store         protocol.PacketStore
	CallData      protocol.CallDataReader
	Confirmations ConfirmationGate
	VerifiedState VerifiedStateCache
	Security      security.SecurityVerifier
	Submitter     protocol.VerificationSubmitter
	Monitoring    Monitoring
	Logger        logger.Logger
	// Identity is the address of the key that submits verifications.
	// Config.NodeAddress, when set, must equal it.
	Identity common.Address
	// States defaults to a fresh tracker.
	States *StateTracker
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Pipeline runs the two verification phases: Capture on PacketSent and
// Process on a DVN assignment.
type Pipeline struct {
	lggr     logger.Logger
	identity common.Address

	requiredConfirmations uint64
	confirmationChain     ConfirmationChain

	store     protocol.PacketStore
	callData  protocol.CallDataReader
	gate      ConfirmationGate
	verified  VerifiedStateCache
	security  security.SecurityVerifier
	submitter protocol.VerificationSubmitter
	metrics   MetricLabeler
	states    *StateTracker
	now       func() time.Time

	inflight singleflight.Group
}

func NewPipeline(cfg Config, deps Dependencies) (*Pipeline, error) {
	var errs []error
	if deps.Store == nil {
		errs = append(errs, errors.New("packet store is required"))
	}
	if deps.CallData == nil {
		errs = append(errs, errors.New("call data reader is required"))
	}
	if deps.Confirmations == nil {
		errs = append(errs, errors.New("confirmation gate is required"))
	}
	if deps.VerifiedState == nil {
		errs = append(errs, errors.New("verified state reader is required"))
	}
	if deps.Security == nil {
		errs = append(errs, errors.New("security verifier is required"))
	}
	if deps.Submitter == nil {
		errs = append(errs, errors.New("verification submitter is required"))
	}
	if deps.Monitoring == nil {
		errs = append(errs, errors.New("monitoring is required"))
	}
	if deps.Logger == nil {
		errs = append(errs, errors.New("logger is required"))
	}

	identity, err := cfg.ResolveIdentity(deps.Identity)
	if err != nil {
		errs = append(errs, err)
	} else if identity == (common.Address{}) {
		errs = append(errs, errors.New("node identity is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	chain := cfg.ConfirmationChain
	if chain == "" {
		chain = ConfirmationChainDestination
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	states := deps.States
	if states == nil {
		states = NewStateTracker(now)
	}

	return &Pipeline{
		lggr:                  logger.With(deps.Logger, "component", "Pipeline", "dvn", identity.Hex()),
		identity:              identity,
		requiredConfirmations: cfg.RequiredConfirmations,
		confirmationChain:     chain,
		store:                 deps.Store,
		callData:              deps.CallData,
		gate:                  deps.Confirmations,
		verified:              deps.VerifiedState,
		security:              deps.Security,
		submitter:             deps.Submitter,
		metrics:               deps.Monitoring.Metrics(),
		states:                states,
		now:                   now,
	}, nil
}

// Identity is the address this node verifies as.
func (p *Pipeline) Identity() common.Address {
	return p.identity
}

// States exposes the per message state tracker.
func (p *Pipeline) States() *StateTracker {
	return p.states
}

// Capture decodes a PacketSent event, derives the message id and stores the
// packet under it. Capturing the same packet twice is a no-op; a different
// packet under an existing id fails with protocol.ErrDuplicateKey.
func (p *Pipeline) Capture(ctx context.Context, ev protocol.PacketSentEvent) (protocol.MessageID, error) {
	packet, err := protocol.DecodePacket(ev.EncodedPayload)
	if err != nil {
		return protocol.MessageID{}, err
	}
	if ev.SrcEid != 0 && packet.SrcEid != ev.SrcEid {
		return protocol.MessageID{}, fmt.Errorf("%w: packet srcEid %s emitted on chain %s",
			protocol.ErrDecode, packet.SrcEid, ev.SrcEid)
	}

	id := protocol.DeriveMessageID(packet)
	lggr := logger.With(p.lggr, "messageID", id, "srcEid", packet.SrcEid, "dstEid", packet.DstEid, "nonce", packet.Nonce)

	err = p.store.Put(ctx, id, protocol.StoredPacket{
		Packet:     packet,
		Options:    ev.Options,
		CapturedAt: p.now(),
	})
	if err != nil {
		lggr.Errorw("Failed to store packet", "error", err)
		return id, err
	}

	if _, seen := p.states.Get(id); !seen {
		p.states.Transition(id, StateCaptured, nil)
		p.states.Transition(id, StateAwaitingAssignment, nil)
		p.metrics.With("source_chain", packet.SrcEid.String()).IncrementMessagesCaptured(ctx)
	}
	lggr.Infow("Packet captured", "tx", ev.Tx.Hash.Hex())
	return id, nil
}

// Process handles a DVN assignment: it checks this node was selected,
// recovers the assignment parameters, cross-checks them against the
// captured packet, short-circuits when already verified, waits for
// confirmations, runs the security strategy over the packet message with
// evidence and submits the verification.
//
// Concurrent calls for the same message share one execution.
func (p *Pipeline) Process(ctx context.Context, ev protocol.DVNAssignedEvent, evidence []byte) (Verdict, error) {
	if !ev.Selects(p.identity) {
		p.lggr.Debugw("Not selected for assignment", "srcEid", ev.SrcEid, "tx", ev.Tx.Hash.Hex())
		return Verdict{Status: VerdictNotSelected}, nil
	}

	params, err := p.callData.AssignmentParams(ctx, ev.SrcEid, ev.Tx, ev.Ordinal)
	if err != nil {
		p.metrics.IncrementMessagesRejected(ctx)
		return Verdict{}, fmt.Errorf("failed to read assignment from %s: %w", ev.Tx.Hash.Hex(), err)
	}
	id := protocol.DeriveMessageIDFromAssignment(params)

	result, err, shared := p.inflight.Do(id.String(), func() (any, error) {
		return p.process(ctx, id, params, ev, evidence)
	})
	if shared {
		p.lggr.Debugw("Joined in-flight processing", "messageID", id)
	}
	verdict, _ := result.(Verdict)
	return verdict, err
}

func (p *Pipeline) process(
	ctx context.Context,
	id protocol.MessageID,
	params protocol.AssignmentParams,
	ev protocol.DVNAssignedEvent,
	evidence []byte,
) (Verdict, error) {
	lggr := logger.With(p.lggr, "messageID", id, "srcEid", params.SrcEid, "dstEid", params.DstEid, "nonce", params.Nonce)
	metrics := p.metrics.With("source_chain", params.SrcEid.String(), "dest_chain", params.DstEid.String())

	stored, found, err := p.lookup(ctx, id, params)
	if err != nil {
		return p.fail(ctx, lggr, metrics, id, StateAwaitingAssignment, err)
	}
	if !found {
		return p.fail(ctx, lggr, metrics, id, StateAwaitingAssignment,
			fmt.Errorf("%w: %s", protocol.ErrPacketNotFound, id))
	}
	packet := stored.Packet

	if err := crossCheck(packet, params); err != nil {
		return p.fail(ctx, lggr, metrics, id, StateAwaitingAssignment, err)
	}

	req := protocol.VerificationRequest{
		MessageID:     id,
		DstEid:        packet.DstEid,
		Header:        protocol.EncodeHeader(packet),
		PayloadHash:   params.PayloadHash,
		Confirmations: max(p.requiredConfirmations, params.Confirmations),
	}

	already, err := p.verified.IsVerified(ctx, req)
	if err != nil {
		return p.fail(ctx, lggr, metrics, id, StateAwaitingAssignment, fmt.Errorf("failed to read verified state: %w", err))
	}
	if already {
		p.states.Transition(id, StateAttested, nil)
		metrics.IncrementMessagesProcessed(ctx)
		lggr.Infow("Message already verified, skipping")
		return Verdict{MessageID: id, Status: VerdictAlreadyVerified, Verified: true}, nil
	}

	p.states.Transition(id, StateConfirmationPending, nil)
	confirmChain := packet.DstEid
	if p.confirmationChain == ConfirmationChainSource {
		confirmChain = packet.SrcEid
	}
	waitStart := p.now()
	err = p.gate.AwaitConfirmations(ctx, confirmChain, req.Confirmations, ev.Tx)
	metrics.RecordConfirmationWaitDuration(ctx, p.now().Sub(waitStart))
	if err != nil {
		return p.fail(ctx, lggr, metrics, id, StateConfirmationPending, err)
	}

	p.states.Transition(id, StateSecurityPending, nil)
	verifyStart := p.now()
	ok, err := p.security.Verify(ctx, packet.Message, security.VerificationContext{
		ChainID:          packet.DstEid,
		VerifierIdentity: p.identity,
		Evidence:         evidence,
	})
	metrics.RecordSecurityVerificationDuration(ctx, p.now().Sub(verifyStart))
	if err == nil && !ok {
		err = fmt.Errorf("%w: %s strategy rejected the evidence", protocol.ErrVerification, p.security.Kind())
	}
	if err != nil {
		if !errors.Is(err, protocol.ErrVerification) {
			err = fmt.Errorf("%w: %w", protocol.ErrVerification, err)
		}
		return p.fail(ctx, lggr, metrics, id, StateSecurityPending, err)
	}

	submitStart := p.now()
	submitted, err := p.submitter.SubmitVerification(ctx, req)
	metrics.RecordSubmissionDuration(ctx, p.now().Sub(submitStart))
	if err != nil {
		return p.fail(ctx, lggr, metrics, id, StateSecurityPending, fmt.Errorf("failed to submit verification: %w", err))
	}

	if submitted {
		p.verified.MarkVerified(id)
		p.states.Transition(id, StateAttested, nil)
		metrics.IncrementMessagesProcessed(ctx)
		metrics.RecordMessageE2ELatency(ctx, p.now().Sub(stored.CapturedAt))
		lggr.Infow("Message verified", "confirmations", req.Confirmations)
	} else {
		p.states.Transition(id, StateRejected, errors.New("verification submission reverted"))
		metrics.IncrementMessagesRejected(ctx)
		lggr.Warnw("Verification submission reverted")
	}
	return Verdict{MessageID: id, Status: VerdictSubmitted, Verified: submitted}, nil
}

// lookup loads the packet the assignment names. When no packet is stored
// under the assignment's id it falls back to the packet captured with the
// same header, so an assignment whose payload hash disagrees with the
// captured packet surfaces as a mismatch instead of a missing packet.
func (p *Pipeline) lookup(ctx context.Context, id protocol.MessageID, params protocol.AssignmentParams) (protocol.StoredPacket, bool, error) {
	stored, found, err := p.store.Get(ctx, id)
	if err != nil || found {
		return stored, found, err
	}
	return p.store.GetByHeader(ctx, params.Header().Hash())
}

// fail records err against id. Errors a later attempt may overcome leave
// the message in its current state; all others reject it.
func (p *Pipeline) fail(
	ctx context.Context,
	lggr logger.Logger,
	metrics MetricLabeler,
	id protocol.MessageID,
	current State,
	err error,
) (Verdict, error) {
	if protocol.IsRetryable(err) {
		p.states.Transition(id, current, err)
		lggr.Warnw("Processing deferred", "state", current, "error", err)
	} else {
		p.states.Transition(id, StateRejected, err)
		lggr.Errorw("Processing rejected", "state", current, "error", err)
	}
	metrics.IncrementMessagesRejected(ctx)
	return Verdict{MessageID: id}, err
}

// crossCheck verifies that the assignment describes the stored packet.
func crossCheck(packet protocol.Packet, params protocol.AssignmentParams) error {
	if packet.DstEid != params.DstEid {
		return fmt.Errorf("%w: assignment dstEid %s, packet dstEid %s",
			protocol.ErrParamsMismatch, params.DstEid, packet.DstEid)
	}
	if payloadHash := packet.PayloadHash(); payloadHash != params.PayloadHash {
		return fmt.Errorf("%w: assignment payload hash %s, packet payload hash %s",
			protocol.ErrParamsMismatch, params.PayloadHash, payloadHash)
	}
	return nil
}
