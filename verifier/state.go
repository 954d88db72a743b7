package verifier

import (
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

const (
	DefaultStateExpiration      = 24 * time.Hour
	DefaultStateCleanupInterval = 10 * time.Minute
)

// State is the pipeline stage of one message.
type State string

const (
	StateCaptured            State = "captured"
	StateAwaitingAssignment  State = "awaiting_assignment"
	StateConfirmationPending State = "confirmation_pending"
	StateSecurityPending     State = "security_pending"
	StateAttested            State = "attested"
	StateRejected            State = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateAttested || s == StateRejected
}

// MessageState is the last known state of a message and the error that left it there, if any.
type MessageState struct {
	MessageID  protocol.MessageID `json:"messageId"`
	State      State              `json:"state"`
	CapturedAt time.Time          `json:"capturedAt,omitzero"`
	UpdatedAt  time.Time          `json:"updatedAt"`
	Error      string             `json:"error,omitempty"`
}

// StateTracker keeps per message states in memory. Entries expire after
// DefaultStateExpiration; the store of record is the packet store.
type StateTracker struct {
	states *cache.Cache
	now    func() time.Time
}

func NewStateTracker(now func() time.Time) *StateTracker {
	if now == nil {
		now = time.Now
	}
	return &StateTracker{
		states: cache.New(DefaultStateExpiration, DefaultStateCleanupInterval),
		now:    now,
	}
}

// Get returns the state of id.
func (t *StateTracker) Get(id protocol.MessageID) (MessageState, bool) {
	raw, ok := t.states.Get(id.String())
	if !ok {
		return MessageState{}, false
	}
	ms, ok := raw.(MessageState)
	return ms, ok
}

// Transition moves id to state, recording err when non-nil. Attested is
// final; a rejected message may be processed again with new evidence.
func (t *StateTracker) Transition(id protocol.MessageID, state State, err error) MessageState {
	prev, ok := t.Get(id)
	if ok && prev.State == StateAttested {
		return prev
	}
	ms := MessageState{
		MessageID:  id,
		State:      state,
		CapturedAt: prev.CapturedAt,
		UpdatedAt:  t.now(),
	}
	if state == StateCaptured && ms.CapturedAt.IsZero() {
		ms.CapturedAt = ms.UpdatedAt
	}
	if err != nil {
		ms.Error = err.Error()
	}
	t.states.SetDefault(id.String(), ms)
	return ms
}

// Len is the number of tracked messages.
func (t *StateTracker) Len() int {
	return t.states.ItemCount()
}
