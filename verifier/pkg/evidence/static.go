package evidence

import (
	"context"
	"sync"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ protocol.EvidenceProvider = (*Static)(nil)

// Static serves evidence registered in memory. A fallback, when set, is
// returned for messages without their own entry.
type Static struct {
	mu       sync.RWMutex
	entries  map[protocol.MessageID][]byte
	fallback []byte
}

func NewStatic(fallback []byte) *Static {
	return &Static{entries: make(map[protocol.MessageID][]byte), fallback: fallback}
}

// Set registers evidence for id.
func (s *Static) Set(id protocol.MessageID, evidence []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id] = evidence
}

func (s *Static) Evidence(_ context.Context, id protocol.MessageID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if ev, ok := s.entries[id]; ok {
		return ev, nil
	}
	if s.fallback != nil {
		return s.fallback, nil
	}
	return nil, ErrNotReady
}
