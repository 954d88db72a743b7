package packetstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ Store = (*InMemoryStore)(nil)

// InMemoryStore keeps captured packets in a sync.Map. LoadOrStore gives
// per-key atomicity, so concurrent captures of unrelated ids never contend.
type InMemoryStore struct {
	packets sync.Map // protocol.MessageID -> protocol.StoredPacket
	headers sync.Map // protocol.Bytes32 -> protocol.MessageID, first capture wins
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Put(_ context.Context, id protocol.MessageID, sp protocol.StoredPacket) error {
	existing, loaded := s.packets.LoadOrStore(id, sp)
	if !loaded {
		s.headers.LoadOrStore(sp.Packet.Header().Hash(), id)
		return nil
	}
	stored, ok := existing.(protocol.StoredPacket)
	if !ok {
		return fmt.Errorf("%w: unexpected value type %T for %s", protocol.ErrStorageUnavailable, existing, id)
	}
	if !stored.SameContent(sp) {
		return fmt.Errorf("%w: a different packet is stored under %s", protocol.ErrDuplicateKey, id)
	}
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id protocol.MessageID) (protocol.StoredPacket, bool, error) {
	v, ok := s.packets.Load(id)
	if !ok {
		return protocol.StoredPacket{}, false, nil
	}
	sp, ok := v.(protocol.StoredPacket)
	if !ok {
		return protocol.StoredPacket{}, false, fmt.Errorf("%w: unexpected value type %T for %s", protocol.ErrStorageUnavailable, v, id)
	}
	return sp, true, nil
}

func (s *InMemoryStore) GetByHeader(ctx context.Context, headerHash protocol.Bytes32) (protocol.StoredPacket, bool, error) {
	v, ok := s.headers.Load(headerHash)
	if !ok {
		return protocol.StoredPacket{}, false, nil
	}
	id, ok := v.(protocol.MessageID)
	if !ok {
		return protocol.StoredPacket{}, false, fmt.Errorf("%w: unexpected value type %T for header %s", protocol.ErrStorageUnavailable, v, headerHash)
	}
	return s.Get(ctx, id)
}

func (s *InMemoryStore) Close() error {
	return nil
}
