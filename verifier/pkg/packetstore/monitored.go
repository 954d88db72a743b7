package packetstore

import (
	"context"
	"errors"
	"time"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
)

var _ Store = (*MonitoredStore)(nil)

// MonitoredStore is a decorator that adds monitoring to packet store operations.
type MonitoredStore struct {
	store   Store
	metrics verifier.MetricLabeler
}

// NewMonitoredStore creates a new MonitoredStore decorator.
func NewMonitoredStore(store Store, metrics verifier.MetricLabeler) *MonitoredStore {
	return &MonitoredStore{
		store:   store,
		metrics: metrics,
	}
}

// Put stores a packet and records query duration with method "putPacket".
// A duplicate key is a caller error and is not counted as a storage error.
func (m *MonitoredStore) Put(ctx context.Context, id protocol.MessageID, sp protocol.StoredPacket) error {
	start := time.Now()
	err := m.store.Put(ctx, id, sp)
	m.metrics.RecordStorageQueryDuration(ctx, "putPacket", time.Since(start))

	if err != nil && !errors.Is(err, protocol.ErrDuplicateKey) {
		m.metrics.IncrementStorageErrors(ctx)
	}
	return err
}

// Get loads a packet and records query duration with method "getPacket".
func (m *MonitoredStore) Get(ctx context.Context, id protocol.MessageID) (protocol.StoredPacket, bool, error) {
	start := time.Now()
	sp, found, err := m.store.Get(ctx, id)
	m.metrics.RecordStorageQueryDuration(ctx, "getPacket", time.Since(start))

	if err != nil {
		m.metrics.IncrementStorageErrors(ctx)
	}
	return sp, found, err
}

// GetByHeader loads a packet by header hash and records query duration with method "getPacketByHeader".
func (m *MonitoredStore) GetByHeader(ctx context.Context, headerHash protocol.Bytes32) (protocol.StoredPacket, bool, error) {
	start := time.Now()
	sp, found, err := m.store.GetByHeader(ctx, headerHash)
	m.metrics.RecordStorageQueryDuration(ctx, "getPacketByHeader", time.Since(start))

	if err != nil {
		m.metrics.IncrementStorageErrors(ctx)
	}
	return sp, found, err
}

func (m *MonitoredStore) Close() error {
	return m.store.Close()
}
