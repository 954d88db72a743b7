// Package packetstore holds the packet store implementations bridging the
// capture and process phases.
package packetstore

import (
	"context"
	"fmt"
	"io"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
)

// Store is a packet store that owns resources.
type Store interface {
	protocol.PacketStore
	io.Closer
}

// New builds the store selected by cfg and wraps it with metrics.
func New(ctx context.Context, cfg verifier.PacketStoreConfig, metrics verifier.MetricLabeler, lggr logger.Logger) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case verifier.PacketStoreMemory:
		store = NewInMemoryStore()
	case verifier.PacketStoreSQLite:
		store, err = NewSQLiteStore(cfg.Path, lggr)
	case verifier.PacketStorePostgres:
		store, err = OpenPostgresStore(ctx, cfg.URL, lggr)
	default:
		return nil, fmt.Errorf("unknown packet store type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s packet store: %w", cfg.Type, err)
	}

	return NewMonitoredStore(store, metrics.With("store", cfg.Type)), nil
}
