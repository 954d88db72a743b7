package packetstore_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/monitoring"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/packetstore"
	"github.com/tangle-network/layerzero-dvn-template/verifier/testutil"
)

func storedPacket() (protocol.MessageID, protocol.StoredPacket) {
	p := protocol.NewTestPacket()
	p.Sender = protocol.RandomBytes32()
	p.GUID = protocol.RandomBytes32()
	return protocol.DeriveMessageID(p), protocol.StoredPacket{
		Packet:     p,
		Options:    protocol.ByteSlice{0x00, 0x03},
		CapturedAt: time.Unix(1_700_000_000, 0).UTC(),
	}
}

// testStore runs the behaviour every packet store must share.
func testStore(t *testing.T, store packetstore.Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, found, err := store.Get(ctx, protocol.RandomBytes32())
		require.NoError(t, err)
		require.False(t, found)
	})

	t.Run("put then get", func(t *testing.T) {
		id, sp := storedPacket()
		require.NoError(t, store.Put(ctx, id, sp))

		got, found, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, sp.Packet.Equal(got.Packet))
		require.Equal(t, sp.Options, got.Options)
		require.True(t, sp.CapturedAt.Equal(got.CapturedAt))
	})

	t.Run("distinct packets get distinct ids", func(t *testing.T) {
		id1, sp1 := storedPacket()
		id2, sp2 := storedPacket()
		require.NotEqual(t, id1, id2)
		require.NoError(t, store.Put(ctx, id1, sp1))
		require.NoError(t, store.Put(ctx, id2, sp2))

		got, found, err := store.Get(ctx, id2)
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, sp2.Packet.Equal(got.Packet))
	})

	t.Run("get by header", func(t *testing.T) {
		_, found, err := store.GetByHeader(ctx, protocol.RandomBytes32())
		require.NoError(t, err)
		require.False(t, found)

		id, sp := storedPacket()
		require.NoError(t, store.Put(ctx, id, sp))

		// Same header, different payload: a separate id, the first capture stays the header's answer.
		other := sp
		other.Packet.Message = protocol.ByteSlice("tampered")
		otherID := protocol.DeriveMessageID(other.Packet)
		require.NotEqual(t, id, otherID)
		require.NoError(t, store.Put(ctx, otherID, other))

		got, found, err := store.GetByHeader(ctx, sp.Packet.Header().Hash())
		require.NoError(t, err)
		require.True(t, found)
		require.True(t, sp.Packet.Equal(got.Packet))
	})

	t.Run("identical put is a no-op", func(t *testing.T) {
		id, sp := storedPacket()
		require.NoError(t, store.Put(ctx, id, sp))

		later := sp
		later.CapturedAt = sp.CapturedAt.Add(time.Hour)
		require.NoError(t, store.Put(ctx, id, later))

		got, _, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, sp.CapturedAt.Equal(got.CapturedAt))
	})

	t.Run("different content under the same id", func(t *testing.T) {
		id, sp := storedPacket()
		require.NoError(t, store.Put(ctx, id, sp))

		other := sp
		other.Packet.GUID = protocol.RandomBytes32()
		require.ErrorIs(t, store.Put(ctx, id, other), protocol.ErrDuplicateKey)

		other = sp
		other.Options = protocol.ByteSlice{0x01}
		require.ErrorIs(t, store.Put(ctx, id, other), protocol.ErrDuplicateKey)
	})

	t.Run("empty message and options", func(t *testing.T) {
		id, sp := storedPacket()
		sp.Packet.Message = protocol.ByteSlice{}
		sp.Options = nil
		id = protocol.DeriveMessageID(sp.Packet)
		require.NoError(t, store.Put(ctx, id, sp))

		got, found, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.True(t, found)
		require.Empty(t, got.Packet.Message)
		require.Empty(t, got.Options)
	})

	t.Run("max nonce round trips", func(t *testing.T) {
		id, sp := storedPacket()
		sp.Packet.Nonce = protocol.Nonce(^uint64(0))
		id = protocol.DeriveMessageID(sp.Packet)
		require.NoError(t, store.Put(ctx, id, sp))

		got, _, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.Equal(t, sp.Packet.Nonce, got.Packet.Nonce)
	})

	t.Run("concurrent identical puts", func(t *testing.T) {
		id, sp := storedPacket()
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs[i] = store.Put(ctx, id, sp)
			}()
		}
		wg.Wait()
		for _, err := range errs {
			require.NoError(t, err)
		}
	})
}

func TestInMemoryStore(t *testing.T) {
	testStore(t, packetstore.NewInMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := packetstore.NewSQLiteStore(filepath.Join(t.TempDir(), "packets.db"), logger.Test(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	testStore(t, store)
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "packets.db")
	ctx := context.Background()
	id, sp := storedPacket()

	store, err := packetstore.NewSQLiteStore(path, logger.Test(t))
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, id, sp))
	require.NoError(t, store.Close())

	reopened, err := packetstore.NewSQLiteStore(path, logger.Test(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	got, found, err := reopened.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, sp.Packet.Equal(got.Packet))
}

func TestSQLiteStore_RequiresPath(t *testing.T) {
	_, err := packetstore.NewSQLiteStore("", logger.Test(t))
	require.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	ds := testutil.NewTestDB(t)
	testStore(t, packetstore.NewPostgresStore(ds, logger.Test(t)))
}

func TestMonitoredStore(t *testing.T) {
	ctx := context.Background()
	mon := monitoring.NewFakeDVNMonitoring()
	store := packetstore.NewMonitoredStore(packetstore.NewInMemoryStore(), mon.Metrics())

	id, sp := storedPacket()
	require.NoError(t, store.Put(ctx, id, sp))
	_, _, err := store.Get(ctx, id)
	require.NoError(t, err)
	_, _, err = store.GetByHeader(ctx, sp.Packet.Header().Hash())
	require.NoError(t, err)

	other := sp
	other.Packet.GUID = protocol.RandomBytes32()
	require.ErrorIs(t, store.Put(ctx, id, other), protocol.ErrDuplicateKey)

	require.Equal(t, 2, mon.Fake.Count("storage_query:putPacket"))
	require.Equal(t, 1, mon.Fake.Count("storage_query:getPacket"))
	require.Equal(t, 1, mon.Fake.Count("storage_query:getPacketByHeader"))
	require.Zero(t, mon.Fake.Count("storage_errors"))
}

func TestNew(t *testing.T) {
	ctx := context.Background()
	metrics := monitoring.NewFakeDVNMonitoring().Metrics()

	store, err := packetstore.New(ctx, verifier.PacketStoreConfig{Type: verifier.PacketStoreMemory}, metrics, logger.Test(t))
	require.NoError(t, err)
	require.IsType(t, &packetstore.MonitoredStore{}, store)
	require.NoError(t, store.Close())

	store, err = packetstore.New(ctx, verifier.PacketStoreConfig{
		Type: verifier.PacketStoreSQLite,
		Path: filepath.Join(t.TempDir(), "dvn.db"),
	}, metrics, logger.Test(t))
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = packetstore.New(ctx, verifier.PacketStoreConfig{Type: "redis"}, metrics, logger.Test(t))
	require.ErrorContains(t, err, "unknown packet store type")
}
