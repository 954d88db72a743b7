package packetstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver for database/sql

	"github.com/smartcontractkit/chainlink-common/pkg/logger"
	"github.com/smartcontractkit/chainlink-common/pkg/sqlutil"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ Store = (*PostgresStore)(nil)

const postgresColumns = `message_id, header_hash, nonce, src_eid, sender, dst_eid, receiver, guid, message, options, captured_at`

// PostgresStore persists captured packets in the dvn_packets table.
type PostgresStore struct {
	ds     sqlutil.DataSource
	closer func() error
	lggr   logger.Logger
}

// NewPostgresStore wraps an existing data source. The schema must already
// be migrated, see RunPostgresMigrations.
func NewPostgresStore(ds sqlutil.DataSource, lggr logger.Logger) *PostgresStore {
	return &PostgresStore{
		ds:     ds,
		closer: func() error { return nil },
		lggr:   logger.With(lggr, "component", "PostgresPacketStore"),
	}
}

// OpenPostgresStore connects to url, applies migrations and returns a store owning the connection.
func OpenPostgresStore(ctx context.Context, url string, lggr logger.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := RunPostgresMigrations(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := NewPostgresStore(db, lggr)
	s.closer = db.Close
	s.lggr.Infow("Postgres packet store initialized")
	return s, nil
}

func (s *PostgresStore) Put(ctx context.Context, id protocol.MessageID, sp protocol.StoredPacket) error {
	row := newPacketRow(id, sp)

	return sqlutil.TransactDataSource(ctx, s.ds, nil, func(tx sqlutil.DataSource) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO dvn_packets (message_id, header_hash, nonce, src_eid, sender, dst_eid, receiver, guid, message, options, captured_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (message_id) DO NOTHING`,
			row.MessageID, row.HeaderHash, row.Nonce, row.SrcEid, row.Sender, row.DstEid,
			row.Receiver, row.GUID, row.Message, row.Options, row.CapturedAt,
		)
		if err != nil {
			return storageErr("failed to insert packet", err)
		}

		inserted, err := res.RowsAffected()
		if err != nil {
			return storageErr("failed to read affected rows", err)
		}
		if inserted > 0 {
			return nil
		}

		existing, found, err := s.get(ctx, tx, row.MessageID)
		if err != nil {
			return err
		}
		if !found {
			return storageErr("failed to load existing packet", sql.ErrNoRows)
		}
		if !existing.SameContent(sp) {
			return fmt.Errorf("%w: a different packet is stored under %s", protocol.ErrDuplicateKey, id)
		}
		s.lggr.Debugw("Packet already stored", "messageID", id.String())
		return nil
	})
}

func (s *PostgresStore) Get(ctx context.Context, id protocol.MessageID) (protocol.StoredPacket, bool, error) {
	return s.get(ctx, s.ds, id.String())
}

func (s *PostgresStore) GetByHeader(ctx context.Context, headerHash protocol.Bytes32) (protocol.StoredPacket, bool, error) {
	return s.query(ctx, s.ds, `
		SELECT `+postgresColumns+`
		FROM dvn_packets
		WHERE header_hash = $1
		ORDER BY created_at, message_id
		LIMIT 1`, headerHash.String())
}

func (s *PostgresStore) get(ctx context.Context, ds sqlutil.DataSource, messageID string) (protocol.StoredPacket, bool, error) {
	return s.query(ctx, ds, `
		SELECT `+postgresColumns+`
		FROM dvn_packets
		WHERE message_id = $1`, messageID)
}

func (s *PostgresStore) query(ctx context.Context, ds sqlutil.DataSource, q string, args ...any) (protocol.StoredPacket, bool, error) {
	var row packetRow
	err := ds.GetContext(ctx, &row, q, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.StoredPacket{}, false, nil
	}
	if err != nil {
		return protocol.StoredPacket{}, false, storageErr("failed to query packet", err)
	}

	sp, err := row.toStoredPacket()
	if err != nil {
		return protocol.StoredPacket{}, false, storageErr("failed to decode packet row", err)
	}
	return sp, true, nil
}

func (s *PostgresStore) Close() error {
	return s.closer()
}
