package packetstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite" // pure Go sqlite driver (no CGO required)

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ Store = (*SQLiteStore)(nil)

const sqliteColumns = `message_id, nonce, src_eid, sender, dst_eid, receiver, guid, message, options, captured_at`

// SQLiteStore persists captured packets in a single SQLite file.
type SQLiteStore struct {
	db   *sql.DB
	lggr logger.Logger
}

func NewSQLiteStore(dbPath string, lggr logger.Logger) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows a single writer; one connection keeps Put transactions serialized.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}

	if err := RunSQLiteMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:   db,
		lggr: logger.With(lggr, "component", "SQLitePacketStore"),
	}
	s.lggr.Infow("SQLite packet store initialized", "dbPath", dbPath)
	return s, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id protocol.MessageID, sp protocol.StoredPacket) error {
	row := newPacketRow(id, sp)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO packets (header_hash, `+sqliteColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(message_id) DO NOTHING`,
		row.HeaderHash, row.MessageID, row.Nonce, row.SrcEid, row.Sender, row.DstEid,
		row.Receiver, row.GUID, row.Message, row.Options, row.CapturedAt,
	)
	if err != nil {
		return storageErr("failed to insert packet", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return storageErr("failed to read affected rows", err)
	}

	if inserted == 0 {
		existing, err := scanPacket(tx.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM packets WHERE message_id = ?`, row.MessageID))
		if err != nil {
			return storageErr("failed to load existing packet", err)
		}
		if !existing.SameContent(sp) {
			return fmt.Errorf("%w: a different packet is stored under %s", protocol.ErrDuplicateKey, id)
		}
		s.lggr.Debugw("Packet already stored", "messageID", id.String())
	}

	if err := tx.Commit(); err != nil {
		return storageErr("failed to commit transaction", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id protocol.MessageID) (protocol.StoredPacket, bool, error) {
	sp, err := scanPacket(s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM packets WHERE message_id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.StoredPacket{}, false, nil
	}
	if err != nil {
		return protocol.StoredPacket{}, false, storageErr("failed to query packet", err)
	}
	return sp, true, nil
}

func (s *SQLiteStore) GetByHeader(ctx context.Context, headerHash protocol.Bytes32) (protocol.StoredPacket, bool, error) {
	sp, err := scanPacket(s.db.QueryRowContext(ctx, `
		SELECT `+sqliteColumns+` FROM packets
		WHERE header_hash = ?
		ORDER BY rowid
		LIMIT 1`, headerHash.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return protocol.StoredPacket{}, false, nil
	}
	if err != nil {
		return protocol.StoredPacket{}, false, storageErr("failed to query packet by header", err)
	}
	return sp, true, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanPacket(row *sql.Row) (protocol.StoredPacket, error) {
	var r packetRow
	if err := row.Scan(&r.MessageID, &r.Nonce, &r.SrcEid, &r.Sender, &r.DstEid,
		&r.Receiver, &r.GUID, &r.Message, &r.Options, &r.CapturedAt); err != nil {
		return protocol.StoredPacket{}, err
	}
	return r.toStoredPacket()
}
