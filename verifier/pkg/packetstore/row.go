package packetstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

// packetRow is the column layout shared by the SQL stores. Nonces are kept
// as decimal text because SQL integers are signed.
type packetRow struct {
	MessageID  string `db:"message_id"`
	HeaderHash string `db:"header_hash"`
	Nonce      string `db:"nonce"`
	SrcEid     int64  `db:"src_eid"`
	Sender     string `db:"sender"`
	DstEid     int64  `db:"dst_eid"`
	Receiver   string `db:"receiver"`
	GUID       string `db:"guid"`
	Message    []byte `db:"message"`
	Options    []byte `db:"options"`
	CapturedAt int64  `db:"captured_at"`
}

func newPacketRow(id protocol.MessageID, sp protocol.StoredPacket) packetRow {
	p := sp.Packet
	return packetRow{
		MessageID:  id.String(),
		HeaderHash: p.Header().Hash().String(),
		Nonce:      p.Nonce.String(),
		SrcEid:     int64(p.SrcEid),
		Sender:     p.Sender.String(),
		DstEid:     int64(p.DstEid),
		Receiver:   p.Receiver.String(),
		GUID:       p.GUID.String(),
		Message:    nonNil(p.Message),
		Options:    nonNil(sp.Options),
		CapturedAt: sp.CapturedAt.Unix(),
	}
}

func (r packetRow) toStoredPacket() (protocol.StoredPacket, error) {
	nonce, err := strconv.ParseUint(r.Nonce, 10, 64)
	if err != nil {
		return protocol.StoredPacket{}, fmt.Errorf("invalid nonce %q: %w", r.Nonce, err)
	}
	sender, err := protocol.NewBytes32FromString(r.Sender)
	if err != nil {
		return protocol.StoredPacket{}, fmt.Errorf("invalid sender: %w", err)
	}
	receiver, err := protocol.NewBytes32FromString(r.Receiver)
	if err != nil {
		return protocol.StoredPacket{}, fmt.Errorf("invalid receiver: %w", err)
	}
	guid, err := protocol.NewBytes32FromString(r.GUID)
	if err != nil {
		return protocol.StoredPacket{}, fmt.Errorf("invalid guid: %w", err)
	}

	return protocol.StoredPacket{
		Packet: protocol.Packet{
			Nonce:    protocol.Nonce(nonce),
			SrcEid:   protocol.ChainID(r.SrcEid),
			Sender:   sender,
			DstEid:   protocol.ChainID(r.DstEid),
			Receiver: receiver,
			GUID:     guid,
			Message:  protocol.ByteSlice(r.Message),
		},
		Options:    protocol.ByteSlice(r.Options),
		CapturedAt: time.Unix(r.CapturedAt, 0).UTC(),
	}, nil
}

// Drivers may store nil as NULL, which the NOT NULL columns reject.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", protocol.ErrStorageUnavailable, op, err)
}
