package chainaccess

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

type packetSentLog struct {
	EncodedPayload []byte
	Options        []byte
	SendLibrary    common.Address
}

type dvnFeePaidLog struct {
	RequiredDVNs []common.Address
	OptionalDVNs []common.Address
	Fees         []*big.Int
}

// DecodePacketSentLog unpacks an EndpointV2 PacketSent log.
func DecodePacketSentLog(srcEid protocol.ChainID, l types.Log) (protocol.PacketSentEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != packetSentEvent.ID {
		return protocol.PacketSentEvent{}, fmt.Errorf("%w: log is not PacketSent", protocol.ErrDecode)
	}
	var ev packetSentLog
	if err := EndpointV2ABI.UnpackIntoInterface(&ev, packetSentEvent.Name, l.Data); err != nil {
		return protocol.PacketSentEvent{}, fmt.Errorf("%w: PacketSent: %w", protocol.ErrDecode, err)
	}
	return protocol.PacketSentEvent{
		SrcEid:         srcEid,
		EncodedPayload: ev.EncodedPayload,
		Options:        ev.Options,
		SendLibrary:    ev.SendLibrary,
		Tx:             protocol.TxRef{Hash: l.TxHash, BlockNumber: l.BlockNumber},
	}, nil
}

// DecodeDVNFeePaidLog unpacks a send library DVNFeePaid log.
func DecodeDVNFeePaidLog(srcEid protocol.ChainID, l types.Log) (protocol.DVNAssignedEvent, error) {
	if len(l.Topics) == 0 || l.Topics[0] != dvnFeePaidEvent.ID {
		return protocol.DVNAssignedEvent{}, fmt.Errorf("%w: log is not DVNFeePaid", protocol.ErrDecode)
	}
	var ev dvnFeePaidLog
	if err := SendLibraryABI.UnpackIntoInterface(&ev, dvnFeePaidEvent.Name, l.Data); err != nil {
		return protocol.DVNAssignedEvent{}, fmt.Errorf("%w: DVNFeePaid: %w", protocol.ErrDecode, err)
	}
	return protocol.DVNAssignedEvent{
		SrcEid:            srcEid,
		RequiredVerifiers: ev.RequiredDVNs,
		OptionalVerifiers: ev.OptionalDVNs,
		Tx:                protocol.TxRef{Hash: l.TxHash, BlockNumber: l.BlockNumber},
	}, nil
}

// LogReader fetches LayerZero events from a source chain.
type LogReader struct {
	registry *Registry
}

func NewLogReader(registry *Registry) *LogReader {
	return &LogReader{registry: registry}
}

// LatestBlock returns the current head of chain.
func (r *LogReader) LatestBlock(ctx context.Context, chain protocol.ChainID) (uint64, error) {
	c, err := r.registry.Chain(chain)
	if err != nil {
		return 0, err
	}
	return c.Backend.BlockNumber(ctx)
}

// PacketSentEvents returns the PacketSent events emitted by the endpoint in [from, to].
func (r *LogReader) PacketSentEvents(ctx context.Context, chain protocol.ChainID, from, to uint64) ([]protocol.PacketSentEvent, error) {
	c, err := r.registry.Chain(chain)
	if err != nil {
		return nil, err
	}
	logs, err := filter(ctx, c, c.Endpoint, packetSentEvent.ID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.PacketSentEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := DecodePacketSentLog(chain, l)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

// DVNAssignedEvents returns the DVNFeePaid events emitted by the send library in [from, to].
func (r *LogReader) DVNAssignedEvents(ctx context.Context, chain protocol.ChainID, from, to uint64) ([]protocol.DVNAssignedEvent, error) {
	c, err := r.registry.Chain(chain)
	if err != nil {
		return nil, err
	}
	logs, err := filter(ctx, c, c.SendLibrary, dvnFeePaidEvent.ID, from, to)
	if err != nil {
		return nil, err
	}
	out := make([]protocol.DVNAssignedEvent, 0, len(logs))
	for _, l := range logs {
		ev, err := DecodeDVNFeePaidLog(chain, l)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, nil
}

func filter(ctx context.Context, c *Chain, address common.Address, topic common.Hash, from, to uint64) ([]types.Log, error) {
	logs, err := c.Backend.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{address},
		Topics:    [][]common.Hash{{topic}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to filter logs on chain %s [%d, %d]: %w", c.ID, from, to, err)
	}
	out := logs[:0]
	for _, l := range logs {
		if !l.Removed {
			out = append(out, l)
		}
	}
	return out, nil
}
