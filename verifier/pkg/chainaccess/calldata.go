package chainaccess

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ protocol.CallDataReader = (*CallDataReader)(nil)

type assignJobParam struct {
	DstEid        uint32
	PacketHeader  []byte
	PayloadHash   [32]byte
	Confirmations uint64
	Sender        common.Address
}

// DecodeAssignJob decodes assignJob call data into assignment parameters.
func DecodeAssignJob(input []byte) (protocol.AssignmentParams, error) {
	if len(input) < 4 || !bytes.Equal(input[:4], assignJobMethod.ID) {
		return protocol.AssignmentParams{}, fmt.Errorf("%w: call data is not assignJob", protocol.ErrDecode)
	}
	values, err := assignJobMethod.Inputs.Unpack(input[4:])
	if err != nil {
		return protocol.AssignmentParams{}, fmt.Errorf("%w: assignJob: %w", protocol.ErrDecode, err)
	}
	param := *abi.ConvertType(values[0], new(assignJobParam)).(*assignJobParam)

	header, err := protocol.DecodeHeader(param.PacketHeader)
	if err != nil {
		return protocol.AssignmentParams{}, err
	}
	if header.DstEid != protocol.ChainID(param.DstEid) {
		return protocol.AssignmentParams{}, fmt.Errorf("%w: assignJob dstEid %d differs from header dstEid %d",
			protocol.ErrDecode, param.DstEid, header.DstEid)
	}

	return protocol.AssignmentParams{
		Nonce:         header.Nonce,
		SrcEid:        header.SrcEid,
		Sender:        header.Sender,
		DstEid:        header.DstEid,
		Receiver:      header.Receiver,
		PayloadHash:   param.PayloadHash,
		Confirmations: param.Confirmations,
		JobSender:     param.Sender,
	}, nil
}

// EncodeAssignJob packs assignJob call data. The send library produces this
// on chain; the node uses it in tooling and tests.
func EncodeAssignJob(a protocol.AssignmentParams, options []byte) ([]byte, error) {
	return DVNABI.Pack(assignJobMethod.Name, assignJobParam{
		DstEid:        uint32(a.DstEid),
		PacketHeader:  a.Header().Encode(),
		PayloadHash:   a.PayloadHash,
		Confirmations: a.Confirmations,
		Sender:        a.JobSender,
	}, options)
}

// CallDataReader recovers assignment parameters from the transaction that
// assigned the job.
//
// A transaction calling assignJob directly is decoded from its input. A
// regular send transaction, where the send library assigns the job
// internally, is resolved from the PacketSent logs the endpoint emitted in
// the same transaction: the ordinal-th one, in log order.
type CallDataReader struct {
	registry *Registry
}

func NewCallDataReader(registry *Registry) *CallDataReader {
	return &CallDataReader{registry: registry}
}

func (r *CallDataReader) AssignmentParams(ctx context.Context, chain protocol.ChainID, ref protocol.TxRef, ordinal int) (protocol.AssignmentParams, error) {
	if ordinal < 0 {
		return protocol.AssignmentParams{}, fmt.Errorf("%w: negative assignment ordinal %d", protocol.ErrDecode, ordinal)
	}
	c, err := r.registry.Chain(chain)
	if err != nil {
		return protocol.AssignmentParams{}, err
	}

	tx, _, err := c.Backend.TransactionByHash(ctx, ref.Hash)
	if err != nil {
		return protocol.AssignmentParams{}, fmt.Errorf("failed to get transaction %s: %w", ref.Hash.Hex(), err)
	}
	if input := tx.Data(); len(input) >= 4 && bytes.Equal(input[:4], assignJobMethod.ID) {
		if ordinal != 0 {
			return protocol.AssignmentParams{}, fmt.Errorf("%w: assignJob transaction %s carries a single assignment, asked for #%d",
				protocol.ErrDecode, ref.Hash.Hex(), ordinal)
		}
		return DecodeAssignJob(input)
	}

	receipt, err := c.Backend.TransactionReceipt(ctx, ref.Hash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return protocol.AssignmentParams{}, fmt.Errorf("transaction %s not mined yet: %w", ref.Hash.Hex(), err)
		}
		return protocol.AssignmentParams{}, fmt.Errorf("failed to get receipt %s: %w", ref.Hash.Hex(), err)
	}
	seen := 0
	for _, l := range receipt.Logs {
		if l.Address != c.Endpoint || len(l.Topics) == 0 || l.Topics[0] != packetSentEvent.ID {
			continue
		}
		if seen < ordinal {
			seen++
			continue
		}
		ev, err := DecodePacketSentLog(chain, *l)
		if err != nil {
			return protocol.AssignmentParams{}, err
		}
		packet, err := protocol.DecodePacket(ev.EncodedPayload)
		if err != nil {
			return protocol.AssignmentParams{}, err
		}
		return protocol.AssignmentParams{
			Nonce:       packet.Nonce,
			SrcEid:      packet.SrcEid,
			Sender:      packet.Sender,
			DstEid:      packet.DstEid,
			Receiver:    packet.Receiver,
			PayloadHash: packet.PayloadHash(),
			JobSender:   ev.SendLibrary,
		}, nil
	}
	return protocol.AssignmentParams{}, fmt.Errorf("%w: transaction %s carries no assignment #%d", protocol.ErrDecode, ref.Hash.Hex(), ordinal)
}
