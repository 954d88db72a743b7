package chainaccess

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var (
	endpointAddr = common.HexToAddress("0x1a44076050125825900e736c501f859c50fE728c")
	sendLibAddr  = common.HexToAddress("0xbB2Ea70C9E858123480642Cf96acbcCE1372dCe1")
	recvLibAddr  = common.HexToAddress("0xc02Ab410f0734EFa3F14628780e6e695156024C2")
	dvnAddr      = common.HexToAddress("0x589dEDbD617e0CBcB916A9223F4d1300c294236b")
)

// fakeBackend implements the Backend methods the tests exercise; anything
// else panics through the nil embedded interface.
type fakeBackend struct {
	Backend

	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	logs     []types.Log
	query    ethereum.FilterQuery
	call     func(msg ethereum.CallMsg) ([]byte, error)
	head     uint64
}

func (f *fakeBackend) TransactionByHash(_ context.Context, h common.Hash) (*types.Transaction, bool, error) {
	tx, ok := f.txs[h]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, h common.Hash) (*types.Receipt, error) {
	r, ok := f.receipts[h]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (f *fakeBackend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.query = q
	return f.logs, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.call(msg)
}

func (f *fakeBackend) BlockNumber(context.Context) (uint64, error) {
	return f.head, nil
}

func testRegistry(b *fakeBackend) *Registry {
	return NewRegistry(&Chain{
		ID:             1,
		EVMChainID:     big.NewInt(1),
		Backend:        b,
		Endpoint:       endpointAddr,
		SendLibrary:    sendLibAddr,
		ReceiveLibrary: recvLibAddr,
		Listen:         true,
	}, &Chain{ID: 2, EVMChainID: big.NewInt(10), Backend: b, ReceiveLibrary: recvLibAddr})
}

func packetSentLogFor(t *testing.T, p protocol.Packet, options []byte) types.Log {
	t.Helper()
	data, err := packetSentEvent.Inputs.Pack([]byte(protocol.EncodePacket(p)), options, sendLibAddr)
	require.NoError(t, err)
	return types.Log{
		Address:     endpointAddr,
		Topics:      []common.Hash{packetSentEvent.ID},
		Data:        data,
		TxHash:      common.HexToHash("0xaa"),
		BlockNumber: 42,
	}
}

func TestDecodePacketSentLog(t *testing.T) {
	p := protocol.NewTestPacket()
	ev, err := DecodePacketSentLog(1, packetSentLogFor(t, p, []byte{0x00, 0x03}))
	require.NoError(t, err)
	require.Equal(t, protocol.ChainID(1), ev.SrcEid)
	require.Equal(t, sendLibAddr, ev.SendLibrary)
	require.Equal(t, protocol.ByteSlice{0x00, 0x03}, ev.Options)
	require.Equal(t, protocol.TxRef{Hash: common.HexToHash("0xaa"), BlockNumber: 42}, ev.Tx)

	decoded, err := protocol.DecodePacket(ev.EncodedPayload)
	require.NoError(t, err)
	require.True(t, p.Equal(decoded))

	_, err = DecodePacketSentLog(1, types.Log{Topics: []common.Hash{dvnFeePaidEvent.ID}})
	require.ErrorIs(t, err, protocol.ErrDecode)

	_, err = DecodePacketSentLog(1, types.Log{Topics: []common.Hash{packetSentEvent.ID}, Data: []byte{0x01}})
	require.ErrorIs(t, err, protocol.ErrDecode)
}

func TestDecodeDVNFeePaidLog(t *testing.T) {
	other := common.HexToAddress("0x01")
	data, err := dvnFeePaidEvent.Inputs.Pack(
		[]common.Address{dvnAddr}, []common.Address{other}, []*big.Int{big.NewInt(5), big.NewInt(7)})
	require.NoError(t, err)

	ev, err := DecodeDVNFeePaidLog(1, types.Log{Topics: []common.Hash{dvnFeePaidEvent.ID}, Data: data, BlockNumber: 9})
	require.NoError(t, err)
	require.Equal(t, []common.Address{dvnAddr}, ev.RequiredVerifiers)
	require.Equal(t, []common.Address{other}, ev.OptionalVerifiers)
	require.True(t, ev.Selects(dvnAddr))
	require.True(t, ev.Selects(other))
	require.Equal(t, uint64(9), ev.Tx.BlockNumber)
}

func TestAssignJobRoundTrip(t *testing.T) {
	a := protocol.AssignmentFor(protocol.NewTestPacket())
	a.Confirmations = 15
	a.JobSender = sendLibAddr

	input, err := EncodeAssignJob(a, []byte{0x01})
	require.NoError(t, err)

	decoded, err := DecodeAssignJob(input)
	require.NoError(t, err)
	require.Equal(t, a, decoded)
	require.Equal(t, protocol.DeriveMessageIDFromAssignment(a), protocol.DeriveMessageIDFromAssignment(decoded))
}

func TestDecodeAssignJob_Rejects(t *testing.T) {
	_, err := DecodeAssignJob([]byte{0x01, 0x02})
	require.ErrorIs(t, err, protocol.ErrDecode)

	// header too short for the packet header layout
	input, err := DVNABI.Pack("assignJob", assignJobParam{DstEid: 2, PacketHeader: []byte{0x01, 0x02}}, []byte{})
	require.NoError(t, err)
	_, err = DecodeAssignJob(input)
	require.ErrorIs(t, err, protocol.ErrDecode)

	// dstEid disagrees with the header
	a := protocol.AssignmentFor(protocol.NewTestPacket())
	input, err = DVNABI.Pack("assignJob", assignJobParam{DstEid: 99, PacketHeader: a.Header().Encode()}, []byte{})
	require.NoError(t, err)
	_, err = DecodeAssignJob(input)
	require.ErrorIs(t, err, protocol.ErrDecode)
}

func TestCallDataReader(t *testing.T) {
	p := protocol.NewTestPacket()
	a := protocol.AssignmentFor(p)
	a.Confirmations = 3
	a.JobSender = sendLibAddr
	input, err := EncodeAssignJob(a, nil)
	require.NoError(t, err)

	assignTx := types.NewTx(&types.LegacyTx{Data: input})
	sendTx := types.NewTx(&types.LegacyTx{Nonce: 1, Data: []byte{0xde, 0xad, 0xbe, 0xef}})
	bareTx := types.NewTx(&types.LegacyTx{Nonce: 2})
	sentLog := packetSentLogFor(t, p, nil)

	backend := &fakeBackend{
		txs: map[common.Hash]*types.Transaction{
			assignTx.Hash(): assignTx,
			sendTx.Hash():   sendTx,
			bareTx.Hash():   bareTx,
		},
		receipts: map[common.Hash]*types.Receipt{
			sendTx.Hash(): {Logs: []*types.Log{&sentLog}},
			bareTx.Hash(): {},
		},
	}
	reader := NewCallDataReader(testRegistry(backend))
	ctx := context.Background()

	got, err := reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: assignTx.Hash()}, 0)
	require.NoError(t, err)
	require.Equal(t, a, got)

	got, err = reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: sendTx.Hash()}, 0)
	require.NoError(t, err)
	require.Equal(t, protocol.DeriveMessageID(p), protocol.DeriveMessageIDFromAssignment(got))
	require.Equal(t, sendLibAddr, got.JobSender)

	_, err = reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: bareTx.Hash()}, 0)
	require.ErrorIs(t, err, protocol.ErrDecode)

	_, err = reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: common.HexToHash("0x404")}, 0)
	require.ErrorIs(t, err, ethereum.NotFound)

	_, err = reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: assignTx.Hash()}, 1)
	require.ErrorIs(t, err, protocol.ErrDecode)

	_, err = reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: sendTx.Hash()}, 1)
	require.ErrorIs(t, err, protocol.ErrDecode)

	_, err = reader.AssignmentParams(ctx, 1, protocol.TxRef{Hash: sendTx.Hash()}, -1)
	require.ErrorIs(t, err, protocol.ErrDecode)

	_, err = reader.AssignmentParams(ctx, 7, protocol.TxRef{Hash: assignTx.Hash()}, 0)
	require.ErrorIs(t, err, ErrChainNotConfigured)
}

func TestCallDataReader_SelectsPacketByOrdinal(t *testing.T) {
	first := protocol.NewTestPacket()
	second := protocol.NewTestPacket()
	second.Nonce = 2
	second.Message = protocol.ByteSlice("second")

	batchTx := types.NewTx(&types.LegacyTx{Nonce: 3, Data: []byte{0xca, 0xfe}})
	firstLog := packetSentLogFor(t, first, nil)
	foreign := types.Log{Address: common.HexToAddress("0x99"), Topics: []common.Hash{packetSentEvent.ID}}
	secondLog := packetSentLogFor(t, second, nil)

	backend := &fakeBackend{
		txs:      map[common.Hash]*types.Transaction{batchTx.Hash(): batchTx},
		receipts: map[common.Hash]*types.Receipt{batchTx.Hash(): {Logs: []*types.Log{&firstLog, &foreign, &secondLog}}},
	}
	reader := NewCallDataReader(testRegistry(backend))
	ctx := context.Background()
	ref := protocol.TxRef{Hash: batchTx.Hash()}

	got, err := reader.AssignmentParams(ctx, 1, ref, 0)
	require.NoError(t, err)
	require.Equal(t, protocol.DeriveMessageID(first), protocol.DeriveMessageIDFromAssignment(got))

	got, err = reader.AssignmentParams(ctx, 1, ref, 1)
	require.NoError(t, err)
	require.Equal(t, protocol.DeriveMessageID(second), protocol.DeriveMessageIDFromAssignment(got))

	_, err = reader.AssignmentParams(ctx, 1, ref, 2)
	require.ErrorIs(t, err, protocol.ErrDecode)
}

func TestVerifiedStateReader(t *testing.T) {
	p := protocol.NewTestPacket()
	req := protocol.VerificationRequest{
		MessageID:     protocol.DeriveMessageID(p),
		DstEid:        2,
		Header:        protocol.EncodeHeader(p),
		PayloadHash:   p.PayloadHash(),
		Confirmations: 10,
	}

	tests := []struct {
		name          string
		submitted     bool
		confirmations uint64
		want          bool
	}{
		{"submitted with enough confirmations", true, 10, true},
		{"submitted with fewer confirmations", true, 5, false},
		{"not submitted", false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{call: func(msg ethereum.CallMsg) ([]byte, error) {
				require.Equal(t, recvLibAddr, *msg.To)
				args, err := ReceiveLibraryABI.Methods["hashLookup"].Inputs.Unpack(msg.Data[4:])
				require.NoError(t, err)
				require.Equal(t, [32]byte(req.HeaderHash()), args[0])
				require.Equal(t, [32]byte(req.PayloadHash), args[1])
				require.Equal(t, dvnAddr, args[2])
				return ReceiveLibraryABI.Methods["hashLookup"].Outputs.Pack(tt.submitted, tt.confirmations)
			}}
			reader := NewVerifiedStateReader(testRegistry(backend), dvnAddr)
			ok, err := reader.IsVerified(context.Background(), req)
			require.NoError(t, err)
			require.Equal(t, tt.want, ok)
		})
	}

	backend := &fakeBackend{call: func(ethereum.CallMsg) ([]byte, error) { return nil, errors.New("execution reverted") }}
	_, err := NewVerifiedStateReader(testRegistry(backend), dvnAddr).IsVerified(context.Background(), req)
	require.ErrorContains(t, err, "execution reverted")
}

func TestLogReader(t *testing.T) {
	p := protocol.NewTestPacket()
	removed := packetSentLogFor(t, p, nil)
	removed.Removed = true
	backend := &fakeBackend{logs: []types.Log{packetSentLogFor(t, p, nil), removed}, head: 77}
	reader := NewLogReader(testRegistry(backend))

	head, err := reader.LatestBlock(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint64(77), head)

	events, err := reader.PacketSentEvents(context.Background(), 1, 10, 20)
	require.NoError(t, err)
	require.Len(t, events, 1)
	require.Equal(t, []common.Address{endpointAddr}, backend.query.Addresses)
	require.Equal(t, big.NewInt(10), backend.query.FromBlock)
	require.Equal(t, big.NewInt(20), backend.query.ToBlock)
	require.Equal(t, packetSentEvent.ID, backend.query.Topics[0][0])
}

func TestRegistry(t *testing.T) {
	r := testRegistry(&fakeBackend{})

	c, err := r.Chain(2)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(10), c.EVMChainID)

	_, err = r.Client(3)
	require.ErrorIs(t, err, ErrChainNotConfigured)

	sources := r.SourceChains()
	require.Len(t, sources, 1)
	require.Equal(t, protocol.ChainID(1), sources[0].ID)
}
