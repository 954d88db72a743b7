package chainaccess

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

var _ protocol.VerificationSubmitter = (*Submitter)(nil)

// Submitter calls verify on the destination receive library with the node key.
type Submitter struct {
	lggr     logger.Logger
	registry *Registry
	key      *ecdsa.PrivateKey

	// one in-flight transaction per chain keeps nonces ordered
	mu    sync.Mutex
	locks map[protocol.ChainID]*sync.Mutex
}

func NewSubmitter(registry *Registry, key *ecdsa.PrivateKey, lggr logger.Logger) *Submitter {
	return &Submitter{
		lggr:     logger.With(lggr, "component", "Submitter"),
		registry: registry,
		key:      key,
		locks:    make(map[protocol.ChainID]*sync.Mutex),
	}
}

func (s *Submitter) chainLock(id protocol.ChainID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// SubmitVerification sends verify(header, payloadHash, confirmations) and
// waits for the receipt. It returns true when the transaction succeeded.
func (s *Submitter) SubmitVerification(ctx context.Context, req protocol.VerificationRequest) (bool, error) {
	c, err := s.registry.Chain(req.DstEid)
	if err != nil {
		return false, err
	}

	lock := s.chainLock(c.ID)
	lock.Lock()
	defer lock.Unlock()

	contract := bind.NewBoundContract(c.ReceiveLibrary, ReceiveLibraryABI, c.Backend, c.Backend, c.Backend)
	opts := bind.NewKeyedTransactor(s.key, c.EVMChainID)
	opts.Context = ctx

	tx, err := contract.Transact(opts, "verify", req.Header, [32]byte(req.PayloadHash), req.Confirmations)
	if err != nil {
		return false, fmt.Errorf("failed to send verify on chain %s: %w", c.ID, err)
	}
	s.lggr.Infow("Submitted verification", "messageID", req.MessageID, "dstEid", c.ID, "txHash", tx.Hash().Hex())

	receipt, err := bind.WaitMined(ctx, c.Backend, tx.Hash())
	if err != nil {
		return false, fmt.Errorf("failed waiting for verify tx %s: %w", tx.Hash().Hex(), err)
	}
	ok := receipt.Status == types.ReceiptStatusSuccessful
	if !ok {
		s.lggr.Warnw("Verification transaction reverted", "messageID", req.MessageID, "txHash", tx.Hash().Hex())
	}
	return ok, nil
}
