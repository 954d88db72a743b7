package confirmation

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
)

const (
	anchorCacheSize = 4096
	anchorTTL       = 24 * time.Hour
)

var _ protocol.ConfirmationReader = (*EVMReader)(nil)

// ChainClient is the subset of ethclient.Client the reader needs.
type ChainClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ClientResolver returns the client for a chain.
type ClientResolver interface {
	Client(chain protocol.ChainID) (ChainClient, error)
}

type anchorKey struct {
	chain protocol.ChainID
	tx    common.Hash
}

// EVMReader derives confirmations from the chain head and the block the
// referenced transaction was included in.
//
// A transaction that was not mined on the polled chain, such as a source
// assignment polled on the destination, is anchored at the first head the
// reader observes for it on that chain. Its confirmations count the blocks
// produced on that chain since. Block numbers are never compared across chains.
type EVMReader struct {
	clients ClientResolver

	mu      sync.Mutex
	anchors *expirable.LRU[anchorKey, uint64]
}

func NewEVMReader(clients ClientResolver) *EVMReader {
	return &EVMReader{
		clients: clients,
		anchors: expirable.NewLRU[anchorKey, uint64](anchorCacheSize, nil, anchorTTL),
	}
}

// ConfirmationStatus reports the depth of ref on chain. A ref without a
// hash names a block on chain directly.
func (r *EVMReader) ConfirmationStatus(ctx context.Context, chain protocol.ChainID, ref protocol.TxRef) (protocol.ConfirmationStatus, error) {
	client, err := r.clients.Client(chain)
	if err != nil {
		return protocol.ConfirmationStatus{}, err
	}

	head, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return protocol.ConfirmationStatus{}, fmt.Errorf("failed to get head: %w", err)
	}
	current := head.Number.Uint64()
	status := protocol.ConfirmationStatus{CurrentBlock: current}

	included := ref.BlockNumber
	if ref.Hash != (common.Hash{}) {
		receipt, err := client.TransactionReceipt(ctx, ref.Hash)
		switch {
		case errors.Is(err, ethereum.NotFound):
			included = r.anchor(anchorKey{chain: chain, tx: ref.Hash}, current)
		case err != nil:
			return protocol.ConfirmationStatus{}, fmt.Errorf("failed to get receipt for %s: %w", ref.Hash.Hex(), err)
		default:
			included = receipt.BlockNumber.Uint64()
		}
	}

	if included == 0 || included > current {
		return status, nil
	}
	status.Confirmations = current - included
	return status, nil
}

// anchor returns the head first observed for key, recording current when none is.
func (r *EVMReader) anchor(key anchorKey, current uint64) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	if first, ok := r.anchors.Get(key); ok {
		return first
	}
	r.anchors.Add(key, current)
	return current
}
