package chainaccess

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math/big"
	"slices"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/smartcontractkit/chainlink-common/pkg/logger"

	"github.com/tangle-network/layerzero-dvn-template/protocol"
	"github.com/tangle-network/layerzero-dvn-template/verifier"
	"github.com/tangle-network/layerzero-dvn-template/verifier/pkg/confirmation"
)

// ErrChainNotConfigured is returned for an endpoint id without a configured chain.
var ErrChainNotConfigured = errors.New("chain not configured")

// Backend is the RPC surface used against one chain. *ethclient.Client implements it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// Chain is one configured chain: its client and the LayerZero contracts on it.
type Chain struct {
	ID             protocol.ChainID
	EVMChainID     *big.Int
	Backend        Backend
	Endpoint       common.Address
	SendLibrary    common.Address
	ReceiveLibrary common.Address
	StartBlock     uint64
	MaxBlockRange  uint64
	Listen         bool
}

// Registry resolves endpoint ids to chains.
type Registry struct {
	chains  map[protocol.ChainID]*Chain
	closers []func()
}

var _ confirmation.ClientResolver = (*Registry)(nil)

func NewRegistry(chains ...*Chain) *Registry {
	r := &Registry{chains: make(map[protocol.ChainID]*Chain, len(chains))}
	for _, c := range chains {
		r.chains[c.ID] = c
	}
	return r
}

// DialRegistry connects to every configured chain.
func DialRegistry(ctx context.Context, cfgs map[string]verifier.ChainConfig, lggr logger.Logger) (*Registry, error) {
	r := NewRegistry()
	for eid, cfg := range cfgs {
		id, err := verifier.ParseChainID(eid)
		if err != nil {
			r.Close()
			return nil, err
		}
		client, err := ethclient.DialContext(ctx, cfg.RPCURL)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to dial chain %s: %w", id, err)
		}
		r.closers = append(r.closers, client.Close)

		evmChainID, err := client.ChainID(ctx)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("failed to get chain id of chain %s: %w", id, err)
		}

		r.chains[id] = &Chain{
			ID:             id,
			EVMChainID:     evmChainID,
			Backend:        client,
			Endpoint:       common.HexToAddress(cfg.EndpointAddress),
			SendLibrary:    common.HexToAddress(cfg.SendLibraryAddress),
			ReceiveLibrary: common.HexToAddress(cfg.ReceiveLibraryAddress),
			StartBlock:     cfg.StartBlock,
			MaxBlockRange:  cfg.MaxBlockRange,
			Listen:         cfg.Listen,
		}
		lggr.Infow("Connected to chain", "eid", id, "evmChainID", evmChainID)
	}
	return r, nil
}

// Chain returns the chain for id.
func (r *Registry) Chain(id protocol.ChainID) (*Chain, error) {
	c, ok := r.chains[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChainNotConfigured, id)
	}
	return c, nil
}

// Client implements confirmation.ClientResolver.
func (r *Registry) Client(id protocol.ChainID) (confirmation.ChainClient, error) {
	c, err := r.Chain(id)
	if err != nil {
		return nil, err
	}
	return c.Backend, nil
}

// SourceChains returns the chains the listener scans, ordered by id.
func (r *Registry) SourceChains() []*Chain {
	var out []*Chain
	for _, id := range slices.Sorted(maps.Keys(r.chains)) {
		if c := r.chains[id]; c.Listen {
			out = append(out, c)
		}
	}
	return out
}

// Close releases the RPC connections opened by DialRegistry.
func (r *Registry) Close() {
	for _, c := range r.closers {
		c()
	}
	r.closers = nil
}
