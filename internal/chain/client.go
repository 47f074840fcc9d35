package chain

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Event is one decoded occurrence of the watched contract event.
// Immutable once produced; (BlockNumber, TxIndex, LogIndex) gives a
// total order within and across blocks.
type Event struct {
	BlockNumber uint64
	TxHash      string
	TxIndex     uint
	LogIndex    uint
	Fields      map[string]any
}

// Client is the chain access surface the relayer consumes.
type Client interface {
	LatestHeight(ctx context.Context) (uint64, error)
	FilterEvents(ctx context.Context, from, to uint64) ([]Event, error)
}

// BlockClient captures the subset of ethclient used by the source.
type BlockClient interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// RPCClient is a thin wrapper over ethclient.Client that satisfies BlockClient.
type RPCClient struct {
	*ethclient.Client
}

// NewRPCClient builds an RPC client to an EVM node.
func NewRPCClient(rpcURL string) (*RPCClient, error) {
	c, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial evm rpc: %w", err)
	}
	return &RPCClient{Client: c}, nil
}

// Source implements Client for one contract and one event type.
type Source struct {
	client  BlockClient
	address common.Address
	decoder *EventDecoder
}

// NewSource builds a chain source watching contract for the decoder's event.
func NewSource(client BlockClient, contract string, decoder *EventDecoder) *Source {
	return &Source{
		client:  client,
		address: common.HexToAddress(contract),
		decoder: decoder,
	}
}

// LatestHeight returns the current chain tip height.
func (s *Source) LatestHeight(ctx context.Context) (uint64, error) {
	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("latest header: %w", err)
	}
	return header.Number.Uint64(), nil
}

// FilterEvents queries and decodes matching logs in [from, to], both inclusive.
// Ordering of the result follows the node's response; callers that need the
// canonical order must sort.
func (s *Source) FilterEvents(ctx context.Context, from, to uint64) ([]Event, error) {
	logs, err := s.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: []common.Address{s.address},
		Topics:    [][]common.Hash{{s.decoder.Topic0()}},
	})
	if err != nil {
		return nil, fmt.Errorf("filter logs [%d, %d]: %w", from, to, err)
	}

	events := make([]Event, 0, len(logs))
	for _, lg := range logs {
		ev, ok, err := s.decoder.Decode(lg)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		events = append(events, *ev)
	}
	return events, nil
}
