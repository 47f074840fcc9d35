package chain

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const lockedSig = "TokensLocked(address,uint256,address,address,uint256,bytes32)"

type fakeClient struct {
	latest    uint64
	logs      []types.Log
	lastQuery ethereum.FilterQuery
}

func (f *fakeClient) HeaderByNumber(_ context.Context, number *big.Int) (*types.Header, error) {
	if number == nil {
		return &types.Header{Number: new(big.Int).SetUint64(f.latest)}, nil
	}
	return &types.Header{Number: number}, nil
}

func (f *fakeClient) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	f.lastQuery = q
	return f.logs, nil
}

func lockedLog(t *testing.T, block uint64, txIndex, logIndex uint) types.Log {
	t.Helper()
	sender := common.HexToAddress("0x0000000000000000000000000000000000000001")
	recipient := common.HexToAddress("0x0000000000000000000000000000000000000002")
	token := common.HexToAddress("0x0000000000000000000000000000000000000003")

	data := make([]byte, 0, 4*32)
	data = append(data, common.LeftPadBytes(recipient.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(token.Bytes(), 32)...)
	data = append(data, common.LeftPadBytes(big.NewInt(1000).Bytes(), 32)...)
	data = append(data, common.HexToHash("0xfeed").Bytes()...)

	return types.Log{
		Address: common.HexToAddress("0x00000000219ab540356cBB839Cbe05303d7705Fa"),
		Topics: []common.Hash{
			crypto.Keccak256Hash([]byte(lockedSig)),
			common.BytesToHash(common.LeftPadBytes(sender.Bytes(), 32)),
			common.BigToHash(big.NewInt(5)),
		},
		Data:        data,
		TxHash:      common.HexToHash("0xabc"),
		BlockNumber: block,
		TxIndex:     txIndex,
		Index:       logIndex,
	}
}

func newTestDecoder(t *testing.T) *EventDecoder {
	t.Helper()
	a, err := DefaultABI()
	if err != nil {
		t.Fatalf("default abi: %v", err)
	}
	dec, err := NewEventDecoder(lockedSig, a)
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	return dec
}

func TestDecoderDecodesTokensLocked(t *testing.T) {
	dec := newTestDecoder(t)

	ev, ok, err := dec.Decode(lockedLog(t, 42, 3, 7))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !ok {
		t.Fatalf("expected log to match")
	}

	if ev.BlockNumber != 42 || ev.TxIndex != 3 || ev.LogIndex != 7 {
		t.Fatalf("position fields wrong: %+v", ev)
	}

	sender, ok := ev.Fields["sender"].(common.Address)
	if !ok || sender != common.HexToAddress("0x0000000000000000000000000000000000000001") {
		t.Fatalf("sender = %v", ev.Fields["sender"])
	}
	chainID, ok := ev.Fields["destinationChainId"].(*big.Int)
	if !ok || chainID.Int64() != 5 {
		t.Fatalf("destinationChainId = %v", ev.Fields["destinationChainId"])
	}
	amount, ok := ev.Fields["amount"].(*big.Int)
	if !ok || amount.Int64() != 1000 {
		t.Fatalf("amount = %v", ev.Fields["amount"])
	}
	if _, ok := ev.Fields["transactionId"].([32]byte); !ok {
		t.Fatalf("transactionId = %T", ev.Fields["transactionId"])
	}
}

func TestDecoderIgnoresOtherTopics(t *testing.T) {
	dec := newTestDecoder(t)

	lg := lockedLog(t, 1, 0, 0)
	lg.Topics[0] = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

	_, ok, err := dec.Decode(lg)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if ok {
		t.Fatalf("expected non-matching topic0 to be skipped")
	}
}

func TestDecoderRejectsBareName(t *testing.T) {
	if _, err := NewEventDecoder("TokensLocked", nil); err == nil {
		t.Fatalf("expected signature without arguments to fail")
	}
}

func TestSourceLatestHeight(t *testing.T) {
	fc := &fakeClient{latest: 1234}
	src := NewSource(fc, "0x00000000219ab540356cBB839Cbe05303d7705Fa", newTestDecoder(t))

	h, err := src.LatestHeight(context.Background())
	if err != nil {
		t.Fatalf("latest height: %v", err)
	}
	if h != 1234 {
		t.Fatalf("height = %d, want 1234", h)
	}
}

func TestSourceFilterEventsDecodesAndScopesQuery(t *testing.T) {
	fc := &fakeClient{logs: []types.Log{lockedLog(t, 10, 0, 2)}}
	dec := newTestDecoder(t)
	src := NewSource(fc, "0x00000000219ab540356cBB839Cbe05303d7705Fa", dec)

	events, err := src.FilterEvents(context.Background(), 10, 20)
	if err != nil {
		t.Fatalf("filter events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].BlockNumber != 10 || events[0].LogIndex != 2 {
		t.Fatalf("unexpected event: %+v", events[0])
	}

	q := fc.lastQuery
	if q.FromBlock.Uint64() != 10 || q.ToBlock.Uint64() != 20 {
		t.Fatalf("range not forwarded: %v-%v", q.FromBlock, q.ToBlock)
	}
	if len(q.Topics) != 1 || len(q.Topics[0]) != 1 || q.Topics[0][0] != dec.Topic0() {
		t.Fatalf("topic filter not applied: %v", q.Topics)
	}
}
