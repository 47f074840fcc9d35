package relay

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/devblac/bridge-relay/internal/chain"
)

// Payload is the JSON body delivered to the destination API for one event.
type Payload struct {
	SourceTransactionHash string `json:"sourceTransactionHash"`
	SourceBlockNumber     uint64 `json:"sourceBlockNumber"`
	LogIndex              uint   `json:"logIndex"`
	Body                  Body   `json:"payload"`
}

// Body carries the decoded bridge transfer. Amount is a decimal string
// so large values survive JSON number handling on the destination side.
type Body struct {
	Sender           string `json:"sender"`
	Recipient        string `json:"recipient"`
	Token            string `json:"token"`
	Amount           string `json:"amount"`
	UniqueBridgeTxID string `json:"uniqueBridgeTxId"`
}

// NewPayload shapes a decoded chain event into the destination contract.
func NewPayload(ev chain.Event) Payload {
	return Payload{
		SourceTransactionHash: ev.TxHash,
		SourceBlockNumber:     ev.BlockNumber,
		LogIndex:              ev.LogIndex,
		Body: Body{
			Sender:           fieldString(ev.Fields["sender"]),
			Recipient:        fieldString(ev.Fields["recipient"]),
			Token:            fieldString(ev.Fields["token"]),
			Amount:           fieldString(ev.Fields["amount"]),
			UniqueBridgeTxID: fieldString(ev.Fields["transactionId"]),
		},
	}
}

func fieldString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case [32]byte:
		return common.BytesToHash(t[:]).Hex()
	case *big.Int:
		if t == nil {
			return ""
		}
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
