package chain

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// EventDecoder filters and decodes logs for a single event signature.
type EventDecoder struct {
	name   string
	topic0 common.Hash
	event  *abi.Event
}

// NewEventDecoder builds a decoder for the given full event signature,
// e.g. TokensLocked(address,uint256,address,address,uint256,bytes32).
// If contractABI carries an event with the same name its argument layout
// (including indexed flags) is used; otherwise a synthetic all-non-indexed
// event is derived from the signature.
func NewEventDecoder(signature string, contractABI *abi.ABI) (*EventDecoder, error) {
	name := eventName(signature)
	if name == signature {
		return nil, fmt.Errorf("invalid event signature: %s", signature)
	}

	var ev *abi.Event
	if contractABI != nil {
		if found, ok := contractABI.Events[name]; ok {
			ev = &found
		}
	}
	if ev == nil {
		synthetic, err := syntheticEvent(signature)
		if err != nil {
			return nil, err
		}
		ev = synthetic
	}

	return &EventDecoder{
		name:   name,
		topic0: crypto.Keccak256Hash([]byte(signature)),
		event:  ev,
	}, nil
}

// Name returns the bare event name.
func (d *EventDecoder) Name() string { return d.name }

// Topic0 returns the event signature hash used for log filtering.
func (d *EventDecoder) Topic0() common.Hash { return d.topic0 }

// Decode checks topic0 and unpacks the log into a normalized Event.
func (d *EventDecoder) Decode(lg types.Log) (*Event, bool, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != d.topic0 {
		return nil, false, nil
	}

	fields := map[string]any{}
	indexed, nonIndexed := splitIndexed(d.event.Inputs)
	if err := abi.ParseTopicsIntoMap(fields, indexed, lg.Topics[1:]); err != nil {
		return nil, false, fmt.Errorf("parse topics: %w", err)
	}
	if err := nonIndexed.UnpackIntoMap(fields, lg.Data); err != nil {
		return nil, false, fmt.Errorf("unpack data: %w", err)
	}

	return &Event{
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		TxIndex:     lg.TxIndex,
		LogIndex:    lg.Index,
		Fields:      fields,
	}, true, nil
}

func eventName(signature string) string {
	if i := strings.Index(signature, "("); i > 0 {
		return signature[:i]
	}
	return signature
}

// syntheticEvent builds a minimal ABI Event from a signature like Transfer(address,address,uint256).
// Indexed fields are not inferred; all arguments are treated as non-indexed.
func syntheticEvent(signature string) (*abi.Event, error) {
	l := strings.Index(signature, "(")
	r := strings.LastIndex(signature, ")")
	if l <= 0 || r <= l {
		return nil, fmt.Errorf("invalid event signature: %s", signature)
	}
	name := signature[:l]
	rawArgs := strings.Split(signature[l+1:r], ",")
	args := make(abi.Arguments, 0, len(rawArgs))
	for i, a := range rawArgs {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		t, err := abi.NewType(a, "", nil)
		if err != nil {
			return nil, fmt.Errorf("parse type %s: %w", a, err)
		}
		args = append(args, abi.Argument{Name: fmt.Sprintf("arg%d", i), Type: t})
	}
	return &abi.Event{
		Name:      name,
		Inputs:    args,
		Anonymous: false,
	}, nil
}

func splitIndexed(args abi.Arguments) (indexed abi.Arguments, nonIndexed abi.Arguments) {
	for _, a := range args {
		if a.Indexed {
			indexed = append(indexed, a)
		} else {
			nonIndexed = append(nonIndexed, a)
		}
	}
	return indexed, nonIndexed
}
