package chain

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// tokensLockedABI is the minimal bridge ABI carried in the binary so the
// relayer works without an ABI file for the default event.
const tokensLockedABI = `[
  {
    "anonymous": false,
    "inputs": [
      {"indexed": true, "internalType": "address", "name": "sender", "type": "address"},
      {"indexed": true, "internalType": "uint256", "name": "destinationChainId", "type": "uint256"},
      {"indexed": false, "internalType": "address", "name": "recipient", "type": "address"},
      {"indexed": false, "internalType": "address", "name": "token", "type": "address"},
      {"indexed": false, "internalType": "uint256", "name": "amount", "type": "uint256"},
      {"indexed": false, "internalType": "bytes32", "name": "transactionId", "type": "bytes32"}
    ],
    "name": "TokensLocked",
    "type": "event"
  }
]`

// DefaultABI parses the embedded bridge ABI.
func DefaultABI() (*abi.ABI, error) {
	a, err := abi.JSON(strings.NewReader(tokensLockedABI))
	if err != nil {
		return nil, fmt.Errorf("parse embedded abi: %w", err)
	}
	return &a, nil
}

// LoadABI reads an ABI JSON file; an empty path falls back to the embedded ABI.
func LoadABI(path string) (*abi.ABI, error) {
	if path == "" {
		return DefaultABI()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read abi %s: %w", path, err)
	}
	a, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse abi %s: %w", path, err)
	}
	return &a, nil
}
