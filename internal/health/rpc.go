package health

import (
	"context"
	"fmt"

	"github.com/devblac/bridge-relay/internal/chain"
)

// RPCChecker probes the source chain endpoint.
type RPCChecker struct {
	client chain.Client
}

// NewRPCChecker creates a checker over the relayer's chain client.
func NewRPCChecker(client chain.Client) *RPCChecker {
	return &RPCChecker{client: client}
}

// Ping queries the chain tip to verify connectivity.
func (c *RPCChecker) Ping(ctx context.Context) error {
	if _, err := c.client.LatestHeight(ctx); err != nil {
		return fmt.Errorf("source chain: %w", err)
	}
	return nil
}
