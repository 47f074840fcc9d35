// Package scanner turns planned block ranges into ordered event sequences.
package scanner

import (
	"context"
	"fmt"
	"sort"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/planner"
)

// ScanError reports a failed range query; the range is carried so the
// caller can retry the same window.
type ScanError struct {
	Range planner.Range
	Err   error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("scan %s failed: %v", e.Range, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// Scanner queries the chain over planned ranges.
type Scanner struct {
	client chain.Client
}

// New builds a scanner over the given chain client.
func New(client chain.Client) *Scanner {
	return &Scanner{client: client}
}

// Scan returns all matching events in r sorted by
// (BlockNumber, TxIndex, LogIndex). Provider ordering is not trusted.
// An empty range result is a valid empty slice, never an error.
func (s *Scanner) Scan(ctx context.Context, r planner.Range) ([]chain.Event, error) {
	events, err := s.client.FilterEvents(ctx, r.From, r.To)
	if err != nil {
		return nil, &ScanError{Range: r, Err: err}
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if a.BlockNumber != b.BlockNumber {
			return a.BlockNumber < b.BlockNumber
		}
		if a.TxIndex != b.TxIndex {
			return a.TxIndex < b.TxIndex
		}
		return a.LogIndex < b.LogIndex
	})

	return events, nil
}
