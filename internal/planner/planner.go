// Package planner computes the next safe block window to scan.
package planner

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSafeRange means the chain is still shorter than the confirmation depth.
	ErrNoSafeRange = errors.New("no block is confirmed deep enough to scan")
	// ErrNoNewBlocks means the safe head has not advanced past the checkpoint.
	ErrNoNewBlocks = errors.New("no new confirmed blocks since checkpoint")
)

// Range is an inclusive block window. Ephemeral; only To ever becomes a checkpoint.
type Range struct {
	From uint64
	To   uint64
}

// Len returns the number of blocks covered by the range.
func (r Range) Len() uint64 { return r.To - r.From + 1 }

func (r Range) String() string { return fmt.Sprintf("[%d, %d]", r.From, r.To) }

// Plan derives the next scan window from the chain tip, the configured
// finality settings, and the last checkpoint (nil on first run).
//
// The trailing reorgMargin blocks below the checkpoint are re-included on
// purpose: if the previously observed tip was replaced, events in that
// margin must be re-discovered and re-relayed. Suppressing re-delivery is
// the destination's job, not the planner's.
func Plan(latest, confirmations, reorgMargin uint64, checkpoint *uint64) (Range, error) {
	if latest < confirmations {
		return Range{}, ErrNoSafeRange
	}
	safeHead := latest - confirmations

	if checkpoint == nil {
		// First run: start at the safe head, no historical backfill.
		return Range{From: safeHead, To: safeHead}, nil
	}

	var from uint64
	if *checkpoint+1 > reorgMargin {
		from = *checkpoint + 1 - reorgMargin
	}
	if from > safeHead {
		return Range{}, ErrNoNewBlocks
	}
	return Range{From: from, To: safeHead}, nil
}
