// Package engine drives the relay loop: plan a range, scan it, deliver
// each event in order, advance the checkpoint, sleep, repeat.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/devblac/bridge-relay/internal/chain"
	"github.com/devblac/bridge-relay/internal/checkpoint"
	"github.com/devblac/bridge-relay/internal/journal"
	"github.com/devblac/bridge-relay/internal/metrics"
	"github.com/devblac/bridge-relay/internal/planner"
	"github.com/devblac/bridge-relay/internal/relay"
	"github.com/devblac/bridge-relay/internal/scanner"
)

// RelayAbortedError reports an event whose retry budget was exhausted.
// The checkpoint is frozen below the event's block until it delivers.
type RelayAbortedError struct {
	TxHash   string
	LogIndex uint
	Attempts int
	Err      error
}

func (e *RelayAbortedError) Error() string {
	return fmt.Sprintf("relay of %s/%d aborted after %d attempts: %v", e.TxHash, e.LogIndex, e.Attempts, e.Err)
}

func (e *RelayAbortedError) Unwrap() error { return e.Err }

// Options wires the orchestrator's collaborators and tuning.
type Options struct {
	Chain       chain.Client
	Scanner     *scanner.Scanner
	Sender      relay.Sender
	Checkpoints *checkpoint.Store
	Journal     *journal.Journal // optional
	Metrics     *metrics.Metrics // optional
	Log         *slog.Logger

	PollInterval  time.Duration
	Confirmations uint64
	ReorgMargin   uint64
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	DryRun        bool
}

// Orchestrator owns the single-threaded relay state machine. One
// iteration runs to completion before the next starts; the only
// suspension points are chain queries, deliveries, and the poll sleep.
type Orchestrator struct {
	chain chain.Client
	scan  *scanner.Scanner
	send  relay.Sender
	store *checkpoint.Store
	jrnl  *journal.Journal
	mtr   *metrics.Metrics
	log   *slog.Logger

	pollInterval  time.Duration
	confirmations uint64
	reorgMargin   uint64
	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	dryRun        bool

	sleep func(ctx context.Context, d time.Duration) error
}

// New validates options and builds the orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Chain == nil || opts.Scanner == nil || opts.Sender == nil || opts.Checkpoints == nil {
		return nil, errors.New("chain, scanner, sender, and checkpoint store are required")
	}
	if opts.PollInterval <= 0 {
		return nil, errors.New("poll interval must be positive")
	}
	if opts.MaxAttempts < 1 {
		return nil, errors.New("max attempts must be at least 1")
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	backoffBase := opts.BackoffBase
	if backoffBase <= 0 {
		backoffBase = time.Second
	}
	backoffMax := opts.BackoffMax
	if backoffMax < backoffBase {
		backoffMax = backoffBase
	}

	return &Orchestrator{
		chain:         opts.Chain,
		scan:          opts.Scanner,
		send:          opts.Sender,
		store:         opts.Checkpoints,
		jrnl:          opts.Journal,
		mtr:           opts.Metrics,
		log:           log,
		pollInterval:  opts.PollInterval,
		confirmations: opts.Confirmations,
		reorgMargin:   opts.ReorgMargin,
		maxAttempts:   opts.MaxAttempts,
		backoffBase:   backoffBase,
		backoffMax:    backoffMax,
		dryRun:        opts.DryRun,
		sleep:         sleepCtx,
	}, nil
}

// Run loops until ctx is cancelled. Failed iterations never stop the
// loop; they are logged, counted, and retried after an exponential
// delay that resets once an iteration fully succeeds.
func (o *Orchestrator) Run(ctx context.Context) error {
	iterDelay := backoff.NewExponentialBackOff()
	iterDelay.InitialInterval = o.backoffBase
	iterDelay.MaxInterval = o.backoffMax
	iterDelay.MaxElapsedTime = 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		var delay time.Duration
		err := o.RunOnce(ctx)
		switch {
		case err == nil:
			iterDelay.Reset()
			delay = o.pollInterval
		case ctx.Err() != nil:
			return nil
		default:
			o.mtr.IterationError()
			delay = iterDelay.NextBackOff()
			o.log.Error("iteration failed", "error", err, "retry_in", delay)
		}

		if err := o.sleep(ctx, delay); err != nil {
			return nil
		}
	}
}

// RunOnce executes a single iteration of the state machine. A nil return
// means the iteration fully succeeded or there was nothing to do.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	// PLANNING. The checkpoint is read fresh every iteration; no
	// component caches it across iterations.
	height, ok, err := o.store.Load()
	if err != nil {
		return err
	}
	var cp *uint64
	if ok {
		cp = &height
	}

	latest, err := o.latestHeight(ctx)
	if err != nil {
		return err
	}

	r, err := planner.Plan(latest, o.confirmations, o.reorgMargin, cp)
	if errors.Is(err, planner.ErrNoSafeRange) || errors.Is(err, planner.ErrNoNewBlocks) {
		o.log.Debug("nothing to scan", "reason", err, "latest", latest)
		return nil
	}
	if err != nil {
		return err
	}

	// SCANNING. A failed scan leaves the checkpoint untouched; the same
	// window is re-derived next cycle.
	events, err := o.scanRange(ctx, r)
	if err != nil {
		return err
	}
	o.mtr.BlocksScanned(float64(r.Len()))

	// RELAYING. Strict order: event k+1 is never attempted before k
	// delivers. A stuck event blocks its successors and freezes the
	// checkpoint below its block.
	for _, ev := range events {
		if err := o.relayEvent(ctx, ev); err != nil {
			return err
		}
	}

	if o.dryRun {
		o.log.Info("dry run: checkpoint not advanced", "range", r.String(), "events", len(events))
		return nil
	}

	// CHECKPOINTING. The persisted height never moves backward: a lagging
	// RPC node can report a tip below the checkpoint, which puts the whole
	// range under the reorg margin. The re-scan above still redelivers, but
	// the stored height stays where it was.
	if cp != nil && r.To <= *cp {
		o.log.Debug("checkpoint ahead of range end, not advancing", "checkpoint", *cp, "to", r.To)
		return nil
	}

	// Every event in the range is delivered at this point, so shutdown
	// must not interrupt before the new height is durable; the save runs
	// on a detached context.
	if err := o.saveCheckpoint(context.WithoutCancel(ctx), r.To); err != nil {
		return err
	}
	o.mtr.CheckpointHeight(r.To)
	o.log.Info("range processed", "from", r.From, "to", r.To, "events", len(events))
	return nil
}

func (o *Orchestrator) latestHeight(ctx context.Context) (uint64, error) {
	var latest uint64
	err := backoff.RetryNotify(
		func() (err error) {
			latest, err = o.chain.LatestHeight(ctx)
			return err
		},
		o.newBackoff(ctx),
		func(err error, d time.Duration) {
			o.log.Warn("latest height query failed", "error", err, "retry_in", d)
		},
	)
	if err != nil {
		return 0, fmt.Errorf("latest height: %w", err)
	}
	return latest, nil
}

func (o *Orchestrator) scanRange(ctx context.Context, r planner.Range) ([]chain.Event, error) {
	var events []chain.Event
	err := backoff.RetryNotify(
		func() (err error) {
			events, err = o.scan.Scan(ctx, r)
			return err
		},
		o.newBackoff(ctx),
		func(err error, d time.Duration) {
			o.log.Warn("scan failed", "range", r.String(), "error", err, "retry_in", d)
		},
	)
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (o *Orchestrator) relayEvent(ctx context.Context, ev chain.Event) error {
	payload := relay.NewPayload(ev)

	if o.dryRun {
		o.log.Info("dry run: would deliver", "tx", ev.TxHash, "log_index", ev.LogIndex, "block", ev.BlockNumber)
		return nil
	}

	attempts := 0
	err := backoff.RetryNotify(
		func() error {
			attempts++
			if err := o.send.Deliver(ctx, payload); err != nil {
				o.mtr.DeliveryFailure()
				return err
			}
			return nil
		},
		backoff.WithContext(backoff.WithMaxRetries(o.newEventBackoff(), uint64(o.maxAttempts-1)), ctx),
		func(err error, d time.Duration) {
			o.log.Warn("delivery failed", "tx", ev.TxHash, "log_index", ev.LogIndex, "error", err, "retry_in", d)
		},
	)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		o.recordDelivery(ctx, ev, journal.StatusFailed, attempts, err)
		return &RelayAbortedError{TxHash: ev.TxHash, LogIndex: ev.LogIndex, Attempts: attempts, Err: err}
	}

	o.mtr.EventRelayed()
	o.recordDelivery(ctx, ev, journal.StatusDelivered, attempts, nil)
	o.log.Info("event relayed", "tx", ev.TxHash, "log_index", ev.LogIndex, "block", ev.BlockNumber, "attempts", attempts)
	return nil
}

// saveCheckpoint retries persistence failures in place: the range's
// events are already delivered, and retrying the save re-relays nothing.
func (o *Orchestrator) saveCheckpoint(ctx context.Context, height uint64) error {
	err := backoff.RetryNotify(
		func() error { return o.store.Save(height) },
		o.newBackoff(ctx),
		func(err error, d time.Duration) {
			o.log.Error("checkpoint save failed", "height", height, "error", err, "retry_in", d)
		},
	)
	if err != nil {
		return fmt.Errorf("save checkpoint %d: %w", height, err)
	}
	return nil
}

func (o *Orchestrator) recordDelivery(ctx context.Context, ev chain.Event, status string, attempts int, cause error) {
	if o.jrnl == nil {
		return
	}
	code := 0
	var dErr *relay.DeliveryError
	if errors.As(cause, &dErr) {
		code = dErr.StatusCode
	}
	d := journal.Delivery{
		TxHash:       ev.TxHash,
		LogIndex:     ev.LogIndex,
		BlockNumber:  ev.BlockNumber,
		Status:       status,
		ResponseCode: code,
		Attempts:     attempts,
	}
	if err := o.jrnl.Record(context.WithoutCancel(ctx), d); err != nil {
		o.log.Warn("journal write failed", "tx", ev.TxHash, "error", err)
	}
}

func (o *Orchestrator) newBackoff(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.backoffBase
	b.MaxInterval = o.backoffMax
	b.MaxElapsedTime = o.backoffMax
	return backoff.WithContext(b, ctx)
}

func (o *Orchestrator) newEventBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.backoffBase
	b.MaxInterval = o.backoffMax
	b.MaxElapsedTime = 0
	return b
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
