// Package dispatch fans one request out to many sources concurrently under
// a global deadline and concurrency cap.
package dispatch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/collectscope/identify-cli/internal/adapter"
	"github.com/collectscope/identify-cli/internal/model"
)

// Target pairs a selected source with its adapter.
type Target struct {
	Source  model.Source
	Adapter adapter.SourceAdapter
}

// Options configures one orchestrator.
type Options struct {
	// GlobalTimeout bounds the whole dispatch cycle. Default: 45s.
	GlobalTimeout time.Duration
	// Grace is the slack allowed past the deadline for in-flight calls to
	// observe cancellation before they are abandoned. Default: 500ms.
	Grace time.Duration
	// ConcurrencyCap bounds simultaneous source calls. Default: 8.
	ConcurrencyCap int
}

func (o Options) withDefaults() Options {
	if o.GlobalTimeout <= 0 {
		o.GlobalTimeout = 45 * time.Second
	}
	if o.Grace <= 0 {
		o.Grace = 500 * time.Millisecond
	}
	if o.ConcurrencyCap <= 0 {
		o.ConcurrencyCap = 8
	}
	return o
}

// Orchestrator runs the resilient caller against selected sources
// concurrently and collects all outcomes.
type Orchestrator struct {
	caller *adapter.Caller
	opts   Options
}

// New creates an orchestrator.
func New(caller *adapter.Caller, opts Options) *Orchestrator {
	return &Orchestrator{caller: caller, opts: opts.withDefaults()}
}

// Dispatch launches one call per target, bounded by the concurrency cap,
// and returns exactly one outcome per target, ordered by source ID.
// The global deadline is a hard bound: once it elapses (plus grace), any
// still-pending calls are abandoned and recorded as timeout outcomes
// rather than blocking the cycle. A failing source never aborts or cancels
// its siblings.
func (o *Orchestrator) Dispatch(ctx context.Context, targets []Target, req model.Request) []model.SourceOutcome {
	if len(targets) == 0 {
		return nil
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, o.opts.GlobalTimeout)
	defer cancel()

	sem := semaphore.NewWeighted(int64(o.opts.ConcurrencyCap))
	results := make(chan model.SourceOutcome, len(targets))

	started := time.Now()
	for _, tgt := range targets {
		go func(tgt Target) {
			if err := sem.Acquire(dispatchCtx, 1); err != nil {
				// Deadline hit while queued; the collector records the
				// timeout outcome for us.
				return
			}
			defer sem.Release(1)
			results <- o.caller.Call(dispatchCtx, tgt.Source, tgt.Adapter, req)
		}(tgt)
	}

	// Collect until every target reported or the deadline (plus grace)
	// passes. Abandoned calls still hold their goroutines briefly, but the
	// buffered channel lets them finish without leaking.
	collected := make(map[string]model.SourceOutcome, len(targets))
	deadline := time.NewTimer(o.opts.GlobalTimeout + o.opts.Grace)
	defer deadline.Stop()

collect:
	for len(collected) < len(targets) {
		select {
		case out := <-results:
			collected[out.SourceID] = out
		case <-deadline.C:
			break collect
		}
	}

	elapsed := time.Since(started)

	// Every hung or abandoned source still yields a timeout outcome so the
	// feedback loop can penalize it.
	outcomes := make([]model.SourceOutcome, 0, len(targets))
	for _, tgt := range targets {
		if out, ok := collected[tgt.Source.ID]; ok {
			outcomes = append(outcomes, out)
			continue
		}
		outcomes = append(outcomes, model.SourceOutcome{
			SourceID:  tgt.Source.ID,
			Success:   false,
			Latency:   elapsed,
			ErrorKind: model.ErrKindTimeout,
			Error:     "abandoned at global deadline",
		})
	}

	// Completion order is non-deterministic; re-order by source ID so
	// downstream aggregation is independent of arrival order.
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].SourceID < outcomes[j].SourceID })

	succeeded := 0
	for _, out := range outcomes {
		if out.Success {
			succeeded++
		}
	}
	zap.L().Debug("dispatch cycle complete",
		zap.Int("attempted", len(targets)),
		zap.Int("succeeded", succeeded),
		zap.Duration("elapsed", elapsed),
	)

	return outcomes
}
