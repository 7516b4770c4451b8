package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/collectscope/identify-cli/internal/adapter"
	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/resilience"
)

func newTestOrchestrator(globalTimeout time.Duration, cap int) *Orchestrator {
	caller := adapter.NewCaller(resilience.RetryConfig{
		MaxAttempts:    1,
		InitialBackoff: time.Millisecond,
	}, nil, globalTimeout)
	return New(caller, Options{
		GlobalTimeout:  globalTimeout,
		Grace:          50 * time.Millisecond,
		ConcurrencyCap: cap,
	})
}

func okTarget(id string) Target {
	return Target{
		Source: model.Source{ID: id, Active: true},
		Adapter: &adapter.Stub{
			SourceName: id,
			Payload:    json.RawMessage(fmt.Sprintf(`{"name":"item from %s"}`, id)),
			Confidence: 0.8,
		},
	}
}

func hangingTarget(id string) Target {
	return Target{
		Source: model.Source{ID: id, Active: true},
		Adapter: &adapter.Stub{
			SourceName: id,
			LookupFunc: func(ctx context.Context, _ model.Request) (*adapter.RawResult, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	}
}

func TestDispatch_AllSucceed(t *testing.T) {
	o := newTestOrchestrator(2*time.Second, 4)
	targets := []Target{okTarget("a"), okTarget("b"), okTarget("c")}

	outcomes := o.Dispatch(context.Background(), targets, model.Request{})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, out := range outcomes {
		if !out.Success {
			t.Errorf("source %s failed: %s", out.SourceID, out.Error)
		}
	}
}

func TestDispatch_OneOutcomePerSource_EvenWhenHung(t *testing.T) {
	o := newTestOrchestrator(100*time.Millisecond, 8)
	targets := []Target{okTarget("fast"), hangingTarget("hung1"), hangingTarget("hung2")}

	start := time.Now()
	outcomes := o.Dispatch(context.Background(), targets, model.Request{})
	elapsed := time.Since(start)

	if elapsed > 600*time.Millisecond {
		t.Errorf("dispatch took %v, must return near deadline + grace", elapsed)
	}
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes (no dropped entries), got %d", len(outcomes))
	}

	byID := map[string]model.SourceOutcome{}
	for _, out := range outcomes {
		byID[out.SourceID] = out
	}
	if !byID["fast"].Success {
		t.Error("fast source should succeed")
	}
	for _, id := range []string{"hung1", "hung2"} {
		if byID[id].Success {
			t.Errorf("%s should have failed", id)
		}
		if byID[id].ErrorKind != model.ErrKindTimeout {
			t.Errorf("%s kind = %s, want timeout", id, byID[id].ErrorKind)
		}
	}
}

func TestDispatch_FailureIsolation(t *testing.T) {
	o := newTestOrchestrator(time.Second, 4)
	failing := Target{
		Source: model.Source{ID: "broken", Active: true},
		Adapter: &adapter.Stub{
			SourceName: "broken",
			Err:        resilience.NewSourceError(model.ErrKindAuthFailure, errors.New("401")),
		},
	}
	targets := []Target{failing, okTarget("healthy1"), okTarget("healthy2")}

	outcomes := o.Dispatch(context.Background(), targets, model.Request{})
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}

	var successes int
	for _, out := range outcomes {
		if out.Success {
			successes++
		}
	}
	if successes != 2 {
		t.Errorf("one source's failure must not suppress siblings: %d successes", successes)
	}
}

func TestDispatch_ConcurrencyCapRespected(t *testing.T) {
	var inflight, peak int64
	o := newTestOrchestrator(2*time.Second, 2)

	var targets []Target
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("s%d", i)
		targets = append(targets, Target{
			Source: model.Source{ID: id, Active: true},
			Adapter: &adapter.Stub{
				SourceName: id,
				LookupFunc: func(_ context.Context, _ model.Request) (*adapter.RawResult, error) {
					cur := atomic.AddInt64(&inflight, 1)
					for {
						old := atomic.LoadInt64(&peak)
						if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
							break
						}
					}
					time.Sleep(20 * time.Millisecond)
					atomic.AddInt64(&inflight, -1)
					return &adapter.RawResult{Payload: json.RawMessage(`{}`), Confidence: 0.5}, nil
				},
			},
		})
	}

	outcomes := o.Dispatch(context.Background(), targets, model.Request{})
	if len(outcomes) != 6 {
		t.Fatalf("expected 6 outcomes, got %d", len(outcomes))
	}
	if atomic.LoadInt64(&peak) > 2 {
		t.Errorf("peak concurrency %d exceeded cap 2", peak)
	}
}

func TestDispatch_OutcomesOrderedBySourceID(t *testing.T) {
	o := newTestOrchestrator(time.Second, 8)
	targets := []Target{okTarget("zeta"), okTarget("alpha"), okTarget("mid")}

	outcomes := o.Dispatch(context.Background(), targets, model.Request{})
	want := []string{"alpha", "mid", "zeta"}
	for i, out := range outcomes {
		if out.SourceID != want[i] {
			t.Errorf("position %d = %s, want %s", i, out.SourceID, want[i])
		}
	}
}

func TestDispatch_EmptyTargets(t *testing.T) {
	o := newTestOrchestrator(time.Second, 4)
	if outcomes := o.Dispatch(context.Background(), nil, model.Request{}); outcomes != nil {
		t.Errorf("expected nil outcomes for empty targets, got %v", outcomes)
	}
}
