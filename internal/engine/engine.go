// Package engine wires selection, dispatch, normalization, consensus,
// caching and feedback into the one identification flow the CLI and the
// HTTP server both call.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/cache"
	"github.com/collectscope/identify-cli/internal/consensus"
	"github.com/collectscope/identify-cli/internal/dispatch"
	"github.com/collectscope/identify-cli/internal/feedback"
	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/normalize"
	"github.com/collectscope/identify-cli/internal/registry"
)

// ErrNoSources is returned when zero sources are eligible for a request.
// Re-exported so callers need not import the registry package to detect
// the fail-closed condition.
var ErrNoSources = registry.ErrNoSources

// Response is the engine's answer to one identification request.
type Response struct {
	Success           bool                   `json:"success"`
	Result            *model.ConsensusResult `json:"result,omitempty"`
	SourcesAttempted  int                    `json:"sources_attempted"`
	SourcesSuccessful int                    `json:"sources_successful"`
	Confidence        float64                `json:"confidence"`
	Cached            bool                   `json:"cached"`
	ProcessingTimeMs  int64                  `json:"processing_time_ms"`
}

// Engine runs the full identification flow.
type Engine struct {
	reg   *registry.Registry
	sel   *registry.Selector
	orch  *dispatch.Orchestrator
	norm  *normalize.Normalizer
	agg   *consensus.Aggregator
	cache *cache.Cache
	rec   *feedback.Recorder
}

// New assembles an engine from its collaborators. cache and rec may be
// nil to disable caching or feedback.
func New(
	reg *registry.Registry,
	sel *registry.Selector,
	orch *dispatch.Orchestrator,
	norm *normalize.Normalizer,
	agg *consensus.Aggregator,
	c *cache.Cache,
	rec *feedback.Recorder,
) *Engine {
	return &Engine{reg: reg, sel: sel, orch: orch, norm: norm, agg: agg, cache: c, rec: rec}
}

// Identify answers one identification request: cache check, source
// selection, concurrent dispatch, normalization, consensus, cache fill
// and feedback, in that order.
func (e *Engine) Identify(ctx context.Context, req model.Request) (*Response, error) {
	start := time.Now()

	if err := validate(req); err != nil {
		return nil, err
	}
	fingerprint := req.ContentFingerprint()
	log := zap.L().With(
		zap.String("fingerprint", fingerprint),
		zap.String("category", string(req.Category)),
		zap.String("depth", string(req.Depth)),
	)

	if e.cache != nil {
		if cached, ok := e.cache.Get(fingerprint, req.Depth); ok {
			log.Info("engine: cache hit", zap.String("cycle", cached.CycleID))
			return responseFrom(&cached, true, start), nil
		}
	}

	sources, err := e.sel.Select(req.Category, req.Depth)
	if err != nil {
		return nil, err
	}

	targets := make([]dispatch.Target, 0, len(sources))
	for _, src := range sources {
		ad := e.reg.Adapter(src.ID)
		if ad == nil {
			log.Warn("engine: source without adapter skipped", zap.String("source", src.ID))
			continue
		}
		targets = append(targets, dispatch.Target{Source: src, Adapter: ad})
	}
	if len(targets) == 0 {
		return nil, ErrNoSources
	}

	log.Info("engine: dispatching", zap.Int("sources", len(targets)))
	outcomes := e.orch.Dispatch(ctx, targets, req)

	// Normalize successful payloads in place before voting.
	for i := range outcomes {
		if outcomes[i].Success && outcomes[i].Record == nil {
			outcomes[i].Record = e.norm.Normalize(outcomes[i].SourceID, outcomes[i].Payload)
		}
	}

	result := e.agg.Aggregate(outcomes)
	result.CycleID = uuid.New().String()

	if e.cache != nil && !result.NoConsensus {
		e.cache.Put(fingerprint, req.Depth, result)
	}

	if e.rec != nil {
		cycle := model.DispatchCycle{
			ID:                result.CycleID,
			Fingerprint:       fingerprint,
			Category:          req.Category,
			Depth:             req.Depth,
			SourcesAttempted:  result.SourcesAttempted,
			SourcesSuccessful: result.SourcesSuccessful,
			Confidence:        result.Confidence,
			NoConsensus:       result.NoConsensus,
			DurationMs:        time.Since(start).Milliseconds(),
			CreatedAt:         time.Now().UTC(),
		}
		e.rec.Record(ctx, cycle, outcomes)
	}

	log.Info("engine: cycle complete",
		zap.String("cycle", result.CycleID),
		zap.Int("attempted", result.SourcesAttempted),
		zap.Int("successful", result.SourcesSuccessful),
		zap.Float64("confidence", result.Confidence),
		zap.Bool("no_consensus", result.NoConsensus),
	)
	return responseFrom(&result, false, start), nil
}

func validate(req model.Request) error {
	if len(req.Image) == 0 && req.ImageHandle == "" && req.Fingerprint == "" {
		return eris.New("engine: request has no image content")
	}
	// The declared category is optional; an empty one consults every
	// capable source.
	if req.Category != "" {
		if _, ok := model.ParseCategory(string(req.Category)); !ok {
			return eris.Errorf("engine: unknown category %q", req.Category)
		}
	}
	if _, ok := model.ParseDepth(string(req.Depth)); !ok {
		return eris.Errorf("engine: unknown depth %q", req.Depth)
	}
	return nil
}

func responseFrom(result *model.ConsensusResult, cached bool, start time.Time) *Response {
	return &Response{
		Success:           !result.NoConsensus,
		Result:            result,
		SourcesAttempted:  result.SourcesAttempted,
		SourcesSuccessful: result.SourcesSuccessful,
		Confidence:        result.Confidence,
		Cached:            cached,
		ProcessingTimeMs:  time.Since(start).Milliseconds(),
	}
}
