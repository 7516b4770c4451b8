package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/resilience"
)

// Caller wraps single source invocations with a hard per-call timeout,
// kind-aware retry with backoff, a per-source circuit breaker, and strict
// payload validation. It is the only place retries live; the dispatch
// orchestrator never retries directly.
type Caller struct {
	retry          resilience.RetryConfig
	breakers       *resilience.SourceBreakers
	perCallTimeout time.Duration
}

// NewCaller creates a caller. breakers may be nil to disable circuit
// breaking (tests). perCallTimeout <= 0 defaults to 20s.
func NewCaller(retry resilience.RetryConfig, breakers *resilience.SourceBreakers, perCallTimeout time.Duration) *Caller {
	if perCallTimeout <= 0 {
		perCallTimeout = 20 * time.Second
	}
	return &Caller{
		retry:          retry,
		breakers:       breakers,
		perCallTimeout: perCallTimeout,
	}
}

// Call invokes the adapter for one source and always returns an outcome,
// never an error: every failure is absorbed into a SourceOutcome with a
// classified kind.
func (c *Caller) Call(ctx context.Context, src model.Source, ad SourceAdapter, req model.Request) model.SourceOutcome {
	start := time.Now()
	attempts := 0

	callCtx, cancel := context.WithTimeout(ctx, c.perCallTimeout)
	defer cancel()

	retryCfg := c.retry
	retryCfg.OnRetry = resilience.RetryLogger(src.ID)

	res, err := resilience.DoVal(callCtx, retryCfg, func(ctx context.Context) (*RawResult, error) {
		attempts++
		if c.breakers == nil {
			return ad.Lookup(ctx, req)
		}
		return resilience.ExecuteVal(ctx, c.breakers.Get(src.ID), func(ctx context.Context) (*RawResult, error) {
			return ad.Lookup(ctx, req)
		})
	})

	latency := time.Since(start)

	if err != nil {
		return c.failure(src.ID, err, callCtx, latency, attempts)
	}

	// Strict output validation: a syntactically malformed payload is a
	// failure, never coerced into a successful empty record.
	if !validPayload(res.Payload) {
		return model.SourceOutcome{
			SourceID:  src.ID,
			Success:   false,
			Latency:   latency,
			Attempts:  attempts,
			ErrorKind: model.ErrKindMalformedResponse,
			Error:     "unparseable source payload",
		}
	}

	return model.SourceOutcome{
		SourceID:   src.ID,
		Success:    true,
		Payload:    res.Payload,
		Confidence: clamp01(res.Confidence),
		Latency:    latency,
		Attempts:   attempts,
	}
}

func (c *Caller) failure(sourceID string, err error, callCtx context.Context, latency time.Duration, attempts int) model.SourceOutcome {
	kind := resilience.KindOf(err)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		kind = model.ErrKindTransientNetwork
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		kind = model.ErrKindTimeout
	}

	zap.L().Debug("source call failed",
		zap.String("source", sourceID),
		zap.String("error_kind", string(kind)),
		zap.Int("attempts", attempts),
		zap.Duration("latency", latency),
		zap.Error(err),
	)

	return model.SourceOutcome{
		SourceID:  sourceID,
		Success:   false,
		Latency:   latency,
		Attempts:  attempts,
		ErrorKind: kind,
		Error:     err.Error(),
	}
}

// validPayload requires a parseable, non-empty JSON object or array.
func validPayload(payload json.RawMessage) bool {
	if len(payload) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return false
	}
	switch v.(type) {
	case map[string]any, []any:
		return true
	default:
		return false
	}
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
