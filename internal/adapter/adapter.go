// Package adapter defines the SourceAdapter contract and the resilient
// caller that wraps every source invocation with timeout, retry and
// classification.
package adapter

import (
	"context"
	"encoding/json"

	"github.com/collectscope/identify-cli/internal/model"
)

// RawResult is the unnormalized response from one source lookup: the
// source-specific payload plus the source's self-reported confidence.
type RawResult struct {
	Payload    json.RawMessage
	Confidence float64
}

// SourceAdapter is implemented once per source type. An adapter may be a
// real API client, a scraper, or a stub — the engine depends only on this
// interface and on failures carrying a classified error kind.
type SourceAdapter interface {
	// Name returns the source identifier this adapter serves.
	Name() string
	// Categories returns the item categories the adapter can look up.
	Categories() []model.Category
	// Lookup performs one identification attempt. Failures should be
	// wrapped with resilience.NewSourceError so the caller retries only
	// what is retryable.
	Lookup(ctx context.Context, req model.Request) (*RawResult, error)
}
