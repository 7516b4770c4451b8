package adapter

import (
	"context"
	"encoding/json"

	"github.com/collectscope/identify-cli/internal/model"
)

// Stub is a deterministic SourceAdapter for tests and local development.
// Either set Payload/Confidence/Err for a fixed response, or LookupFunc
// for full control.
type Stub struct {
	SourceName string
	Cats       []model.Category

	Payload    json.RawMessage
	Confidence float64
	Err        error

	LookupFunc func(ctx context.Context, req model.Request) (*RawResult, error)
}

func (s *Stub) Name() string { return s.SourceName }

func (s *Stub) Categories() []model.Category {
	if len(s.Cats) == 0 {
		return []model.Category{model.CategoryCoins, model.CategoryBanknotes, model.CategoryBullion}
	}
	return s.Cats
}

func (s *Stub) Lookup(ctx context.Context, req model.Request) (*RawResult, error) {
	if s.LookupFunc != nil {
		return s.LookupFunc(ctx, req)
	}
	if s.Err != nil {
		return nil, s.Err
	}
	return &RawResult{Payload: s.Payload, Confidence: s.Confidence}, nil
}
