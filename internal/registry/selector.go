package registry

import (
	"sort"

	"github.com/rotisserie/eris"

	"github.com/collectscope/identify-cli/internal/model"
)

// ErrNoSources is returned when selection finds zero eligible sources.
// Callers must be able to distinguish "ran with zero sources" from "ran
// and all failed", so this condition is an explicit error, never an empty
// list.
var ErrNoSources = eris.New("registry: no eligible sources for request")

// DefaultCeilings maps analysis depth to the maximum number of sources
// consulted.
func DefaultCeilings() map[model.Depth]int {
	return map[model.Depth]int{
		model.DepthBasic:         5,
		model.DepthComprehensive: 10,
		model.DepthDeep:          15,
	}
}

// Selector ranks and selects a bounded subset of registry sources for a
// request. Deterministic given the same registry state.
type Selector struct {
	reg      *Registry
	ceilings map[model.Depth]int
}

// NewSelector creates a selector. Nil or incomplete ceilings fall back to
// the defaults per depth.
func NewSelector(reg *Registry, ceilings map[model.Depth]int) *Selector {
	merged := DefaultCeilings()
	for d, n := range ceilings {
		if n > 0 {
			merged[d] = n
		}
	}
	return &Selector{reg: reg, ceilings: merged}
}

// Ceiling returns the source-count ceiling for a depth.
func (s *Selector) Ceiling(depth model.Depth) int {
	return s.ceilings[depth]
}

// Select returns the ranked eligible sources for the category, capped at
// the depth's ceiling. Ranking: priority tier ascending, then reliability
// descending, then average latency ascending; ID breaks remaining ties so
// the result is stable. Inactive sources and sources lacking the category
// capability are excluded. Returns ErrNoSources when nothing is eligible.
func (s *Selector) Select(category model.Category, depth model.Depth) ([]model.Source, error) {
	eligible := s.reg.List(category, 0)
	if len(eligible) == 0 {
		return nil, ErrNoSources
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.Tier != b.Tier {
			return a.Tier < b.Tier
		}
		if a.Reliability != b.Reliability {
			return a.Reliability > b.Reliability
		}
		if a.AvgLatencyMs != b.AvgLatencyMs {
			return a.AvgLatencyMs < b.AvgLatencyMs
		}
		return a.ID < b.ID
	})

	if ceiling := s.ceilings[depth]; ceiling > 0 && len(eligible) > ceiling {
		eligible = eligible[:ceiling]
	}
	return eligible, nil
}
