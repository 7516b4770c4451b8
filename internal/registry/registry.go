// Package registry holds the catalog of known sources, their adapters, and
// their continuously-updated performance statistics.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/adapter"
	"github.com/collectscope/identify-cli/internal/model"
)

// defaultAlpha is the EMA smoothing factor for reliability and latency
// updates. Small enough that a single bad run cannot crater a
// historically-good source.
const defaultAlpha = 0.15

// Registry is the sole mutator of source trust. All writes to reliability
// and latency statistics are serialized through its lock.
type Registry struct {
	mu       sync.RWMutex
	sources  map[string]*model.Source
	adapters map[string]adapter.SourceAdapter
	alpha    float64
}

// New creates an empty registry. alpha <= 0 selects the default EMA factor.
func New(alpha float64) *Registry {
	if alpha <= 0 || alpha >= 1 {
		alpha = defaultAlpha
	}
	return &Registry{
		sources:  make(map[string]*model.Source),
		adapters: make(map[string]adapter.SourceAdapter),
		alpha:    alpha,
	}
}

// Register adds a source and its adapter. An existing source with the same
// ID keeps its accumulated statistics; only static metadata is refreshed.
func (r *Registry) Register(src model.Source, ad adapter.SourceAdapter) error {
	if src.ID == "" {
		return eris.New("registry: source id is required")
	}
	if ad == nil {
		return eris.Errorf("registry: source %s has no adapter", src.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.sources[src.ID]; ok {
		existing.Name = src.Name
		existing.Categories = src.Categories
		existing.Tier = src.Tier
		existing.Active = src.Active
		existing.UpdatedAt = time.Now().UTC()
	} else {
		cp := src
		if cp.CreatedAt.IsZero() {
			cp.CreatedAt = time.Now().UTC()
		}
		cp.UpdatedAt = cp.CreatedAt
		r.sources[src.ID] = &cp
	}
	r.adapters[src.ID] = ad
	return nil
}

// List returns the active sources capable of the given category with
// reliability >= minReliability, as copies.
func (r *Registry) List(category model.Category, minReliability float64) []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.Source
	for _, src := range r.sources {
		if !src.Active {
			continue
		}
		if category != "" && !src.Supports(category) {
			continue
		}
		if src.Reliability < minReliability {
			continue
		}
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns a copy of the source with the given ID.
func (r *Registry) Get(id string) (model.Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	if !ok {
		return model.Source{}, false
	}
	return *src, true
}

// Adapter returns the adapter registered for the source, or nil.
func (r *Registry) Adapter(id string) adapter.SourceAdapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[id]
}

// RecordOutcome folds one observed call into the source's running
// statistics using an exponential moving average:
//
//	new = old*(1-alpha) + observed*alpha
//
// Reliability observes 1 for success and 0 for failure. Latency observes
// the call duration in milliseconds; the first observation seeds the
// average directly rather than averaging against zero.
func (r *Registry) RecordOutcome(sourceID string, success bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[sourceID]
	if !ok {
		zap.L().Warn("registry: outcome for unknown source", zap.String("source", sourceID))
		return
	}

	observed := 0.0
	if success {
		observed = 1.0
	}
	src.Reliability = src.Reliability*(1-r.alpha) + observed*r.alpha

	latencyMs := float64(latency.Milliseconds())
	if src.AvgLatencyMs == 0 {
		src.AvgLatencyMs = latencyMs
	} else {
		src.AvgLatencyMs = src.AvgLatencyMs*(1-r.alpha) + latencyMs*r.alpha
	}
	src.UpdatedAt = time.Now().UTC()
}

// Deactivate marks a source inactive. Sources are never deleted.
func (r *Registry) Deactivate(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return eris.Errorf("registry: unknown source %s", id)
	}
	src.Active = false
	src.UpdatedAt = time.Now().UTC()
	return nil
}

// ResetReliability restores a source's reliability to the given base.
// Admin action only; the feedback loop never calls this.
func (r *Registry) ResetReliability(id string, base float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return eris.Errorf("registry: unknown source %s", id)
	}
	src.Reliability = base
	src.UpdatedAt = time.Now().UTC()
	return nil
}

// Snapshot returns copies of every registered source, sorted by ID.
func (r *Registry) Snapshot() []model.Source {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Source, 0, len(r.sources))
	for _, src := range r.sources {
		out = append(out, *src)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
