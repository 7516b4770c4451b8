package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/registry"
	"github.com/collectscope/identify-cli/internal/store"
)

// SourceHealth is a point-in-time view of one source's trust statistics.
type SourceHealth struct {
	SourceID     string  `json:"source_id"`
	Tier         int     `json:"tier"`
	Reliability  float64 `json:"reliability"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	Active       bool    `json:"active"`
}

// MetricsSnapshot holds a point-in-time view of system health.
type MetricsSnapshot struct {
	// Cycle metrics (within lookback window).
	CyclesTotal       int     `json:"cycles_total"`
	CyclesResolved    int     `json:"cycles_resolved"`
	CyclesNoConsensus int     `json:"cycles_no_consensus"`
	NoConsensusRate   float64 `json:"no_consensus_rate"`
	AvgConfidence     float64 `json:"avg_confidence"`
	AvgDurationMs     float64 `json:"avg_duration_ms"`
	AvgSourcesHit     float64 `json:"avg_sources_hit"`

	// Per-source trust statistics.
	Sources []SourceHealth `json:"sources"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// Collector gathers metrics from the cycle history and the source registry.
type Collector struct {
	store store.Store
	reg   *registry.Registry
}

// NewCollector creates a new metrics collector. st may be nil when the
// engine runs without persistence; cycle metrics are then zero.
func NewCollector(st store.Store, reg *registry.Registry) *Collector {
	return &Collector{store: st, reg: reg}
}

// Collect gathers a snapshot of system metrics over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   time.Now().UTC(),
	}

	if c.store != nil {
		cutoff := time.Now().UTC().Add(-time.Duration(lookbackHours) * time.Hour)
		cycles, err := c.store.ListCycles(ctx, store.CycleFilter{
			Since: cutoff,
			Limit: 10000,
		})
		if err != nil {
			return nil, eris.Wrap(err, "monitoring: list cycles")
		}
		c.fold(snap, cycles)
	}

	if c.reg != nil {
		for _, src := range c.reg.Snapshot() {
			snap.Sources = append(snap.Sources, SourceHealth{
				SourceID:     src.ID,
				Tier:         src.Tier,
				Reliability:  src.Reliability,
				AvgLatencyMs: src.AvgLatencyMs,
				Active:       src.Active,
			})
		}
	}

	return snap, nil
}

func (c *Collector) fold(snap *MetricsSnapshot, cycles []model.DispatchCycle) {
	snap.CyclesTotal = len(cycles)
	if len(cycles) == 0 {
		return
	}

	var totalConfidence, totalDuration, totalSuccessful float64
	for _, cy := range cycles {
		if cy.NoConsensus {
			snap.CyclesNoConsensus++
		} else {
			snap.CyclesResolved++
			totalConfidence += cy.Confidence
		}
		totalDuration += float64(cy.DurationMs)
		totalSuccessful += float64(cy.SourcesSuccessful)
	}

	snap.NoConsensusRate = float64(snap.CyclesNoConsensus) / float64(snap.CyclesTotal)
	if snap.CyclesResolved > 0 {
		snap.AvgConfidence = totalConfidence / float64(snap.CyclesResolved)
	}
	snap.AvgDurationMs = totalDuration / float64(snap.CyclesTotal)
	snap.AvgSourcesHit = totalSuccessful / float64(snap.CyclesTotal)
}
