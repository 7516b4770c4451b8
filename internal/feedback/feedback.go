// Package feedback closes the loop after a dispatch cycle: every source
// outcome is folded into the registry's reliability statistics and written
// to the learning session log.
package feedback

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/registry"
	"github.com/collectscope/identify-cli/internal/store"
)

// Recorder applies per-source outcomes to the registry and persists the
// cycle history. Registry updates are mandatory; persistence is
// best-effort and never fails the identification that produced the cycle.
type Recorder struct {
	reg *registry.Registry
	st  store.Store
}

// NewRecorder creates a recorder. st may be nil, in which case only the
// in-memory registry statistics are updated.
func NewRecorder(reg *registry.Registry, st store.Store) *Recorder {
	return &Recorder{reg: reg, st: st}
}

// Record folds every outcome of one dispatch cycle into source trust and
// writes the cycle and its learning samples. A timeout outcome counts
// against the source exactly like any other failure.
func (r *Recorder) Record(ctx context.Context, cycle model.DispatchCycle, outcomes []model.SourceOutcome) {
	for _, o := range outcomes {
		r.reg.RecordOutcome(o.SourceID, o.Success, o.Latency)
	}

	if r.st == nil {
		return
	}

	if err := r.st.InsertCycle(ctx, cycle); err != nil {
		zap.L().Warn("feedback: persist cycle failed",
			zap.String("cycle", cycle.ID), zap.Error(err))
		return
	}

	samples := make([]model.LearningSample, 0, len(outcomes))
	now := time.Now().UTC()
	for _, o := range outcomes {
		samples = append(samples, model.LearningSample{
			ID:         uuid.New().String(),
			CycleID:    cycle.ID,
			SourceID:   o.SourceID,
			Success:    o.Success,
			ErrorKind:  string(o.ErrorKind),
			Confidence: o.Confidence,
			LatencyMs:  o.Latency.Milliseconds(),
			CreatedAt:  now,
		})
	}
	if err := r.st.InsertSamples(ctx, samples); err != nil {
		zap.L().Warn("feedback: persist samples failed",
			zap.String("cycle", cycle.ID), zap.Error(err))
	}

	for _, o := range outcomes {
		src, ok := r.reg.Get(o.SourceID)
		if !ok {
			continue
		}
		if err := r.st.UpdateSourceStats(ctx, src.ID, src.Reliability, src.AvgLatencyMs); err != nil {
			zap.L().Warn("feedback: persist source stats failed",
				zap.String("source", src.ID), zap.Error(err))
		}
	}
}
