// Package consensus combines normalized source outcomes into one final,
// confidence-scored identification.
package consensus

import (
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/collectscope/identify-cli/internal/model"
)

// Aggregator synthesizes ConsensusResults. Pure and deterministic: the
// same outcome list always yields the same result, independent of the
// order sources happened to complete in.
type Aggregator struct {
	tuning Tuning
}

// New creates an aggregator with the given tuning.
func New(tuning Tuning) *Aggregator {
	return &Aggregator{tuning: tuning.withDefaults()}
}

// categorical field accessors, in fixed evaluation order.
var categoricalFields = []struct {
	name string
	get  func(*model.NormalizedRecord) *string
	set  func(*model.NormalizedRecord, string)
}{
	{"name", func(r *model.NormalizedRecord) *string { return r.Name }, func(r *model.NormalizedRecord, v string) { r.Name = &v }},
	{"origin", func(r *model.NormalizedRecord) *string { return r.Origin }, func(r *model.NormalizedRecord, v string) { r.Origin = &v }},
	{"denomination", func(r *model.NormalizedRecord) *string { return r.Denomination }, func(r *model.NormalizedRecord, v string) { r.Denomination = &v }},
	{"composition", func(r *model.NormalizedRecord) *string { return r.Composition }, func(r *model.NormalizedRecord, v string) { r.Composition = &v }},
	{"grade", func(r *model.NormalizedRecord) *string { return r.Grade }, func(r *model.NormalizedRecord, v string) { r.Grade = &v }},
	{"rarity", func(r *model.NormalizedRecord) *string { return r.Rarity }, func(r *model.NormalizedRecord, v string) { r.Rarity = &v }},
}

// Aggregate combines all outcomes of one dispatch cycle. Failed outcomes
// are discarded from voting but still counted as attempted. With zero
// successes the result is confidence 0 with the no-consensus marker —
// never a fabricated identification.
func (a *Aggregator) Aggregate(outcomes []model.SourceOutcome) model.ConsensusResult {
	result := model.ConsensusResult{
		SourcesAttempted: len(outcomes),
		Disagreements:    map[string][]model.Dissent{},
		CreatedAt:        time.Now().UTC(),
	}

	var successes []model.SourceOutcome
	for _, out := range outcomes {
		if out.Success {
			successes = append(successes, out)
		}
	}
	result.SourcesSuccessful = len(successes)

	if len(successes) == 0 {
		result.NoConsensus = true
		result.Confidence = 0
		return result
	}

	// Stable voting order regardless of completion order.
	sort.Slice(successes, func(i, j int) bool { return successes[i].SourceID < successes[j].SourceID })

	for _, field := range categoricalFields {
		chosen, dissents := a.vote(successes, field.get)
		if chosen == "" {
			continue
		}
		field.set(&result.Record, chosen)
		if len(dissents) > 0 {
			result.Disagreements[field.name] = dissents
		}
	}

	a.aggregateYear(successes, &result)
	a.aggregateValue(successes, &result)
	result.Record.Variants = unionVariants(successes)

	result.Confidence = a.score(successes)
	if len(result.Disagreements) == 0 {
		result.Disagreements = nil
	}
	return result
}

// vote picks the most frequent value weighted by each reporting source's
// confidence. Ties break to the value backed by the highest single-source
// confidence, then lexicographically for determinism. Sources that
// reported a different value are returned as dissents.
func (a *Aggregator) vote(successes []model.SourceOutcome, get func(*model.NormalizedRecord) *string) (string, []model.Dissent) {
	type tally struct {
		weight  float64
		maxConf float64
		display string
	}
	votes := map[string]*tally{}
	reported := map[string]string{} // sourceID -> normalized value

	for _, out := range successes {
		if out.Record == nil {
			continue
		}
		v := get(out.Record)
		if v == nil || *v == "" {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(*v))
		reported[out.SourceID] = key

		t, ok := votes[key]
		if !ok {
			t = &tally{display: *v}
			votes[key] = t
		}
		t.weight += out.Confidence
		if out.Confidence > t.maxConf {
			t.maxConf = out.Confidence
			t.display = *v
		}
	}

	if len(votes) == 0 {
		return "", nil
	}

	keys := make([]string, 0, len(votes))
	for k := range votes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ti, tj := votes[keys[i]], votes[keys[j]]
		if ti.weight != tj.weight {
			return ti.weight > tj.weight
		}
		if ti.maxConf != tj.maxConf {
			return ti.maxConf > tj.maxConf
		}
		return keys[i] < keys[j]
	})
	winner := keys[0]

	var dissents []model.Dissent
	for _, out := range successes {
		if key, ok := reported[out.SourceID]; ok && key != winner {
			dissents = append(dissents, model.Dissent{SourceID: out.SourceID, Value: votes[key].display})
		}
	}
	return votes[winner].display, dissents
}

// aggregateYear computes the confidence-weighted mean year across sources
// that supplied one, recording exact-mismatch sources as dissents.
func (a *Aggregator) aggregateYear(successes []model.SourceOutcome, result *model.ConsensusResult) {
	var weightedSum, totalWeight float64
	for _, out := range successes {
		if out.Record == nil || out.Record.Year == nil {
			continue
		}
		weightedSum += float64(*out.Record.Year) * out.Confidence
		totalWeight += out.Confidence
	}
	if totalWeight == 0 {
		return
	}

	year := int(math.Round(weightedSum / totalWeight))
	result.Record.Year = model.IntPtr(year)

	var dissents []model.Dissent
	for _, out := range successes {
		if out.Record == nil || out.Record.Year == nil || *out.Record.Year == year {
			continue
		}
		dissents = append(dissents, model.Dissent{
			SourceID: out.SourceID,
			Value:    strconv.Itoa(*out.Record.Year),
		})
	}
	if len(dissents) > 0 {
		result.Disagreements["year"] = dissents
	}
}

// aggregateValue computes the confidence-weighted mean of the low and high
// bounds across sources that supplied an estimate.
func (a *Aggregator) aggregateValue(successes []model.SourceOutcome, result *model.ConsensusResult) {
	var lowSum, highSum, totalWeight float64
	for _, out := range successes {
		if out.Record == nil || out.Record.ValueRange == nil {
			continue
		}
		lowSum += out.Record.ValueRange.Low * out.Confidence
		highSum += out.Record.ValueRange.High * out.Confidence
		totalWeight += out.Confidence
	}
	if totalWeight == 0 {
		return
	}
	result.Record.ValueRange = &model.ValueRange{
		Low:  round2(lowSum / totalWeight),
		High: round2(highSum / totalWeight),
	}
}

func unionVariants(successes []model.SourceOutcome) []string {
	seen := map[string]bool{}
	for _, out := range successes {
		if out.Record == nil {
			continue
		}
		for _, v := range out.Record.Variants {
			seen[v] = true
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// score computes the final confidence: mean per-source confidence, plus a
// bounded bonus for independent agreement, minus a bounded penalty for
// weak contributors, clamped so the engine never claims absolute certainty
// or absolute failure from a non-empty result set.
func (a *Aggregator) score(successes []model.SourceOutcome) float64 {
	var sum float64
	var weak int
	for _, out := range successes {
		sum += out.Confidence
		if out.Confidence < a.tuning.LowConfidenceThreshold {
			weak++
		}
	}
	confidence := sum / float64(len(successes))

	bonus := float64(len(successes)-1) * a.tuning.AgreementBonusStep
	if bonus > a.tuning.AgreementBonusCap {
		bonus = a.tuning.AgreementBonusCap
	}
	penalty := float64(weak) * a.tuning.LowConfidencePenalty
	if penalty > a.tuning.LowConfidencePenaltyCap {
		penalty = a.tuning.LowConfidencePenaltyCap
	}

	confidence += bonus - penalty
	if confidence < a.tuning.ClampMin {
		confidence = a.tuning.ClampMin
	}
	if confidence > a.tuning.ClampMax {
		confidence = a.tuning.ClampMax
	}
	return round4(confidence)
}

func round2(f float64) float64 { return math.Round(f*100) / 100 }

func round4(f float64) float64 { return math.Round(f*10000) / 10000 }
