// Package normalize maps raw, source-specific payloads into the canonical
// record shape. Pure mapping: no network, no state.
package normalize

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/collectscope/identify-cli/internal/model"
)

// Field key aliases seen across source families. First match wins; unknown
// keys are dropped rather than causing failure.
var (
	nameKeys         = []string{"name", "title", "item_name", "identification", "label"}
	yearKeys         = []string{"year", "mint_year", "issue_year", "date"}
	originKeys       = []string{"origin", "country", "region", "country_of_origin", "mint"}
	denominationKeys = []string{"denomination", "face_value", "denom"}
	compositionKeys  = []string{"composition", "material", "metal", "alloy"}
	gradeKeys        = []string{"grade", "condition", "condition_grade", "grading"}
	rarityKeys       = []string{"rarity", "rarity_tier", "scarcity"}
	variantKeys      = []string{"variants", "varieties", "anomalies", "tags"}
	valueLowKeys     = []string{"value_low", "estimated_value_min", "price_low", "min_value"}
	valueHighKeys    = []string{"value_high", "estimated_value_max", "price_high", "max_value"}
	valueSingleKeys  = []string{"estimated_value", "value", "price"}
)

// Normalizer converts raw source payloads to NormalizedRecords.
type Normalizer struct {
	titleCaser cases.Caser
}

// New creates a normalizer.
func New() *Normalizer {
	return &Normalizer{titleCaser: cases.Title(language.English)}
}

// Normalize maps one source's raw payload into the canonical record.
// Missing fields stay unset so the aggregator can distinguish "source
// didn't know" from "source said X". Returns nil only for unparseable
// payloads, which the caller should already have rejected.
func (n *Normalizer) Normalize(sourceID string, payload json.RawMessage) *model.NormalizedRecord {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil
	}

	// Some sources wrap the identification in a result envelope.
	for _, envelope := range []string{"result", "identification", "item", "data"} {
		if inner, ok := raw[envelope].(map[string]any); ok {
			raw = inner
			break
		}
	}

	rec := &model.NormalizedRecord{}

	if s, ok := firstString(raw, nameKeys); ok {
		rec.Name = model.StringPtr(n.titleCaser.String(s))
	}
	if y, ok := firstInt(raw, yearKeys); ok && plausibleYear(y) {
		rec.Year = model.IntPtr(y)
	}
	if s, ok := firstString(raw, originKeys); ok {
		rec.Origin = model.StringPtr(n.titleCaser.String(s))
	}
	if s, ok := firstString(raw, denominationKeys); ok {
		rec.Denomination = model.StringPtr(s)
	}
	if s, ok := firstString(raw, compositionKeys); ok {
		rec.Composition = model.StringPtr(strings.ToLower(s))
	}
	if s, ok := firstString(raw, gradeKeys); ok {
		rec.Grade = model.StringPtr(strings.ToUpper(s))
	}
	if s, ok := firstString(raw, rarityKeys); ok {
		rec.Rarity = model.StringPtr(strings.ToLower(s))
	}
	rec.Variants = variantList(raw)
	rec.ValueRange = valueRange(raw)

	return rec
}

func firstString(raw map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if s, ok := toString(v); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func firstInt(raw map[string]any, keys []string) (int, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if i, ok := toInt(v); ok {
			return i, true
		}
	}
	return 0, false
}

func firstFloat(raw map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	return 0, false
}

func variantList(raw map[string]any) []string {
	for _, k := range variantKeys {
		items, ok := raw[k].([]any)
		if !ok {
			continue
		}
		var out []string
		for _, item := range items {
			if s, ok := toString(item); ok && s != "" {
				out = append(out, strings.ToLower(s))
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func valueRange(raw map[string]any) *model.ValueRange {
	if nested, ok := raw["value_range"].(map[string]any); ok {
		low, okLow := firstFloat(nested, []string{"low", "min"})
		high, okHigh := firstFloat(nested, []string{"high", "max"})
		if okLow && okHigh && low >= 0 && high >= low {
			return &model.ValueRange{Low: low, High: high}
		}
	}

	low, okLow := firstFloat(raw, valueLowKeys)
	high, okHigh := firstFloat(raw, valueHighKeys)
	if okLow && okHigh && low >= 0 && high >= low {
		return &model.ValueRange{Low: low, High: high}
	}

	// A single point estimate is still information; keep it as a
	// degenerate range rather than fabricating a spread.
	if v, ok := firstFloat(raw, valueSingleKeys); ok && v >= 0 {
		return &model.ValueRange{Low: v, High: v}
	}
	return nil
}

// plausibleYear bounds years loosely enough for ancient coinage (negative
// for BC) while rejecting obvious garbage.
func plausibleYear(y int) bool {
	return y >= -4000 && y <= 2100 && y != 0
}

func toString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	default:
		return "", false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(n, ",", ""))
		// Dates like "1921-D" carry the year in the leading run of digits.
		if idx := strings.IndexAny(cleaned, "-/ "); idx > 0 {
			cleaned = cleaned[:idx]
		}
		i, err := strconv.Atoi(cleaned)
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(n), ",", "")
		cleaned = strings.TrimPrefix(cleaned, "$")
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
