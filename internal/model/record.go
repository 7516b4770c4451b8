package model

// ValueRange is an estimated market value interval in USD.
type ValueRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// NormalizedRecord is the canonical identification shape every source's raw
// payload is mapped into. All fields are optional: a nil pointer means the
// source did not supply the field, which the aggregator treats differently
// from a source asserting a value.
type NormalizedRecord struct {
	Name         *string     `json:"name,omitempty"`
	Year         *int        `json:"year,omitempty"`
	Origin       *string     `json:"origin,omitempty"`
	Denomination *string     `json:"denomination,omitempty"`
	Composition  *string     `json:"composition,omitempty"`
	Grade        *string     `json:"grade,omitempty"`
	ValueRange   *ValueRange `json:"value_range,omitempty"`
	Rarity       *string     `json:"rarity,omitempty"`
	Variants     []string    `json:"variants,omitempty"`
}

// IsEmpty reports whether the record carries no fields at all.
func (r *NormalizedRecord) IsEmpty() bool {
	if r == nil {
		return true
	}
	return r.Name == nil && r.Year == nil && r.Origin == nil &&
		r.Denomination == nil && r.Composition == nil && r.Grade == nil &&
		r.ValueRange == nil && r.Rarity == nil && len(r.Variants) == 0
}

// StringPtr returns a pointer to s. Convenience for building records.
func StringPtr(s string) *string { return &s }

// IntPtr returns a pointer to n.
func IntPtr(n int) *int { return &n }
