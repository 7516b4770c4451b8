package normalize

import (
	"encoding/json"
	"testing"
)

func TestNormalize_CanonicalKeys(t *testing.T) {
	n := New()
	payload := json.RawMessage(`{
		"name": "morgan silver dollar",
		"year": 1921,
		"origin": "united states",
		"denomination": "$1",
		"composition": "90% Silver",
		"grade": "ms-63",
		"rarity": "Common",
		"variants": ["VAM-3A"],
		"value_range": {"low": 28, "high": 45}
	}`)

	rec := n.Normalize("vision", payload)
	if rec == nil {
		t.Fatal("expected record")
	}
	if rec.Name == nil || *rec.Name != "Morgan Silver Dollar" {
		t.Errorf("name = %v", rec.Name)
	}
	if rec.Year == nil || *rec.Year != 1921 {
		t.Errorf("year = %v", rec.Year)
	}
	if rec.Origin == nil || *rec.Origin != "United States" {
		t.Errorf("origin = %v", rec.Origin)
	}
	if rec.Composition == nil || *rec.Composition != "90% silver" {
		t.Errorf("composition = %v", rec.Composition)
	}
	if rec.Grade == nil || *rec.Grade != "MS-63" {
		t.Errorf("grade = %v", rec.Grade)
	}
	if rec.Rarity == nil || *rec.Rarity != "common" {
		t.Errorf("rarity = %v", rec.Rarity)
	}
	if len(rec.Variants) != 1 || rec.Variants[0] != "vam-3a" {
		t.Errorf("variants = %v", rec.Variants)
	}
	if rec.ValueRange == nil || rec.ValueRange.Low != 28 || rec.ValueRange.High != 45 {
		t.Errorf("value range = %v", rec.ValueRange)
	}
}

func TestNormalize_AliasKeys(t *testing.T) {
	n := New()
	payload := json.RawMessage(`{
		"title": "Peace Dollar",
		"mint_year": "1922",
		"country": "USA",
		"metal": "silver",
		"condition": "au-58",
		"price_low": "$20.50",
		"price_high": "31"
	}`)

	rec := n.Normalize("auction", payload)
	if rec.Name == nil || *rec.Name != "Peace Dollar" {
		t.Errorf("name = %v", rec.Name)
	}
	if rec.Year == nil || *rec.Year != 1922 {
		t.Errorf("year = %v", rec.Year)
	}
	if rec.Origin == nil || *rec.Origin != "Usa" {
		t.Errorf("origin = %v", rec.Origin)
	}
	if rec.ValueRange == nil || rec.ValueRange.Low != 20.5 || rec.ValueRange.High != 31 {
		t.Errorf("value range = %v", rec.ValueRange)
	}
}

func TestNormalize_EnvelopeUnwrapped(t *testing.T) {
	n := New()
	payload := json.RawMessage(`{"result": {"name": "gold eagle", "year": 1933}}`)
	rec := n.Normalize("grading", payload)
	if rec.Name == nil || *rec.Name != "Gold Eagle" {
		t.Errorf("name = %v", rec.Name)
	}
}

func TestNormalize_MissingFieldsStayUnset(t *testing.T) {
	n := New()
	rec := n.Normalize("sparse", json.RawMessage(`{"name": "Buffalo Nickel"}`))
	if rec.Year != nil || rec.Origin != nil || rec.Grade != nil || rec.ValueRange != nil {
		t.Error("absent fields must stay nil, never defaulted")
	}
}

func TestNormalize_UnknownFieldsDropped(t *testing.T) {
	n := New()
	rec := n.Normalize("noisy", json.RawMessage(`{"name": "Krugerrand", "shipping_weight_g": 34, "seller_rating": "great"}`))
	if rec.Name == nil || *rec.Name != "Krugerrand" {
		t.Fatal("known field should survive")
	}
	if rec.Year != nil || rec.ValueRange != nil {
		t.Error("unknown fields must not leak into the record")
	}
}

func TestNormalize_ImplausibleYearDropped(t *testing.T) {
	n := New()
	rec := n.Normalize("odd", json.RawMessage(`{"name": "thing", "year": 99999}`))
	if rec.Year != nil {
		t.Errorf("implausible year kept: %d", *rec.Year)
	}
}

func TestNormalize_DateWithMintMark(t *testing.T) {
	n := New()
	rec := n.Normalize("auction", json.RawMessage(`{"date": "1921-D"}`))
	if rec.Year == nil || *rec.Year != 1921 {
		t.Errorf("year = %v, want 1921", rec.Year)
	}
}

func TestNormalize_SinglePointValue(t *testing.T) {
	n := New()
	rec := n.Normalize("auction", json.RawMessage(`{"estimated_value": 150}`))
	if rec.ValueRange == nil || rec.ValueRange.Low != 150 || rec.ValueRange.High != 150 {
		t.Errorf("value range = %v, want degenerate [150,150]", rec.ValueRange)
	}
}

func TestNormalize_InvertedRangeRejected(t *testing.T) {
	n := New()
	rec := n.Normalize("auction", json.RawMessage(`{"value_low": 100, "value_high": 5}`))
	if rec.ValueRange != nil {
		t.Errorf("inverted range must be dropped, got %v", rec.ValueRange)
	}
}

func TestNormalize_UnparseablePayload(t *testing.T) {
	n := New()
	if rec := n.Normalize("bad", json.RawMessage(`[1,2,3`)); rec != nil {
		t.Error("unparseable payload must yield nil")
	}
}
