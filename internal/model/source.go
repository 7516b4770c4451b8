package model

import (
	"strings"
	"time"
)

// Category identifies a class of collectible item a source can recognize.
type Category string

const (
	CategoryCoins     Category = "coins"
	CategoryBanknotes Category = "banknotes"
	CategoryBullion   Category = "bullion"
)

// ParseCategory normalizes a user-supplied category string. Returns false
// for unknown categories.
func ParseCategory(s string) (Category, bool) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryCoins:
		return CategoryCoins, true
	case CategoryBanknotes:
		return CategoryBanknotes, true
	case CategoryBullion:
		return CategoryBullion, true
	default:
		return "", false
	}
}

// Source is a registered data provider: a vision model, auction lookup,
// grading-service lookup, or any other independent identification source.
// Reliability and AvgLatencyMs are running statistics owned by the registry;
// nothing else mutates them.
type Source struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Categories  []Category `json:"categories"`
	Tier        int        `json:"tier"` // lower = preferred
	Reliability float64    `json:"reliability"`
	AvgLatencyMs float64   `json:"avg_latency_ms"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Supports reports whether the source can handle the given category.
func (s Source) Supports(c Category) bool {
	for _, have := range s.Categories {
		if have == c {
			return true
		}
	}
	return false
}
