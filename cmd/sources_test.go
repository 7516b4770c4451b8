package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectscope/identify-cli/internal/model"
	"github.com/collectscope/identify-cli/internal/store"
)

func TestParseCatalog(t *testing.T) {
	catalog := `[
		{"id": "vision-claude", "name": "Claude Vision", "categories": ["coins", "banknotes"], "tier": 1, "active": true},
		{"id": "auction-archive", "name": "Auction Archive", "categories": ["coins"], "tier": 2, "active": true}
	]`

	sources, err := parseCatalog([]byte(catalog))
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "vision-claude", sources[0].ID)
	assert.Equal(t, []model.Category{model.CategoryCoins, model.CategoryBanknotes}, sources[0].Categories)
}

func TestParseCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		catalog string
		wantErr string
	}{
		{"not_json", `{broken`, "parse catalog"},
		{"missing_id", `[{"name": "X", "tier": 1}]`, "has no id"},
		{"bad_tier", `[{"id": "x", "tier": 0}]`, "invalid tier"},
		{"bad_category", `[{"id": "x", "tier": 1, "categories": ["stamps"]}]`, "unknown category"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseCatalog([]byte(tt.catalog))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestImportSources_SQLite(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	n, err := importSources(ctx, st, []model.Source{
		{ID: "vision-claude", Name: "Claude Vision", Categories: []model.Category{model.CategoryCoins}, Tier: 1, Reliability: 0.5, Active: true},
		{ID: "grading-certs", Name: "Grading Certs", Categories: []model.Category{model.CategoryCoins}, Tier: 2, Reliability: 0.5, Active: true},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	sources, err := st.ListSources(ctx, true)
	require.NoError(t, err)
	assert.Len(t, sources, 2)
}

func TestFormatSourcesList(t *testing.T) {
	var buf bytes.Buffer
	formatSourcesList(&buf, []model.Source{
		{ID: "vision-claude", Name: "Claude Vision", Categories: []model.Category{model.CategoryCoins}, Tier: 1, Reliability: 0.733, AvgLatencyMs: 850, Active: true},
	})

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "ID"))
	assert.Contains(t, out, "vision-claude")
	assert.Contains(t, out, "0.733")
	assert.Contains(t, out, "850ms")
}
