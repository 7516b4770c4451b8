package auctions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantErr    string
		wantStatus int
		wantConf   float64
	}{
		{
			name:   "success",
			status: http.StatusOK,
			body: `{
				"match": {"name": "Morgan Silver Dollar", "year": 1921},
				"confidence": 0.78,
				"match_count": 12
			}`,
			wantConf: 0.78,
		},
		{
			name:       "rate_limit",
			status:     http.StatusTooManyRequests,
			body:       `{"error": "rate limit exceeded"}`,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "auth_rejected",
			status:     http.StatusUnauthorized,
			body:       `{"error": "invalid key"}`,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:    "malformed_response",
			status:  http.StatusOK,
			body:    `{invalid json`,
			wantErr: "unmarshal response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/lookup", r.URL.Path)
				assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

				var req LookupRequest
				payload, _ := io.ReadAll(r.Body)
				require.NoError(t, json.Unmarshal(payload, &req))
				assert.Equal(t, "abc123", req.ImageHash)

				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body)) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewClient("test-key", WithBaseURL(srv.URL))
			resp, err := c.Lookup(context.Background(), LookupRequest{ImageHash: "abc123", Category: "coins"})

			if tt.wantStatus != 0 {
				require.Error(t, err)
				var statusErr *StatusError
				require.True(t, errors.As(err, &statusErr))
				assert.Equal(t, tt.wantStatus, statusErr.StatusCode)
				return
			}
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.wantConf, resp.Confidence, 1e-9)
			assert.Equal(t, 12, resp.MatchCount)
			assert.Contains(t, string(resp.Match), "Morgan Silver Dollar")
		})
	}
}

func TestLookup_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := NewClient("test-key", WithBaseURL("http://localhost:0"))
	_, err := c.Lookup(ctx, LookupRequest{ImageHash: "abc123"})
	require.Error(t, err)
}
