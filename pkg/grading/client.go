// Package grading queries a coin grading service's certification database.
package grading

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.gradingservice.example.com/v2"

// Client queries the grading service certification API.
type Client interface {
	CertLookup(ctx context.Context, req CertRequest) (*CertResponse, error)
}

// CertRequest identifies the item to look up. ImageHash finds visually
// similar certified items; CertNumber fetches an exact certification.
type CertRequest struct {
	ImageHash  string
	CertNumber string
	Category   string
}

// CertResponse is the grading service's certification record.
type CertResponse struct {
	// Cert is the certification record as returned by the API.
	Cert       json.RawMessage `json:"cert"`
	Confidence float64         `json:"confidence"`
}

// StatusError carries the HTTP status of a failed lookup so callers can
// classify it.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return "grading: unexpected status " + http.StatusText(e.StatusCode)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit caps outgoing requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a grading service API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(rate.Limit(5), 1),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) CertLookup(ctx context.Context, req CertRequest) (*CertResponse, error) {
	if req.ImageHash == "" && req.CertNumber == "" {
		return nil, eris.New("grading: image hash or cert number required")
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "grading: rate limit wait")
		}
	}

	q := url.Values{}
	if req.CertNumber != "" {
		q.Set("cert", req.CertNumber)
	} else {
		q.Set("image_hash", req.ImageHash)
		q.Set("category", req.Category)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/certs?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "grading: create request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrap(err, "grading: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "grading: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result CertResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "grading: unmarshal response")
	}
	return &result, nil
}
