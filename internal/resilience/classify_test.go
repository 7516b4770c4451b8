package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/collectscope/identify-cli/internal/model"
)

func TestKindOf_ExplicitKindWins(t *testing.T) {
	err := NewSourceError(model.ErrKindAuthFailure, errors.New("401 unauthorized"))
	if got := KindOf(err); got != model.ErrKindAuthFailure {
		t.Errorf("KindOf = %s, want auth_failure", got)
	}

	// Explicit kind survives wrapping.
	wrapped := fmt.Errorf("vision call: %w", err)
	if got := KindOf(wrapped); got != model.ErrKindAuthFailure {
		t.Errorf("KindOf(wrapped) = %s, want auth_failure", got)
	}
}

func TestKindOf_DeadlineExceeded(t *testing.T) {
	if got := KindOf(context.DeadlineExceeded); got != model.ErrKindTimeout {
		t.Errorf("KindOf(DeadlineExceeded) = %s, want timeout", got)
	}
}

func TestKindOf_UnknownDefaultsTransient(t *testing.T) {
	if got := KindOf(errors.New("something odd happened")); got != model.ErrKindTransientNetwork {
		t.Errorf("KindOf(unknown) = %s, want transient_network", got)
	}
}

func TestKindOf_TimeoutPatterns(t *testing.T) {
	if got := KindOf(errors.New("dial tcp: i/o timeout")); got != model.ErrKindTimeout {
		t.Errorf("KindOf(i/o timeout) = %s, want timeout", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Error("nil error is not retryable")
	}
	if IsRetryable(NewSourceError(model.ErrKindQuotaExhausted, errors.New("402"))) {
		t.Error("quota_exhausted must not be retryable")
	}
	if !IsRetryable(NewSourceError(model.ErrKindTransientNetwork, errors.New("503"))) {
		t.Error("transient_network must be retryable")
	}
}

func TestKindFromHTTPStatus(t *testing.T) {
	cases := []struct {
		status int
		want   model.ErrorKind
	}{
		{401, model.ErrKindAuthFailure},
		{403, model.ErrKindAuthFailure},
		{402, model.ErrKindQuotaExhausted},
		{429, model.ErrKindQuotaExhausted},
		{400, model.ErrKindMalformedInput},
		{422, model.ErrKindMalformedInput},
		{408, model.ErrKindTimeout},
		{504, model.ErrKindTimeout},
		{500, model.ErrKindTransientNetwork},
		{503, model.ErrKindTransientNetwork},
		{200, ""},
		{302, ""},
	}
	for _, tc := range cases {
		if got := KindFromHTTPStatus(tc.status); got != tc.want {
			t.Errorf("KindFromHTTPStatus(%d) = %q, want %q", tc.status, got, tc.want)
		}
	}
}
